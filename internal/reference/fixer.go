package reference

import (
	"strconv"
	"strings"

	"rte-image-backend/internal/imagerender"
)

// Fix applies the fixable issues of one record to content and returns the
// new content with the number of applied fixes. Issues whose tag no longer
// carries the reported src are skipped.
func Fix(content string, issues []Issue) (string, int) {
	byTag := make(map[int]Issue, len(issues))
	for _, issue := range issues {
		if issue.Fixable && issue.ExpectedSrc != "" {
			byTag[issue.TagIndex] = issue
		}
	}
	if len(byTag) == 0 {
		return content, 0
	}

	var b strings.Builder
	last := 0
	applied := 0

	for index, tag := range imagerender.ImageTags(content) {
		issue, ok := byTag[index]
		if !ok {
			continue
		}
		if src, _ := tag.Attr.Get("src"); src != issue.CurrentSrc {
			continue
		}

		attrs := tag.Attr.Clone().Set("src", issue.ExpectedSrc)
		if issue.Type == IssueOrphanedFileUID && issue.ExpectedUID != nil {
			attrs = attrs.Set(imagerender.AttrFileUID, strconv.FormatUint(uint64(*issue.ExpectedUID), 10))
			if issue.FileTable != "" {
				attrs = attrs.Set(imagerender.AttrFileTable, issue.FileTable)
			}
		}

		b.WriteString(content[last:tag.Offset])
		b.WriteString(tag.Render(attrs))
		last = tag.Offset + len(tag.Raw)
		applied++
	}

	if applied == 0 {
		return content, 0
	}
	b.WriteString(content[last:])
	return b.String(), applied
}
