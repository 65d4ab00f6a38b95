// Package reference finds file references in stored rich-text content for the
// reference index and detects references that drifted from their files.
package reference

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"rte-image-backend/internal/imagerender"
)

var tokenNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("rte-image-backend/softref"))

// SoftReference is one file reference found in a content field.
type SoftReference struct {
	TokenID       string `json:"token_id"`
	Table         string `json:"table"`
	Field         string `json:"field"`
	RecordUID     uint   `json:"record_uid"`
	StructurePath string `json:"structure_path"`
	RefTable      string `json:"ref_table"`
	RefUID        uint   `json:"ref_uid"`
	MatchString   string `json:"match_string"`
}

// Target is the referenced record in table:uid notation.
func (r SoftReference) Target() string {
	return r.RefTable + ":" + strconv.FormatUint(uint64(r.RefUID), 10)
}

type ScanResult struct {
	References []SoftReference
	// Content is the scanned content with every file uid value replaced by
	// its {softref:<token>} placeholder.
	Content string
}

type Scanner struct{}

func NewScanner() *Scanner {
	return &Scanner{}
}

// Scan returns a soft reference for every managed image in content. Token
// ids are derived from the record key and the occurrence, so rescanning
// unchanged content yields the same tokens.
func (s *Scanner) Scan(table, field string, recordUID uint, structurePath, content string) ScanResult {
	result := ScanResult{Content: content}

	var b strings.Builder
	last := 0
	occurrence := 0

	for _, tag := range imagerender.ImageTags(content) {
		refs, err := imagerender.Extract(tag.Raw)
		if err != nil || len(refs) != 1 || !refs[0].HasFile() {
			continue
		}
		ref := refs[0]

		key := fmt.Sprintf("%s:%s:%d:%s:%d", table, field, recordUID, structurePath, occurrence)
		token := uuid.NewSHA1(tokenNamespace, []byte(key)).String()
		occurrence++

		raw, _ := tag.Attr.Get(imagerender.AttrFileUID)
		result.References = append(result.References, SoftReference{
			TokenID:       token,
			Table:         table,
			Field:         field,
			RecordUID:     recordUID,
			StructurePath: structurePath,
			RefTable:      ref.Table(),
			RefUID:        *ref.FileUID,
			MatchString:   raw,
		})

		attrs := tag.Attr.Clone().Set(imagerender.AttrFileUID, "{softref:"+token+"}")
		b.WriteString(content[last:tag.Offset])
		b.WriteString(tag.Render(attrs))
		last = tag.Offset + len(tag.Raw)
	}

	if len(result.References) > 0 {
		b.WriteString(content[last:])
		result.Content = b.String()
	}
	return result
}
