package reference

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/sync/errgroup"

	"rte-image-backend/internal/imagerender"
)

type IssueType string

const (
	// IssueProcessedImageSrc: the src points at a processed variant instead of the file.
	IssueProcessedImageSrc IssueType = "ProcessedImageSrc"
	// IssueSrcMismatch: the src differs from the public URL of the referenced file.
	IssueSrcMismatch IssueType = "SrcMismatch"
	// IssueBrokenSrc: the src is empty.
	IssueBrokenSrc IssueType = "BrokenSrc"
	// IssueOrphanedFileUID: the referenced file no longer exists.
	IssueOrphanedFileUID IssueType = "OrphanedFileUid"
	// IssueMissingFileUID: a local image carries no file reference at all.
	IssueMissingFileUID IssueType = "MissingFileUid"
)

// IssueTypes lists every issue type in report order.
var IssueTypes = []IssueType{
	IssueProcessedImageSrc,
	IssueSrcMismatch,
	IssueBrokenSrc,
	IssueOrphanedFileUID,
	IssueMissingFileUID,
}

type Issue struct {
	Type        IssueType `json:"type"`
	Table       string    `json:"table"`
	Field       string    `json:"field"`
	RecordUID   uint      `json:"record_uid"`
	FileUID     *uint     `json:"file_uid,omitempty"`
	FileTable   string    `json:"file_table,omitempty"`
	ExpectedUID *uint     `json:"expected_file_uid,omitempty"`
	CurrentSrc  string    `json:"current_src"`
	ExpectedSrc string    `json:"expected_src,omitempty"`
	Fixable     bool      `json:"fixable"`
	TagIndex    int       `json:"tag_index"`
}

// Record is one rich-text field of a content record.
type Record struct {
	Table   string
	Field   string
	UID     uint
	Content string
}

// SourceLookup finds the managed file served under a public URL.
type SourceLookup interface {
	FindBySource(ctx context.Context, src string) (*imagerender.Asset, error)
}

type ValidatorOptions struct {
	// PublicBaseURL is the URL prefix of managed files, e.g. "/fileadmin".
	PublicBaseURL string
	// ProcessedFolder is the folder below PublicBaseURL holding processed variants.
	ProcessedFolder string
	// SiteURL is stripped from absolute srcs before comparing them.
	SiteURL string
	Workers int
}

type Validator struct {
	resolver *imagerender.Resolver
	lookup   SourceLookup
	opts     ValidatorOptions
}

func NewValidator(resolver *imagerender.Resolver, lookup SourceLookup, opts ValidatorOptions) *Validator {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	opts.PublicBaseURL = strings.TrimRight(opts.PublicBaseURL, "/")
	opts.ProcessedFolder = strings.Trim(opts.ProcessedFolder, "/")
	opts.SiteURL = strings.TrimRight(opts.SiteURL, "/")
	return &Validator{resolver: resolver, lookup: lookup, opts: opts}
}

// Validate checks every record and returns the issues in record order.
// Records are validated in parallel; a lookup failure aborts the run.
func (v *Validator) Validate(ctx context.Context, records []Record) ([]Issue, error) {
	perRecord := make([][]Issue, len(records))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.opts.Workers)

	for i := range records {
		g.Go(func() error {
			issues, err := v.ValidateRecord(gctx, records[i])
			if err != nil {
				return err
			}
			perRecord[i] = issues
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	var issues []Issue
	for _, recordIssues := range perRecord {
		issues = append(issues, recordIssues...)
	}
	return issues, nil
}

// ValidateRecord checks the images of a single record.
func (v *Validator) ValidateRecord(ctx context.Context, record Record) ([]Issue, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var issues []Issue
	for index, tag := range imagerender.ImageTags(record.Content) {
		src, _ := tag.Attr.Get("src")
		base := Issue{
			Table:      record.Table,
			Field:      record.Field,
			RecordUID:  record.UID,
			CurrentSrc: src,
			TagIndex:   index,
		}

		refs, err := imagerender.Extract(tag.Raw)
		if err != nil || len(refs) != 1 {
			continue
		}
		ref := refs[0]

		var issue *Issue
		if ref.HasFile() {
			issue, err = v.checkReferenced(ctx, base, &ref)
		} else {
			issue, err = v.checkUnreferenced(ctx, base)
		}
		if err != nil {
			return nil, fmt.Errorf("validate %s:%d: %w", record.Table, record.UID, err)
		}
		if issue != nil {
			issues = append(issues, *issue)
		}
	}
	return issues, nil
}

func (v *Validator) checkReferenced(ctx context.Context, issue Issue, ref *imagerender.ImageReference) (*Issue, error) {
	uid := *ref.FileUID
	issue.FileUID = &uid
	issue.FileTable = ref.Table()

	asset, err := v.resolver.Resolve(ctx, ref.Table(), uid)
	if errors.Is(err, imagerender.ErrAssetNotFound) {
		issue.Type = IssueOrphanedFileUID
		if issue.CurrentSrc == "" || v.isProcessed(issue.CurrentSrc) {
			return &issue, nil
		}
		replacement, err := v.findBySource(ctx, issue.CurrentSrc)
		if err != nil {
			return nil, err
		}
		if replacement != nil {
			expected := replacement.UID
			issue.ExpectedUID = &expected
			issue.ExpectedSrc = replacement.PublicURL
			issue.Fixable = true
		}
		return &issue, nil
	}
	if err != nil {
		return nil, err
	}

	issue.ExpectedSrc = asset.PublicURL
	switch {
	case strings.TrimSpace(issue.CurrentSrc) == "":
		issue.Type = IssueBrokenSrc
	case v.isProcessed(issue.CurrentSrc):
		issue.Type = IssueProcessedImageSrc
	case v.normalize(issue.CurrentSrc) != v.normalize(asset.PublicURL):
		issue.Type = IssueSrcMismatch
	default:
		return nil, nil
	}
	issue.Fixable = asset.PublicURL != ""
	return &issue, nil
}

func (v *Validator) checkUnreferenced(ctx context.Context, issue Issue) (*Issue, error) {
	if strings.TrimSpace(issue.CurrentSrc) == "" {
		issue.Type = IssueBrokenSrc
		return &issue, nil
	}
	if !v.isLocal(issue.CurrentSrc) {
		return nil, nil
	}

	issue.Type = IssueMissingFileUID
	asset, err := v.findBySource(ctx, issue.CurrentSrc)
	if err != nil {
		return nil, err
	}
	if asset != nil {
		uid := asset.UID
		issue.ExpectedUID = &uid
		issue.ExpectedSrc = asset.PublicURL
	}
	return &issue, nil
}

func (v *Validator) findBySource(ctx context.Context, src string) (*imagerender.Asset, error) {
	if v.lookup == nil {
		return nil, nil
	}
	asset, err := v.lookup.FindBySource(ctx, v.normalize(src))
	if errors.Is(err, imagerender.ErrAssetNotFound) {
		return nil, nil
	}
	return asset, err
}

func (v *Validator) isProcessed(src string) bool {
	if v.opts.ProcessedFolder == "" {
		return false
	}
	return strings.Contains(v.normalize(src), "/"+v.opts.ProcessedFolder+"/")
}

func (v *Validator) isLocal(src string) bool {
	if strings.HasPrefix(strings.ToLower(src), "data:") {
		return false
	}
	normalized := v.normalize(src)
	if v.opts.PublicBaseURL != "" && strings.HasPrefix(normalized, v.opts.PublicBaseURL+"/") {
		return true
	}
	u, err := url.Parse(normalized)
	return err == nil && u.Scheme == "" && u.Host == ""
}

// normalize strips the site URL, query and fragment from src.
func (v *Validator) normalize(src string) string {
	src = strings.TrimSpace(src)
	if v.opts.SiteURL != "" && strings.HasPrefix(src, v.opts.SiteURL+"/") {
		src = strings.TrimPrefix(src, v.opts.SiteURL)
	}
	if i := strings.IndexAny(src, "?#"); i >= 0 {
		src = src[:i]
	}
	return src
}
