package service

import (
	"context"
	"fmt"

	"rte-image-backend/internal/models"
	"rte-image-backend/internal/reference"
	"rte-image-backend/internal/repository"
	"rte-image-backend/pkg/logger"
)

const (
	ContentTable = "tt_content"
	ContentField = "bodytext"

	softrefKey       = "rtehtmlarea_images"
	defaultBatchSize = 200
)

type ReindexReport struct {
	Records    int `json:"records"`
	References int `json:"references"`
}

type ValidationReport struct {
	Records int                         `json:"records"`
	Issues  []reference.Issue           `json:"issues"`
	Counts  map[reference.IssueType]int `json:"counts"`
	Fixable int                         `json:"fixable"`
}

type FixReport struct {
	DryRun  bool              `json:"dry_run"`
	Records int               `json:"records"`
	Fixed   int               `json:"fixed"`
	Changed []uint            `json:"changed"`
	Skipped []reference.Issue `json:"skipped"`
}

// ReferenceService maintains the reference index of rich-text image
// references and repairs references that drifted from their files.
type ReferenceService struct {
	content    repository.ContentRepository
	references repository.ReferenceRepository
	scanner    *reference.Scanner
	validator  *reference.Validator
	assets     *AssetService
	renderer   *ContentRenderService
	batchSize  int
}

func NewReferenceService(
	content repository.ContentRepository,
	references repository.ReferenceRepository,
	validator *reference.Validator,
	assets *AssetService,
	renderer *ContentRenderService,
	batchSize int,
) *ReferenceService {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &ReferenceService{
		content:    content,
		references: references,
		scanner:    reference.NewScanner(),
		validator:  validator,
		assets:     assets,
		renderer:   renderer,
		batchSize:  batchSize,
	}
}

// Reindex rebuilds the reference index for every content element.
func (s *ReferenceService) Reindex(ctx context.Context) (*ReindexReport, error) {
	report := &ReindexReport{}

	err := s.eachBatch(ctx, func(elements []models.ContentElement) error {
		for i := range elements {
			count, err := s.indexRecord(&elements[i])
			if err != nil {
				return err
			}
			report.Records++
			report.References += count
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Reference index rebuilt", map[string]interface{}{
		"records":    report.Records,
		"references": report.References,
	})
	return report, nil
}

// Validate reports reference issues for the given records, or for all
// records when ids is empty.
func (s *ReferenceService) Validate(ctx context.Context, ids []uint) (*ValidationReport, error) {
	records, err := s.loadRecords(ctx, ids)
	if err != nil {
		return nil, err
	}

	issues, err := s.validator.Validate(ctx, records)
	if err != nil {
		return nil, fmt.Errorf("validate references: %w", err)
	}

	report := &ValidationReport{
		Records: len(records),
		Issues:  issues,
		Counts:  make(map[reference.IssueType]int, len(reference.IssueTypes)),
	}
	if report.Issues == nil {
		report.Issues = []reference.Issue{}
	}
	for _, issueType := range reference.IssueTypes {
		report.Counts[issueType] = 0
	}
	for _, issue := range issues {
		report.Counts[issue.Type]++
		if issue.Fixable {
			report.Fixable++
		}
	}
	return report, nil
}

// Fix applies every fixable issue. With dryRun nothing is persisted.
func (s *ReferenceService) Fix(ctx context.Context, ids []uint, dryRun bool) (*FixReport, error) {
	records, err := s.loadRecords(ctx, ids)
	if err != nil {
		return nil, err
	}

	report := &FixReport{DryRun: dryRun, Records: len(records), Changed: []uint{}, Skipped: []reference.Issue{}}

	for _, record := range records {
		issues, err := s.validator.ValidateRecord(ctx, record)
		if err != nil {
			return nil, fmt.Errorf("validate references: %w", err)
		}

		var fixable []reference.Issue
		for _, issue := range issues {
			if issue.Fixable {
				fixable = append(fixable, issue)
			} else {
				report.Skipped = append(report.Skipped, issue)
			}
		}
		if len(fixable) == 0 {
			continue
		}

		content, applied := reference.Fix(record.Content, fixable)
		if applied == 0 {
			continue
		}
		report.Fixed += applied
		report.Changed = append(report.Changed, record.UID)

		if dryRun {
			continue
		}

		if err := s.content.UpdateBodytext(record.UID, content); err != nil {
			return nil, fmt.Errorf("store fixed content %d: %w", record.UID, err)
		}
		s.afterFix(record.UID, content, fixable)
	}

	logger.Info("Reference fix finished", map[string]interface{}{
		"records": report.Records,
		"fixed":   report.Fixed,
		"changed": len(report.Changed),
		"dry_run": dryRun,
	})
	return report, nil
}

// References lists the indexed references of one record.
func (s *ReferenceService) References(table string, id uint) ([]models.SoftReference, error) {
	refs, err := s.references.ListForRecord(table, id)
	if err != nil {
		return nil, fmt.Errorf("list references: %w", err)
	}
	if refs == nil {
		refs = []models.SoftReference{}
	}
	return refs, nil
}

func (s *ReferenceService) afterFix(id uint, content string, fixed []reference.Issue) {
	if s.renderer != nil {
		s.renderer.InvalidateRecord(id)
	}
	if s.assets != nil {
		for _, issue := range fixed {
			if issue.FileUID != nil {
				s.assets.Invalidate(issue.FileTable, *issue.FileUID)
			}
		}
	}

	element := &models.ContentElement{ID: id, Bodytext: content}
	if _, err := s.indexRecord(element); err != nil {
		logger.Error(err, "Failed to reindex fixed record", map[string]interface{}{"content_id": id})
	}
}

func (s *ReferenceService) indexRecord(element *models.ContentElement) (int, error) {
	result := s.scanner.Scan(ContentTable, ContentField, element.ID, "", element.Bodytext)

	rows := make([]models.SoftReference, 0, len(result.References))
	for _, ref := range result.References {
		rows = append(rows, models.SoftReference{
			Hash:          ref.TokenID,
			Tablename:     ref.Table,
			RecUID:        ref.RecordUID,
			Field:         ref.Field,
			StructurePath: ref.StructurePath,
			SoftrefKey:    softrefKey,
			RefTable:      ref.RefTable,
			RefUID:        ref.RefUID,
			RefString:     ref.MatchString,
		})
	}

	if err := s.references.ReplaceForRecord(ContentTable, element.ID, rows); err != nil {
		return 0, fmt.Errorf("index content element %d: %w", element.ID, err)
	}
	return len(rows), nil
}

func (s *ReferenceService) loadRecords(ctx context.Context, ids []uint) ([]reference.Record, error) {
	var records []reference.Record

	if len(ids) > 0 {
		elements, err := s.content.GetByIDs(ids)
		if err != nil {
			return nil, fmt.Errorf("load content elements: %w", err)
		}
		for i := range elements {
			records = append(records, contentRecord(&elements[i]))
		}
		return records, nil
	}

	err := s.eachBatch(ctx, func(elements []models.ContentElement) error {
		for i := range elements {
			records = append(records, contentRecord(&elements[i]))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func contentRecord(element *models.ContentElement) reference.Record {
	return reference.Record{
		Table:   ContentTable,
		Field:   ContentField,
		UID:     element.ID,
		Content: element.Bodytext,
	}
}

func (s *ReferenceService) eachBatch(ctx context.Context, fn func([]models.ContentElement) error) error {
	var afterID uint
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		elements, err := s.content.ListBatch(afterID, s.batchSize)
		if err != nil {
			return fmt.Errorf("list content elements: %w", err)
		}
		if len(elements) == 0 {
			return nil
		}
		if err := fn(elements); err != nil {
			return err
		}
		afterID = elements[len(elements)-1].ID
		if len(elements) < s.batchSize {
			return nil
		}
	}
}
