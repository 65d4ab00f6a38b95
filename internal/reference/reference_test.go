package reference

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"rte-image-backend/internal/imagerender"
)

type mockAssets struct {
	mu       sync.Mutex
	byUID    map[uint]*imagerender.Asset
	bySource map[string]*imagerender.Asset
	err      error
}

func (m *mockAssets) FindAsset(ctx context.Context, table string, uid uint) (*imagerender.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if asset, ok := m.byUID[uid]; ok {
		return asset, nil
	}
	return nil, imagerender.ErrAssetNotFound
}

func (m *mockAssets) Process(ctx context.Context, asset *imagerender.Asset, spec imagerender.ProcessingSpec) (*imagerender.ProcessedAsset, error) {
	return &imagerender.ProcessedAsset{URL: asset.PublicURL}, nil
}

func (m *mockAssets) FindBySource(ctx context.Context, src string) (*imagerender.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if asset, ok := m.bySource[src]; ok {
		return asset, nil
	}
	return nil, imagerender.ErrAssetNotFound
}

func newMockAssets() *mockAssets {
	harbour := &imagerender.Asset{UID: 1, Table: "sys_file", PublicURL: "/fileadmin/harbour.jpg", Extension: "jpg"}
	moved := &imagerender.Asset{UID: 9, Table: "sys_file", PublicURL: "/fileadmin/moved.jpg", Extension: "jpg"}
	return &mockAssets{
		byUID:    map[uint]*imagerender.Asset{1: harbour, 9: moved},
		bySource: map[string]*imagerender.Asset{"/fileadmin/moved.jpg": moved, "/fileadmin/harbour.jpg": harbour},
	}
}

func newTestValidator(assets *mockAssets, workers int) *Validator {
	resolver := imagerender.NewResolver(assets, nil, imagerender.Options{})
	return NewValidator(resolver, assets, ValidatorOptions{
		PublicBaseURL:   "/fileadmin/",
		ProcessedFolder: "_processed_",
		SiteURL:         "https://www.example.com",
		Workers:         workers,
	})
}

func TestScanSubstitutesTokens(t *testing.T) {
	content := `<p><img src="/fileadmin/harbour.jpg" data-htmlarea-file-uid="1"> <img src="https://cdn.example.com/x.png"> <img src="a.jpg" data-htmlarea-file-uid="5" data-htmlarea-file-table="sys_file"></p>`

	scanner := NewScanner()
	result := scanner.Scan("tt_content", "bodytext", 42, "", content)

	if len(result.References) != 2 {
		t.Fatalf("expected two references, got %d", len(result.References))
	}
	first := result.References[0]
	if first.Target() != "sys_file:1" || first.RecordUID != 42 || first.Field != "bodytext" {
		t.Fatalf("unexpected reference: %+v", first)
	}
	if first.MatchString != "1" {
		t.Fatalf("unexpected match string %q", first.MatchString)
	}
	if result.References[1].Target() != "sys_file:5" {
		t.Fatalf("unexpected second target %q", result.References[1].Target())
	}

	for _, ref := range result.References {
		if !strings.Contains(result.Content, `data-htmlarea-file-uid="{softref:`+ref.TokenID+`}"`) {
			t.Fatalf("token %s not substituted in %s", ref.TokenID, result.Content)
		}
	}
	if !strings.Contains(result.Content, `<img src="https://cdn.example.com/x.png">`) {
		t.Fatalf("external image should be untouched: %s", result.Content)
	}

	again := scanner.Scan("tt_content", "bodytext", 42, "", content)
	if again.References[0].TokenID != first.TokenID {
		t.Fatalf("token ids must be deterministic")
	}
	other := scanner.Scan("tt_content", "bodytext", 43, "", content)
	if other.References[0].TokenID == first.TokenID {
		t.Fatalf("token ids must differ per record")
	}
}

func TestScanWithoutReferencesKeepsContent(t *testing.T) {
	content := `<p>No images here</p>`
	result := NewScanner().Scan("tt_content", "bodytext", 1, "", content)
	if result.Content != content || len(result.References) != 0 {
		t.Fatalf("unexpected scan result: %+v", result)
	}
}

func TestValidateDetectsAllIssueTypes(t *testing.T) {
	validator := newTestValidator(newMockAssets(), 2)

	records := []Record{
		{Table: "tt_content", Field: "bodytext", UID: 1, Content: `<img src="/fileadmin/_processed_/1_600x400.jpg" data-htmlarea-file-uid="1">`},
		{Table: "tt_content", Field: "bodytext", UID: 2, Content: `<img src="/fileadmin/old-name.jpg" data-htmlarea-file-uid="1">`},
		{Table: "tt_content", Field: "bodytext", UID: 3, Content: `<img src="" data-htmlarea-file-uid="1">`},
		{Table: "tt_content", Field: "bodytext", UID: 4, Content: `<img src="/fileadmin/moved.jpg" data-htmlarea-file-uid="77">`},
		{Table: "tt_content", Field: "bodytext", UID: 5, Content: `<img src="/fileadmin/unknown.jpg">`},
		{Table: "tt_content", Field: "bodytext", UID: 6, Content: `<img src="https://www.example.com/fileadmin/harbour.jpg?v=2" data-htmlarea-file-uid="1"><img src="https://cdn.example.com/x.png">`},
	}

	issues, err := validator.Validate(context.Background(), records)
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}

	want := []struct {
		record  uint
		typ     IssueType
		fixable bool
	}{
		{1, IssueProcessedImageSrc, true},
		{2, IssueSrcMismatch, true},
		{3, IssueBrokenSrc, true},
		{4, IssueOrphanedFileUID, true},
		{5, IssueMissingFileUID, false},
	}
	if len(issues) != len(want) {
		t.Fatalf("expected %d issues, got %d: %+v", len(want), len(issues), issues)
	}
	for i, w := range want {
		if issues[i].RecordUID != w.record || issues[i].Type != w.typ || issues[i].Fixable != w.fixable {
			t.Fatalf("issue %d = %+v, want record %d type %s fixable %v", i, issues[i], w.record, w.typ, w.fixable)
		}
	}

	orphan := issues[3]
	if orphan.ExpectedUID == nil || *orphan.ExpectedUID != 9 || orphan.ExpectedSrc != "/fileadmin/moved.jpg" {
		t.Fatalf("expected orphan to be relinked to file 9: %+v", orphan)
	}
	if issues[0].ExpectedSrc != "/fileadmin/harbour.jpg" {
		t.Fatalf("unexpected expected src %q", issues[0].ExpectedSrc)
	}
}

func TestOrphanWithoutReplacementIsNotFixable(t *testing.T) {
	validator := newTestValidator(newMockAssets(), 1)

	issues, err := validator.ValidateRecord(context.Background(), Record{Table: "tt_content", Field: "bodytext", UID: 1, Content: `<img src="/fileadmin/gone.jpg" data-htmlarea-file-uid="50">`})
	if err != nil {
		t.Fatalf("ValidateRecord returned error: %v", err)
	}
	if len(issues) != 1 || issues[0].Type != IssueOrphanedFileUID || issues[0].Fixable {
		t.Fatalf("unexpected issues: %+v", issues)
	}
}

func TestValidateAbortsOnLookupFailure(t *testing.T) {
	assets := newMockAssets()
	assets.err = errors.New("database unavailable")
	validator := newTestValidator(assets, 4)

	_, err := validator.Validate(context.Background(), []Record{{Table: "tt_content", Field: "bodytext", UID: 1, Content: `<img src="a.jpg" data-htmlarea-file-uid="1">`}})
	if err == nil || !strings.Contains(err.Error(), "database unavailable") {
		t.Fatalf("expected lookup error, got %v", err)
	}
}

func TestFixAppliesFixableIssues(t *testing.T) {
	validator := newTestValidator(newMockAssets(), 1)
	content := `<p><img src="/fileadmin/_processed_/1_600x400.jpg" data-htmlarea-file-uid="1" alt="x"> text <img src="/fileadmin/moved.jpg" data-htmlarea-file-uid="77"/> <img src="/fileadmin/unknown.jpg"></p>`
	record := Record{Table: "tt_content", Field: "bodytext", UID: 1, Content: content}

	issues, err := validator.ValidateRecord(context.Background(), record)
	if err != nil {
		t.Fatalf("ValidateRecord returned error: %v", err)
	}

	fixed, applied := Fix(content, issues)
	if applied != 2 {
		t.Fatalf("expected two fixes, got %d", applied)
	}
	want := `<p><img src="/fileadmin/harbour.jpg" data-htmlarea-file-uid="1" alt="x"> text <img src="/fileadmin/moved.jpg" data-htmlarea-file-uid="9" data-htmlarea-file-table="sys_file" /> <img src="/fileadmin/unknown.jpg"></p>`
	if fixed != want {
		t.Fatalf("unexpected fixed content\n got: %s\nwant: %s", fixed, want)
	}

	remaining, err := validator.ValidateRecord(context.Background(), Record{Table: "tt_content", Field: "bodytext", UID: 1, Content: fixed})
	if err != nil {
		t.Fatalf("ValidateRecord returned error: %v", err)
	}
	if len(remaining) != 1 || remaining[0].Type != IssueMissingFileUID {
		t.Fatalf("expected only the unfixable issue to remain, got %+v", remaining)
	}
}

func TestFixSkipsStaleIssues(t *testing.T) {
	content := `<img src="/fileadmin/new.jpg" data-htmlarea-file-uid="1">`
	issues := []Issue{{Type: IssueSrcMismatch, CurrentSrc: "/fileadmin/old.jpg", ExpectedSrc: "/fileadmin/harbour.jpg", Fixable: true}}

	fixed, applied := Fix(content, issues)
	if applied != 0 || fixed != content {
		t.Fatalf("stale issue should not be applied: %s", fixed)
	}
}
