package imagerender

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

type mockAssetRepository struct {
	assets      map[uint]*Asset
	findErr     error
	processErr  error
	panicOnFind bool
	requests    []ProcessingSpec
}

func (m *mockAssetRepository) FindAsset(ctx context.Context, table string, uid uint) (*Asset, error) {
	if m.panicOnFind {
		panic("repository exploded")
	}
	if m.findErr != nil {
		return nil, m.findErr
	}
	asset, ok := m.assets[uid]
	if !ok || table != DefaultFileTable {
		return nil, ErrAssetNotFound
	}
	copied := *asset
	return &copied, nil
}

func (m *mockAssetRepository) Process(ctx context.Context, asset *Asset, spec ProcessingSpec) (*ProcessedAsset, error) {
	m.requests = append(m.requests, spec)
	if m.processErr != nil {
		return nil, m.processErr
	}
	return &ProcessedAsset{
		URL:       fmt.Sprintf("/fileadmin/_processed_/%d_%dx%d.jpg", asset.UID, spec.Width, spec.Height),
		Width:     spec.Width,
		Height:    spec.Height,
		Processed: true,
	}, nil
}

func newMockRepository() *mockAssetRepository {
	return &mockAssetRepository{assets: map[uint]*Asset{
		1: {UID: 1, Table: DefaultFileTable, Width: 1200, Height: 800, Alt: "Harbour", Title: "Harbour at dusk", MimeType: "image/jpeg", Extension: "jpg", PublicURL: "/fileadmin/harbour.jpg"},
		2: {UID: 2, Table: DefaultFileTable, Width: 100, Height: 100, Alt: "Logo", MimeType: "image/svg+xml", Extension: "svg", PublicURL: "/fileadmin/logo.svg"},
		3: {UID: 3, Table: DefaultFileTable, MimeType: "image/png", Extension: "png", PublicURL: "/fileadmin/unknown.png"},
	}}
}

func uidPtr(v uint) *uint {
	return &v
}

func TestApplyOverride(t *testing.T) {
	assetDefault := "asset default"
	cases := []struct {
		name     string
		value    string
		flag     Override
		fallback *string
		want     *string
	}{
		{"true flag keeps empty value", "", Override{Present: true, Value: "true"}, &assetDefault, strPtr("")},
		{"true flag keeps value", "explicit", Override{Present: true, Value: "true"}, &assetDefault, strPtr("explicit")},
		{"literal flag wins", "explicit", Override{Present: true, Value: "from flag"}, &assetDefault, strPtr("from flag")},
		{"no flag keeps value", "explicit", Override{}, &assetDefault, strPtr("explicit")},
		{"no flag falls back to asset", "", Override{}, &assetDefault, strPtr("asset default")},
		{"no flag and no asset", "", Override{}, nil, nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ApplyOverride(tc.value, tc.flag, tc.fallback)
			switch {
			case tc.want == nil && got != nil:
				t.Fatalf("expected nil, got %q", *got)
			case tc.want != nil && got == nil:
				t.Fatalf("expected %q, got nil", *tc.want)
			case tc.want != nil && *got != *tc.want:
				t.Fatalf("expected %q, got %q", *tc.want, *got)
			}
		})
	}
}

func strPtr(v string) *string {
	return &v
}

func TestRequiredSizeNeverUpscales(t *testing.T) {
	multipliers := []float64{QualityStandard.Multiplier(), QualityRetina.Multiplier(), QualityUltra.Multiplier(), QualityPrint.Multiplier()}
	sizes := []int{0, 1, 50, 333, 800, 2000}

	for _, m := range multipliers {
		for _, dw := range sizes {
			for _, dh := range sizes {
				for _, iw := range sizes {
					for _, ih := range sizes {
						w, h := RequiredSize(dw, dh, iw, ih, m)
						if w > iw || h > ih {
							t.Fatalf("RequiredSize(%d, %d, %d, %d, %v) = %dx%d exceeds intrinsic size", dw, dh, iw, ih, m, w, h)
						}
					}
				}
			}
		}
	}

	if w, h := RequiredSize(300, 200, 1200, 800, 2); w != 600 || h != 400 {
		t.Fatalf("expected retina request 600x400, got %dx%d", w, h)
	}
}

func TestResolveImageRequestsRetinaVariant(t *testing.T) {
	repo := newMockRepository()
	resolver := NewResolver(repo, nil, Options{})

	ref := ImageReference{FileUID: uidPtr(1), Width: 300}
	img, err := resolver.ResolveImage(context.Background(), &ref)
	if err != nil {
		t.Fatalf("ResolveImage returned error: %v", err)
	}

	if img.Width != 300 || img.Height != 200 {
		t.Fatalf("expected derived display size 300x200, got %dx%d", img.Width, img.Height)
	}
	if len(repo.requests) != 1 || repo.requests[0] != (ProcessingSpec{Width: 600, Height: 400}) {
		t.Fatalf("unexpected processing requests: %+v", repo.requests)
	}
	if !img.Processed || img.Src != "/fileadmin/_processed_/1_600x400.jpg" {
		t.Fatalf("unexpected src %q (processed=%v)", img.Src, img.Processed)
	}
	if img.Alt == nil || *img.Alt != "Harbour" {
		t.Fatalf("expected asset default alt, got %v", img.Alt)
	}
}

func TestResolveImageVectorDefaultsToPrint(t *testing.T) {
	repo := newMockRepository()
	resolver := NewResolver(repo, nil, Options{})

	ref := ImageReference{FileUID: uidPtr(2), Width: 50, Height: 50}
	if _, err := resolver.ResolveImage(context.Background(), &ref); err != nil {
		t.Fatalf("ResolveImage returned error: %v", err)
	}
	if len(repo.requests) != 1 || repo.requests[0] != (ProcessingSpec{Width: 100, Height: 100}) {
		t.Fatalf("expected print request capped at intrinsic size, got %+v", repo.requests)
	}
}

func TestResolveImageQualityNoneSkipsProcessing(t *testing.T) {
	repo := newMockRepository()
	resolver := NewResolver(repo, nil, Options{})

	ref := ImageReference{FileUID: uidPtr(1), Width: 400, Height: 100}
	ref.SetNoScale(true)

	img, err := resolver.ResolveImage(context.Background(), &ref)
	if err != nil {
		t.Fatalf("ResolveImage returned error: %v", err)
	}
	if len(repo.requests) != 0 {
		t.Fatalf("expected no processing, got %+v", repo.requests)
	}
	if img.Src != "/fileadmin/harbour.jpg" || img.Width != 400 || img.Height != 100 {
		t.Fatalf("expected original file at display size, got %q %dx%d", img.Src, img.Width, img.Height)
	}
}

func TestResolveImageOverrideKeepsEmptyAlt(t *testing.T) {
	resolver := NewResolver(newMockRepository(), nil, Options{})

	ref := ImageReference{FileUID: uidPtr(1), AltOverride: Override{Present: true, Value: "true"}}
	img, err := resolver.ResolveImage(context.Background(), &ref)
	if err != nil {
		t.Fatalf("ResolveImage returned error: %v", err)
	}
	if img.Alt == nil || *img.Alt != "" {
		t.Fatalf("expected empty alt, got %v", img.Alt)
	}
	if img.Title == nil || *img.Title != "Harbour at dusk" {
		t.Fatalf("expected asset title, got %v", img.Title)
	}
}

func TestResolveImageProcessingFailureFallsBack(t *testing.T) {
	repo := newMockRepository()
	repo.processErr = errors.New("disk full")
	resolver := NewResolver(repo, nil, Options{})

	ref := ImageReference{FileUID: uidPtr(1)}
	img, err := resolver.ResolveImage(context.Background(), &ref)
	if err != nil {
		t.Fatalf("ResolveImage returned error: %v", err)
	}
	if img.Src != "/fileadmin/harbour.jpg" || img.Processed {
		t.Fatalf("expected original file, got %q", img.Src)
	}
	if len(img.Diagnostics) != 1 || img.Diagnostics[0].Code != DiagnosticProcessingFailed {
		t.Fatalf("expected processing diagnostic, got %+v", img.Diagnostics)
	}
}

func TestResolveImageWithoutDimensionsReportsDiagnostic(t *testing.T) {
	repo := newMockRepository()
	resolver := NewResolver(repo, nil, Options{})

	ref := ImageReference{FileUID: uidPtr(3), InvalidDimension: true}
	img, err := resolver.ResolveImage(context.Background(), &ref)
	if err != nil {
		t.Fatalf("ResolveImage returned error: %v", err)
	}
	if img.Src != "/fileadmin/unknown.png" {
		t.Fatalf("expected original file, got %q", img.Src)
	}
	if len(repo.requests) != 0 {
		t.Fatalf("expected no processing request, got %+v", repo.requests)
	}
	if len(img.Diagnostics) != 2 {
		t.Fatalf("expected two dimension diagnostics, got %+v", img.Diagnostics)
	}
	for _, d := range img.Diagnostics {
		if d.Code != DiagnosticInvalidDimensions {
			t.Fatalf("unexpected diagnostic: %+v", d)
		}
	}
}

func TestResolveImageClampsToMaximumBox(t *testing.T) {
	repo := newMockRepository()
	resolver := NewResolver(repo, nil, Options{MaxWidth: 600})

	img, err := resolver.ResolveImage(context.Background(), &ImageReference{FileUID: uidPtr(1)})
	if err != nil {
		t.Fatalf("ResolveImage returned error: %v", err)
	}
	if img.Width != 600 || img.Height != 400 {
		t.Fatalf("expected clamped size 600x400, got %dx%d", img.Width, img.Height)
	}
}

func TestResolveNotFound(t *testing.T) {
	resolver := NewResolver(newMockRepository(), nil, Options{})

	if _, err := resolver.Resolve(context.Background(), "", 99); !errors.Is(err, ErrAssetNotFound) {
		t.Fatalf("expected ErrAssetNotFound, got %v", err)
	}
	if _, err := resolver.Resolve(context.Background(), "tt_content", 1); !errors.Is(err, ErrAssetNotFound) {
		t.Fatalf("expected ErrAssetNotFound for foreign table, got %v", err)
	}
}

func TestResolvePopupFitsIntoBox(t *testing.T) {
	repo := newMockRepository()
	resolver := NewResolver(repo, nil, Options{Popup: PopupOptions{MaxWidth: 600, MaxHeight: 600}})

	asset, _ := repo.FindAsset(context.Background(), DefaultFileTable, 1)
	url, w, h, diags := resolver.ResolvePopup(context.Background(), asset)
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %+v", diags)
	}
	if w != 600 || h != 400 || url != "/fileadmin/_processed_/1_600x400.jpg" {
		t.Fatalf("unexpected popup target %q %dx%d", url, w, h)
	}
}
