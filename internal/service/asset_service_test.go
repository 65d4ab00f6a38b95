package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"rte-image-backend/internal/imagerender"
	"rte-image-backend/internal/models"
	"rte-image-backend/pkg/media"
)

type assetFixture struct {
	dir       string
	files     *fakeFileRepository
	processed *fakeProcessedRepository
	processor *ImageProcessor
	assets    *AssetService
}

func newAssetFixture(t *testing.T, maxSourceSize int64) *assetFixture {
	t.Helper()

	dir := t.TempDir()
	writePNG(t, dir, "user_upload/photo.png", 400, 200)
	writePNG(t, dir, "user_upload/unsized.png", 64, 32)

	files := newFakeFileRepository(
		&models.File{ID: 1, Identifier: "user_upload/photo.png", Name: "photo.png", Extension: "png", Width: 400, Height: 200, Alternative: "Harbour", Title: "Harbour at dusk"},
		&models.File{ID: 2, Identifier: "user_upload/gone.png", Name: "gone.png", Extension: "png", Width: 10, Height: 10},
		&models.File{ID: 3, Identifier: "user_upload/unsized.png", Name: "unsized.png", Extension: "png"},
		&models.File{ID: 4, Identifier: "user_upload/logo.svg", Name: "logo.svg", Extension: "svg", Width: 120, Height: 60},
	)
	processed := newFakeProcessedRepository()

	processor := NewImageProcessor(files, processed, ImageProcessorOptions{
		StorageDir:      dir,
		PublicBaseURL:   "/fileadmin",
		ProcessedFolder: "_processed_",
		MaxSourceSize:   maxSourceSize,
	})
	assets := NewAssetService(files, processor, nil, AssetServiceOptions{
		StorageDir:    dir,
		PublicBaseURL: "/fileadmin/",
		AllowedTables: []string{"sys_file"},
	})

	return &assetFixture{dir: dir, files: files, processed: processed, processor: processor, assets: assets}
}

func TestAssetServiceFindAsset(t *testing.T) {
	fx := newAssetFixture(t, 0)

	asset, err := fx.assets.FindAsset(context.Background(), "sys_file", 1)
	if err != nil {
		t.Fatalf("FindAsset returned error: %v", err)
	}
	if asset.PublicURL != "/fileadmin/user_upload/photo.png" {
		t.Fatalf("unexpected public url %q", asset.PublicURL)
	}
	if asset.Width != 400 || asset.Height != 200 {
		t.Fatalf("unexpected size %dx%d", asset.Width, asset.Height)
	}
	if asset.Alt != "Harbour" || asset.Title != "Harbour at dusk" {
		t.Fatalf("unexpected metadata %+v", asset)
	}
}

func TestAssetServiceMissingFiles(t *testing.T) {
	fx := newAssetFixture(t, 0)

	if _, err := fx.assets.FindAsset(context.Background(), "sys_file", 99); !errors.Is(err, imagerender.ErrAssetNotFound) {
		t.Fatalf("expected ErrAssetNotFound for unknown uid, got %v", err)
	}

	if _, err := fx.assets.FindAsset(context.Background(), "sys_file", 2); !errors.Is(err, imagerender.ErrAssetNotFound) {
		t.Fatalf("expected ErrAssetNotFound for file missing on disk, got %v", err)
	}
	if len(fx.files.missing) != 1 || fx.files.missing[0] != 2 {
		t.Fatalf("expected file 2 to be flagged missing, got %v", fx.files.missing)
	}

	_, err := fx.assets.FindAsset(context.Background(), "tx_news", 1)
	if !errors.Is(err, imagerender.ErrAssetNotFound) || !errors.Is(err, ErrFileTableNotAllowed) {
		t.Fatalf("expected table rejection, got %v", err)
	}
}

func TestAssetServiceBackfillsDimensions(t *testing.T) {
	fx := newAssetFixture(t, 0)

	asset, err := fx.assets.FindAsset(context.Background(), "sys_file", 3)
	if err != nil {
		t.Fatalf("FindAsset returned error: %v", err)
	}
	if asset.Width != 64 || asset.Height != 32 {
		t.Fatalf("expected backfilled 64x32, got %dx%d", asset.Width, asset.Height)
	}
	if got := fx.files.dimensions[3]; got != [2]int{64, 32} {
		t.Fatalf("expected dimensions to be stored, got %v", got)
	}
}

func TestAssetServiceFindBySource(t *testing.T) {
	fx := newAssetFixture(t, 0)

	asset, err := fx.assets.FindBySource(context.Background(), "/fileadmin/user_upload/photo.png?v=3")
	if err != nil {
		t.Fatalf("FindBySource returned error: %v", err)
	}
	if asset.UID != 1 {
		t.Fatalf("expected file 1, got %d", asset.UID)
	}

	if _, err := fx.assets.FindBySource(context.Background(), "https://cdn.example.com/photo.png"); !errors.Is(err, imagerender.ErrAssetNotFound) {
		t.Fatalf("expected ErrAssetNotFound for foreign src, got %v", err)
	}
}

func TestImageProcessorScalesAndReuses(t *testing.T) {
	fx := newAssetFixture(t, 0)
	ctx := context.Background()

	asset, err := fx.assets.FindAsset(ctx, "sys_file", 1)
	if err != nil {
		t.Fatalf("FindAsset returned error: %v", err)
	}

	processed, err := fx.assets.Process(ctx, asset, imagerender.ProcessingSpec{Width: 200, Height: 100})
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if !processed.Processed {
		t.Fatalf("expected a processed variant")
	}
	if processed.URL != "/fileadmin/_processed_/photo_1_200x100.png" {
		t.Fatalf("unexpected variant url %q", processed.URL)
	}

	variantPath := filepath.Join(fx.dir, "_processed_", "photo_1_200x100.png")
	w, h, err := media.ImageDimensions(variantPath)
	if err != nil {
		t.Fatalf("variant not readable: %v", err)
	}
	if w != 200 || h != 100 {
		t.Fatalf("expected variant 200x100, got %dx%d", w, h)
	}

	again, err := fx.assets.Process(ctx, asset, imagerender.ProcessingSpec{Width: 200, Height: 100})
	if err != nil {
		t.Fatalf("second Process returned error: %v", err)
	}
	if again.URL != processed.URL {
		t.Fatalf("expected the same variant, got %q", again.URL)
	}
	if fx.processed.saves != 1 {
		t.Fatalf("expected the variant to be reused, got %d saves", fx.processed.saves)
	}

	if err := fx.processor.Purge(1); err != nil {
		t.Fatalf("Purge returned error: %v", err)
	}
	if _, err := os.Stat(variantPath); !os.IsNotExist(err) {
		t.Fatalf("expected variant to be removed, got %v", err)
	}
}

func TestImageProcessorServesOriginal(t *testing.T) {
	fx := newAssetFixture(t, 0)
	ctx := context.Background()

	photo, _ := fx.assets.FindAsset(ctx, "sys_file", 1)
	result, err := fx.processor.Process(ctx, photo, imagerender.ProcessingSpec{Width: 400, Height: 200})
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if result.Processed || result.URL != photo.PublicURL {
		t.Fatalf("expected original for a non-downscale, got %+v", result)
	}

	vector := &imagerender.Asset{UID: 4, Extension: "svg", Width: 120, Height: 60, PublicURL: "/fileadmin/user_upload/logo.svg"}
	result, err = fx.processor.Process(ctx, vector, imagerender.ProcessingSpec{Width: 60, Height: 30})
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if result.Processed || result.URL != vector.PublicURL {
		t.Fatalf("expected original for a vector asset, got %+v", result)
	}
}

func TestImageProcessorRejectsLargeSources(t *testing.T) {
	fx := newAssetFixture(t, 16)

	photo, _ := fx.assets.FindAsset(context.Background(), "sys_file", 1)
	_, err := fx.processor.Process(context.Background(), photo, imagerender.ProcessingSpec{Width: 100, Height: 50})
	if !errors.Is(err, ErrSourceTooLarge) {
		t.Fatalf("expected ErrSourceTooLarge, got %v", err)
	}
}
