package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/gorm"

	"rte-image-backend/internal/imagerender"
	"rte-image-backend/internal/models"
	"rte-image-backend/internal/repository"
	"rte-image-backend/pkg/cache"
	"rte-image-backend/pkg/logger"
	"rte-image-backend/pkg/media"
)

var ErrFileTableNotAllowed = errors.New("file table not allowed")

type AssetServiceOptions struct {
	StorageDir    string
	PublicBaseURL string
	AllowedTables []string
	CacheTTL      time.Duration
}

// AssetService is the file lookup behind the rendering pipeline and the
// reference validator.
type AssetService struct {
	files     repository.FileRepository
	processor *ImageProcessor
	cache     *cache.Cache
	opts      AssetServiceOptions
	allowed   map[string]struct{}
}

func NewAssetService(files repository.FileRepository, processor *ImageProcessor, cacheService *cache.Cache, opts AssetServiceOptions) *AssetService {
	allowed := make(map[string]struct{}, len(opts.AllowedTables))
	for _, table := range opts.AllowedTables {
		allowed[strings.TrimSpace(table)] = struct{}{}
	}
	if len(allowed) == 0 {
		allowed[imagerender.DefaultFileTable] = struct{}{}
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 10 * time.Minute
	}
	opts.PublicBaseURL = strings.TrimRight(opts.PublicBaseURL, "/")

	return &AssetService{
		files:     files,
		processor: processor,
		cache:     cacheService,
		opts:      opts,
		allowed:   allowed,
	}
}

func (s *AssetService) FindAsset(ctx context.Context, table string, uid uint) (*imagerender.Asset, error) {
	if _, ok := s.allowed[table]; !ok {
		return nil, fmt.Errorf("%w: %w: %s", imagerender.ErrAssetNotFound, ErrFileTableNotAllowed, table)
	}

	if s.cache != nil {
		var cached imagerender.Asset
		if err := s.cache.GetCachedAsset(table, uid, &cached); err == nil {
			return &cached, nil
		} else if !cache.IsMiss(err) {
			logger.Warn("Asset cache read failed", map[string]interface{}{"file_uid": uid, "error": err.Error()})
		}
	}

	file, err := s.files.GetByID(uid)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, imagerender.ErrAssetNotFound
		}
		return nil, fmt.Errorf("load file: %w", err)
	}

	asset, err := s.assetFromFile(ctx, table, file)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.CacheAsset(table, uid, asset, s.opts.CacheTTL); err != nil {
			logger.Warn("Asset cache write failed", map[string]interface{}{"file_uid": uid, "error": err.Error()})
		}
	}

	return asset, nil
}

// FindBySource maps a public URL of a managed file back to the file.
func (s *AssetService) FindBySource(ctx context.Context, src string) (*imagerender.Asset, error) {
	identifier, ok := s.identifierFromSource(src)
	if !ok {
		return nil, imagerender.ErrAssetNotFound
	}

	file, err := s.files.GetByIdentifier(identifier)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, imagerender.ErrAssetNotFound
		}
		return nil, fmt.Errorf("load file by identifier: %w", err)
	}

	return s.assetFromFile(ctx, imagerender.DefaultFileTable, file)
}

func (s *AssetService) Process(ctx context.Context, asset *imagerender.Asset, spec imagerender.ProcessingSpec) (*imagerender.ProcessedAsset, error) {
	if s.processor == nil {
		return &imagerender.ProcessedAsset{URL: asset.PublicURL, Width: asset.Width, Height: asset.Height}, nil
	}
	return s.processor.Process(ctx, asset, spec)
}

// Invalidate drops the cached metadata of a file.
func (s *AssetService) Invalidate(table string, uid uint) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateAsset(table, uid); err != nil {
		logger.Warn("Asset cache invalidation failed", map[string]interface{}{"file_uid": uid, "error": err.Error()})
	}
}

func (s *AssetService) assetFromFile(ctx context.Context, table string, file *models.File) (*imagerender.Asset, error) {
	if file.Missing {
		return nil, imagerender.ErrAssetNotFound
	}

	storagePath := filepath.Join(s.opts.StorageDir, filepath.FromSlash(path.Clean("/"+file.Identifier)))
	if _, err := os.Stat(storagePath); err != nil {
		if os.IsNotExist(err) {
			if markErr := s.files.MarkMissing(file.ID, true); markErr != nil {
				logger.Error(markErr, "Failed to flag missing file", map[string]interface{}{"file_uid": file.ID})
			}
			return nil, imagerender.ErrAssetNotFound
		}
		return nil, fmt.Errorf("stat file: %w", err)
	}

	if file.Width <= 0 || file.Height <= 0 {
		s.backfillDimensions(file, storagePath)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &imagerender.Asset{
		UID:       file.ID,
		Table:     table,
		Width:     file.Width,
		Height:    file.Height,
		Alt:       file.Alternative,
		Title:     file.Title,
		MimeType:  file.MimeType,
		Extension: file.Extension,
		PublicURL: file.PublicPath(s.opts.PublicBaseURL),
	}, nil
}

func (s *AssetService) backfillDimensions(file *models.File, storagePath string) {
	width, height, err := media.ImageDimensions(storagePath)
	if err != nil {
		logger.Warn("Could not determine image dimensions", map[string]interface{}{
			"file_uid":   file.ID,
			"identifier": file.Identifier,
			"error":      err.Error(),
		})
		return
	}

	file.Width, file.Height = width, height
	if err := s.files.UpdateDimensions(file.ID, width, height); err != nil {
		logger.Error(err, "Failed to store image dimensions", map[string]interface{}{"file_uid": file.ID})
	}
}

func (s *AssetService) identifierFromSource(src string) (string, bool) {
	src = strings.TrimSpace(src)
	if src == "" {
		return "", false
	}
	u, err := url.Parse(src)
	if err != nil {
		return "", false
	}

	prefix := s.opts.PublicBaseURL + "/"
	if !strings.HasPrefix(u.Path, prefix) {
		return "", false
	}

	identifier := strings.TrimLeft(path.Clean(strings.TrimPrefix(u.Path, s.opts.PublicBaseURL)), "/")
	return identifier, identifier != ""
}
