package service

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"rte-image-backend/internal/imagerender"
	"rte-image-backend/internal/models"
	"rte-image-backend/internal/repository"
	"rte-image-backend/pkg/logger"
	"rte-image-backend/pkg/media"
	"rte-image-backend/pkg/utils"
	"rte-image-backend/pkg/validator"
)

var (
	ErrUnsupportedUpload = errors.New("file type not allowed")
	ErrUploadTooLarge    = errors.New("file size exceeds maximum allowed size")
	ErrUploadMissing     = errors.New("file is required")
	ErrFileNotFound      = errors.New("file not found")
)

const uploadFolder = "user_upload"

// UploadService stores uploaded images below the storage directory and
// registers them as managed files.
type UploadService struct {
	files        repository.FileRepository
	processor    *ImageProcessor
	assets       *AssetService
	storageDir   string
	maxSize      int64
	allowedTypes []string
}

func NewUploadService(files repository.FileRepository, processor *ImageProcessor, assets *AssetService, storageDir string, maxSize int64) *UploadService {
	uploadDir := filepath.Join(storageDir, uploadFolder)
	if _, err := os.Stat(uploadDir); os.IsNotExist(err) {
		if err := os.MkdirAll(uploadDir, 0755); err != nil {
			logger.Error(err, "Failed to create upload directory", map[string]interface{}{"dir": uploadDir})
		}
	}

	return &UploadService{
		files:        files,
		processor:    processor,
		assets:       assets,
		storageDir:   storageDir,
		maxSize:      maxSize,
		allowedTypes: []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".svg"},
	}
}

// Upload stores the image and creates its File row with probed dimensions.
func (s *UploadService) Upload(file *multipart.FileHeader, preferredName string, req models.UpdateFileRequest) (*models.File, error) {
	if file == nil {
		return nil, ErrUploadMissing
	}
	if s.maxSize > 0 && file.Size > s.maxSize {
		return nil, ErrUploadTooLarge
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !s.isAllowedType(ext) {
		return nil, ErrUnsupportedUpload
	}

	contentType := file.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = mime.TypeByExtension(ext)
	}
	if !validator.ValidateImageContentType(contentType) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedUpload, contentType)
	}

	filename := s.generateFilename(file.Filename, preferredName, ext)
	identifier := path.Join(uploadFolder, filename)
	target := filepath.Join(s.storageDir, filepath.FromSlash(identifier))

	size, err := s.store(file, target)
	if err != nil {
		return nil, err
	}

	width, height, err := media.ImageDimensions(target)
	if err != nil {
		os.Remove(target)
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedUpload, err)
	}

	record := &models.File{
		Identifier: identifier,
		Name:       filename,
		Extension:  strings.TrimPrefix(ext, "."),
		MimeType:   contentType,
		Size:       size,
		Width:      width,
		Height:     height,
	}
	applyMetadata(record, req)

	if err := s.files.Create(record); err != nil {
		os.Remove(target)
		return nil, fmt.Errorf("register file: %w", err)
	}

	logger.Info("File uploaded", map[string]interface{}{
		"file_uid":   record.ID,
		"identifier": identifier,
		"width":      width,
		"height":     height,
	})
	return record, nil
}

func (s *UploadService) GetByID(id uint) (*models.File, error) {
	file, err := s.files.GetByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFileNotFound
		}
		return nil, err
	}
	return file, nil
}

// UpdateMetadata changes the default alt, title and description of a file.
func (s *UploadService) UpdateMetadata(id uint, req models.UpdateFileRequest) (*models.File, error) {
	file, err := s.GetByID(id)
	if err != nil {
		return nil, err
	}

	applyMetadata(file, req)
	if err := s.files.Update(file); err != nil {
		return nil, fmt.Errorf("update file: %w", err)
	}

	if s.assets != nil {
		s.assets.Invalidate(imagerender.DefaultFileTable, id)
	}
	return file, nil
}

// Delete removes the file, its processed variants and its row.
func (s *UploadService) Delete(id uint) error {
	file, err := s.GetByID(id)
	if err != nil {
		return err
	}

	if s.processor != nil {
		if err := s.processor.Purge(id); err != nil {
			return fmt.Errorf("purge processed variants: %w", err)
		}
	}

	storagePath := filepath.Join(s.storageDir, filepath.FromSlash(path.Clean("/"+file.Identifier)))
	if err := os.Remove(storagePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	if err := s.files.Delete(id); err != nil {
		return fmt.Errorf("delete file: %w", err)
	}

	if s.assets != nil {
		s.assets.Invalidate(imagerender.DefaultFileTable, id)
	}
	return nil
}

func (s *UploadService) store(file *multipart.FileHeader, target string) (int64, error) {
	src, err := file.Open()
	if err != nil {
		return 0, err
	}
	defer src.Close()

	dst, err := os.Create(target)
	if err != nil {
		return 0, err
	}

	size, err := io.Copy(dst, src)
	if err != nil {
		dst.Close()
		os.Remove(target)
		return 0, err
	}
	if err := dst.Close(); err != nil {
		os.Remove(target)
		return 0, err
	}
	return size, nil
}

func (s *UploadService) isAllowedType(ext string) bool {
	for _, allowedExt := range s.allowedTypes {
		if ext == allowedExt {
			return true
		}
	}
	return false
}

func (s *UploadService) generateFilename(originalName, preferredName, ext string) string {
	baseName := strings.TrimSpace(preferredName)
	if baseName == "" {
		baseName = strings.TrimSuffix(filepath.Base(originalName), filepath.Ext(originalName))
	}

	cleaned := utils.GenerateSlug(baseName)
	if cleaned == "" {
		cleaned = uuid.New().String()
	}

	candidate := fmt.Sprintf("%s%s", cleaned, ext)
	if !s.fileExists(candidate) {
		return candidate
	}

	for i := 1; i < 1000; i++ {
		candidate = fmt.Sprintf("%s-%d%s", cleaned, i, ext)
		if !s.fileExists(candidate) {
			return candidate
		}
	}

	return fmt.Sprintf("%s%s", uuid.New().String(), ext)
}

func (s *UploadService) fileExists(name string) bool {
	_, err := os.Stat(filepath.Join(s.storageDir, uploadFolder, name))
	return err == nil
}

func applyMetadata(file *models.File, req models.UpdateFileRequest) {
	if req.Alternative != nil {
		file.Alternative = strings.TrimSpace(*req.Alternative)
	}
	if req.Title != nil {
		file.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		file.Description = validator.SanitizeHTML(*req.Description)
	}
}
