package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path"
	"path/filepath"
	"strconv"

	"github.com/docker/go-units"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"rte-image-backend/internal/imagerender"
	"rte-image-backend/internal/models"
	"rte-image-backend/internal/repository"
	"rte-image-backend/pkg/logger"
	"rte-image-backend/pkg/utils"
)

var (
	ErrSourceTooLarge     = errors.New("source image exceeds the processing limit")
	ErrUnsupportedFormat  = errors.New("unsupported image format")
	ErrInvalidProcessSize = errors.New("invalid processing size")
)

const jpegQuality = 85

type ImageProcessorOptions struct {
	StorageDir      string
	PublicBaseURL   string
	ProcessedFolder string
	MaxSourceSize   int64
}

// ImageProcessor produces downscaled variants of managed files and records
// them as ProcessedFile rows.
type ImageProcessor struct {
	files     repository.FileRepository
	processed repository.ProcessedFileRepository
	opts      ImageProcessorOptions
	inflight  singleflight.Group
}

func NewImageProcessor(files repository.FileRepository, processed repository.ProcessedFileRepository, opts ImageProcessorOptions) *ImageProcessor {
	return &ImageProcessor{files: files, processed: processed, opts: opts}
}

// Process returns a variant of asset no larger than spec. The original file
// is served for vector images and whenever the request is not a downscale.
func (p *ImageProcessor) Process(ctx context.Context, asset *imagerender.Asset, spec imagerender.ProcessingSpec) (*imagerender.ProcessedAsset, error) {
	original := &imagerender.ProcessedAsset{
		URL:    asset.PublicURL,
		Width:  asset.Width,
		Height: asset.Height,
	}

	if asset.IsVector() {
		return original, nil
	}
	if spec.Width <= 0 || spec.Height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidProcessSize, spec.Width, spec.Height)
	}
	if spec.Width >= asset.Width && spec.Height >= asset.Height {
		return original, nil
	}

	key := strconv.FormatUint(uint64(asset.UID), 10) + ":" + strconv.Itoa(spec.Width) + "x" + strconv.Itoa(spec.Height)
	result, err, _ := p.inflight.Do(key, func() (interface{}, error) {
		return p.process(ctx, asset, spec)
	})
	if err != nil {
		return nil, err
	}
	return result.(*imagerender.ProcessedAsset), nil
}

func (p *ImageProcessor) process(ctx context.Context, asset *imagerender.Asset, spec imagerender.ProcessingSpec) (*imagerender.ProcessedAsset, error) {
	file, err := p.files.GetByID(asset.UID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, imagerender.ErrAssetNotFound
		}
		return nil, fmt.Errorf("load file %d: %w", asset.UID, err)
	}

	sourcePath := p.storagePath(file.Identifier)
	info, err := os.Stat(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("stat source: %w", err)
	}
	if p.opts.MaxSourceSize > 0 && info.Size() > p.opts.MaxSourceSize {
		return nil, fmt.Errorf("%w: %s > %s", ErrSourceTooLarge,
			units.HumanSize(float64(info.Size())), units.HumanSize(float64(p.opts.MaxSourceSize)))
	}

	checksum := sourceChecksum(file.Identifier, info.Size(), info.ModTime().UnixNano())

	if existing, err := p.processed.Find(file.ID, spec.Width, spec.Height); err == nil {
		if existing.Checksum == checksum && fileExists(p.storagePath(existing.Identifier)) {
			return p.result(existing), nil
		}
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("lookup processed variant: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	src, format, err := decodeImage(sourcePath)
	if err != nil {
		return nil, err
	}

	dst := image.NewRGBA(image.Rect(0, 0, spec.Width, spec.Height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	ext := outputExtension(format)
	identifier := path.Join(p.opts.ProcessedFolder, fmt.Sprintf("%s_%d_%dx%d.%s",
		utils.FileSlug(file.Identifier), file.ID, spec.Width, spec.Height, ext))

	if err := p.writeVariant(identifier, ext, dst); err != nil {
		return nil, err
	}

	row := &models.ProcessedFile{
		OriginalID: file.ID,
		Width:      spec.Width,
		Height:     spec.Height,
		Identifier: identifier,
		Checksum:   checksum,
	}
	if err := p.processed.Save(row); err != nil {
		return nil, fmt.Errorf("record processed variant: %w", err)
	}

	logger.Debug("Processed image variant", map[string]interface{}{
		"file_uid":   file.ID,
		"identifier": identifier,
		"width":      spec.Width,
		"height":     spec.Height,
	})

	return p.result(row), nil
}

// Purge removes the variants of a file from disk and the database.
func (p *ImageProcessor) Purge(fileID uint) error {
	pattern := filepath.Join(p.opts.StorageDir, filepath.FromSlash(p.opts.ProcessedFolder), fmt.Sprintf("*_%d_*x*.*", fileID))
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return err
	}
	for _, match := range matches {
		if err := os.Remove(match); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return p.processed.DeleteByOriginal(fileID)
}

func (p *ImageProcessor) result(row *models.ProcessedFile) *imagerender.ProcessedAsset {
	return &imagerender.ProcessedAsset{
		URL:       publicURL(p.opts.PublicBaseURL, row.Identifier),
		Width:     row.Width,
		Height:    row.Height,
		Processed: true,
	}
}

func (p *ImageProcessor) storagePath(identifier string) string {
	return filepath.Join(p.opts.StorageDir, filepath.FromSlash(path.Clean("/"+identifier)))
}

func (p *ImageProcessor) writeVariant(identifier, ext string, img image.Image) error {
	target := p.storagePath(identifier)
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".variant-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := encodeImage(tmp, ext, img); err != nil {
		tmp.Close()
		return fmt.Errorf("encode variant: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, target)
}

func decodeImage(sourcePath string) (image.Image, string, error) {
	f, err := os.Open(sourcePath)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, "", ErrUnsupportedFormat
		}
		return nil, "", fmt.Errorf("decode source: %w", err)
	}
	return img, format, nil
}

func outputExtension(format string) string {
	switch format {
	case "jpeg":
		return "jpg"
	case "gif":
		return "gif"
	default:
		return "png"
	}
}

func encodeImage(w io.Writer, ext string, img image.Image) error {
	switch ext {
	case "jpg":
		return jpeg.Encode(w, img, &jpeg.Options{Quality: jpegQuality})
	case "gif":
		return gif.Encode(w, img, nil)
	default:
		return png.Encode(w, img)
	}
}

func sourceChecksum(identifier string, size, modTime int64) string {
	sum := sha256.Sum256([]byte(identifier + "|" + strconv.FormatInt(size, 10) + "|" + strconv.FormatInt(modTime, 10)))
	return hex.EncodeToString(sum[:])
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}

func publicURL(baseURL, identifier string) string {
	file := models.File{Identifier: identifier}
	return file.PublicPath(baseURL)
}
