package imagerender

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
)

// Asset is a managed file as seen by the rendering pipeline. It is borrowed
// for the duration of one render call.
type Asset struct {
	UID       uint
	Table     string
	Width     int
	Height    int
	Alt       string
	Title     string
	MimeType  string
	Extension string
	PublicURL string
}

// IsVector reports whether the asset is an SVG image.
func (a *Asset) IsVector() bool {
	return strings.EqualFold(strings.TrimPrefix(a.Extension, "."), "svg")
}

// ProcessingSpec is the source size requested from image processing.
type ProcessingSpec struct {
	Width  int
	Height int
}

// ProcessedAsset is the variant returned by the repository. Processed is
// false when the repository decided to serve the original file.
type ProcessedAsset struct {
	URL       string
	Width     int
	Height    int
	Processed bool
}

// AssetRepository looks up managed files and produces scaled variants.
// FindAsset returns ErrAssetNotFound for deleted or unknown files.
type AssetRepository interface {
	FindAsset(ctx context.Context, table string, uid uint) (*Asset, error)
	Process(ctx context.Context, asset *Asset, spec ProcessingSpec) (*ProcessedAsset, error)
}

// PopupOptions configure click-to-enlarge links.
type PopupOptions struct {
	MaxWidth  int
	MaxHeight int
	Target    string
	Class     string
	Rel       string
}

// Options bound the rendered images. Zero values disable a limit.
type Options struct {
	MaxWidth  int
	MaxHeight int
	Popup     PopupOptions
}

// ResolvedImage carries the final attributes of a file-backed image.
type ResolvedImage struct {
	Asset       *Asset
	Src         string
	Width       int
	Height      int
	Alt         *string
	Title       *string
	Processed   bool
	Diagnostics []Diagnostic
}

type Resolver struct {
	repo      AssetRepository
	sanitizer SVGSanitizer
	opts      Options
}

func NewResolver(repo AssetRepository, sanitizer SVGSanitizer, opts Options) *Resolver {
	return &Resolver{repo: repo, sanitizer: sanitizer, opts: opts}
}

// Resolve returns the asset identified by table and uid.
func (r *Resolver) Resolve(ctx context.Context, table string, uid uint) (*Asset, error) {
	if table == "" {
		table = DefaultFileTable
	}
	asset, err := r.repo.FindAsset(ctx, table, uid)
	if err != nil {
		if errors.Is(err, ErrAssetNotFound) {
			return nil, ErrAssetNotFound
		}
		return nil, fmt.Errorf("lookup %s:%d: %w", table, uid, err)
	}
	if asset == nil {
		return nil, ErrAssetNotFound
	}
	return asset, nil
}

// SanitizeSrc sanitizes SVG data URIs and returns every other src unchanged.
func (r *Resolver) SanitizeSrc(src string) string {
	return SanitizeDataURI(src, r.sanitizer)
}

// ResolveImage resolves the asset behind ref and computes its final src,
// display size and alt/title. Processing problems degrade to the original
// file and are reported as diagnostics.
func (r *Resolver) ResolveImage(ctx context.Context, ref *ImageReference) (*ResolvedImage, error) {
	if !ref.HasFile() {
		return nil, ErrAssetNotFound
	}

	asset, err := r.Resolve(ctx, ref.Table(), *ref.FileUID)
	if err != nil {
		return nil, err
	}

	img := &ResolvedImage{
		Asset: asset,
		Src:   asset.PublicURL,
		Alt:   ApplyOverride(ref.Alt, ref.AltOverride, &asset.Alt),
		Title: ApplyOverride(ref.Title, ref.TitleOverride, &asset.Title),
	}

	if ref.InvalidDimension {
		img.diagnose(DiagnosticInvalidDimensions, "explicit width or height is not positive", asset.UID)
	}

	width, height := displaySize(ref.Width, ref.Height, asset.Width, asset.Height)
	width, height = fitBox(width, height, r.opts.MaxWidth, r.opts.MaxHeight)
	img.Width, img.Height = width, height

	if width <= 0 || height <= 0 {
		img.diagnose(DiagnosticInvalidDimensions, "display size cannot be determined, serving original file", asset.UID)
		return img, nil
	}

	quality := ref.Quality().Effective(asset.IsVector())
	if quality == QualityNone || asset.Width <= 0 || asset.Height <= 0 {
		return img, nil
	}

	reqW, reqH := RequiredSize(width, height, asset.Width, asset.Height, quality.Multiplier())
	processed, err := r.repo.Process(ctx, asset, ProcessingSpec{Width: reqW, Height: reqH})
	if err != nil {
		img.diagnose(DiagnosticProcessingFailed, err.Error(), asset.UID)
		return img, nil
	}
	if processed != nil && processed.URL != "" {
		img.Src = processed.URL
		img.Processed = processed.Processed
	}

	return img, nil
}

// ResolvePopup returns the URL and size of the enlarged image behind a popup
// link, fitted into the configured popup box.
func (r *Resolver) ResolvePopup(ctx context.Context, asset *Asset) (string, int, int, []Diagnostic) {
	width, height := fitBox(asset.Width, asset.Height, r.opts.Popup.MaxWidth, r.opts.Popup.MaxHeight)
	if asset.IsVector() || width <= 0 || height <= 0 || (width == asset.Width && height == asset.Height) {
		return asset.PublicURL, width, height, nil
	}

	processed, err := r.repo.Process(ctx, asset, ProcessingSpec{Width: width, Height: height})
	if err != nil || processed == nil || processed.URL == "" {
		msg := "popup variant unavailable"
		if err != nil {
			msg = err.Error()
		}
		return asset.PublicURL, asset.Width, asset.Height, []Diagnostic{{
			Code:    DiagnosticPopupFailed,
			Message: msg,
			FileUID: asset.UID,
		}}
	}
	return processed.URL, width, height, nil
}

func (img *ResolvedImage) diagnose(code DiagnosticCode, msg string, uid uint) {
	img.Diagnostics = append(img.Diagnostics, Diagnostic{Code: code, Message: msg, FileUID: uid})
}

// ApplyOverride resolves an alt or title value against its override flag.
// A "true" flag keeps value verbatim even when empty, any other non-empty
// flag is itself the value, and without a flag an empty value falls back to
// the asset default (nil when there is no asset).
func ApplyOverride(value string, flag Override, fallback *string) *string {
	if flag.Present && flag.Value == overrideFlagLiteral {
		return &value
	}
	if flag.Present && flag.Value != "" {
		v := flag.Value
		return &v
	}
	if value != "" {
		return &value
	}
	if fallback == nil {
		return nil
	}
	v := *fallback
	return &v
}

// RequiredSize computes the source size requested from processing. The
// result never exceeds the intrinsic size on either axis.
func RequiredSize(displayW, displayH, intrinsicW, intrinsicH int, multiplier float64) (int, int) {
	return scaledAxis(displayW, intrinsicW, multiplier), scaledAxis(displayH, intrinsicH, multiplier)
}

func scaledAxis(display, intrinsic int, multiplier float64) int {
	if display < 0 {
		display = 0
	}
	if intrinsic < 0 {
		intrinsic = 0
	}
	if multiplier <= 0 {
		multiplier = 1
	}
	scaled := int(math.Round(float64(display) * multiplier))
	if scaled > intrinsic {
		return intrinsic
	}
	return scaled
}

// displaySize derives the missing axis from the aspect ratio when only one
// explicit dimension is given, and uses the intrinsic size when none is.
func displaySize(width, height, intrinsicW, intrinsicH int) (int, int) {
	hasRatio := intrinsicW > 0 && intrinsicH > 0
	switch {
	case width > 0 && height > 0:
		return width, height
	case width > 0:
		if !hasRatio {
			return width, 0
		}
		return width, int(math.Round(float64(width) * float64(intrinsicH) / float64(intrinsicW)))
	case height > 0:
		if !hasRatio {
			return 0, height
		}
		return int(math.Round(float64(height) * float64(intrinsicW) / float64(intrinsicH))), height
	default:
		return intrinsicW, intrinsicH
	}
}

// fitBox scales width and height down into maxW x maxH keeping the ratio.
func fitBox(width, height, maxW, maxH int) (int, int) {
	if width <= 0 || height <= 0 {
		return width, height
	}
	if maxW > 0 && width > maxW {
		height = int(math.Max(1, math.Round(float64(height)*float64(maxW)/float64(width))))
		width = maxW
	}
	if maxH > 0 && height > maxH {
		width = int(math.Max(1, math.Round(float64(width)*float64(maxH)/float64(height))))
		height = maxH
	}
	return width, height
}
