package media

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "golang.org/x/image/webp"
	"golang.org/x/net/html"
)

// ErrUnknownDimensions is returned when a file carries no usable size information.
var ErrUnknownDimensions = errors.New("image dimensions unknown")

// svgHeaderLimit bounds how much of an SVG document is read to find the root element.
const svgHeaderLimit = 64 * 1024

// ImageDimensions reads the intrinsic pixel size of the image at path.
// Raster formats are probed with image.DecodeConfig; SVG documents use the
// width/height attributes of the root element, falling back to the viewBox.
func ImageDimensions(path string) (int, int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer file.Close()

	if strings.EqualFold(filepath.Ext(path), ".svg") {
		return SVGDimensions(io.LimitReader(file, svgHeaderLimit))
	}

	return RasterDimensions(file)
}

func RasterDimensions(r io.Reader) (int, int, error) {
	cfg, _, err := image.DecodeConfig(r)
	if err != nil {
		return 0, 0, fmt.Errorf("decode image header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return 0, 0, ErrUnknownDimensions
	}
	return cfg.Width, cfg.Height, nil
}

func SVGDimensions(r io.Reader) (int, int, error) {
	z := html.NewTokenizer(r)
	for {
		switch z.Next() {
		case html.ErrorToken:
			if errors.Is(z.Err(), io.EOF) {
				return 0, 0, ErrUnknownDimensions
			}
			return 0, 0, z.Err()
		case html.StartTagToken, html.SelfClosingTagToken:
			token := z.Token()
			if token.Data != "svg" {
				continue
			}
			return svgRootDimensions(token.Attr)
		}
	}
}

func svgRootDimensions(attrs []html.Attribute) (int, int, error) {
	var width, height float64
	var viewBox string
	for _, attr := range attrs {
		switch attr.Key {
		case "width":
			width = svgLength(attr.Val)
		case "height":
			height = svgLength(attr.Val)
		case "viewbox":
			viewBox = attr.Val
		}
	}

	if width <= 0 || height <= 0 {
		vbWidth, vbHeight := parseViewBox(viewBox)
		switch {
		case width <= 0 && height <= 0:
			width, height = vbWidth, vbHeight
		case width <= 0 && vbHeight > 0:
			width = height * vbWidth / vbHeight
		case height <= 0 && vbWidth > 0:
			height = width * vbHeight / vbWidth
		}
	}

	w, h := int(math.Round(width)), int(math.Round(height))
	if w <= 0 || h <= 0 {
		return 0, 0, ErrUnknownDimensions
	}
	return w, h, nil
}

// svgLength parses absolute lengths; percentages and relative units yield 0.
func svgLength(value string) float64 {
	value = strings.TrimSpace(value)
	value = strings.TrimSuffix(value, "px")
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || f < 0 {
		return 0
	}
	return f
}

func parseViewBox(value string) (float64, float64) {
	fields := strings.FieldsFunc(value, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	if len(fields) != 4 {
		return 0, 0
	}
	w, errW := strconv.ParseFloat(fields[2], 64)
	h, errH := strconv.ParseFloat(fields[3], 64)
	if errW != nil || errH != nil || w <= 0 || h <= 0 {
		return 0, 0
	}
	return w, h
}

// SVGDimensionsFromBytes is SVGDimensions over an in-memory document.
func SVGDimensionsFromBytes(data []byte) (int, int, error) {
	return SVGDimensions(bytes.NewReader(data))
}
