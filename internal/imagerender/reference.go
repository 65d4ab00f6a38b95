// Package imagerender re-reads image markup stored by the rich-text editor,
// resolves the referenced files and re-serializes it into one of the
// canonical image shapes (plain, captioned, linked, popup).
package imagerender

import (
	"strconv"
	"strings"
)

// Markup vocabulary written by the editor widget.
const (
	AttrFileUID       = "data-htmlarea-file-uid"
	AttrFileTable     = "data-htmlarea-file-table"
	AttrZoom          = "data-htmlarea-zoom"
	AttrNoScale       = "data-noscale"
	AttrQuality       = "data-quality"
	AttrAltOverride   = "data-alt-override"
	AttrTitleOverride = "data-title-override"
	AttrCaption       = "data-caption"
	AttrPopup         = "data-popup"

	DefaultFileTable = "sys_file"
)

const (
	popupConfigPrefix   = "data-popup-"
	overrideFlagLiteral = "true"
)

// Quality selects the resolution multiplier requested from image processing.
type Quality int

const (
	// QualityUnset resolves to QualityRetina, or QualityPrint for vector assets.
	QualityUnset Quality = iota
	QualityNone
	QualityStandard
	QualityRetina
	QualityUltra
	QualityPrint
)

var qualityNames = map[string]Quality{
	"none":     QualityNone,
	"standard": QualityStandard,
	"retina":   QualityRetina,
	"ultra":    QualityUltra,
	"print":    QualityPrint,
}

// ParseQuality maps a data-quality value to a Quality. Unknown values are unset.
func ParseQuality(value string) Quality {
	if q, ok := qualityNames[strings.ToLower(strings.TrimSpace(value))]; ok {
		return q
	}
	return QualityUnset
}

func (q Quality) String() string {
	for name, value := range qualityNames {
		if value == q {
			return name
		}
	}
	return "unset"
}

// Multiplier returns the factor applied to the display size.
func (q Quality) Multiplier() float64 {
	switch q {
	case QualityRetina:
		return 2
	case QualityUltra:
		return 3
	case QualityPrint:
		return 6
	default:
		return 1
	}
}

// Effective resolves an unset quality against the asset kind.
func (q Quality) Effective(vector bool) Quality {
	if q != QualityUnset {
		return q
	}
	if vector {
		return QualityPrint
	}
	return QualityRetina
}

// Override is the value of a data-alt-override or data-title-override flag.
type Override struct {
	Present bool
	Value   string
}

// Attribute is one HTML attribute in document order.
type Attribute struct {
	Key string
	Val string
}

// Attributes is an ordered attribute list with unique keys.
type Attributes []Attribute

func (a Attributes) Get(key string) (string, bool) {
	for _, attr := range a {
		if attr.Key == key {
			return attr.Val, true
		}
	}
	return "", false
}

func (a Attributes) Has(key string) bool {
	_, ok := a.Get(key)
	return ok
}

// Set replaces the value of key in place or appends it.
func (a Attributes) Set(key, val string) Attributes {
	for i := range a {
		if a[i].Key == key {
			a[i].Val = val
			return a
		}
	}
	return append(a, Attribute{Key: key, Val: val})
}

func (a Attributes) Without(keys ...string) Attributes {
	result := make(Attributes, 0, len(a))
	for _, attr := range a {
		drop := false
		for _, key := range keys {
			if attr.Key == key {
				drop = true
				break
			}
		}
		if !drop {
			result = append(result, attr)
		}
	}
	return result
}

func (a Attributes) Clone() Attributes {
	if a == nil {
		return nil
	}
	result := make(Attributes, len(a))
	copy(result, a)
	return result
}

// LinkAttributes describes an anchor enclosing an image.
type LinkAttributes struct {
	Href   string
	Target string
	Title  string
	Class  string
	// Popup is set when the anchor carries data-popup="true", i.e. it was
	// produced by a previous popup rendering.
	Popup bool
}

// ImageReference is one <img> occurrence as stored in the content record.
type ImageReference struct {
	FileUID   *uint
	FileTable string
	Src       string

	Width  int
	Height int
	// InvalidDimension records an explicit width or height that was zero or negative.
	InvalidDimension bool

	quality Quality
	noScale bool

	Alt           string
	Title         string
	AltOverride   Override
	TitleOverride Override

	Class   string
	Caption *string

	Link *LinkAttributes
	Zoom bool

	// Attributes holds every <img> attribute not consumed into a field above.
	Attributes       Attributes
	FigureAttributes Attributes
	InFigure         bool

	// Source is the markup the reference was extracted from: the whole
	// fragment when it holds one image, the image's own tag otherwise.
	Source string
}

func (r *ImageReference) Quality() Quality {
	return r.quality
}

func (r *ImageReference) NoScale() bool {
	return r.noScale
}

// SetQuality updates the quality and keeps the legacy no-scale flag in sync.
func (r *ImageReference) SetQuality(q Quality) {
	r.quality = q
	r.noScale = q == QualityNone
}

// SetNoScale updates the legacy flag and keeps the quality in sync.
func (r *ImageReference) SetNoScale(noScale bool) {
	r.noScale = noScale
	if noScale {
		r.quality = QualityNone
	} else if r.quality == QualityNone {
		r.quality = QualityUnset
	}
}

// HasFile reports whether the image references a managed file.
func (r *ImageReference) HasFile() bool {
	return r.FileUID != nil
}

// HasCaptionMarker reports whether the image itself carries a caption attribute.
func (r *ImageReference) HasCaptionMarker() bool {
	return r.Attributes.Has(AttrCaption)
}

func (r *ImageReference) Table() string {
	if r.FileTable == "" {
		return DefaultFileTable
	}
	return r.FileTable
}

func parseDimension(value string) (int, bool) {
	trimmed := strings.TrimSuffix(strings.TrimSpace(value), "px")
	if trimmed == "" {
		return 0, false
	}
	n, err := strconv.Atoi(trimmed)
	if err != nil {
		if f, ferr := strconv.ParseFloat(trimmed, 64); ferr == nil {
			return int(f), true
		}
		return 0, false
	}
	return n, true
}
