package imagerender

import (
	"bytes"
	"fmt"
	"html"
	"html/template"
	"sort"
	"strconv"
	"strings"
	"unicode"

	nethtml "golang.org/x/net/html"
)

const lightboxToken = "lightbox"

const variantTemplates = `
{{define "anchor"}}{{.Anchor}}{{.Image}}</a>{{end}}
{{define "standalone"}}{{.Image}}{{end}}
{{define "with_caption"}}<figure {{.FigureAttrs}}>{{.Image}}<figcaption>{{.Caption}}</figcaption></figure>{{end}}
{{define "link"}}{{template "anchor" .}}{{end}}
{{define "link_with_caption"}}<figure {{.FigureAttrs}}>{{template "anchor" .}}<figcaption>{{.Caption}}</figcaption></figure>{{end}}
{{define "popup"}}{{template "anchor" .}}{{end}}
{{define "popup_with_caption"}}<figure {{.FigureAttrs}}>{{template "anchor" .}}<figcaption>{{.Caption}}</figcaption></figure>{{end}}
`

var templates = template.Must(template.New("image").Parse(variantTemplates))

// unsafeSchemes never reach an emitted href.
var unsafeSchemes = []string{"javascript:", "vbscript:", "data:"}

type templateData struct {
	Image       template.HTML
	Anchor      template.HTML
	Caption     string
	FigureAttrs template.HTMLAttr
}

// Serialize renders plan in the variant chosen by SelectTemplate. External
// plans are returned as their original source.
func Serialize(plan RenderPlan) (string, error) {
	if plan.IsExternal() && plan.Source != "" {
		return plan.Source, nil
	}

	variant := SelectTemplate(&plan)
	name := variant.String()
	if plan.LinkOwnedByCaller {
		if variant.HasCaption() {
			name = VariantWithCaption.String()
		} else {
			name = VariantStandalone.String()
		}
	}

	data := templateData{Image: template.HTML(imageTag(&plan))}
	if plan.HasCaption() {
		data.Caption = *plan.Caption
		data.FigureAttrs = figureAttrs(plan.FigureAttributes)
	}
	if plan.Link != nil {
		data.Anchor = template.HTML(anchorTag(plan.Link))
	}

	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

func imageTag(plan *RenderPlan) string {
	attrs := Attributes{{Key: "src", Val: plan.Src}}
	if plan.Width > 0 {
		attrs = attrs.Set("width", strconv.Itoa(plan.Width))
	}
	if plan.Height > 0 {
		attrs = attrs.Set("height", strconv.Itoa(plan.Height))
	}
	if plan.Alt != nil {
		attrs = attrs.Set("alt", *plan.Alt)
	} else {
		attrs = attrs.Set("alt", "")
	}
	if plan.Title != nil && *plan.Title != "" {
		attrs = attrs.Set("title", *plan.Title)
	}
	if plan.Class != "" {
		attrs = attrs.Set("class", plan.Class)
	}
	if plan.FileUID != nil {
		attrs = attrs.Set(AttrFileUID, strconv.FormatUint(uint64(*plan.FileUID), 10))
		attrs = attrs.Set(AttrFileTable, plan.FileTable)
	}
	if plan.Quality != QualityUnset {
		attrs = attrs.Set(AttrQuality, plan.Quality.String())
	}
	if plan.AltOverride.Present {
		attrs = attrs.Set(AttrAltOverride, plan.AltOverride.Value)
	}
	if plan.TitleOverride.Present {
		attrs = attrs.Set(AttrTitleOverride, plan.TitleOverride.Value)
	}
	for _, attr := range plan.Attributes {
		if !attrs.Has(attr.Key) {
			attrs = attrs.Set(attr.Key, attr.Val)
		}
	}

	return Token{Type: nethtml.SelfClosingTagToken, Name: "img"}.Render(attrs)
}

// anchorTag renders the opening <a> of link. The href is emitted as written
// unless its scheme is one of unsafeSchemes.
func anchorTag(link *LinkSpec) string {
	href := link.URL
	if !SafeHref(href) {
		href = "#"
	}

	attrs := Attributes{{Key: "href", Val: href}}
	if link.Target != "" {
		attrs = attrs.Set("target", link.Target)
	}
	if link.Title != "" {
		attrs = attrs.Set("title", link.Title)
	}
	if link.Class != "" {
		attrs = attrs.Set("class", link.Class)
	}
	if link.IsPopup {
		attrs = attrs.Set(AttrPopup, "true")
		attrs = attrs.Set("rel", popupRel(link.Rel))
		attrs = append(attrs, popupConfigAttrs(link.PopupConfig)...)
	}

	return Token{Type: nethtml.StartTagToken, Name: "a"}.Render(attrs)
}

// SafeHref reports whether href may be emitted. Browsers ignore whitespace and
// control characters inside a scheme, so they are dropped before comparing.
func SafeHref(href string) bool {
	scheme := strings.Map(func(r rune) rune {
		if r <= ' ' || r == 0x7f {
			return -1
		}
		return unicode.ToLower(r)
	}, href)
	for _, unsafe := range unsafeSchemes {
		if strings.HasPrefix(scheme, unsafe) {
			return false
		}
	}
	return true
}

func figureAttrs(attrs Attributes) template.HTMLAttr {
	if len(attrs) == 0 {
		attrs = Attributes{{Key: "class", Val: "image"}}
	}
	return template.HTMLAttr(joinAttrs(attrs))
}

func popupRel(rel string) string {
	for _, token := range strings.Fields(rel) {
		if token == lightboxToken {
			return rel
		}
	}
	return strings.TrimSpace(rel + " " + lightboxToken)
}

func popupConfigAttrs(config map[string]string) Attributes {
	if len(config) == 0 {
		return nil
	}
	keys := make([]string, 0, len(config))
	for key := range config {
		if validConfigKey(key) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	attrs := make(Attributes, 0, len(keys))
	for _, key := range keys {
		attrs = append(attrs, Attribute{Key: popupConfigPrefix + key, Val: config[key]})
	}
	return attrs
}

func validConfigKey(key string) bool {
	if key == "" {
		return false
	}
	for _, r := range key {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-') {
			return false
		}
	}
	return true
}

func joinAttrs(attrs Attributes) string {
	parts := make([]string, 0, len(attrs))
	for _, attr := range attrs {
		parts = append(parts, attr.Key+`="`+html.EscapeString(attr.Val)+`"`)
	}
	return strings.Join(parts, " ")
}
