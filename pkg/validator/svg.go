package validator

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var svgElements = []string{
	"svg", "g", "defs", "symbol", "use", "title", "desc",
	"path", "rect", "circle", "ellipse", "line", "polyline", "polygon",
	"text", "tspan", "lineargradient", "radialgradient", "stop",
	"clippath", "mask", "pattern",
}

var svgAttributes = []string{
	"xmlns", "version", "id", "class", "viewbox", "preserveaspectratio",
	"width", "height", "x", "y", "x1", "x2", "y1", "y2", "cx", "cy", "r", "rx", "ry",
	"d", "points", "transform", "offset",
	"fill", "fill-opacity", "fill-rule", "stroke", "stroke-width", "stroke-opacity",
	"stroke-linecap", "stroke-linejoin", "stroke-dasharray", "opacity",
	"stop-color", "stop-opacity", "clip-path", "clip-rule", "mask",
	"gradientunits", "gradienttransform", "patternunits", "clippathunits",
	"font-size", "font-family", "font-weight", "text-anchor",
}

// The HTML tokenizer lowercases names; SVG is parsed as XML by browsers
// when loaded from a data URI, so the camelCase names are restored.
var svgCaseRestorer = strings.NewReplacer(
	"<lineargradient", "<linearGradient", "</lineargradient", "</linearGradient",
	"<radialgradient", "<radialGradient", "</radialgradient", "</radialGradient",
	"<clippath", "<clipPath", "</clippath", "</clipPath",
	" viewbox=", " viewBox=",
	" preserveaspectratio=", " preserveAspectRatio=",
	" gradientunits=", " gradientUnits=",
	" gradienttransform=", " gradientTransform=",
	" patternunits=", " patternUnits=",
	" clippathunits=", " clipPathUnits=",
)

// SVGSanitizer removes scripts, event handlers and foreign content from SVG
// markup.
type SVGSanitizer struct {
	policy *bluemonday.Policy
}

func NewSVGSanitizer() *SVGSanitizer {
	policy := bluemonday.NewPolicy()
	policy.AllowElements(svgElements...)
	policy.AllowAttrs(svgAttributes...).Globally()
	policy.AllowAttrs("href").OnElements("use")
	policy.AllowRelativeURLs(true)
	policy.AllowURLSchemes("https")

	return &SVGSanitizer{policy: policy}
}

func (s *SVGSanitizer) SanitizeSVG(markup string) string {
	return svgCaseRestorer.Replace(s.policy.Sanitize(markup))
}
