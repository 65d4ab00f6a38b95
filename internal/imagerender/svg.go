package imagerender

import (
	"encoding/base64"
	"net/url"
	"strings"
)

const svgMediaType = "image/svg+xml"

// SVGSanitizer cleans SVG markup before it is embedded again.
type SVGSanitizer interface {
	SanitizeSVG(markup string) string
}

// SVGSanitizerFunc adapts a plain function to SVGSanitizer.
type SVGSanitizerFunc func(markup string) string

func (f SVGSanitizerFunc) SanitizeSVG(markup string) string {
	return f(markup)
}

// SanitizeDataURI runs the payload of an SVG data URI through sanitizer and
// re-encodes it with the original header, so marker casing such as ";BASE64"
// survives. Other URIs, and any payload that fails to decode, are returned
// unchanged.
func SanitizeDataURI(uri string, sanitizer SVGSanitizer) string {
	if sanitizer == nil || len(uri) < 5 || !strings.EqualFold(uri[:5], "data:") {
		return uri
	}

	comma := strings.IndexByte(uri, ',')
	if comma < 0 {
		return uri
	}
	header, payload := uri[:comma], uri[comma+1:]
	if payload == "" {
		return uri
	}

	params := strings.Split(header[len("data:"):], ";")
	if !strings.EqualFold(strings.TrimSpace(params[0]), svgMediaType) {
		return uri
	}

	encoded := false
	for _, param := range params[1:] {
		if strings.EqualFold(strings.TrimSpace(param), "base64") {
			encoded = true
			break
		}
	}

	var markup string
	if encoded {
		decoded, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return uri
		}
		markup = string(decoded)
	} else {
		decoded, err := url.PathUnescape(payload)
		if err != nil {
			return uri
		}
		markup = decoded
	}

	sanitized := sanitizer.SanitizeSVG(markup)
	if sanitized == markup {
		return uri
	}

	if encoded {
		return header + "," + base64.StdEncoding.EncodeToString([]byte(sanitized))
	}
	return header + "," + url.PathEscape(sanitized)
}
