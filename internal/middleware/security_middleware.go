package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// SecurityHeadersMiddleware sets the security headers. imgSources lists extra
// origins rendered images may be loaded from.
func SecurityHeadersMiddleware(imgSources []string) gin.HandlerFunc {
	policy := buildContentSecurityPolicy(imgSources, nil)

	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-DNS-Prefetch-Control", "off")
		c.Header("X-Permitted-Cross-Domain-Policies", "none")
		c.Header("Cross-Origin-Opener-Policy", "same-origin")
		c.Header("Cross-Origin-Resource-Policy", "same-site")
		if c.Request.TLS != nil {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Header("Content-Security-Policy", policy)
		c.Header("Referrer-Policy", "no-referrer")
		c.Header("Permissions-Policy", "geolocation=(), microphone=(), camera=()")
		c.Next()
	}
}

func buildContentSecurityPolicy(imgSources, mediaSources []string) string {
	directives := []struct {
		name    string
		sources []string
	}{
		{"default-src", []string{"'self'"}},
		{"img-src", append([]string{"'self'", "data:"}, imgSources...)},
		{"media-src", append([]string{"'self'", "data:", "blob:"}, mediaSources...)},
		{"style-src", []string{"'self'"}},
		{"object-src", []string{"'none'"}},
		{"base-uri", []string{"'self'"}},
		{"frame-ancestors", []string{"'none'"}},
	}

	parts := make([]string, 0, len(directives))
	for _, directive := range directives {
		parts = append(parts, directive.name+" "+strings.Join(dedupe(directive.sources), " "))
	}
	return strings.Join(parts, "; ")
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}
