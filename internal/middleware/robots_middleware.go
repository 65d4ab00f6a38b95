package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// NoIndexMiddleware keeps API responses out of search indexes.
func NoIndexMiddleware(directives ...string) gin.HandlerFunc {
	value := strings.Join(dedupe(directives), ", ")
	if value == "" {
		value = "noindex, nofollow"
	}

	return func(c *gin.Context) {
		c.Header("X-Robots-Tag", value)
		c.Next()
	}
}
