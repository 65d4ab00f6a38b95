package middleware

import (
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"
)

var publicImageExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".gif":  {},
	".webp": {},
	".svg":  {},
}

// StorageProtection limits the public storage route to image files. SVG files
// are served with a sandboxing policy so embedded scripts cannot run.
func StorageProtection() gin.HandlerFunc {
	return func(c *gin.Context) {
		ext := strings.ToLower(path.Ext(strings.TrimSpace(c.Param("filepath"))))
		if _, ok := publicImageExtensions[ext]; !ok {
			c.AbortWithStatus(http.StatusNotFound)
			return
		}
		if ext == ".svg" {
			c.Header("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'; sandbox")
		}
		c.Next()
	}
}
