package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"rte-image-backend/internal/constants"
)

var stateChangingMethods = map[string]struct{}{
	http.MethodPost:   {},
	http.MethodPut:    {},
	http.MethodPatch:  {},
	http.MethodDelete: {},
}

// CSRFMiddleware enforces the double-submit token on state changing requests
// authenticated by the auth cookie. Bearer requests pass unchecked.
func CSRFMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, shouldCheck := stateChangingMethods[c.Request.Method]; !shouldCheck {
			c.Next()
			return
		}

		if strings.TrimSpace(c.GetHeader("Authorization")) != "" {
			c.Next()
			return
		}

		tokenCookie, err := c.Cookie(constants.AuthTokenCookieName)
		if err != nil || strings.TrimSpace(tokenCookie) == "" {
			c.Next()
			return
		}

		csrfCookie, err := c.Cookie(constants.CSRFTokenCookieName)
		if err != nil || strings.TrimSpace(csrfCookie) == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "missing CSRF token"})
			return
		}

		headerToken := strings.TrimSpace(c.GetHeader(constants.CSRFHeaderName))
		if headerToken == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "missing CSRF header"})
			return
		}

		if subtle.ConstantTimeCompare([]byte(csrfCookie), []byte(headerToken)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid CSRF token"})
			return
		}

		c.Next()
	}
}
