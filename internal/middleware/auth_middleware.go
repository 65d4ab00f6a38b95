package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"rte-image-backend/internal/authorization"
	"rte-image-backend/internal/constants"
)

func AuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
			c.Abort()
			return
		}
		if tokenString == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization credentials required"})
			c.Abort()
			return
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(jwtSecret), nil
		}, jwt.WithExpirationRequired())

		if err != nil || !token.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			c.Abort()
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token claims"})
			c.Abort()
			return
		}

		userID, _ := claims["user_id"].(float64)
		role, validRole := authorization.ParseUserRole(claims["role"])
		if userID <= 0 || !validRole {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token claims"})
			c.Abort()
			return
		}

		c.Set(constants.ContextKeyUserID, uint(userID))
		c.Set(constants.ContextKeyRole, role)

		c.Next()
	}
}

// RequirePermission admits authenticated users whose role grants permission.
func RequirePermission(permission authorization.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		value, exists := c.Get(constants.ContextKeyRole)
		role, _ := value.(authorization.UserRole)
		if !exists || !authorization.RoleHasPermission(role, permission) {
			c.JSON(http.StatusForbidden, gin.H{"error": "insufficient permissions"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// bearerToken returns the token from the Authorization header or the auth
// cookie. ok is false when a header is present but malformed and no cookie
// can stand in for it.
func bearerToken(c *gin.Context) (string, bool) {
	cookieToken := func() string {
		if value, err := c.Cookie(constants.AuthTokenCookieName); err == nil {
			return strings.TrimSpace(value)
		}
		return ""
	}

	authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
	if authHeader == "" {
		return cookieToken(), true
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1]), true
	}
	if token := cookieToken(); token != "" {
		return token, true
	}
	return "", false
}
