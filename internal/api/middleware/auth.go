package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	contextKeyUserID  = "userID"
	contextKeyIsAdmin = "isAdmin"
)

// AuthMiddleware validates the bearer token and stores the caller's identity
// on the request context.
func AuthMiddleware(jwtSecret string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		tokenString := strings.TrimPrefix(header, "Bearer ")

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(jwtSecret), nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token claims"})
			return
		}

		sub, _ := claims["sub"].(string)
		userID, err := uuid.Parse(sub)
		if err != nil {
			logger.Warn("Token with malformed subject", zap.String("sub", sub))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token subject"})
			return
		}

		isAdmin, _ := claims["is_admin"].(bool)

		c.Set(contextKeyUserID, userID)
		c.Set(contextKeyIsAdmin, isAdmin)
		c.Next()
	}
}

// AdminMiddleware rejects callers without the admin claim. Must run after
// AuthMiddleware.
func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !IsAdmin(c) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin access required"})
			return
		}
		c.Next()
	}
}

// GetUserID returns the authenticated caller's id
func GetUserID(c *gin.Context) (uuid.UUID, bool) {
	value, ok := c.Get(contextKeyUserID)
	if !ok {
		return uuid.Nil, false
	}
	userID, ok := value.(uuid.UUID)
	return userID, ok
}

// IsAdmin reports whether the caller carries the admin claim
func IsAdmin(c *gin.Context) bool {
	value, ok := c.Get(contextKeyIsAdmin)
	if !ok {
		return false
	}
	isAdmin, _ := value.(bool)
	return isAdmin
}
