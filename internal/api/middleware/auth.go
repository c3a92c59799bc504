package middleware

import (
	"net/http"
	"strings"

	"stream-gateway/internal/websocket"

	"github.com/gin-gonic/gin"
)

const ContextUserID = "user_id"

type AuthMiddleware struct {
	validator websocket.CredentialValidator
}

func NewAuthMiddleware(validator websocket.CredentialValidator) *AuthMiddleware {
	return &AuthMiddleware{
		validator: validator,
	}
}

// RequireAuth rejects requests without a valid bearer token and stores the
// token subject under ContextUserID.
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "authorization header is required",
			})
			return
		}
		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "authorization header must use the Bearer scheme",
			})
			return
		}

		result := am.validator.Validate(authHeader)
		if !result.Valid {
			message := "invalid token"
			if result.Expired {
				message = "token expired"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": message,
			})
			return
		}

		c.Set(ContextUserID, result.SubjectID)
		c.Next()
	}
}
