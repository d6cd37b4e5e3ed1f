package auth

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "github.com/eternisai/leadgen-assistant/internal/errors"
	"github.com/eternisai/leadgen-assistant/internal/logger"
)

// Define a custom type for context keys to avoid collisions.
type contextKey string

// UserIDKey is the gin context key of the authenticated user id.
const UserIDKey contextKey = "user_id"

// RequireAuth admits requests carrying the bearer token of the store's
// authenticated session and attaches the user id to the request context.
func RequireAuth(store *Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")

		// Browser WebSocket API doesn't support custom headers during upgrade
		if authHeader == "" && c.Request.Header.Get("Upgrade") == "websocket" {
			if token := c.Query("token"); token != "" {
				authHeader = "Bearer " + token
			}
		}

		if authHeader == "" {
			apperrors.AbortWithUnauthorized(c, "Authorization header is required", nil)
			return
		}
		if !strings.HasPrefix(authHeader, "Bearer ") {
			apperrors.AbortWithUnauthorized(c, "Authorization header must be a Bearer token", nil)
			return
		}
		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == "" {
			apperrors.AbortWithUnauthorized(c, "Bearer token is empty", nil)
			return
		}

		user, ok := store.User()
		current := store.Token()
		if !ok || current == "" || subtle.ConstantTimeCompare([]byte(token), []byte(current)) != 1 {
			apperrors.AbortWithUnauthorized(c, "Invalid or expired token", nil)
			return
		}

		userID := user.ID
		if userID == "" {
			userID = SubjectOf(current)
		}

		ctx := logger.WithUserID(c.Request.Context(), userID)
		c.Request = c.Request.WithContext(ctx)
		c.Set(string(UserIDKey), userID)

		c.Next()
	}
}

// GetUserID extracts the user id set by RequireAuth.
func GetUserID(c *gin.Context) (string, bool) {
	userID, exists := c.Get(string(UserIDKey))
	if !exists {
		return "", false
	}

	id, ok := userID.(string)
	return id, ok
}
