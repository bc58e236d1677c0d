package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/CUknot/nexus_chat/models"
	"github.com/CUknot/nexus_chat/services"
	"github.com/gin-gonic/gin"
)

const (
	// UserIDKey holds the authenticated user's ID in the gin context.
	UserIDKey = "userID"
	// UserKey holds the authenticated *models.User in the gin context.
	UserKey = "user"
)

// JWTAuth rejects requests without a valid "Authorization: Bearer <token>"
// header and stores the verified user in the context.
func JWTAuth(verifier services.IdentityVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header with Bearer token is required"})
			return
		}

		user, err := verifier.Verify(c.Request.Context(), header)
		if err != nil {
			if errors.Is(err, services.ErrUnauthenticated) {
				slog.Debug("rejected bearer token", "path", c.FullPath(), "error", err)
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token invalid or expired"})
				return
			}
			slog.Error("identity verification failed", "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to verify credentials"})
			return
		}

		c.Set(UserIDKey, user.ID)
		c.Set(UserKey, user)
		c.Next()
	}
}

// CurrentUser returns the user stored by JWTAuth.
func CurrentUser(c *gin.Context) *models.User {
	if v, ok := c.Get(UserKey); ok {
		if user, ok := v.(*models.User); ok {
			return user
		}
	}
	return nil
}
