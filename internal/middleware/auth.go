package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"trade-market/internal/auth"
	"trade-market/internal/models"
)

// UserProvisioner records the identity behind a verified token.
type UserProvisioner interface {
	Ensure(ctx context.Context, user models.User) (models.User, error)
}

// AuthMiddleware validates the bearer token and stores the caller's id under "userID".
func AuthMiddleware(verifier *auth.Verifier, users UserProvisioner, log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		token, ok := auth.BearerToken(header)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		claims, err := verifier.Verify(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		if _, err := users.Ensure(c.Request.Context(), models.User{ID: claims.UserID, Name: claims.Name, Email: claims.Email}); err != nil {
			log.Error("user provisioning failed", "user_id", claims.UserID, "request_id", c.GetString(RequestIDKey), "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		c.Set("userID", claims.UserID)
		c.Next()
	}
}
