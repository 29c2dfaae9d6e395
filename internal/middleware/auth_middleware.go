package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"recipeapi/internal/models"
	"recipeapi/internal/services"

	"github.com/gin-gonic/gin"
)

const userKey = "user"

// TokenIdentifier resolves an opaque token to its user.
type TokenIdentifier interface {
	Identify(ctx context.Context, key string) (*models.User, error)
}

// TokenFromHeader extracts the key from "Token <key>" or "Bearer <key>".
func TokenFromHeader(header string) (string, bool) {
	scheme, key, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found {
		return "", false
	}
	if !strings.EqualFold(scheme, "Token") && !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	key = strings.TrimSpace(key)
	if key == "" || strings.Contains(key, " ") {
		return "", false
	}
	return key, true
}

// AuthRequired rejects requests without a valid token and stores the
// authenticated user in the context.
func AuthRequired(users TokenIdentifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication credentials were not provided."})
			return
		}

		key, ok := TokenFromHeader(header)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token header."})
			return
		}

		user, err := users.Identify(c.Request.Context(), key)
		if err != nil {
			if errors.Is(err, services.ErrUnauthenticated) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token."})
				return
			}
			_ = c.Error(err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}

		c.Set(userKey, user)
		c.Next()
	}
}

// CurrentUser returns the user stored by AuthRequired.
func CurrentUser(c *gin.Context) (*models.User, bool) {
	v, ok := c.Get(userKey)
	if !ok {
		return nil, false
	}
	user, ok := v.(*models.User)
	return user, ok && user != nil
}
