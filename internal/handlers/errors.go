package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"recipeapi/internal/services"

	"github.com/gin-gonic/gin"
)

const nonFieldErrors = "non_field_errors"

// respondError maps service errors onto HTTP responses.
func (h *Handler) respondError(c *gin.Context, err error) {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": verr.Fields})
	case errors.Is(err, services.ErrInvalidCredentials):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unable to authenticate with provided credentials"})
	case errors.Is(err, services.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token."})
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found."})
	default:
		_ = c.Error(err)
		h.logger.Error("Request failed", "error", err, "path", c.Request.URL.Path)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

// bindJSON decodes the request body into dst. An empty body leaves dst
// untouched; malformed input becomes a validation error.
func bindJSON(c *gin.Context, dst any) error {
	err := c.ShouldBindJSON(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		field := typeErr.Field
		if field == "" {
			field = nonFieldErrors
		}
		return services.NewValidationError(field, fmt.Sprintf("Incorrect type. Expected %s.", typeErr.Type))
	}
	return services.NewValidationError(nonFieldErrors, "Malformed JSON body.")
}
