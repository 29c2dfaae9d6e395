package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"recipeapi/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type RecipeRequest struct {
	Title       *string         `json:"title"`
	TimeMinutes *int            `json:"time_minutes"`
	Price       json.RawMessage `json:"price"`
	Link        *string         `json:"link"`
	Tags        *[]uint         `json:"tags"`
	Ingredients *[]uint         `json:"ingredients"`
}

// toDTO converts the request. Price is accepted as a JSON number or string.
func (r RecipeRequest) toDTO() (services.RecipeDTO, error) {
	dto := services.RecipeDTO{
		Title:         r.Title,
		TimeMinutes:   r.TimeMinutes,
		Link:          r.Link,
		TagIDs:        r.Tags,
		IngredientIDs: r.Ingredients,
	}

	raw := bytes.TrimSpace(r.Price)
	switch {
	case len(raw) == 0:
	case bytes.Equal(raw, []byte("null")):
		return dto, services.NewValidationError("price", "This field may not be null.")
	default:
		var price decimal.Decimal
		if err := price.UnmarshalJSON(raw); err != nil {
			return dto, services.NewValidationError("price", "A valid number is required.")
		}
		dto.Price = &price
	}
	return dto, nil
}

// parseIDs reads a comma-separated id list such as "1,2,3".
func parseIDs(field, raw string) ([]uint, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var ids []uint
	for _, part := range strings.Split(raw, ",") {
		id, err := strconv.ParseUint(strings.TrimSpace(part), 10, 0)
		if err != nil {
			return nil, services.NewValidationError(field, fmt.Sprintf("Invalid id %q.", part))
		}
		ids = append(ids, uint(id))
	}
	return ids, nil
}

func recipeID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 0)
	return uint(id), err == nil
}

func (h *Handler) ListRecipes(c *gin.Context) {
	tags, err := parseIDs("tags", c.Query("tags"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	ingredients, err := parseIDs("ingredients", c.Query("ingredients"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	recipes, err := h.recipeService.List(c.Request.Context(), currentUser(c).ID, services.RecipeFilter{
		TagIDs:        tags,
		IngredientIDs: ingredients,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	out := make([]recipeResponse, 0, len(recipes))
	for i := range recipes {
		out = append(out, newRecipeResponse(&recipes[i]))
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) CreateRecipe(c *gin.Context) {
	var req RecipeRequest
	if err := bindJSON(c, &req); err != nil {
		h.respondError(c, err)
		return
	}
	dto, err := req.toDTO()
	if err != nil {
		h.respondError(c, err)
		return
	}

	user := currentUser(c)
	recipe, err := h.recipeService.Create(c.Request.Context(), user.ID, dto)
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.logAction(c, &user.ID, "CREATE_RECIPE", strconv.FormatUint(uint64(recipe.ID), 10), map[string]any{"title": recipe.Title})

	c.JSON(http.StatusCreated, newRecipeResponse(recipe))
}

func (h *Handler) GetRecipe(c *gin.Context) {
	id, ok := recipeID(c)
	if !ok {
		h.respondError(c, services.ErrNotFound)
		return
	}

	recipe, err := h.recipeService.Get(c.Request.Context(), currentUser(c).ID, id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, h.newRecipeDetailResponse(recipe))
}

// UpdateRecipe serves PUT (full) and PATCH (partial).
func (h *Handler) UpdateRecipe(c *gin.Context) {
	id, ok := recipeID(c)
	if !ok {
		h.respondError(c, services.ErrNotFound)
		return
	}

	var req RecipeRequest
	if err := bindJSON(c, &req); err != nil {
		h.respondError(c, err)
		return
	}
	dto, err := req.toDTO()
	if err != nil {
		h.respondError(c, err)
		return
	}

	user := currentUser(c)
	partial := c.Request.Method == http.MethodPatch
	recipe, err := h.recipeService.Update(c.Request.Context(), user.ID, id, dto, partial)
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.logAction(c, &user.ID, "UPDATE_RECIPE", strconv.FormatUint(uint64(id), 10), map[string]any{"partial": partial})

	c.JSON(http.StatusOK, newRecipeResponse(recipe))
}

func (h *Handler) DeleteRecipe(c *gin.Context) {
	id, ok := recipeID(c)
	if !ok {
		h.respondError(c, services.ErrNotFound)
		return
	}

	user := currentUser(c)
	if err := h.recipeService.Delete(c.Request.Context(), user.ID, id); err != nil {
		h.respondError(c, err)
		return
	}

	h.logAction(c, &user.ID, "DELETE_RECIPE", strconv.FormatUint(uint64(id), 10), nil)

	c.Status(http.StatusNoContent)
}

// UploadRecipeImage accepts a multipart form with an "image" file field.
func (h *Handler) UploadRecipeImage(c *gin.Context) {
	id, ok := recipeID(c)
	if !ok {
		h.respondError(c, services.ErrNotFound)
		return
	}

	maxBytes := h.cfg.MaxUploadBytes()
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)

	header, err := c.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.respondError(c, services.NewValidationError("image", fmt.Sprintf("The submitted file exceeds %d bytes.", maxBytes)))
			return
		}
		h.respondError(c, services.NewValidationError("image", "No file was submitted."))
		return
	}

	file, err := header.Open()
	if err != nil {
		h.respondError(c, fmt.Errorf("failed to open upload: %w", err))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.respondError(c, fmt.Errorf("failed to read upload: %w", err))
		return
	}

	user := currentUser(c)
	recipe, err := h.recipeService.UploadImage(c.Request.Context(), user.ID, id, services.ImageUpload{
		Filename: header.Filename,
		Data:     data,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.logAction(c, &user.ID, "UPLOAD_IMAGE", strconv.FormatUint(uint64(id), 10), map[string]any{"key": recipe.Image, "size": len(data)})

	c.JSON(http.StatusOK, recipeImageResponse{ID: recipe.ID, Image: h.imageURL(recipe.Image)})
}
