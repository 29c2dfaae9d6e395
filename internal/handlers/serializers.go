package handlers

import (
	"recipeapi/internal/models"
	"recipeapi/internal/services"
)

type userResponse struct {
	ID    uint   `json:"id,omitempty"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

type attributeResponse struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

// recipeResponse is the list shape: relations as ids.
type recipeResponse struct {
	ID          uint   `json:"id"`
	Title       string `json:"title"`
	TimeMinutes int    `json:"time_minutes"`
	Price       string `json:"price"`
	Link        string `json:"link"`
	Tags        []uint `json:"tags"`
	Ingredients []uint `json:"ingredients"`
}

// recipeDetailResponse nests the related objects and adds the image URL.
type recipeDetailResponse struct {
	ID          uint                `json:"id"`
	Title       string              `json:"title"`
	TimeMinutes int                 `json:"time_minutes"`
	Price       string              `json:"price"`
	Link        string              `json:"link"`
	Tags        []attributeResponse `json:"tags"`
	Ingredients []attributeResponse `json:"ingredients"`
	Image       *string             `json:"image"`
}

type recipeImageResponse struct {
	ID    uint    `json:"id"`
	Image *string `json:"image"`
}

func newAttributeResponse[T services.Attribute](item T) attributeResponse {
	switch v := any(item).(type) {
	case models.Tag:
		return attributeResponse{ID: v.ID, Name: v.Name}
	case models.Ingredient:
		return attributeResponse{ID: v.ID, Name: v.Name}
	}
	return attributeResponse{ID: item.PK()}
}

func newAttributeList[T services.Attribute](items []T) []attributeResponse {
	out := make([]attributeResponse, 0, len(items))
	for _, item := range items {
		out = append(out, newAttributeResponse(item))
	}
	return out
}

func newRecipeResponse(r *models.Recipe) recipeResponse {
	return recipeResponse{
		ID:          r.ID,
		Title:       r.Title,
		TimeMinutes: r.TimeMinutes,
		Price:       r.Price.StringFixed(2),
		Link:        r.Link,
		Tags:        r.TagIDs(),
		Ingredients: r.IngredientIDs(),
	}
}

func (h *Handler) newRecipeDetailResponse(r *models.Recipe) recipeDetailResponse {
	return recipeDetailResponse{
		ID:          r.ID,
		Title:       r.Title,
		TimeMinutes: r.TimeMinutes,
		Price:       r.Price.StringFixed(2),
		Link:        r.Link,
		Tags:        newAttributeList(r.Tags),
		Ingredients: newAttributeList(r.Ingredients),
		Image:       h.imageURL(r.Image),
	}
}

func (h *Handler) imageURL(key string) *string {
	if key == "" {
		return nil
	}
	url := h.recipeService.ImageURL(key)
	return &url
}
