package handlers

import (
	"net/http"
	"strconv"

	"recipeapi/internal/services"

	"github.com/gin-gonic/gin"
)

type AttributeRequest struct {
	Name string `json:"name"`
}

// listAttributes serves GET for tags and ingredients. The optional
// assigned_only query flag keeps items used by the caller's recipes.
func listAttributes[T services.Attribute](h *Handler, svc *services.AttributeService[T]) gin.HandlerFunc {
	return func(c *gin.Context) {
		assignedOnly := false
		if raw := c.Query("assigned_only"); raw != "" {
			v, err := strconv.ParseBool(raw)
			if err != nil {
				h.respondError(c, services.NewValidationError("assigned_only", "Must be a valid boolean."))
				return
			}
			assignedOnly = v
		}

		items, err := svc.List(c.Request.Context(), currentUser(c).ID, assignedOnly)
		if err != nil {
			h.respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, newAttributeList(items))
	}
}

func createAttribute[T services.Attribute](h *Handler, svc *services.AttributeService[T]) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AttributeRequest
		if err := bindJSON(c, &req); err != nil {
			h.respondError(c, err)
			return
		}

		item, err := svc.Create(c.Request.Context(), currentUser(c).ID, req.Name)
		if err != nil {
			h.respondError(c, err)
			return
		}

		c.JSON(http.StatusCreated, newAttributeResponse(*item))
	}
}

func (h *Handler) ListTags(c *gin.Context) {
	listAttributes(h, h.tagService)(c)
}

func (h *Handler) CreateTag(c *gin.Context) {
	createAttribute(h, h.tagService)(c)
}

func (h *Handler) ListIngredients(c *gin.Context) {
	listAttributes(h, h.ingredientService)(c)
}

func (h *Handler) CreateIngredient(c *gin.Context) {
	createAttribute(h, h.ingredientService)(c)
}
