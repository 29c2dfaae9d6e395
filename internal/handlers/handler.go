package handlers

import (
	"log/slog"

	"recipeapi/internal/config"
	"recipeapi/internal/models"
	"recipeapi/internal/services"
)

type Handler struct {
	cfg               config.Config
	logger            *slog.Logger
	userService       *services.UserService
	tagService        *services.AttributeService[models.Tag]
	ingredientService *services.AttributeService[models.Ingredient]
	recipeService     *services.RecipeService
	auditService      *services.AuditService
}

func NewHandler(
	cfg config.Config,
	logger *slog.Logger,
	userService *services.UserService,
	tagService *services.AttributeService[models.Tag],
	ingredientService *services.AttributeService[models.Ingredient],
	recipeService *services.RecipeService,
	auditService *services.AuditService,
) *Handler {
	return &Handler{
		cfg:               cfg,
		logger:            logger,
		userService:       userService,
		tagService:        tagService,
		ingredientService: ingredientService,
		recipeService:     recipeService,
		auditService:      auditService,
	}
}
