package handlers

import (
	"net/http"
	"strings"

	"recipeapi/internal/metrics"
	"recipeapi/internal/middleware"
	"recipeapi/internal/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func (h *Handler) SetupRouter(rateLimiter *services.IPRateLimiter) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true

	// Middleware
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(h.logger))
	r.Use(metrics.Middleware())
	r.Use(cors.New(h.corsConfig()))

	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "Method not allowed."})
	})
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found."})
	})

	// Routes
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	if h.cfg.ImageStorage != "s3" && strings.HasPrefix(h.cfg.MediaURL, "/") {
		r.Static(h.cfg.MediaURL, h.cfg.MediaRoot)
	}

	// Public Routes
	public := r.Group("/users")
	if rateLimiter != nil {
		public.Use(middleware.RateLimit(rateLimiter))
	}
	{
		public.POST("/create", h.RegisterUser)
		public.POST("/token", h.CreateToken)
	}

	// Protected Routes
	auth := middleware.AuthRequired(h.userService)

	users := r.Group("/users", auth)
	{
		users.POST("/logout", h.Logout)
		users.GET("/me", h.GetProfile)
		users.PATCH("/me", h.UpdateProfile)
	}

	recipe := r.Group("/recipe", auth)
	{
		recipe.GET("/tags", h.ListTags)
		recipe.POST("/tags", h.CreateTag)
		recipe.GET("/ingredients", h.ListIngredients)
		recipe.POST("/ingredients", h.CreateIngredient)

		recipe.GET("/recipes", h.ListRecipes)
		recipe.POST("/recipes", h.CreateRecipe)
		recipe.GET("/recipes/:id", h.GetRecipe)
		recipe.PUT("/recipes/:id", h.UpdateRecipe)
		recipe.PATCH("/recipes/:id", h.UpdateRecipe)
		recipe.DELETE("/recipes/:id", h.DeleteRecipe)
		recipe.POST("/recipes/:id/upload-image", h.UploadRecipeImage)
	}

	return r
}

func (h *Handler) corsConfig() cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowHeaders = append(cfg.AllowHeaders, "Authorization")
	origins := h.cfg.AllowedOrigins()
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}
