package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"recipeapi/internal/middleware"
	"recipeapi/internal/models"
	"recipeapi/internal/services"

	"github.com/gin-gonic/gin"
)

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type UpdateProfileRequest struct {
	Name     *string `json:"name"`
	Password *string `json:"password"`
}

func (h *Handler) logAction(c *gin.Context, userID *uint, action, entityID string, details map[string]any) {
	if h.auditService == nil {
		return
	}
	h.auditService.LogAction(userID, action, entityID, details, services.Client{
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
}

// currentUser is only valid on routes behind middleware.AuthRequired.
func currentUser(c *gin.Context) *models.User {
	user, _ := middleware.CurrentUser(c)
	return user
}

func (h *Handler) RegisterUser(c *gin.Context) {
	var req RegisterRequest
	if err := bindJSON(c, &req); err != nil {
		h.respondError(c, err)
		return
	}

	user, err := h.userService.Register(c.Request.Context(), services.RegisterDTO{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.logAction(c, &user.ID, "REGISTER", user.Email, nil)

	c.JSON(http.StatusCreated, userResponse{ID: user.ID, Email: user.Email, Name: user.Name})
}

func (h *Handler) CreateToken(c *gin.Context) {
	var req LoginRequest
	if err := bindJSON(c, &req); err != nil {
		h.respondError(c, err)
		return
	}

	token, err := h.userService.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			h.logAction(c, nil, "LOGIN_FAILED", services.NormalizeEmail(req.Email), nil)
		}
		h.respondError(c, err)
		return
	}

	h.logAction(c, &token.UserID, "LOGIN", token.User.Email, nil)

	c.JSON(http.StatusOK, tokenResponse{Token: token.Key})
}

func (h *Handler) Logout(c *gin.Context) {
	user := currentUser(c)
	if err := h.userService.Logout(c.Request.Context(), user.ID); err != nil {
		h.respondError(c, err)
		return
	}

	h.logAction(c, &user.ID, "LOGOUT", strconv.FormatUint(uint64(user.ID), 10), nil)

	c.Status(http.StatusNoContent)
}

func (h *Handler) GetProfile(c *gin.Context) {
	user := currentUser(c)
	c.JSON(http.StatusOK, userResponse{Email: user.Email, Name: user.Name})
}

func (h *Handler) UpdateProfile(c *gin.Context) {
	var req UpdateProfileRequest
	if err := bindJSON(c, &req); err != nil {
		h.respondError(c, err)
		return
	}

	user, err := h.userService.UpdateProfile(c.Request.Context(), currentUser(c).ID, services.UpdateProfileDTO{
		Name:     req.Name,
		Password: req.Password,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, userResponse{Email: user.Email, Name: user.Name})
}
