package handlers

import (
	"github.com/gin-gonic/gin"

	"fiunum/internal/core/apperror"
	appctx "fiunum/internal/core/context"
	"fiunum/internal/domain/auth"
	"fiunum/internal/infrastructure/http/v1/dto"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	*BaseHandler
	service *auth.Service
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(base *BaseHandler, service *auth.Service) *AuthHandler {
	return &AuthHandler{
		BaseHandler: base,
		service:     service,
	}
}

// RegisterRoutes wires auth endpoints. Registration is admin only.
func (h *AuthHandler) RegisterRoutes(public, protected, admin *gin.RouterGroup) {
	public.POST("/login", h.Login)
	public.POST("/refresh", h.Refresh)
	protected.POST("/logout", h.Logout)
	protected.GET("/me", h.Me)
	admin.POST("/users", h.Register)
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.LoginRequest
	if !h.BindJSON(c, &req) {
		return
	}

	tokens, user, err := h.service.Login(ctx, auth.Credentials{
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.LoginResponse{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresAt:    tokens.ExpiresAt,
		TokenType:    tokens.TokenType,
		User: dto.UserResponse{
			Username: user.Username,
			FullName: user.FullName,
			IsAdmin:  user.IsAdmin,
			Roles:    user.Roles,
		},
	})
}

// Refresh handles POST /auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.RefreshRequest
	if !h.BindJSON(c, &req) {
		return
	}

	tokens, err := h.service.RefreshToken(ctx, req.RefreshToken)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.RefreshResponse{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresAt:    tokens.ExpiresAt,
		TokenType:    tokens.TokenType,
	})
}

// Logout handles POST /auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	ctx := c.Request.Context()

	user := appctx.GetUser(ctx)
	if user == nil {
		h.Error(c, apperror.NewUnauthorized("not authenticated"))
		return
	}

	if err := h.service.Logout(ctx, user.Username); err != nil {
		h.Error(c, err)
		return
	}

	h.NoContent(c)
}

// Me handles GET /auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	ctx := c.Request.Context()

	user := appctx.GetUser(ctx)
	if user == nil {
		h.Error(c, apperror.NewUnauthorized("not authenticated"))
		return
	}

	h.OK(c, dto.UserResponse{
		Username: user.Username,
		FullName: user.FullName,
		IsAdmin:  user.IsAdmin,
		Roles:    user.Roles,
	})
}

// Register handles POST /auth/users (admin only)
func (h *AuthHandler) Register(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.RegisterUserRequest
	if !h.BindJSON(c, &req) {
		return
	}

	user, err := h.service.Register(ctx, auth.RegisterRequest{
		Username: req.Username,
		Password: req.Password,
		FullName: req.FullName,
		IsAdmin:  req.IsAdmin,
		Roles:    req.Roles,
	})
	if err != nil {
		h.Error(c, err)
		return
	}

	h.Created(c, dto.UserResponse{
		Username: user.Username,
		FullName: user.FullName,
		IsAdmin:  user.IsAdmin,
		Roles:    user.Roles,
	})
}
