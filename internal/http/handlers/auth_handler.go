package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/beereshbc/influencaa-backend/internal/http/handlers/common"
	"github.com/beereshbc/influencaa-backend/internal/http/response"
	"github.com/beereshbc/influencaa-backend/internal/pkg/apperror"
	"github.com/beereshbc/influencaa-backend/internal/service"
)

// AuthService — регистрация, вход и ротация токенов.
type AuthService interface {
	Register(ctx context.Context, in service.RegisterInput, meta service.SessionMeta) (*service.AuthResult, error)
	Login(ctx context.Context, in service.LoginInput, meta service.SessionMeta) (*service.AuthResult, error)
	Refresh(ctx context.Context, refreshToken string, meta service.SessionMeta) (*service.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
}

// AuthHandler предоставляет HTTP слой для регистрации и логина.
type AuthHandler struct {
	auth AuthService
}

// NewAuthHandler создаёт хэндлер.
func NewAuthHandler(auth AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func sessionMeta(c *gin.Context) service.SessionMeta {
	return service.SessionMeta{
		UserAgent: c.GetHeader("User-Agent"),
		IP:        c.ClientIP(),
	}
}

// Register обрабатывает POST /auth/register.
func (h *AuthHandler) Register(c *gin.Context) {
	var req service.RegisterInput
	if err := common.BindJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}

	result, err := h.auth.Register(c.Request.Context(), req, sessionMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, gin.H{"user": result.User, "tokens": result.Tokens})
}

// Login обрабатывает POST /auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req service.LoginInput
	if err := common.BindJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}

	result, err := h.auth.Login(c.Request.Context(), req, sessionMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, gin.H{"user": result.User, "tokens": result.Tokens})
}

// Refresh обрабатывает POST /auth/refresh.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := common.BindJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	if req.RefreshToken == "" {
		response.Error(c, apperror.Validation("refresh токен обязателен", "refreshToken"))
		return
	}

	tokens, err := h.auth.Refresh(c.Request.Context(), req.RefreshToken, sessionMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, gin.H{"tokens": tokens})
}

// Logout обрабатывает POST /auth/logout.
func (h *AuthHandler) Logout(c *gin.Context) {
	var req refreshRequest
	if err := common.BindJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	if req.RefreshToken == "" {
		response.Error(c, apperror.Validation("refresh токен обязателен", "refreshToken"))
		return
	}

	if err := h.auth.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, nil)
}
