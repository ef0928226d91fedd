package user

import (
	"errors"
	"net/http"
	"time"

	"github.com/SlpAus/gametracker-backend/internal/platform/response"
	"github.com/gin-gonic/gin"
)

// Handler 持有user模块的全部路由处理函数。
type Handler struct {
	svc *Service
}

// NewHandler 创建用户路由处理器。
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// --- 请求与响应模型 ---

type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Username string `json:"username" binding:"required,min=3,max=32"`
	Password string `json:"password" binding:"required,min=8,max=72"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type UpdateProfileRequest struct {
	Username        *string `json:"username" binding:"omitempty,min=3,max=32"`
	IsPublic        *bool   `json:"isPublic"`
	CurrentPassword *string `json:"currentPassword"`
	NewPassword     *string `json:"newPassword" binding:"omitempty,min=8,max=72"`
}

// UserResponse 是对外暴露的用户信息，不包含任何凭证字段。
type UserResponse struct {
	ID               uint       `json:"id"`
	Email            string     `json:"email"`
	Username         string     `json:"username"`
	IsPublic         bool       `json:"isPublic"`
	SteamID          *string    `json:"steamId,omitempty"`
	SteamPersonaName string     `json:"steamPersonaName,omitempty"`
	SteamAvatarURL   string     `json:"steamAvatarUrl,omitempty"`
	SteamLinkedAt    *time.Time `json:"steamLinkedAt,omitempty"`
	SteamSyncEnabled bool       `json:"steamSyncEnabled"`
	LastSyncAt       *time.Time `json:"lastSyncAt,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
}

// FormatUser 将持久化模型转换为响应模型。
func FormatUser(u *User) UserResponse {
	return UserResponse{
		ID:               u.ID,
		Email:            u.Email,
		Username:         u.Username,
		IsPublic:         u.IsPublic,
		SteamID:          u.SteamID,
		SteamPersonaName: u.SteamPersonaName,
		SteamAvatarURL:   u.SteamAvatarURL,
		SteamLinkedAt:    u.SteamLinkedAt,
		SteamSyncEnabled: u.SteamSyncEnabled,
		LastSyncAt:       u.LastSyncAt,
		CreatedAt:        u.CreatedAt,
	}
}

// --- 控制器函数 ---

// Register 处理 POST /api/auth/register
func (h *Handler) Register(c *gin.Context) {
	var body RegisterRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, response.Binding(err))
		return
	}

	u, err := h.svc.Register(body.Email, body.Username, body.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrEmailTaken):
			response.Error(c, response.Conflict("EMAIL_TAKEN", "邮箱已被注册"))
		case errors.Is(err, ErrUsernameTaken):
			response.Error(c, response.Conflict("USERNAME_TAKEN", "用户名已被占用"))
		default:
			response.Error(c, response.Internal(err))
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"user": FormatUser(u)})
}

// Login 处理 POST /api/auth/login
func (h *Handler) Login(c *gin.Context) {
	var body LoginRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, response.Binding(err))
		return
	}

	u, pair, err := h.svc.Login(body.Email, body.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			response.Error(c, response.Unauthorized())
		} else {
			response.Error(c, response.Internal(err))
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": FormatUser(u), "tokens": pair})
}

// Refresh 处理 POST /api/auth/refresh
func (h *Handler) Refresh(c *gin.Context) {
	var body RefreshRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, response.Binding(err))
		return
	}

	u, pair, err := h.svc.Refresh(body.RefreshToken)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			response.Error(c, response.Unauthorized())
		} else {
			response.Error(c, response.Internal(err))
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": FormatUser(u), "tokens": pair})
}

// Me 处理 GET /api/auth/me
func (h *Handler) Me(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"user": FormatUser(CurrentUser(c))})
}

// Logout 处理 POST /api/auth/logout
func (h *Handler) Logout(c *gin.Context) {
	if err := h.svc.Logout(CurrentUser(c).ID); err != nil {
		response.Error(c, response.Internal(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "已登出"})
}

// UpdateProfile 处理 PATCH /api/auth/profile
func (h *Handler) UpdateProfile(c *gin.Context) {
	var body UpdateProfileRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, response.Binding(err))
		return
	}

	u, err := h.svc.UpdateProfile(CurrentUser(c).ID, ProfileUpdate{
		Username:        body.Username,
		IsPublic:        body.IsPublic,
		CurrentPassword: body.CurrentPassword,
		NewPassword:     body.NewPassword,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrUsernameTaken):
			response.Error(c, response.Conflict("USERNAME_TAKEN", "用户名已被占用"))
		case errors.Is(err, ErrInvalidCredentials):
			response.Error(c, response.Unauthorized())
		default:
			response.Error(c, response.Internal(err))
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": FormatUser(u)})
}
