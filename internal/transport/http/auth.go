package httptransport

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/siscanu/leads-agent/internal/auth"
)

// AuthHandler 认证相关的 HTTP 处理逻辑
type AuthHandler struct {
	auth *auth.Service
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(authService *auth.Service) *AuthHandler {
	return &AuthHandler{auth: authService}
}

// loginRequest 登录请求体
type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// refreshRequest 令牌刷新请求体
type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// login 校验凭据并签发令牌对
func (h *AuthHandler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	pair, err := h.auth.Login(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) || errors.Is(err, auth.ErrLoginDisabled) {
			Unauthorized(c, GetErrorMessage(err))
			return
		}
		InternalError(c, MsgInternalError)
		return
	}

	Success(c, pair)
}

// refresh 用刷新令牌换取新的访问令牌
func (h *AuthHandler) refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	accessToken, err := h.auth.Refresh(req.RefreshToken)
	if err != nil {
		Unauthorized(c, GetErrorMessage(err))
		return
	}

	Success(c, gin.H{"accessToken": accessToken})
}
