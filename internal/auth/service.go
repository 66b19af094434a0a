// Package auth 实现运营者的单账号认证：
// 配置里的用户名 + bcrypt 密码哈希换取 JWT 令牌对。
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/siscanu/leads-agent/internal/auth/jwt"
	"github.com/siscanu/leads-agent/internal/config"
)

var (
	// ErrInvalidCredentials 用户名或密码错误
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrLoginDisabled 未配置密码哈希，登录不可用
	ErrLoginDisabled = errors.New("login disabled: no password hash configured")
)

// Service 单账号认证服务
type Service struct {
	username     string
	passwordHash string
	tokens       *jwt.Manager
}

// NewService 创建认证服务
func NewService(cfg config.AdminConfig, tokens *jwt.Manager) *Service {
	return &Service{
		username:     cfg.Username,
		passwordHash: cfg.PasswordHash,
		tokens:       tokens,
	}
}

// Login 校验凭据并签发令牌对
func (s *Service) Login(username, password string) (*jwt.TokenPair, error) {
	if s.passwordHash == "" {
		return nil, ErrLoginDisabled
	}
	if subtle.ConstantTimeCompare([]byte(username), []byte(s.username)) != 1 {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.passwordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	pair, err := s.tokens.GenerateTokenPair(username)
	if err != nil {
		return nil, fmt.Errorf("generate token pair: %w", err)
	}
	return pair, nil
}

// Refresh 用刷新令牌换取新的访问令牌
func (s *Service) Refresh(refreshToken string) (string, error) {
	return s.tokens.RefreshAccessToken(refreshToken)
}
