package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/siscanu/leads-agent/internal/auth/jwt"
	"github.com/siscanu/leads-agent/internal/config"
)

// newTestService 创建带已知密码的认证服务
func newTestService(t *testing.T) *Service {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost)
	require.NoError(t, err)

	tokens := jwt.NewManager("test-secret-at-least-32-characters!!", "leads-agent", 15*time.Minute, 7*24*time.Hour)
	return NewService(config.AdminConfig{Username: "admin", PasswordHash: string(hash)}, tokens)
}

// TestLogin 测试凭据校验与令牌签发
func TestLogin(t *testing.T) {
	svc := newTestService(t)

	t.Run("valid credentials", func(t *testing.T) {
		pair, err := svc.Login("admin", "correct-horse")
		require.NoError(t, err)
		assert.NotEmpty(t, pair.AccessToken)
		assert.NotEmpty(t, pair.RefreshToken)
		assert.Equal(t, int64(900), pair.ExpiresIn)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := svc.Login("admin", "wrong")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("wrong username", func(t *testing.T) {
		_, err := svc.Login("root", "correct-horse")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("login disabled without hash", func(t *testing.T) {
		tokens := jwt.NewManager("test-secret-at-least-32-characters!!", "leads-agent", time.Minute, time.Hour)
		svc := NewService(config.AdminConfig{Username: "admin"}, tokens)
		_, err := svc.Login("admin", "anything")
		assert.ErrorIs(t, err, ErrLoginDisabled)
	})
}

// TestRefresh 测试刷新令牌换取新访问令牌
func TestRefresh(t *testing.T) {
	svc := newTestService(t)

	pair, err := svc.Login("admin", "correct-horse")
	require.NoError(t, err)

	access, err := svc.Refresh(pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, access)

	_, err = svc.Refresh("not-a-token")
	assert.ErrorIs(t, err, jwt.ErrInvalidToken)
}

// TestValidateToken 测试令牌验证与声明还原
func TestValidateToken(t *testing.T) {
	tokens := jwt.NewManager("test-secret-at-least-32-characters!!", "leads-agent", 15*time.Minute, time.Hour)

	pair, err := tokens.GenerateTokenPair("admin")
	require.NoError(t, err)

	claims, err := tokens.ValidateToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Username)
	assert.Equal(t, "leads-agent", claims.Issuer)

	t.Run("expired token", func(t *testing.T) {
		shortLived := jwt.NewManager("test-secret-at-least-32-characters!!", "leads-agent", -time.Minute, time.Hour)
		pair, err := shortLived.GenerateTokenPair("admin")
		require.NoError(t, err)

		_, err = tokens.ValidateToken(pair.AccessToken)
		assert.ErrorIs(t, err, jwt.ErrExpiredToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := jwt.NewManager("another-secret-also-32-characters!!!", "leads-agent", time.Minute, time.Hour)
		pair, err := other.GenerateTokenPair("admin")
		require.NoError(t, err)

		_, err = tokens.ValidateToken(pair.AccessToken)
		assert.ErrorIs(t, err, jwt.ErrInvalidToken)
	})
}
