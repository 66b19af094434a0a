package mail

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// 访问令牌在过期前多久主动刷新
const tokenRefreshMargin = 60 * time.Second

// TokenSource 提供邮件 API 的访问令牌。
type TokenSource interface {
	// Token 返回当前有效的访问令牌，必要时先刷新
	Token(ctx context.Context) (string, error)
}

// StaticToken 返回固定令牌的 TokenSource，用于测试。
type StaticToken string

// Token 实现 TokenSource 接口
func (t StaticToken) Token(context.Context) (string, error) {
	return string(t), nil
}

// RefreshTokenSource 基于 OAuth refresh_token 流程的令牌源。
//
// 访问令牌缓存在内存中，过期前 60 秒主动换取新令牌；
// 刷新过程由互斥锁串行化，并发调用方共享同一次刷新结果。
type RefreshTokenSource struct {
	mu           sync.Mutex
	httpClient   *http.Client
	tokenURL     string
	clientID     string
	clientSecret string
	refreshToken string

	accessToken string
	expiresAt   time.Time
}

// NewRefreshTokenSource 创建 OAuth 刷新令牌源。
// tokenURL 形如 https://accounts.zoho.eu/oauth/v2/token。
func NewRefreshTokenSource(tokenURL, clientID, clientSecret, refreshToken string, httpClient *http.Client) *RefreshTokenSource {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &RefreshTokenSource{
		httpClient:   httpClient,
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		refreshToken: refreshToken,
	}
}

// Token 返回缓存的访问令牌，临近过期时刷新。
func (s *RefreshTokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.accessToken != "" && time.Now().Before(s.expiresAt.Add(-tokenRefreshMargin)) {
		return s.accessToken, nil
	}
	if err := s.refresh(ctx); err != nil {
		return "", err
	}
	return s.accessToken, nil
}

// refresh 用 refresh_token 换取新的访问令牌。调用方必须持有锁。
func (s *RefreshTokenSource) refresh(ctx context.Context) error {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {s.refreshToken},
		"client_id":     {s.clientID},
		"client_secret": {s.clientSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request access token: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
		Error       string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return fmt.Errorf("parse token response: %w", err)
	}
	if payload.Error != "" {
		return fmt.Errorf("token endpoint error: %s", payload.Error)
	}
	if payload.AccessToken == "" {
		return fmt.Errorf("token endpoint returned empty access token")
	}

	s.accessToken = payload.AccessToken
	if payload.ExpiresIn <= 0 {
		payload.ExpiresIn = 3600
	}
	s.expiresAt = time.Now().Add(time.Duration(payload.ExpiresIn) * time.Second)
	return nil
}
