package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/siscanu/leads-agent/internal/auth"
	jwtpkg "github.com/siscanu/leads-agent/internal/auth/jwt"
	"github.com/siscanu/leads-agent/internal/config"
	"github.com/siscanu/leads-agent/internal/domain"
	"github.com/siscanu/leads-agent/internal/health"
	"github.com/siscanu/leads-agent/internal/monitoring"
	"github.com/siscanu/leads-agent/internal/state"
)

// Prometheus 指标注册全局唯一，测试共享一份
var testMetrics = monitoring.NewMetrics()

// fakeRunner 记录调用参数并返回固定报告
type fakeRunner struct {
	mu      sync.Mutex
	calls   int
	limit   int
	trigger string
	drafts  bool
	report  domain.Report
	err     error
}

func (f *fakeRunner) Process(_ context.Context, limit int, trigger string, enableDraftCreation bool) (domain.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.limit = limit
	f.trigger = trigger
	f.drafts = enableDraftCreation
	return f.report, f.err
}

// newTestRouter 组装带内存依赖的路由
func newTestRouter(t *testing.T, runner *fakeRunner) (*gin.Engine, *jwtpkg.Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := state.NewFileStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, store.MarkResponded("seed-1"))
	require.NoError(t, store.MarkSpam("seed-2", "thread-9"))

	jwtManager := jwtpkg.NewManager("test-secret-at-least-32-characters!!", "leads-agent", 15*time.Minute, time.Hour)
	hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost)
	require.NoError(t, err)
	authService := auth.NewService(config.AdminConfig{Username: "admin", PasswordHash: string(hash)}, jwtManager)

	cfg := &config.Config{
		Pipeline: config.PipelineConfig{FetchLimit: 30, WebhookLimit: 3},
		CORS:     config.CORSConfig{AllowedOrigins: []string{"*"}},
	}

	router := NewRouter(RouterDependencies{
		Config:        cfg,
		Processor:     runner,
		AuthService:   authService,
		JWTManager:    jwtManager,
		Store:         store,
		HealthChecker: health.NewHealthChecker(store, "", zap.NewNop()),
		Metrics:       testMetrics,
		Logger:        zap.NewNop(),
	})
	return router, jwtManager
}

// authHeader 为请求签发有效的访问令牌
func authHeader(t *testing.T, jwtManager *jwtpkg.Manager) string {
	t.Helper()
	pair, err := jwtManager.GenerateTokenPair("admin")
	require.NoError(t, err)
	return "Bearer " + pair.AccessToken
}

// TestWebhookTriggersPipeline 测试 Webhook 立即返回并在后台触发小批量处理
func TestWebhookTriggersPipeline(t *testing.T) {
	runner := &fakeRunner{}
	router, _ := newTestRouter(t, runner)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/zoho-mail", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)

	// 后台运行完成
	require.Eventually(t, func() bool {
		runner.mu.Lock()
		defer runner.mu.Unlock()
		return runner.calls == 1
	}, time.Second, 10*time.Millisecond)

	assert.Equal(t, 3, runner.limit)
	assert.Equal(t, "webhook", runner.trigger)
	assert.True(t, runner.drafts)
}

// TestManualProcess 测试手动触发接口的认证与参数处理
func TestManualProcess(t *testing.T) {
	runner := &fakeRunner{report: domain.Report{RunID: "run-1", TotalEmails: 5}}
	router, jwtManager := newTestRouter(t, runner)

	t.Run("requires auth", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/pipeline/process", nil)
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("defaults without body", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/pipeline/process", nil)
		req.Header.Set("Authorization", authHeader(t, jwtManager))
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 30, runner.limit)
		assert.Equal(t, "manual", runner.trigger)
		assert.True(t, runner.drafts)

		var resp Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, CodeSuccess, resp.Code)
	})

	t.Run("test mode with explicit body", func(t *testing.T) {
		body := []byte(`{"limit": 10, "createDrafts": false}`)
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/pipeline/process", bytes.NewReader(body))
		req.Header.Set("Authorization", authHeader(t, jwtManager))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 10, runner.limit)
		assert.False(t, runner.drafts)
	})
}

// TestStateStats 测试状态统计接口
func TestStateStats(t *testing.T) {
	router, jwtManager := newTestRouter(t, &fakeRunner{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/state/stats", nil)
	req.Header.Set("Authorization", authHeader(t, jwtManager))
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data struct {
			Responded int `json:"responded"`
			Spam      int `json:"spam"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Data.Responded)
	assert.Equal(t, 2, resp.Data.Spam)
}

// TestListRunsWithoutAudit 测试审计未启用时的运行记录接口
func TestListRunsWithoutAudit(t *testing.T) {
	router, jwtManager := newTestRouter(t, &fakeRunner{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/pipeline/runs", nil)
	req.Header.Set("Authorization", authHeader(t, jwtManager))
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

// TestLogin 测试登录接口
func TestLogin(t *testing.T) {
	router, _ := newTestRouter(t, &fakeRunner{})

	t.Run("valid credentials", func(t *testing.T) {
		body := []byte(`{"username": "admin", "password": "correct-horse"}`)
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Data jwtpkg.TokenPair `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.Data.AccessToken)
		assert.NotEmpty(t, resp.Data.RefreshToken)
	})

	t.Run("wrong password", func(t *testing.T) {
		body := []byte(`{"username": "admin", "password": "nope"}`)
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("missing fields", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader([]byte(`{}`)))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

// TestHealthEndpoints 测试存活与就绪探针
func TestHealthEndpoints(t *testing.T) {
	router, _ := newTestRouter(t, &fakeRunner{})

	for _, path := range []string{"/health/live", "/health/ready"} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}
