// Package health 基于 heptiolabs/healthcheck 提供存活与就绪探针。
package health

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"

	"github.com/siscanu/leads-agent/internal/state"
)

// 协程数超过该阈值视为泄漏
const goroutineThreshold = 200

// HealthChecker 健康检查器
type HealthChecker struct {
	health       healthcheck.Handler
	store        state.Store
	providerHost string
	logger       *zap.Logger
}

// NewHealthChecker 创建健康检查器。
// providerHost 是邮件服务商的主机名，用于 DNS 就绪检查。
func NewHealthChecker(store state.Store, providerHost string, logger *zap.Logger) *HealthChecker {
	hc := &HealthChecker{
		health:       healthcheck.NewHandler(),
		store:        store,
		providerHost: providerHost,
		logger:       logger,
	}

	hc.addChecks()

	return hc
}

// addChecks 添加健康检查
func (hc *HealthChecker) addChecks() {
	// 协程泄漏检查
	hc.health.AddLivenessCheck("goroutine-count",
		healthcheck.GoroutineCountCheck(goroutineThreshold))

	// 状态存储可读检查
	hc.health.AddReadinessCheck("state-store", func() error {
		responded, spam := hc.store.Counts()
		if responded < 0 || spam < 0 {
			return fmt.Errorf("state store returned negative counts")
		}
		return nil
	})

	// 邮件服务商可达性检查（DNS 解析）
	if hc.providerHost != "" {
		hc.health.AddReadinessCheck("mail-provider-dns",
			healthcheck.DNSResolveCheck(hc.providerHost, 2*time.Second))
	}
}

// LiveEndpoint 返回存活探针处理函数
func (hc *HealthChecker) LiveEndpoint() http.HandlerFunc {
	return hc.health.LiveEndpoint
}

// ReadyEndpoint 返回就绪探针处理函数
func (hc *HealthChecker) ReadyEndpoint() http.HandlerFunc {
	return hc.health.ReadyEndpoint
}

// Snapshot 返回当前健康状态概要，用于日志与诊断
func (hc *HealthChecker) Snapshot() map[string]any {
	responded, spam := hc.store.Counts()
	return map[string]any{
		"goroutines":        runtime.NumGoroutine(),
		"responded_entries": responded,
		"spam_entries":      spam,
	}
}
