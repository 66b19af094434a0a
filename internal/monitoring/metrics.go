// Package monitoring 定义 Prometheus 监控指标。
package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 监控指标
type Metrics struct {
	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 流水线指标
	PipelineRunsTotal     *prometheus.CounterVec
	PipelineStageDuration *prometheus.HistogramVec
	EmailsFetched         prometheus.Counter
	ThreadsProcessed      prometheus.Counter

	// 草稿指标
	DraftsCreated prometheus.Counter
	DraftFailures *prometheus.CounterVec

	// 语言模型指标
	LLMRequestsTotal *prometheus.CounterVec

	// 状态存储指标
	RespondedEntries prometheus.Gauge
	SpamEntries      prometheus.Gauge

	// 错误指标
	PanicsTotal prometheus.Counter
}

// NewMetrics 创建监控指标
func NewMetrics() *Metrics {
	return &Metrics{
		// HTTP 请求指标
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leads_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "leads_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		// 流水线指标
		PipelineRunsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leads_pipeline_runs_total",
				Help: "Total number of pipeline runs",
			},
			[]string{"trigger", "status"},
		),

		PipelineStageDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "leads_pipeline_stage_duration_seconds",
				Help:    "Pipeline stage duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
			},
			[]string{"stage"},
		),

		EmailsFetched: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "leads_emails_fetched_total",
				Help: "Total number of emails fetched from the provider",
			},
		),

		ThreadsProcessed: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "leads_threads_processed_total",
				Help: "Total number of threads that reached the publish stage",
			},
		),

		// 草稿指标
		DraftsCreated: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "leads_drafts_created_total",
				Help: "Total number of reply drafts created",
			},
		),

		DraftFailures: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leads_draft_failures_total",
				Help: "Total number of threads that failed to produce a draft",
			},
			[]string{"stage"},
		),

		// 语言模型指标
		LLMRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leads_llm_requests_total",
				Help: "Total number of language model requests",
			},
			[]string{"kind", "status"},
		),

		// 状态存储指标
		RespondedEntries: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "leads_state_responded_entries",
				Help: "Number of message ids marked as responded",
			},
		),

		SpamEntries: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "leads_state_spam_entries",
				Help: "Number of entries marked as spam",
			},
		),

		// 错误指标
		PanicsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "leads_panics_total",
				Help: "Total number of panics",
			},
		),
	}
}

// RecordHTTPRequest 记录 HTTP 请求指标
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordPipelineRun 记录一次流水线运行
func (m *Metrics) RecordPipelineRun(trigger, status string) {
	m.PipelineRunsTotal.WithLabelValues(trigger, status).Inc()
}

// RecordStageDuration 记录流水线阶段耗时
func (m *Metrics) RecordStageDuration(stage string, duration time.Duration) {
	m.PipelineStageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordLLMRequest 记录一次语言模型调用
func (m *Metrics) RecordLLMRequest(kind, status string) {
	m.LLMRequestsTotal.WithLabelValues(kind, status).Inc()
}

// RecordDraftFailure 记录草稿产出失败
func (m *Metrics) RecordDraftFailure(stage string) {
	m.DraftFailures.WithLabelValues(stage).Inc()
}

// RecordPanic 记录 panic
func (m *Metrics) RecordPanic() {
	m.PanicsTotal.Inc()
}

// UpdateStateCounts 更新状态存储集合大小
func (m *Metrics) UpdateStateCounts(responded, spam int) {
	m.RespondedEntries.Set(float64(responded))
	m.SpamEntries.Set(float64(spam))
}

// HTTPHandler 返回 Prometheus HTTP 处理器
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.Handler()
}
