package httptransport

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/siscanu/leads-agent/internal/audit"
	"github.com/siscanu/leads-agent/internal/config"
	"github.com/siscanu/leads-agent/internal/domain"
	"github.com/siscanu/leads-agent/internal/pipeline"
	"github.com/siscanu/leads-agent/internal/state"
)

// Runner 定义处理器对流水线的依赖
type Runner interface {
	Process(ctx context.Context, limit int, trigger string, enableDraftCreation bool) (domain.Report, error)
}

// Handler 聚合所有 HTTP 处理逻辑。
type Handler struct {
	processor Runner
	audit     *audit.Store // 可为 nil（审计未启用）
	store     state.Store
	notifier  Notifier
	pipeCfg   config.PipelineConfig
	log       *zap.Logger
}

// Notifier 定义批处理完成后的通知出口
type Notifier interface {
	NotifyRun(ctx context.Context, report domain.Report)
}

// processRequest 手动触发批处理的请求体
type processRequest struct {
	Limit        int   `json:"limit"`
	CreateDrafts *bool `json:"createDrafts"` // 缺省为 true
}

// handleWebhook 处理邮件服务商的到信通知。
// 通知本身不携带可信数据，只作为小批量处理的触发信号；
// 处理在后台进行，立即返回 202。
func (h *Handler) handleWebhook(c *gin.Context) {
	h.log.Info("webhook received", zap.String("ip", c.ClientIP()))

	go h.runPipeline(h.pipeCfg.WebhookLimit, pipeline.TriggerWebhook, true)

	Accepted(c, "已接受，处理中", gin.H{"limit": h.pipeCfg.WebhookLimit})
}

// handleProcess 手动触发一次批处理并同步返回报告。
func (h *Handler) handleProcess(c *gin.Context) {
	req := processRequest{Limit: h.pipeCfg.FetchLimit}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			BadRequest(c, MsgInvalidRequest)
			return
		}
	}
	if req.Limit <= 0 || req.Limit > 200 {
		req.Limit = h.pipeCfg.FetchLimit
	}
	createDrafts := req.CreateDrafts == nil || *req.CreateDrafts

	report, err := h.processor.Process(c.Request.Context(), req.Limit, pipeline.TriggerManual, createDrafts)
	if err != nil {
		h.log.Error("manual pipeline run failed", zap.Error(err))
		InternalError(c, MsgPipelineRunFailed)
		return
	}

	h.recordRun(report)
	Success(c, report)
}

// handleListRuns 返回最近的批处理运行记录。
func (h *Handler) handleListRuns(c *gin.Context) {
	if h.audit == nil {
		NotFound(c, MsgAuditDisabled)
		return
	}

	limit := 20
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	runs, err := h.audit.ListRecentRuns(c.Request.Context(), limit)
	if err != nil {
		h.log.Error("failed to list pipeline runs", zap.Error(err))
		InternalError(c, MsgRunListFailed)
		return
	}
	Success(c, runs)
}

// handleStateStats 返回去重状态存储的集合大小。
func (h *Handler) handleStateStats(c *gin.Context) {
	responded, spam := h.store.Counts()
	Success(c, gin.H{
		"responded": responded,
		"spam":      spam,
	})
}

// runPipeline 在后台执行一次批处理并落审计与通知。
func (h *Handler) runPipeline(limit int, trigger string, createDrafts bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	report, err := h.processor.Process(ctx, limit, trigger, createDrafts)
	if err != nil {
		h.log.Error("background pipeline run failed",
			zap.String("trigger", trigger),
			zap.Error(err),
		)
		return
	}
	h.recordRun(report)
}

// recordRun 把运行结果写入审计库并推送通知，失败只记日志。
func (h *Handler) recordRun(report domain.Report) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if h.audit != nil {
		if err := h.audit.RecordRun(ctx, report); err != nil {
			h.log.Error("failed to record pipeline run", zap.String("runId", report.RunID), zap.Error(err))
		}
	}
	if h.notifier != nil {
		h.notifier.NotifyRun(ctx, report)
	}
}
