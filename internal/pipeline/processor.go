// Package pipeline 实现邮件处理流水线：
// 抓取 → 会话整理 → 过滤 → 正文抓取 → 分类 → 回复生成 → 草稿发布。
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/siscanu/leads-agent/internal/config"
	"github.com/siscanu/leads-agent/internal/domain"
	"github.com/siscanu/leads-agent/internal/mail"
	"github.com/siscanu/leads-agent/internal/monitoring"
	"github.com/siscanu/leads-agent/internal/state"
)

// 流水线触发方式
const (
	TriggerWebhook  = "webhook"
	TriggerManual   = "manual"
	TriggerSchedule = "schedule"
)

// Mailer 定义流水线对邮件服务商的依赖。
type Mailer interface {
	List(ctx context.Context, opts mail.ListOptions) ([]domain.Email, error)
	GetContent(ctx context.Context, messageID, folderID string) (string, error)
	CreateDraft(ctx context.Context, in mail.DraftInput) (string, error)
}

// Classifier 定义邮件分类能力。
type Classifier interface {
	Classify(ctx context.Context, from, fromName, subject, content string) (domain.Classification, error)
}

// Responder 定义回复生成能力。
type Responder interface {
	GenerateReply(ctx context.Context, transcript string) (string, error)
}

// EventPublisher 定义流水线事件的广播出口（WebSocket 等）。
type EventPublisher interface {
	PublishRunCompleted(report domain.Report)
	PublishDraftCreated(outcome domain.DraftOutcome)
}

// Processor 串联七个阶段的流水线处理器。
//
// 同一时刻只允许一次运行：Webhook、手动触发与定时轮询
// 竞争同一把锁，后到者排队而不是并行处理同一批邮件。
type Processor struct {
	mu sync.Mutex

	mailer     Mailer
	classifier Classifier
	responder  Responder
	store      state.Store
	events     EventPublisher
	metrics    *monitoring.Metrics
	log        *zap.Logger

	company config.CompanyConfig
	pipe    config.PipelineConfig
}

// NewProcessor 创建流水线处理器。events 可为 nil。
func NewProcessor(
	mailer Mailer,
	classifier Classifier,
	responder Responder,
	store state.Store,
	events EventPublisher,
	metrics *monitoring.Metrics,
	company config.CompanyConfig,
	pipe config.PipelineConfig,
	log *zap.Logger,
) *Processor {
	return &Processor{
		mailer:     mailer,
		classifier: classifier,
		responder:  responder,
		store:      store,
		events:     events,
		metrics:    metrics,
		log:        log,
		company:    company,
		pipe:       pipe,
	}
}

// Process 执行一次完整的批处理。
//
// limit 是抓取的邮件数量上限；enableDraftCreation 为 false 时
// 走完全部阶段但不创建草稿（测试模式）。
// 只有抓取阶段的失败会让整次运行失败，后续阶段的单会话
// 错误都记录在 Report 里。
func (p *Processor) Process(ctx context.Context, limit int, trigger string, enableDraftCreation bool) (domain.Report, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	report := domain.Report{
		RunID:     uuid.New().String(),
		Trigger:   trigger,
		StartedAt: time.Now(),
		Results:   []domain.DraftOutcome{},
	}
	log := p.log.With(zap.String("runId", report.RunID), zap.String("trigger", trigger))
	log.Info("pipeline run started", zap.Int("limit", limit), zap.Bool("draftCreation", enableDraftCreation))

	emails, err := p.fetch(ctx, limit)
	if err != nil {
		p.metrics.RecordPipelineRun(trigger, "error")
		return report, fmt.Errorf("fetch emails: %w", err)
	}
	report.TotalEmails = len(emails)
	p.metrics.EmailsFetched.Add(float64(len(emails)))

	threads := p.organize(ctx, emails, log)
	report.TotalThreads = len(threads)

	filtered := p.filter(threads, log)
	report.CustomerLastEmails = len(filtered)

	p.fetchContent(ctx, filtered, log)

	classified := p.classify(ctx, filtered, log)
	report.ThreadsProcessed = len(classified)
	p.metrics.ThreadsProcessed.Add(float64(len(classified)))

	replies := p.generate(ctx, classified, log)

	report.Results = p.publish(ctx, replies, enableDraftCreation, log)
	report.FinishedAt = time.Now()

	responded, spam := p.store.Counts()
	p.metrics.UpdateStateCounts(responded, spam)
	p.metrics.RecordPipelineRun(trigger, "success")

	log.Info("pipeline run finished",
		zap.Int("totalEmails", report.TotalEmails),
		zap.Int("totalThreads", report.TotalThreads),
		zap.Int("customerLastEmails", report.CustomerLastEmails),
		zap.Int("threadsProcessed", report.ThreadsProcessed),
		zap.Int("draftsCreated", report.DraftsCreated()),
		zap.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)),
	)

	if p.events != nil {
		p.events.PublishRunCompleted(report)
	}
	return report, nil
}

// fetch 从服务商拉取最近的邮件列表（最新在前）。
func (p *Processor) fetch(ctx context.Context, limit int) ([]domain.Email, error) {
	start := time.Now()
	defer func() { p.metrics.RecordStageDuration("fetch", time.Since(start)) }()

	return p.mailer.List(ctx, mail.ListOptions{Limit: limit})
}
