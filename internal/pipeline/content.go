package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/siscanu/leads-agent/internal/domain"
	"github.com/siscanu/leads-agent/internal/textutil"
)

// 单次运行内并发抓取正文的上限
const contentFetchConcurrency = 16

// fetchContent 为过滤后会话里的每封邮件抓取并清洗正文。
//
// 抓取按邮件并行，单封最多尝试 ContentRetries 次，间隔
// RetryDelay；重试耗尽后正文保持为空，由分类阶段决定丢弃。
// 原始 HTML 经归一化并截掉引用链，只留本封的实际内容。
func (p *Processor) fetchContent(ctx context.Context, threads []domain.FilteredThread, log *zap.Logger) {
	start := time.Now()
	defer func() { p.metrics.RecordStageDuration("content", time.Since(start)) }()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(contentFetchConcurrency)

	fetched := 0
	for ti := range threads {
		for ei := range threads[ti].Emails {
			email := &threads[ti].Emails[ei]
			if email.Content != "" {
				continue
			}
			if email.FolderID == "" {
				log.Warn("email without folder id, skipping content fetch",
					zap.String("messageId", email.MessageID))
				continue
			}
			fetched++

			g.Go(func() error {
				raw, err := p.fetchWithRetry(gctx, email.MessageID, email.FolderID)
				if err != nil {
					log.Warn("content fetch failed after retries",
						zap.String("messageId", email.MessageID),
						zap.Error(err),
					)
					return nil
				}
				email.Content = textutil.Clean(raw)
				return nil
			})
		}
	}
	_ = g.Wait()

	log.Info("content fetched", zap.Int("emails", fetched))
}

// fetchWithRetry 抓取单封邮件正文，失败时固定间隔重试。
func (p *Processor) fetchWithRetry(ctx context.Context, messageID, folderID string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= p.pipe.ContentRetries; attempt++ {
		raw, err := p.mailer.GetContent(ctx, messageID, folderID)
		if err == nil {
			return raw, nil
		}
		lastErr = err

		if attempt < p.pipe.ContentRetries {
			select {
			case <-time.After(p.pipe.RetryDelay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}
	return "", lastErr
}
