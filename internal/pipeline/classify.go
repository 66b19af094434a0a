package pipeline

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/siscanu/leads-agent/internal/domain"
)

// 短确认邮件的启发式判定阈值与关键词
const shortAckMaxLength = 200

var (
	ackPhrases     = []string{"thank", "confirm", "perfect"}
	onTopicSubject = []string{"cleaning", "service", "booking"}
)

// classify 判定每个会话的最新邮件是否与业务相关、是否需要回复。
//
// 先走零成本的启发式：短确认邮件直接判定为相关但无需回复。
// 其余交给语言模型；模型调用失败时放行会话继续处理，宁可
// 多生成一份草稿也不漏掉客户。偏题的写入垃圾标记，无需回复
// 的写入已回复标记，两者都从流水线中移除。
func (p *Processor) classify(ctx context.Context, threads []domain.FilteredThread, log *zap.Logger) []domain.FilteredThread {
	start := time.Now()
	defer func() { p.metrics.RecordStageDuration("classify", time.Since(start)) }()

	var out []domain.FilteredThread

	for _, t := range threads {
		latest := t.Latest()
		if latest == nil {
			continue
		}

		if latest.Content == "" {
			// 正文抓取失败的会话不作判定，留到下次运行重试
			log.Warn("dropping thread with empty content",
				zap.String("threadKey", t.Key),
				zap.String("messageId", latest.MessageID),
			)
			continue
		}

		if isShortAcknowledgement(latest.Subject, latest.Content) {
			log.Info("short acknowledgement, no reply needed",
				zap.String("messageId", latest.MessageID),
				zap.String("subject", latest.Subject),
			)
			if err := p.store.MarkResponded(latest.MessageID); err != nil {
				log.Error("failed to mark responded", zap.Error(err))
			}
			continue
		}

		result, err := p.classifier.Classify(ctx, latest.From, latest.FromName, latest.Subject, latest.Content)
		if err != nil {
			// 分类失败放行：漏判垃圾比漏掉客户代价小
			p.metrics.RecordLLMRequest("classify", "error")
			log.Warn("classification failed, keeping thread",
				zap.String("messageId", latest.MessageID),
				zap.Error(err),
			)
			out = append(out, t)
			continue
		}
		p.metrics.RecordLLMRequest("classify", "success")

		switch {
		case !result.OnTopic:
			log.Info("off-topic email marked as spam",
				zap.String("messageId", latest.MessageID),
				zap.String("reason", result.Reason),
			)
			threadID := ""
			if !t.IsStandalone() {
				threadID = t.Key
			}
			if err := p.store.MarkSpam(latest.MessageID, threadID); err != nil {
				log.Error("failed to mark spam", zap.Error(err))
			}

		case !result.NeedsReply:
			log.Info("email needs no reply",
				zap.String("messageId", latest.MessageID),
				zap.String("reason", result.Reason),
			)
			if err := p.store.MarkResponded(latest.MessageID); err != nil {
				log.Error("failed to mark responded", zap.Error(err))
			}

		default:
			out = append(out, t)
		}
	}

	log.Info("threads classified", zap.Int("in", len(threads)), zap.Int("out", len(out)))
	return out
}

// isShortAcknowledgement 判定短确认邮件：正文很短、含致谢或
// 确认字样，且主题明显与业务相关。命中后不再调用语言模型。
func isShortAcknowledgement(subject, content string) bool {
	if len(content) >= shortAckMaxLength {
		return false
	}

	lowerContent := strings.ToLower(content)
	hasAck := false
	for _, phrase := range ackPhrases {
		if strings.Contains(lowerContent, phrase) {
			hasAck = true
			break
		}
	}
	if !hasAck {
		return false
	}

	lowerSubject := strings.ToLower(subject)
	for _, word := range onTopicSubject {
		if strings.Contains(lowerSubject, word) {
			return true
		}
	}
	return false
}
