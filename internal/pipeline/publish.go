package pipeline

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/siscanu/leads-agent/internal/domain"
	"github.com/siscanu/leads-agent/internal/mail"
)

// publish 把生成的回复写回服务商的草稿箱。
//
// 收件人取最新一封的发件人；联系表单投递的真实客户地址从
// 正文的 Email: 字段还原。抄送保留原邮件抄送但剔除公司自身
// 地址。走到这一步的会话无论成败都写入已回复标记（包括测试
// 模式），下次运行不再重复处理同一封邮件。
func (p *Processor) publish(ctx context.Context, replies []domain.GeneratedReply, enableDraftCreation bool, log *zap.Logger) []domain.DraftOutcome {
	start := time.Now()
	defer func() { p.metrics.RecordStageDuration("publish", time.Since(start)) }()

	outcomes := make([]domain.DraftOutcome, 0, len(replies))

	for _, r := range replies {
		outcome := p.publishOne(ctx, r, enableDraftCreation, log)
		outcomes = append(outcomes, outcome)

		if outcome.MessageID != "" {
			if err := p.store.MarkResponded(outcome.MessageID); err != nil {
				log.Error("failed to mark responded", zap.String("messageId", outcome.MessageID), zap.Error(err))
			}
		}
		if p.events != nil && outcome.Created {
			p.events.PublishDraftCreated(outcome)
		}
	}
	return outcomes
}

// publishOne 处理单个会话的草稿创建。
func (p *Processor) publishOne(ctx context.Context, r domain.GeneratedReply, enableDraftCreation bool, log *zap.Logger) domain.DraftOutcome {
	t := r.Thread
	latest := t.Latest()

	outcome := domain.DraftOutcome{
		ThreadKey: t.Key,
		MessageID: latest.MessageID,
		Subject:   replySubject(latest.Subject),
	}

	if r.GenerateErr != "" {
		outcome.Stage = domain.StageGenerate
		outcome.Error = r.GenerateErr
		p.metrics.RecordDraftFailure(domain.StageGenerate)
		return outcome
	}

	to := latest.From
	if t.ContactForm {
		if formAddr := domain.ExtractFormEmail(latest.Content); formAddr != "" {
			to = formAddr
		} else {
			outcome.Stage = domain.StagePublish
			outcome.Error = "contact form email without recoverable customer address"
			p.metrics.RecordDraftFailure(domain.StagePublish)
			log.Warn("contact form without Email: field", zap.String("threadKey", t.Key))
			return outcome
		}
	}

	if !enableDraftCreation {
		outcome.TestMode = true
		log.Info("test mode, draft not created",
			zap.String("threadKey", t.Key),
			zap.String("to", domain.ExtractEmailAddress(to)),
		)
		return outcome
	}

	threadID := ""
	if !t.IsStandalone() {
		threadID = t.Key
	}

	draftID, err := p.mailer.CreateDraft(ctx, mail.DraftInput{
		From:     p.company.DefaultSender,
		To:       []string{to},
		CC:       p.replyCC(latest, to),
		Subject:  outcome.Subject,
		Body:     toHTMLBody(r.ReplyText),
		ThreadID: threadID,
		HTML:     true,
	})
	if err != nil {
		outcome.Stage = domain.StagePublish
		outcome.Error = err.Error()
		p.metrics.RecordDraftFailure(domain.StagePublish)
		log.Error("draft creation failed", zap.String("threadKey", t.Key), zap.Error(err))
		return outcome
	}

	outcome.DraftID = draftID
	outcome.Created = true
	p.metrics.DraftsCreated.Inc()
	return outcome
}

// replyCC 保留原邮件抄送，剔除公司地址与主收件人。
func (p *Processor) replyCC(latest *domain.Email, to string) []string {
	toAddr := strings.ToLower(domain.ExtractEmailAddress(to))

	var cc []string
	for _, raw := range latest.CC {
		addr := domain.ExtractEmailAddress(raw)
		if addr == "" {
			continue
		}
		if domain.IsCompanyAddress(addr, p.company.Addresses) {
			continue
		}
		if strings.ToLower(addr) == toAddr {
			continue
		}
		cc = append(cc, addr)
	}
	return cc
}

// replySubject 加上 Re: 前缀，已有前缀（任意大小写）时不重复。
func replySubject(subject string) string {
	trimmed := strings.TrimSpace(subject)
	if strings.HasPrefix(strings.ToLower(trimmed), "re:") {
		return trimmed
	}
	return "Re: " + trimmed
}

// toHTMLBody 把纯文本回复转为 HTML。文本里已有标签时原样保留。
func toHTMLBody(text string) string {
	if strings.Contains(text, "<br") || strings.Contains(text, "<p>") {
		return text
	}
	return strings.ReplaceAll(text, "\n", "<br>")
}
