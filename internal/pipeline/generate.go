package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/siscanu/leads-agent/internal/domain"
)

const transcriptInstruction = "Write a reply to the email marked (NEEDS RESPONSE) above. " +
	"Stay consistent with our previous responses in this conversation."

// generate 为每个会话生成回复文本。
//
// 整个会话按时间从旧到新拼成对话记录交给语言模型，最新一封
// 标记为待回复，我方历史回复单独标出。生成失败不会中断批
// 处理，错误随结果传给发布阶段记录。
func (p *Processor) generate(ctx context.Context, threads []domain.FilteredThread, log *zap.Logger) []domain.GeneratedReply {
	start := time.Now()
	defer func() { p.metrics.RecordStageDuration("generate", time.Since(start)) }()

	replies := make([]domain.GeneratedReply, 0, len(threads))

	for _, t := range threads {
		transcript := p.buildTranscript(t.Thread)

		text, err := p.responder.GenerateReply(ctx, transcript)
		if err != nil {
			p.metrics.RecordLLMRequest("generate", "error")
			log.Error("reply generation failed",
				zap.String("threadKey", t.Key),
				zap.Error(err),
			)
			replies = append(replies, domain.GeneratedReply{Thread: t, GenerateErr: err.Error()})
			continue
		}
		p.metrics.RecordLLMRequest("generate", "success")

		replies = append(replies, domain.GeneratedReply{Thread: t, ReplyText: text})
	}

	log.Info("replies generated", zap.Int("threads", len(threads)))
	return replies
}

// buildTranscript 把会话拼成模型可读的对话记录（从旧到新）。
func (p *Processor) buildTranscript(t domain.Thread) string {
	var b strings.Builder

	for i, e := range t.Emails {
		marker := ""
		if i == len(t.Emails)-1 {
			marker = " (NEEDS RESPONSE)"
		} else if domain.IsCompanyAddress(domain.ExtractEmailAddress(e.From), p.company.Addresses) {
			marker = " (OUR PREVIOUS RESPONSE)"
		}

		fmt.Fprintf(&b, "EMAIL #%d%s\n", i+1, marker)
		fmt.Fprintf(&b, "From: %s", e.From)
		if e.FromName != "" {
			fmt.Fprintf(&b, " (%s)", e.FromName)
		}
		b.WriteString("\n")
		if len(e.To) > 0 {
			fmt.Fprintf(&b, "To: %s\n", strings.Join(e.To, ", "))
		}
		if len(e.CC) > 0 {
			fmt.Fprintf(&b, "CC: %s\n", strings.Join(e.CC, ", "))
		}
		fmt.Fprintf(&b, "Subject: %s\n", e.Subject)
		fmt.Fprintf(&b, "Date: %s\n", time.UnixMilli(e.ReceivedAt).UTC().Format(time.RFC1123))
		fmt.Fprintf(&b, "Content: %s\n\n", e.Content)
	}

	b.WriteString(transcriptInstruction)
	return b.String()
}
