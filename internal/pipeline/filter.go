package pipeline

import (
	"time"

	"go.uber.org/zap"

	"github.com/siscanu/leads-agent/internal/domain"
	"github.com/siscanu/leads-agent/internal/state"
)

// filter 剔除不需要回复的会话，只留下最新一封来自客户
// （或联系表单投递）且尚未处理过的会话。
//
// 过滤只看每个会话的最新一封邮件：
//   - 已标记垃圾或已回复的直接跳过；
//   - 公司地址发给公司地址的是网站联系表单投递，保留并打标；
//   - 其余由公司地址发出的说明我们已经回过，跳过。
//
// 过滤是幂等的：对同一状态存储重复运行产生相同结果。
func (p *Processor) filter(threads []domain.Thread, log *zap.Logger) []domain.FilteredThread {
	start := time.Now()
	defer func() { p.metrics.RecordStageDuration("filter", time.Since(start)) }()

	var out []domain.FilteredThread

	for _, t := range threads {
		latest := t.Latest()
		if latest == nil {
			continue
		}

		if p.store.IsSpam(latest.MessageID) {
			log.Debug("skipping spam email", zap.String("messageId", latest.MessageID))
			continue
		}
		if !t.IsStandalone() && p.store.IsSpam(state.SpamThreadKey(t.Key)) {
			continue
		}
		if p.store.IsResponded(latest.MessageID) {
			log.Debug("skipping already responded email", zap.String("messageId", latest.MessageID))
			continue
		}

		from := domain.CleanAddress(latest.From)
		if from == "" {
			log.Warn("dropping thread with unparseable sender", zap.String("threadKey", t.Key))
			continue
		}

		if domain.IsCompanyAddress(from, p.company.Addresses) {
			// 公司发给公司自己的邮件是网站联系表单的投递形式，
			// 真实客户地址要从正文的 Email: 字段还原
			if anyCompanyRecipient(latest.To, p.company.Addresses) {
				out = append(out, domain.FilteredThread{Thread: t, ContactForm: true})
				continue
			}
			log.Debug("skipping thread where we sent the last email", zap.String("threadKey", t.Key))
			continue
		}

		out = append(out, domain.FilteredThread{Thread: t})
	}

	log.Info("threads filtered", zap.Int("in", len(threads)), zap.Int("out", len(out)))
	return out
}

// anyCompanyRecipient 判断收件人中是否至少有一个公司地址。
// 表单投递可能同时抄送归档等外部地址，所以只要求命中一个。
func anyCompanyRecipient(to []string, companyAddresses []string) bool {
	for _, addr := range to {
		extracted := domain.ExtractEmailAddress(addr)
		if extracted != "" && domain.IsCompanyAddress(extracted, companyAddresses) {
			return true
		}
	}
	return false
}
