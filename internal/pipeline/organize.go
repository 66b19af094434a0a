package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/siscanu/leads-agent/internal/domain"
	"github.com/siscanu/leads-agent/internal/mail"
	"github.com/siscanu/leads-agent/internal/state"
)

// 单次运行内并发抓取完整会话的上限
const threadFetchConcurrency = 8

// organize 把扁平的邮件列表整理成会话列表。
//
// 有会话 ID 的邮件按 ID 分组，每组保留接收时间最大的一封作为
// 代表（时间相同取先出现的），首次出现的位置决定输出顺序；已
// 整体标记为垃圾的会话直接跳过，其余会话并发补全全部邮件并按
// 时间升序排列。无会话 ID 的邮件各自成为独立会话。
func (p *Processor) organize(ctx context.Context, emails []domain.Email, log *zap.Logger) []domain.Thread {
	start := time.Now()
	defer func() { p.metrics.RecordStageDuration("organize", time.Since(start)) }()

	type slot struct {
		threadID string // 空表示独立邮件槽位
		email    domain.Email
	}

	var slots []slot
	seen := make(map[string]int)

	for _, e := range emails {
		if e.IsStandalone() {
			slots = append(slots, slot{email: e})
			continue
		}
		if idx, ok := seen[e.ThreadID]; ok {
			if idx >= 0 && e.ReceivedAt > slots[idx].email.ReceivedAt {
				slots[idx].email = e
			}
			continue
		}

		if p.store.IsSpam(state.SpamThreadKey(e.ThreadID)) {
			log.Debug("skipping spam thread", zap.String("threadId", e.ThreadID))
			seen[e.ThreadID] = -1
			continue
		}
		seen[e.ThreadID] = len(slots)
		slots = append(slots, slot{threadID: e.ThreadID, email: e})
	}

	threads := make([]domain.Thread, len(slots))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(threadFetchConcurrency)

	for i, s := range slots {
		i, s := i, s
		g.Go(func() error {
			if s.threadID == "" {
				threads[i] = domain.NewStandaloneThread(s.email)
				return nil
			}

			full, err := p.mailer.List(gctx, mail.ListOptions{Limit: 50, ThreadID: s.threadID})
			if err != nil {
				// 抓不到完整会话就放弃这个会话，等下一轮重新发现；
				// 不影响其余会话的抓取
				log.Warn("failed to fetch full thread, dropping it",
					zap.String("threadId", s.threadID),
					zap.Error(err),
				)
				return nil
			}
			if len(full) == 0 {
				return nil
			}

			t := domain.Thread{Key: s.threadID, Emails: full}
			t.SortAscending()
			threads[i] = t
			return nil
		})
	}
	// 分支内不返回错误，Wait 只用于等待全部完成
	_ = g.Wait()

	out := threads[:0]
	for _, t := range threads {
		if len(t.Emails) > 0 {
			out = append(out, t)
		}
	}

	log.Info("threads organized", zap.Int("emails", len(emails)), zap.Int("threads", len(out)))
	return out
}
