// Package state 实现"已处理"状态的持久化去重账本：
// responded（已回复的邮件 ID）与 spam（垃圾邮件/会话标记）。
// 两个集合只增不减，是流水线跨运行防止重复回复的唯一持久状态。
package state

import "github.com/siscanu/leads-agent/internal/domain"

// Store 定义已处理状态的存取操作。
//
// 实现约定：集合单调增长；写入失败时内存集合仍需更新
// （尽力持久化，接受下次启动后重新处理的风险）。
// 并发写依赖进程级"同一时刻只有一次流水线运行"的约束。
type Store interface {
	// IsResponded 判断邮件是否已回复过
	IsResponded(messageID string) bool
	// MarkResponded 标记邮件为已回复
	MarkResponded(messageID string) error
	// IsSpam 判断邮件或会话标记是否已判定为垃圾
	IsSpam(id string) bool
	// MarkSpam 标记邮件为垃圾；threadID 非空时同时写入会话级标记
	MarkSpam(messageID, threadID string) error
	// Counts 返回两个集合的当前大小（用于状态接口与就绪探针）
	Counts() (responded int, spam int)
}

// SpamThreadKey 构造会话级垃圾标记的存储键。
func SpamThreadKey(threadID string) string {
	return domain.SpamThreadPrefix + threadID
}
