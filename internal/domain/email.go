package domain

import (
	"sort"
	"strings"
)

// StandalonePrefix 独立邮件（无会话 ID）合成会话键的前缀。
const StandalonePrefix = "standalone:"

// SpamThreadPrefix 会话级垃圾标记在状态存储中的前缀。
const SpamThreadPrefix = "thread:"

// Email 表示从邮件服务商获取的一封邮件。
//
// Content 字段由内容抓取阶段填充（HTML 已归一化为单行纯文本），
// 该阶段之后 Email 不再被修改。
type Email struct {
	MessageID  string   `json:"messageId"`
	ThreadID   string   `json:"threadId,omitempty"`
	FolderID   string   `json:"folderId,omitempty"`
	From       string   `json:"fromAddress"`
	FromName   string   `json:"fromName,omitempty"`
	To         []string `json:"toAddress,omitempty"`
	CC         []string `json:"ccAddress,omitempty"`
	Subject    string   `json:"subject"`
	ReceivedAt int64    `json:"receivedTime"` // epoch 毫秒，用于排序
	Content    string   `json:"content,omitempty"`
}

// IsStandalone 判断邮件是否没有服务商会话 ID。
func (e *Email) IsStandalone() bool {
	return e.ThreadID == ""
}

// Thread 表示一个邮件会话：真实会话或单封独立邮件。
//
// 不变量：Emails 按 ReceivedAt 升序排列，Latest 取最后一封。
// 空会话非法，必须在进入过滤阶段之前丢弃。
type Thread struct {
	Key    string  `json:"key"`
	Emails []Email `json:"emails"`
}

// NewStandaloneThread 把一封无会话 ID 的邮件包装成单例会话。
func NewStandaloneThread(email Email) Thread {
	return Thread{
		Key:    StandalonePrefix + email.MessageID,
		Emails: []Email{email},
	}
}

// IsStandalone 判断会话键是否为合成的独立邮件键。
func (t *Thread) IsStandalone() bool {
	return strings.HasPrefix(t.Key, StandalonePrefix)
}

// SortAscending 按接收时间升序排列会话内邮件（最旧在前）。
func (t *Thread) SortAscending() {
	sort.SliceStable(t.Emails, func(i, j int) bool {
		return t.Emails[i].ReceivedAt < t.Emails[j].ReceivedAt
	})
}

// Latest 返回会话中最新的一封邮件（接收时间最大）。
// 空会话返回 nil。
func (t *Thread) Latest() *Email {
	if len(t.Emails) == 0 {
		return nil
	}
	return &t.Emails[len(t.Emails)-1]
}

// FilteredThread 过滤阶段的输出：仍需处理的会话及其来源标记。
type FilteredThread struct {
	Thread
	// ContactForm 表示最新邮件是公司地址发给公司地址的
	// 联系表单投递，需要从正文中还原真实客户地址。
	ContactForm bool `json:"contactForm"`
}

// Classification 分类能力对会话最新邮件的判定结果。
type Classification struct {
	OnTopic    bool   `json:"on_topic"`    // 是否与清洁业务相关
	NeedsReply bool   `json:"needs_reply"` // 是否需要回复
	Reason     string `json:"reason"`      // 判定依据，仅用于日志与审计
}

// GeneratedReply 回复生成阶段的单会话结果。
type GeneratedReply struct {
	Thread      FilteredThread
	ReplyText   string
	GenerateErr string // 非空表示生成失败，发布阶段直接记录错误
}
