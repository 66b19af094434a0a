package domain

import "time"

// 草稿结果所处的失败阶段。
const (
	StageGenerate = "generate" // 回复生成失败
	StagePublish  = "publish"  // 草稿写回服务商失败
)

// DraftOutcome 单个会话的最终处理结果：要么创建了草稿，
// 要么带有失败阶段与原因，并保留溯源标识。
type DraftOutcome struct {
	ThreadKey string `json:"threadKey"`
	MessageID string `json:"messageId"`
	Subject   string `json:"subject"`
	DraftID   string `json:"draftId,omitempty"`
	Created   bool   `json:"draftCreated"`
	TestMode  bool   `json:"testMode,omitempty"`
	Stage     string `json:"stage,omitempty"` // 失败阶段：generate 或 publish
	Error     string `json:"error,omitempty"`
}

// Report 一次完整批处理的统计与逐会话结果。
//
// 单个会话失败不会中断批处理，Report 始终反映部分成功。
type Report struct {
	RunID              string         `json:"runId"`
	Trigger            string         `json:"trigger"` // webhook / manual / schedule
	StartedAt          time.Time      `json:"startedAt"`
	FinishedAt         time.Time      `json:"finishedAt"`
	TotalEmails        int            `json:"total_emails"`
	TotalThreads       int            `json:"total_threads"`
	CustomerLastEmails int            `json:"customer_last_emails"`
	ThreadsProcessed   int            `json:"threads_processed"`
	Results            []DraftOutcome `json:"results"`
}

// DraftsCreated 统计成功创建的草稿数量。
func (r *Report) DraftsCreated() int {
	n := 0
	for _, res := range r.Results {
		if res.Created {
			n++
		}
	}
	return n
}
