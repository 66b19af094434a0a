// Package notify 把批处理结果推送给运营者（Telegram Bot）。
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/siscanu/leads-agent/internal/config"
	"github.com/siscanu/leads-agent/internal/domain"
)

// Telegram 通过 Bot API 发送批处理摘要。
// 未配置令牌时所有方法都是空操作。
type Telegram struct {
	httpClient *http.Client
	baseURL    string
	botToken   string
	chatID     string
	log        *zap.Logger
}

// NewTelegram 创建 Telegram 通知器
func NewTelegram(cfg config.TelegramConfig, log *zap.Logger) *Telegram {
	return &Telegram{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    "https://api.telegram.org",
		botToken:   cfg.BotToken,
		chatID:     cfg.ChatID,
		log:        log,
	}
}

// Enabled 判断通知是否已配置
func (t *Telegram) Enabled() bool {
	return t.botToken != "" && t.chatID != ""
}

// NotifyRun 推送一次批处理的摘要。配置缺失或发送失败只记日志。
func (t *Telegram) NotifyRun(ctx context.Context, report domain.Report) {
	if !t.Enabled() {
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Pipeline run %s (%s)\n", report.RunID, report.Trigger)
	fmt.Fprintf(&b, "Emails: %d, threads: %d, needing reply: %d\n",
		report.TotalEmails, report.TotalThreads, report.CustomerLastEmails)
	fmt.Fprintf(&b, "Drafts created: %d", report.DraftsCreated())

	failures := 0
	for _, r := range report.Results {
		if r.Error != "" {
			failures++
		}
	}
	if failures > 0 {
		fmt.Fprintf(&b, "\nFailures: %d", failures)
	}

	if err := t.sendMessage(ctx, b.String()); err != nil {
		t.log.Warn("telegram notification failed", zap.Error(err))
	}
}

// sendMessage 调用 Bot API 的 sendMessage 方法
func (t *Telegram) sendMessage(ctx context.Context, text string) error {
	payload, err := json.Marshal(map[string]string{
		"chat_id": t.chatID,
		"text":    text,
	})
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("telegram api returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
