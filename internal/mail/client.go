// Package mail 实现 Zoho Mail REST API 的出站客户端：
// 邮件列表、正文抓取与草稿创建。
package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/siscanu/leads-agent/internal/config"
	"github.com/siscanu/leads-agent/internal/domain"
)

// ListOptions 定义邮件列表查询参数。
type ListOptions struct {
	Limit    int    // 返回的最大邮件数
	ThreadID string // 非空时只取该会话内的邮件
}

// DraftInput 定义草稿创建的输入。
type DraftInput struct {
	From     string   // 发件地址，通常为公司默认发件箱
	To       []string // 收件人，至少一个
	CC       []string // 抄送，可为空
	Subject  string
	Body     string
	ThreadID string // 非空时草稿挂入既有会话
	HTML     bool   // Body 是否已是 HTML
}

// Client 是 Zoho Mail API 客户端。
//
// 所有出站请求共享一个速率限制器，并各自带独立的超时上下文，
// 单个慢请求不会拖垮整次流水线运行。
type Client struct {
	httpClient *http.Client
	tokens     TokenSource
	limiter    *rate.Limiter
	baseURL    string
	accountID  string
	log        *zap.Logger
}

// NewClient 创建 Zoho Mail 客户端。
func NewClient(cfg config.ZohoConfig, tokens TokenSource, log *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.CallTimeout},
		tokens:     tokens,
		limiter:    rate.NewLimiter(rate.Limit(cfg.MaxRPS), 1),
		baseURL:    fmt.Sprintf("https://mail.%s", cfg.Domain),
		accountID:  cfg.AccountID,
		log:        log,
	}
}

// NewClientWithBaseURL 创建指向指定地址的客户端，用于测试。
func NewClientWithBaseURL(baseURL, accountID string, tokens TokenSource, log *zap.Logger) *Client {
	return &Client{
		httpClient: http.DefaultClient,
		tokens:     tokens,
		limiter:    rate.NewLimiter(rate.Inf, 1),
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		accountID:  accountID,
		log:        log,
	}
}

// zohoEnvelope 是 Zoho API 的统一响应外壳
type zohoEnvelope struct {
	Status struct {
		Code        int    `json:"code"`
		Description string `json:"description"`
	} `json:"status"`
	Data json.RawMessage `json:"data"`
}

// zohoMessage 是列表接口返回的单封邮件。
// Zoho 对数值型字段的类型并不稳定（有时是字符串，有时是数字），
// 解析必须两者都接受。
type zohoMessage struct {
	MessageID    flexString `json:"messageId"`
	ThreadID     flexString `json:"threadId"`
	FolderID     flexString `json:"folderId"`
	FromAddress  string     `json:"fromAddress"`
	Sender       string     `json:"sender"`
	Subject      string     `json:"subject"`
	ToAddress    string     `json:"toAddress"`
	CCAddress    string     `json:"ccAddress"`
	ReceivedTime flexInt64  `json:"receivedTime"`
}

// List 按接收时间从新到旧返回邮件列表。
func (c *Client) List(ctx context.Context, opts ListOptions) ([]domain.Email, error) {
	query := url.Values{
		"limit":     {strconv.Itoa(opts.Limit)},
		"sortBy":    {"date"},
		"sortorder": {"false"}, // 最新在前
	}
	if opts.ThreadID != "" {
		query.Set("threadId", opts.ThreadID)
	}

	endpoint := fmt.Sprintf("%s/api/accounts/%s/messages/view?%s", c.baseURL, c.accountID, query.Encode())

	var data json.RawMessage
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &data); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	var raw []zohoMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse message list: %w", err)
	}

	emails := make([]domain.Email, 0, len(raw))
	for _, m := range raw {
		if m.MessageID == "" {
			continue
		}
		emails = append(emails, domain.Email{
			MessageID:  string(m.MessageID),
			ThreadID:   cleanThreadID(string(m.ThreadID)),
			FolderID:   string(m.FolderID),
			From:       m.FromAddress,
			FromName:   m.Sender,
			To:         domain.SplitAddressList(m.ToAddress),
			CC:         domain.SplitAddressList(m.CCAddress),
			Subject:    m.Subject,
			ReceivedAt: int64(m.ReceivedTime),
		})
	}
	return emails, nil
}

// GetContent 返回指定邮件的原始 HTML 正文。
func (c *Client) GetContent(ctx context.Context, messageID, folderID string) (string, error) {
	endpoint := fmt.Sprintf("%s/api/accounts/%s/folders/%s/messages/%s/content?includeBlockContent=true",
		c.baseURL, c.accountID, folderID, messageID)

	var data struct {
		Content string `json:"content"`
	}
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &data); err != nil {
		return "", fmt.Errorf("fetch content of message %s: %w", messageID, err)
	}
	return data.Content, nil
}

// CreateDraft 在邮箱中创建回复草稿并返回草稿 ID。
// 收件人与抄送地址先做提取清洗，清洗后没有有效收件人直接报错。
func (c *Client) CreateDraft(ctx context.Context, in DraftInput) (string, error) {
	to := sanitizeRecipients(in.To)
	if len(to) == 0 {
		return "", fmt.Errorf("create draft: no valid recipient in %v", in.To)
	}

	mailFormat := "plaintext"
	if in.HTML {
		mailFormat = "html"
	}

	payload := map[string]any{
		"mode":        "draft",
		"fromAddress": in.From,
		"toAddress":   strings.Join(to, ","),
		"subject":     stripControlChars(in.Subject),
		"content":     stripControlChars(in.Body),
		"mailFormat":  mailFormat,
		"encoding":    "UTF-8",
	}
	if cc := sanitizeRecipients(in.CC); len(cc) > 0 {
		payload["ccAddress"] = strings.Join(cc, ",")
	}
	if in.ThreadID != "" {
		payload["threadId"] = in.ThreadID
	}

	endpoint := fmt.Sprintf("%s/api/accounts/%s/messages", c.baseURL, c.accountID)

	var data struct {
		MessageID flexString `json:"messageId"`
	}
	if err := c.do(ctx, http.MethodPost, endpoint, payload, &data); err != nil {
		return "", fmt.Errorf("create draft: %w", err)
	}

	c.log.Info("draft created",
		zap.String("draftId", string(data.MessageID)),
		zap.Strings("to", to),
	)
	return string(data.MessageID), nil
}

// do 执行一次受速率限制的 API 请求并解析统一响应外壳。
func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("acquire access token: %w", err)
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Zoho-oauthtoken "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("api returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var envelope zohoEnvelope
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("parse response envelope: %w", err)
	}
	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("parse response data: %w", err)
		}
	}
	return nil
}

// sanitizeRecipients 从可能带显示名的地址中提取纯邮件地址并去重。
func sanitizeRecipients(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		addr := domain.ExtractEmailAddress(r)
		if addr == "" {
			continue
		}
		addr = strings.ToLower(addr)
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}
	return out
}

// cleanThreadID 只保留会话 ID 中的数字字符。
// Zoho 偶尔在 ID 前后带上引号或空白。
func cleanThreadID(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// stripControlChars 去掉正文中的控制字符（保留换行与制表符），
// 避免 JSON 编码后被 API 拒绝。
func stripControlChars(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == '\t' {
			return r
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
}
