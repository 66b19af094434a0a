// Package llm 封装 OpenAI Chat Completions 兼容接口，
// 提供邮件分类与回复生成两个能力。
package llm

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
	"golang.org/x/time/rate"

	"github.com/siscanu/leads-agent/internal/config"
	"github.com/siscanu/leads-agent/internal/domain"
)

const classifySystemPrompt = `You are an email classifier for a professional cleaning services company in Ireland.
Given one customer email, decide two things:
1. "on_topic": is this email about cleaning services, quotes, bookings, scheduling or an existing job? Newsletters, marketing, automated notifications and unrelated mail are off-topic.
2. "needs_reply": does the email require a response from us? Simple acknowledgements like "thanks" or "perfect, see you then" do not.
Respond with a JSON object: {"on_topic": bool, "needs_reply": bool, "reason": "short explanation"}.`

const generateSystemPrompt = `You are a customer support agent for a professional cleaning services company in Ireland.
You will receive a full email conversation. Write a helpful, friendly and professional reply to the email marked (NEEDS RESPONSE), consistent with any previous responses of ours in the thread.
Keep it concise. Do not invent prices or availability that were not mentioned. Sign off as "The Team".
Respond with a JSON object: {"final_message": "your reply text"}.`

// Client 是语言模型接口客户端。
//
// 每次调用共享速率限制器并带独立超时；调用失败的语义
// 由调用方决定（分类阶段失败放行，生成阶段失败记录错误）。
type Client struct {
	httpClient  *http.Client
	limiter     *rate.Limiter
	baseURL     string
	apiKey      string
	model       string
	callTimeout time.Duration
	log         *zap.Logger
}

// NewClient 创建语言模型客户端。
func NewClient(cfg config.LLMConfig, log *zap.Logger) *Client {
	return &Client{
		httpClient:  &http.Client{},
		limiter:     rate.NewLimiter(rate.Limit(cfg.MaxRPS), 1),
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		callTimeout: cfg.CallTimeout,
		log:         log,
	}
}

// Classify 判定一封邮件是否与业务相关、是否需要回复。
func (c *Client) Classify(ctx context.Context, from, fromName, subject, content string) (domain.Classification, error) {
	user := fmt.Sprintf("From: %s (%s)\nSubject: %s\n\n%s", from, fromName, subject, content)

	raw, err := c.complete(ctx, classifySystemPrompt, user, true)
	if err != nil {
		return domain.Classification{}, fmt.Errorf("classify email: %w", err)
	}

	var result domain.Classification
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return domain.Classification{}, fmt.Errorf("parse classification %q: %w", raw, err)
	}
	return result, nil
}

// GenerateReply 基于完整会话记录生成回复文本。
func (c *Client) GenerateReply(ctx context.Context, transcript string) (string, error) {
	raw, err := c.complete(ctx, generateSystemPrompt, transcript, true)
	if err != nil {
		return "", fmt.Errorf("generate reply: %w", err)
	}

	reply := extractFinalMessage(raw)
	if reply == "" {
		return "", fmt.Errorf("generate reply: model returned empty message")
	}
	return reply, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat *struct {
		Type string `json:"type"`
	} `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// complete 执行一次聊天补全并返回首个候选的文本。
func (c *Client) complete(ctx context.Context, system, user string, jsonMode bool) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	reqPayload := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: 0.3,
	}
	if jsonMode {
		reqPayload.ResponseFormat = &struct {
			Type string `json:"type"`
		}{Type: "json_object"}
	}

	body, err := json.Marshal(reqPayload)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("api returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("api error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("api returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}
