package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/siscanu/leads-agent/internal/config"
)

// newTestClient 创建指向测试服务器的客户端
func newTestClient(baseURL string) *Client {
	return NewClient(config.LLMConfig{
		BaseURL:     baseURL,
		APIKey:      "test-key",
		Model:       "gpt-4o-mini",
		CallTimeout: 5 * time.Second,
		MaxRPS:      1000,
	}, zap.NewNop())
}

// chatStub 构造一个返回固定 content 的聊天补全响应
func chatStub(content string) string {
	data, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	})
	return string(data)
}

// TestClassify 测试分类请求与结果解析
func TestClassify(t *testing.T) {
	var gotReq chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.Write([]byte(chatStub(`{"on_topic": true, "needs_reply": true, "reason": "asking for a quote"}`)))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	result, err := client.Classify(context.Background(), "alice@example.com", "Alice", "Cleaning quote", "How much for a 3-bed house?")
	require.NoError(t, err)

	assert.True(t, result.OnTopic)
	assert.True(t, result.NeedsReply)
	assert.Equal(t, "asking for a quote", result.Reason)

	assert.Equal(t, "gpt-4o-mini", gotReq.Model)
	require.Len(t, gotReq.Messages, 2)
	assert.Equal(t, "system", gotReq.Messages[0].Role)
	assert.Contains(t, gotReq.Messages[1].Content, "alice@example.com")
	assert.Contains(t, gotReq.Messages[1].Content, "How much for a 3-bed house?")
	require.NotNil(t, gotReq.ResponseFormat)
	assert.Equal(t, "json_object", gotReq.ResponseFormat.Type)
}

// TestClassifyError 测试接口错误向上传播
func TestClassifyError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": {"message": "rate limited"}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	_, err := client.Classify(context.Background(), "a@b.com", "", "s", "c")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

// TestGenerateReply 测试回复生成与空结果判定
func TestGenerateReply(t *testing.T) {
	cases := []struct {
		name    string
		content string
		want    string
		wantErr bool
	}{
		{
			name:    "well formed json",
			content: `{"final_message": "Hi Alice,\nThanks for reaching out."}`,
			want:    "Hi Alice,\nThanks for reaching out.",
		},
		{
			name:    "truncated json falls back to regex",
			content: `{"final_message": "Hi Bob, we can do Tuesday."`,
			want:    "Hi Bob, we can do Tuesday.",
		},
		{
			name:    "plain text output",
			content: "Hi Carol, thanks for the details.",
			want:    "Hi Carol, thanks for the details.",
		},
		{
			name:    "empty message is an error",
			content: `{"final_message": ""}`,
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(chatStub(tc.content)))
			}))
			defer server.Close()

			reply, err := newTestClient(server.URL).GenerateReply(context.Background(), "EMAIL #1 ...")
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, reply)
		})
	}
}

// TestExtractFinalMessage 测试三层提取与转义还原
func TestExtractFinalMessage(t *testing.T) {
	t.Run("json field", func(t *testing.T) {
		assert.Equal(t, "Hello\nWorld", extractFinalMessage(`{"final_message": "Hello\nWorld"}`))
	})

	t.Run("regex fallback on malformed json", func(t *testing.T) {
		assert.Equal(t, "Hello there",
			extractFinalMessage(`{"final_message": "Hello there", "extra": `))
	})

	t.Run("literal escape sequences restored", func(t *testing.T) {
		// 正则抓到的字段值里转义序列仍是字面量
		got := extractFinalMessage(`{"final_message": "Line one\nLine two"  broken`)
		assert.Equal(t, "Line one\nLine two", got)
	})

	t.Run("plain text", func(t *testing.T) {
		assert.Equal(t, "Just a reply.", extractFinalMessage("  Just a reply.  "))
	})

	t.Run("empty inputs", func(t *testing.T) {
		assert.Empty(t, extractFinalMessage(""))
		assert.Empty(t, extractFinalMessage("   "))
		assert.Empty(t, extractFinalMessage(`{"final_message": ""}`))
	})

	t.Run("stray backslashes removed", func(t *testing.T) {
		assert.Equal(t, "It's done", extractFinalMessage(`It\'s done`))
	})
}
