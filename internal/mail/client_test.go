package mail

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// TestList 测试邮件列表的请求构造与宽松解析
func TestList(t *testing.T) {
	var gotPath, gotQuery, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		// receivedTime 故意混用数字与字符串两种形式
		w.Write([]byte(`{
			"status": {"code": 200, "description": "success"},
			"data": [
				{"messageId": 1710000000000000001, "threadId": "20001", "folderId": "9001",
				 "fromAddress": "alice@example.com", "sender": "Alice",
				 "toAddress": "customers@deepcleaning.ie, info@deepcleaning.ie",
				 "subject": "Cleaning quote", "receivedTime": 1710000001000},
				{"messageId": "msg-2", "threadId": "", "folderId": "9001",
				 "fromAddress": "bob@example.com", "sender": "Bob",
				 "toAddress": "customers@deepcleaning.ie",
				 "subject": "Hi", "receivedTime": "1710000002000"}
			]
		}`))
	}))
	defer server.Close()

	client := NewClientWithBaseURL(server.URL, "acct-1", StaticToken("tok-1"), zap.NewNop())

	emails, err := client.List(context.Background(), ListOptions{Limit: 30})
	require.NoError(t, err)
	require.Len(t, emails, 2)

	assert.Equal(t, "/api/accounts/acct-1/messages/view", gotPath)
	assert.Contains(t, gotQuery, "limit=30")
	assert.Contains(t, gotQuery, "sortBy=date")
	assert.Contains(t, gotQuery, "sortorder=false")
	assert.Equal(t, "Zoho-oauthtoken tok-1", gotAuth)

	assert.Equal(t, "1710000000000000001", emails[0].MessageID)
	assert.Equal(t, "20001", emails[0].ThreadID)
	assert.Equal(t, []string{"customers@deepcleaning.ie", "info@deepcleaning.ie"}, emails[0].To)
	assert.Equal(t, int64(1710000001000), emails[0].ReceivedAt)

	assert.Equal(t, "msg-2", emails[1].MessageID)
	assert.Empty(t, emails[1].ThreadID)
	assert.Equal(t, int64(1710000002000), emails[1].ReceivedAt)

	t.Run("thread scoped listing", func(t *testing.T) {
		_, err := client.List(context.Background(), ListOptions{Limit: 50, ThreadID: "20001"})
		require.NoError(t, err)
		assert.Contains(t, gotQuery, "threadId=20001")
	})
}

// TestGetContent 测试正文抓取
func TestGetContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/accounts/acct-1/folders/9001/messages/msg-1/content", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("includeBlockContent"))
		w.Write([]byte(`{"status": {"code": 200}, "data": {"content": "<p>Hello</p>"}}`))
	}))
	defer server.Close()

	client := NewClientWithBaseURL(server.URL, "acct-1", StaticToken("tok"), zap.NewNop())

	content, err := client.GetContent(context.Background(), "msg-1", "9001")
	require.NoError(t, err)
	assert.Equal(t, "<p>Hello</p>", content)
}

// TestGetContentError 测试非 2xx 响应返回错误
func TestGetContentError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"status": {"code": 500, "description": "internal error"}}`))
	}))
	defer server.Close()

	client := NewClientWithBaseURL(server.URL, "acct-1", StaticToken("tok"), zap.NewNop())

	_, err := client.GetContent(context.Background(), "msg-1", "9001")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

// TestCreateDraft 测试草稿创建的载荷构造与收件人清洗
func TestCreateDraft(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/accounts/acct-1/messages", r.URL.Path)
		gotBody = nil // 避免上一请求的键残留在复用的 map 中
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(`{"status": {"code": 200}, "data": {"messageId": "draft-77"}}`))
	}))
	defer server.Close()

	client := NewClientWithBaseURL(server.URL, "acct-1", StaticToken("tok"), zap.NewNop())

	draftID, err := client.CreateDraft(context.Background(), DraftInput{
		From:     "customers@deepcleaning.ie",
		To:       []string{`"Alice J" <Alice@Example.com>`, "alice@example.com"},
		CC:       []string{"partner@example.org"},
		Subject:  "Re: Cleaning quote",
		Body:     "Hi Alice,<br><br>Thanks for reaching out.",
		ThreadID: "20001",
		HTML:     true,
	})
	require.NoError(t, err)
	assert.Equal(t, "draft-77", draftID)

	assert.Equal(t, "draft", gotBody["mode"])
	assert.Equal(t, "customers@deepcleaning.ie", gotBody["fromAddress"])
	// 显示名剥离、小写并去重
	assert.Equal(t, "alice@example.com", gotBody["toAddress"])
	assert.Equal(t, "partner@example.org", gotBody["ccAddress"])
	assert.Equal(t, "html", gotBody["mailFormat"])
	assert.Equal(t, "UTF-8", gotBody["encoding"])
	assert.Equal(t, "20001", gotBody["threadId"])

	t.Run("plaintext without thread", func(t *testing.T) {
		_, err := client.CreateDraft(context.Background(), DraftInput{
			From:    "customers@deepcleaning.ie",
			To:      []string{"bob@example.com"},
			Subject: "Re: Hi",
			Body:    "Hi Bob",
		})
		require.NoError(t, err)
		assert.Equal(t, "plaintext", gotBody["mailFormat"])
		_, hasThread := gotBody["threadId"]
		assert.False(t, hasThread)
		_, hasCC := gotBody["ccAddress"]
		assert.False(t, hasCC)
	})

	t.Run("no valid recipient", func(t *testing.T) {
		_, err := client.CreateDraft(context.Background(), DraftInput{
			To:      []string{"Not Provided", "   "},
			Subject: "Re: Hi",
			Body:    "Hi",
		})
		assert.Error(t, err)
	})
}

// TestRefreshTokenSource 测试访问令牌的换取与缓存
func TestRefreshTokenSource(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		assert.Equal(t, "rt-1", r.Form.Get("refresh_token"))
		assert.Equal(t, "cid", r.Form.Get("client_id"))
		w.Write([]byte(`{"access_token": "at-1", "expires_in": 3600}`))
	}))
	defer server.Close()

	source := NewRefreshTokenSource(server.URL, "cid", "secret", "rt-1", nil)

	token, err := source.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "at-1", token)

	// 未过期的令牌直接复用，不再请求
	token, err = source.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "at-1", token)
	assert.Equal(t, int32(1), calls.Load())
}

// TestRefreshTokenSourceError 测试令牌端点报错时的失败传播
func TestRefreshTokenSourceError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error": "invalid_client"}`))
	}))
	defer server.Close()

	source := NewRefreshTokenSource(server.URL, "cid", "secret", "rt-1", nil)

	_, err := source.Token(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_client")
}

// TestCleanThreadID 测试会话 ID 的数字化清洗
func TestCleanThreadID(t *testing.T) {
	assert.Equal(t, "12345", cleanThreadID(`"12345"`))
	assert.Equal(t, "12345", cleanThreadID(" 12345 \n"))
	assert.Equal(t, "", cleanThreadID("abc"))
}

// TestStripControlChars 测试控制字符剥离
func TestStripControlChars(t *testing.T) {
	assert.Equal(t, "a\nb\tc", stripControlChars("a\nb\tc\x00\x08"))
}
