package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestCleanAddress 测试地址归一化
func TestCleanAddress(t *testing.T) {
	t.Run("strip angle brackets and lowercase", func(t *testing.T) {
		assert.Equal(t, "john@example.com", CleanAddress("<John@Example.com>"))
	})

	t.Run("unescape html entities", func(t *testing.T) {
		assert.Equal(t, "info@deepcleaning.ie", CleanAddress("&lt;Info@deepcleaning.ie&gt;"))
	})

	t.Run("trim whitespace", func(t *testing.T) {
		assert.Equal(t, "a@b.ie", CleanAddress("  a@b.ie  "))
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Equal(t, "", CleanAddress(""))
	})
}

// TestSplitAddressList 测试逗号分隔地址串拆分
func TestSplitAddressList(t *testing.T) {
	got := SplitAddressList("info@deepcleaning.ie, other@x.com ,,")
	assert.Equal(t, []string{"info@deepcleaning.ie", "other@x.com"}, got)

	assert.Nil(t, SplitAddressList(""))
}

// TestExtractEmailAddress 测试从显示名格式中提取地址
func TestExtractEmailAddress(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"display name with brackets", `"John D" <john.d@example.com>`, "john.d@example.com"},
		{"escaped entities", "&quot;Mary&quot; &lt;mary@x.ie&gt;", "mary@x.ie"},
		{"plain address", "plain@x.com", "plain@x.com"},
		{"not provided placeholder", "Not Provided", ""},
		{"no address at all", "hello world", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ExtractEmailAddress(tc.in))
		})
	}
}

// TestExtractFormEmail 测试联系表单正文的客户地址还原
func TestExtractFormEmail(t *testing.T) {
	content := "Name: Jane Doe Email: jane@customer.com Phone: 0851234567"
	assert.Equal(t, "jane@customer.com", ExtractFormEmail(content))

	assert.Equal(t, "", ExtractFormEmail("no form fields here"))
}

// TestIsCompanyAddress 测试公司地址判定
func TestIsCompanyAddress(t *testing.T) {
	company := []string{"customers@deepcleaning.ie", "info@deepcleaning.ie"}

	assert.True(t, IsCompanyAddress("<Info@DeepCleaning.ie>", company))
	assert.False(t, IsCompanyAddress("customer@example.com", company))
}

// TestThreadOrdering 测试会话排序与最新邮件判定
func TestThreadOrdering(t *testing.T) {
	thread := Thread{
		Key: "1001",
		Emails: []Email{
			{MessageID: "m3", ReceivedAt: 300},
			{MessageID: "m1", ReceivedAt: 100},
			{MessageID: "m2", ReceivedAt: 200},
		},
	}
	thread.SortAscending()

	assert.Equal(t, "m1", thread.Emails[0].MessageID)
	assert.Equal(t, "m3", thread.Latest().MessageID)
}

// TestStandaloneThread 测试独立邮件的合成会话键
func TestStandaloneThread(t *testing.T) {
	th := NewStandaloneThread(Email{MessageID: "abc123"})

	assert.Equal(t, "standalone:abc123", th.Key)
	assert.True(t, th.IsStandalone())
	assert.Equal(t, "abc123", th.Latest().MessageID)

	var empty Thread
	assert.Nil(t, empty.Latest())
}
