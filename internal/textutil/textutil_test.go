package textutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestNormalizeHTML 测试 HTML 正文归一化
func TestNormalizeHTML(t *testing.T) {
	t.Run("strip head style script blocks", func(t *testing.T) {
		in := `<html><head><title>x</title></head><style>p{color:red}</style><script>alert(1)</script><body>Hello</body></html>`
		assert.Equal(t, "Hello", NormalizeHTML(in))
	})

	t.Run("break tags become single spaces", func(t *testing.T) {
		in := `<p>Hello</p><p>World</p><br>Again<br/>End`
		assert.Equal(t, "Hello World Again End", NormalizeHTML(in))
	})

	t.Run("entities decoded", func(t *testing.T) {
		assert.Equal(t, `Tom & "Jerry"`, NormalizeHTML("Tom &amp; &quot;Jerry&quot;"))
	})

	t.Run("entities hiding markup are removed", func(t *testing.T) {
		assert.Equal(t, "before after", NormalizeHTML("before &lt;div&gt; after"))
	})

	t.Run("whitespace collapsed to single spaces", func(t *testing.T) {
		in := "a\n\n   b\t\tc  "
		assert.Equal(t, "a b c", NormalizeHTML(in))
	})

	t.Run("idempotent on normalized text", func(t *testing.T) {
		in := `<div>Hi there,<br>price is &euro;120 &amp; up.</div>`
		once := NormalizeHTML(in)
		assert.Equal(t, once, NormalizeHTML(once))
	})
}

// TestStripQuoted 测试引用内容截断
func TestStripQuoted(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			"on date wrote citation",
			"Hello there. On Jan 1, 2024, John <j@x.com> wrote: old stuff",
			"Hello there.",
		},
		{
			"from sent to header",
			"Sounds good. From: Mary Sent: Monday To: info@deepcleaning.ie earlier text",
			"Sounds good.",
		},
		{
			"original message marker",
			"Yes please book it. -------- Original message -------- old reply",
			"Yes please book it.",
		},
		{
			"quoted lines removed",
			"Top reply\n> quoted line one\n> quoted line two",
			"Top reply",
		},
		{
			"signature delimiter at line start",
			"Thanks a lot\n--\nJohn Doe\nCleaning enthusiast",
			"Thanks a lot",
		},
		{
			"mid sentence double dash kept",
			"Yes -- Tuesday at 10am works for us, see you then",
			"Yes -- Tuesday at 10am works for us, see you then",
		},
		{
			"no citation passes through",
			"Can you quote a 3 bed house in Dublin?",
			"Can you quote a 3 bed house in Dublin?",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, StripQuoted(tc.in))
		})
	}
}

// TestClean 测试完整的正文清洗流程
func TestClean(t *testing.T) {
	in := `<html><body><p>Hi, the &quot;deep clean&quot; worked great.</p>` +
		`<div>On Mon, Jan 1, 2024, Support wrote:</div><div>our old answer</div></body></html>`
	assert.Equal(t, `Hi, the "deep clean" worked great.`, Clean(in))

	t.Run("clean is idempotent", func(t *testing.T) {
		once := Clean(in)
		assert.Equal(t, once, Clean(once))
	})
}
