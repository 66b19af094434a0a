// Package textutil 实现邮件正文的文本归一化：HTML 转纯文本、
// 以及按固定优先级截断引用内容。输出始终是单行文本，供回复
// 生成阶段拼接转录使用。
package textutil

import (
	"html"
	"regexp"
	"strings"
)

var (
	headBlock   = regexp.MustCompile(`(?is)<head[^>]*>.*?</head>`)
	styleBlock  = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	scriptBlock = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)

	// 换行类标签统一转为单个空格，保持单行转录格式
	lineBreakTag = regexp.MustCompile(`(?i)<br\s*/?>`)
	paraBoundary = regexp.MustCompile(`(?is)</p>\s*<p[^>]*>`)
	divOpenTag   = regexp.MustCompile(`(?i)<div[^>]*>`)
	divCloseTag  = regexp.MustCompile(`(?i)</div>`)

	anyTag     = regexp.MustCompile(`<[^>]*>`)
	whitespace = regexp.MustCompile(`\s+`)
)

// NormalizeHTML 把 HTML 或纯文本正文归一化为单行纯文本。
//
// 处理顺序：剥离 head/style/script 块；换行与块级标签转为单个
// 空格；去除其余标签；解码 HTML 实体；再次去除解码后暴露出的
// 标签；最后把连续空白折叠为单个空格。对已归一化的文本重复
// 调用结果不变。
func NormalizeHTML(content string) string {
	text := headBlock.ReplaceAllString(content, "")
	text = styleBlock.ReplaceAllString(text, "")
	text = scriptBlock.ReplaceAllString(text, "")

	text = lineBreakTag.ReplaceAllString(text, " ")
	text = paraBoundary.ReplaceAllString(text, " ")
	text = divOpenTag.ReplaceAllString(text, " ")
	text = divCloseTag.ReplaceAllString(text, " ")

	text = anyTag.ReplaceAllString(text, " ")
	text = html.UnescapeString(text)
	// 实体解码可能还原出新的标签（例如 &lt;div&gt;）
	text = anyTag.ReplaceAllString(text, " ")

	text = whitespace.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// Clean 归一化正文并截断引用内容，是内容抓取阶段的完整文本契约。
func Clean(content string) string {
	return StripQuoted(NormalizeHTML(content))
}
