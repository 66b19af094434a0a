package textutil

import (
	"regexp"
	"strings"
)

// citationRule 一条引用标记识别规则。规则按声明顺序依次应用，
// 每条规则命中后只保留标记之前的文本。
type citationRule struct {
	name    string
	pattern *regexp.Regexp
}

// 常见邮件客户端的引用头格式，按优先级排列。
// 归一化之后正文已是单行，所有规则都针对单行文本编写。
var citationRules = []citationRule{
	{"dashed-on-wrote", regexp.MustCompile(`(?is)[-_]{2,}\s*On\b.*?\bwrote\b\s*[-_]{2,}`)},
	{"from-sent-to", regexp.MustCompile(`(?is)From:.*?Sent:.*?To:`)},
	{"on-date-wrote", regexp.MustCompile(`(?is)\bOn\s+.*?,\s+.*?\s+wrote:`)},
	{"on-date-at-wrote", regexp.MustCompile(`(?is)\bOn\s+.*?\s+at\s+.*?,\s+.*?\s+wrote:`)},
	{"original-message", regexp.MustCompile(`(?is)-{4,}\s*Original\s+[Mm]essage\s*-{4,}`)},
	{"sent-from-device", regexp.MustCompile(`(?is)\bSent\s+from\s+my\b.*?-{4,}`)},
	{"from-date-to", regexp.MustCompile(`(?is)From:.*?Date:.*?To:`)},
}

var (
	quotedLine = regexp.MustCompile(`(?m)^>.*$`)
	// 签名分隔符只认行首的 "--"，避免误伤句子中间的破折号
	signatureMarker  = regexp.MustCompile(`(?m)^--[ \t]*$`)
	trailingSpaceRun = regexp.MustCompile(`\s+`)
)

// StripQuoted 截断正文中的历史引用内容。
//
// 依次扫描固定优先级的引用头规则，命中即在标记起点截断；随后
// 去掉 ">" 引用行和 "--" 签名分隔符之后的内容。输入应已经过
// NormalizeHTML 归一化。
func StripQuoted(text string) string {
	for _, rule := range citationRules {
		text = truncateAtFirstMatch(text, rule.pattern)
	}

	text = quotedLine.ReplaceAllString(text, "")

	if loc := signatureMarker.FindStringIndex(text); loc != nil {
		text = text[:loc[0]]
	}

	return strings.TrimSpace(trailingSpaceRun.ReplaceAllString(text, " "))
}

// truncateAtFirstMatch 在模式首次命中处截断，只保留之前的文本。
// 未命中时原样返回。
func truncateAtFirstMatch(text string, pattern *regexp.Regexp) string {
	loc := pattern.FindStringIndex(text)
	if loc == nil {
		return text
	}
	return strings.TrimSpace(text[:loc[0]])
}
