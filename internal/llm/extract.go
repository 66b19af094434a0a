package llm

import (
	"encoding/json"
	"regexp"
	"strings"
)

// 模型偶尔返回结构残缺的 JSON，正则兜底只抓 final_message 字段值
var finalMessagePattern = regexp.MustCompile(`"final_message"\s*:\s*"([^"]*)"`)

// extractFinalMessage 从模型输出中提取回复文本。
//
// 依次尝试三层解析：
//  1. 标准 JSON 对象的 final_message 字段；
//  2. 正则从残缺 JSON 中抓取字段值；
//  3. 输出本身不含 JSON 结构时当作纯文本回复。
func extractFinalMessage(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	var parsed struct {
		FinalMessage string `json:"final_message"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err == nil && parsed.FinalMessage != "" {
		return strings.TrimSpace(unescapeMessage(parsed.FinalMessage))
	}

	if m := finalMessagePattern.FindStringSubmatch(raw); len(m) == 2 && m[1] != "" {
		return strings.TrimSpace(unescapeMessage(m[1]))
	}

	// 带 JSON 痕迹但字段为空的输出不可信，不当作纯文本
	if strings.Contains(raw, "final_message") {
		return ""
	}
	return strings.TrimSpace(unescapeMessage(raw))
}

// unescapeMessage 还原常见的转义序列并移除残留反斜杠。
func unescapeMessage(s string) string {
	s = strings.ReplaceAll(s, `\n`, "\n")
	s = strings.ReplaceAll(s, `\"`, `"`)
	s = strings.ReplaceAll(s, `\\`, `\`)
	// 此时还剩下的反斜杠都是模型的转义事故
	s = strings.ReplaceAll(s, `\`, "")
	return s
}
