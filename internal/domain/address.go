package domain

import (
	"html"
	"regexp"
	"strings"
)

var (
	emailPattern    = regexp.MustCompile(`[\w.+-]+@[\w.-]+\.\w+`)
	formEmailField  = regexp.MustCompile(`Email:\s*([^\s]+@[^\s]+\.[^\s]+)`)
	quoteCharacters = strings.NewReplacer(`"`, "", `'`, "", "<", "", ">", "")
)

// CleanAddress 归一化单个邮件地址：解码 HTML 实体、去除尖括号
// 与引号、转小写并裁剪空白。无法归一化时返回空串。
func CleanAddress(raw string) string {
	if raw == "" {
		return ""
	}
	addr := html.UnescapeString(raw)
	addr = quoteCharacters.Replace(addr)
	return strings.ToLower(strings.TrimSpace(addr))
}

// CleanAddressList 归一化一组地址并剔除空项。
func CleanAddressList(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		if addr := CleanAddress(r); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

// SplitAddressList 拆分服务商返回的逗号分隔地址串。
// 每项仅裁剪空白，保留原始大小写与显示名。
func SplitAddressList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ExtractEmailAddress 从可能带显示名或 HTML 残留的字符串中
// 提取出纯邮件地址。常见输入如 `"John D" <john@x.com>`。
func ExtractEmailAddress(raw string) string {
	if raw == "" || raw == "Not Provided" {
		return ""
	}
	cleaned := quoteCharacters.Replace(html.UnescapeString(raw))
	return emailPattern.FindString(cleaned)
}

// ExtractFormEmail 从联系表单正文的 "Email:" 字段中还原客户地址。
// 未找到返回空串。
func ExtractFormEmail(content string) string {
	m := formEmailField.FindStringSubmatch(content)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// IsCompanyAddress 判断地址（归一化后）是否属于公司地址列表。
func IsCompanyAddress(addr string, companyAddresses []string) bool {
	cleaned := CleanAddress(addr)
	for _, c := range companyAddresses {
		if cleaned == strings.ToLower(c) {
			return true
		}
	}
	return false
}
