package mail

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// flexString 接受字符串或数字形式的 JSON 值。
// Zoho 的 messageId/threadId 有时以数字返回。
type flexString string

// UnmarshalJSON 实现 json.Unmarshaler 接口
func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	// 数字直接按字面量保留，避免大整数精度丢失
	*f = flexString(data)
	return nil
}

// flexInt64 接受数字或字符串形式的 JSON 整数值。
type flexInt64 int64

// UnmarshalJSON 实现 json.Unmarshaler 接口
func (f *flexInt64) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	raw := string(data)
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = strings.TrimSpace(s)
		if raw == "" {
			*f = 0
			return nil
		}
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		// 科学计数法等浮点形式退化为截断
		v, ferr := strconv.ParseFloat(raw, 64)
		if ferr != nil {
			return fmt.Errorf("parse integer %q: %w", raw, err)
		}
		n = int64(v)
	}
	*f = flexInt64(n)
	return nil
}
