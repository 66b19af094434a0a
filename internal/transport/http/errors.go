package httptransport

import (
	"github.com/siscanu/leads-agent/internal/auth"
	authjwt "github.com/siscanu/leads-agent/internal/auth/jwt"
)

// 错误消息映射表（业务错误 -> 中文消息）
var errorMessages = map[error]string{
	auth.ErrInvalidCredentials: "用户名或密码错误",
	auth.ErrLoginDisabled:      "管理登录未配置",
	authjwt.ErrInvalidToken:    "无效的访问令牌",
	authjwt.ErrExpiredToken:    "登录已过期，请重新登录",
}

// GetErrorMessage 获取错误的中文消息
func GetErrorMessage(err error) string {
	if msg, ok := errorMessages[err]; ok {
		return msg
	}
	return err.Error()
}

// 通用错误消息
const (
	// 请求相关
	MsgInvalidRequest = "请求参数格式错误"

	// 认证相关
	MsgAuthRequired = "需要登录认证"

	// 流水线相关
	MsgPipelineRunFailed = "批处理运行失败"
	MsgPipelineBusy      = "已有批处理正在运行"
	MsgRunListFailed     = "获取运行记录失败"
	MsgAuditDisabled     = "审计数据库未启用"

	// 服务器错误
	MsgInternalError = "服务器内部错误，请稍后重试"
)
