package node

import "strings"

// 兼容 OpenAI 协议的服务对 response_format / json_schema 的拒绝信息各不相同
var structuredOutputRejections = []string{
	"response_format",
	"response_schema",
	"json_schema",
	"structured output",
}

// IsStructuredOutputUnsupported 判断错误是否表示模型不支持结构化输出，
// 是则调用方应去掉 response_format 后重试一次，仅依赖提示词约束格式。
func IsStructuredOutputUnsupported(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, kw := range structuredOutputRejections {
		if strings.Contains(msg, kw) {
			return true
		}
	}
	return strings.Contains(msg, "unknown parameter") && strings.Contains(msg, "response")
}
