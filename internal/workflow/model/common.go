package model

import (
	"time"

	"github.com/cloudwego/eino/schema"
)

// LLMParams 单次阶段调用的模型参数
type LLMParams struct {
	Provider string
	Model    string

	Temperature *float32
	MaxTokens   *int
}

type LLMUsageMeta struct {
	Provider         string
	Model            string
	PromptTokens     int
	CompletionTokens int
	Temperature      float64
	Attempts         int
	GeneratedAt      time.Time
}

// NewUsageMeta 用调用参数初始化用量元信息
func NewUsageMeta(p LLMParams) LLMUsageMeta {
	meta := LLMUsageMeta{
		Provider:    p.Provider,
		Model:       p.Model,
		GeneratedAt: time.Now().UTC(),
	}
	if p.Temperature != nil {
		meta.Temperature = float64(*p.Temperature)
	}
	return meta
}

// AddUsage 累加一次调用的 token 用量（重试的每次尝试都会计入）
func (m *LLMUsageMeta) AddUsage(msg *schema.Message) {
	if m == nil || msg == nil || msg.ResponseMeta == nil || msg.ResponseMeta.Usage == nil {
		return
	}
	m.PromptTokens += msg.ResponseMeta.Usage.PromptTokens
	m.CompletionTokens += msg.ResponseMeta.Usage.CompletionTokens
}

func (m LLMUsageMeta) TotalTokens() int {
	return m.PromptTokens + m.CompletionTokens
}
