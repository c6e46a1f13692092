package service

import "context"

// LLMUsageInput 表示一次 LLM 调用的可观测与可计量数据。
// 说明：该结构位于 domain/service，作为跨层的稳定契约（port），避免基础设施层依赖应用层实现。
type LLMUsageInput struct {
	WriterID  string
	SessionID string

	Workflow string
	Provider string
	Model    string

	PromptTokens     int
	CompletionTokens int
	DurationMs       int
}

// LLMUsageRecorder 负责记录 LLM 使用量（配额累计 + 流水落库等）。
// 约定：该接口的实现应尽量“best-effort”，不应阻塞主业务流程。
type LLMUsageRecorder interface {
	Record(ctx context.Context, in LLMUsageInput) error
}

// UsageFlusher 等待已结束但尚未落地的用量记录（流式调用在后台统计）。
type UsageFlusher interface {
	Flush(ctx context.Context) error
}
