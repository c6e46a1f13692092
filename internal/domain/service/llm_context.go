package service

import (
	"context"
	"strings"
)

type llmCtxKey string

const (
	llmCtxKeyWorkflow llmCtxKey = "llm_workflow"
	llmCtxKeyProvider llmCtxKey = "llm_provider"
	llmCtxKeySession  llmCtxKey = "llm_session"
	llmCtxKeyWriter   llmCtxKey = "llm_writer"
)

func WithWorkflow(ctx context.Context, workflow string) context.Context {
	if ctx == nil {
		return nil
	}
	w := strings.TrimSpace(workflow)
	if w == "" {
		return ctx
	}
	return context.WithValue(ctx, llmCtxKeyWorkflow, w)
}

func WithProvider(ctx context.Context, provider string) context.Context {
	if ctx == nil {
		return nil
	}
	p := strings.TrimSpace(provider)
	if p == "" {
		return ctx
	}
	return context.WithValue(ctx, llmCtxKeyProvider, p)
}

func WithWorkflowProvider(ctx context.Context, workflow, provider string) context.Context {
	return WithProvider(WithWorkflow(ctx, workflow), provider)
}

// WithSession 注入会话与写作者标识，供 callbacks 记录用量
func WithSession(ctx context.Context, sessionID, writerID string) context.Context {
	if ctx == nil {
		return nil
	}
	if s := strings.TrimSpace(sessionID); s != "" {
		ctx = context.WithValue(ctx, llmCtxKeySession, s)
	}
	if w := strings.TrimSpace(writerID); w != "" {
		ctx = context.WithValue(ctx, llmCtxKeyWriter, w)
	}
	return ctx
}

func WorkflowFromContext(ctx context.Context) string {
	return stringFromContext(ctx, llmCtxKeyWorkflow, "unknown")
}

func ProviderFromContext(ctx context.Context) string {
	return stringFromContext(ctx, llmCtxKeyProvider, "unknown")
}

func SessionFromContext(ctx context.Context) string {
	return stringFromContext(ctx, llmCtxKeySession, "")
}

func WriterFromContext(ctx context.Context) string {
	return stringFromContext(ctx, llmCtxKeyWriter, "")
}

func stringFromContext(ctx context.Context, key llmCtxKey, fallback string) string {
	if ctx == nil {
		return fallback
	}
	s, ok := ctx.Value(key).(string)
	if !ok || strings.TrimSpace(s) == "" {
		return fallback
	}
	return strings.TrimSpace(s)
}
