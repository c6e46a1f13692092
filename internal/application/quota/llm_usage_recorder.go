package quota

import (
	"context"
	"fmt"
	"strings"
	"time"

	"storyforge/internal/domain/entity"
	"storyforge/internal/domain/repository"
	"storyforge/internal/domain/service"
	"storyforge/pkg/logger"
)

// LLMUsageRecorder 累加当日计数器并追加用量流水；两者都是 best-effort。
type LLMUsageRecorder struct {
	counter repository.TokenCounter
	ledger  repository.LLMUsageEventRepository
	now     func() time.Time
}

func NewLLMUsageRecorder(counter repository.TokenCounter, ledger repository.LLMUsageEventRepository) *LLMUsageRecorder {
	return &LLMUsageRecorder{
		counter: counter,
		ledger:  ledger,
		now:     time.Now,
	}
}

func (r *LLMUsageRecorder) Record(ctx context.Context, in service.LLMUsageInput) error {
	if r == nil || (r.counter == nil && r.ledger == nil) {
		return nil
	}

	writerID := strings.TrimSpace(in.WriterID)
	if writerID == "" {
		return nil
	}
	if in.PromptTokens < 0 || in.CompletionTokens < 0 {
		return fmt.Errorf("invalid token usage")
	}

	totalTokens := int64(in.PromptTokens + in.CompletionTokens)
	if r.counter != nil && totalTokens > 0 {
		if _, err := r.counter.Add(ctx, writerID, r.now().UTC(), totalTokens); err != nil {
			logger.Warn(ctx, "failed to add token usage", "error", err.Error())
		}
	}

	if r.ledger != nil {
		evt := &entity.LLMUsageEvent{
			WriterID:         writerID,
			SessionID:        strings.TrimSpace(in.SessionID),
			Provider:         strings.TrimSpace(in.Provider),
			Model:            strings.TrimSpace(in.Model),
			Workflow:         strings.TrimSpace(in.Workflow),
			TokensPrompt:     in.PromptTokens,
			TokensCompletion: in.CompletionTokens,
			DurationMs:       in.DurationMs,
		}
		if err := r.ledger.Create(ctx, evt); err != nil {
			logger.Warn(ctx, "failed to append llm usage event", "error", err.Error())
		}
	}
	return nil
}
