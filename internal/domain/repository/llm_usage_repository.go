// Package repository 定义数据访问层接口
package repository

import (
	"context"
	"time"

	"storyforge/internal/domain/entity"
)

// LLMUsageEventRepository LLM 用量流水仓储
type LLMUsageEventRepository interface {
	Create(ctx context.Context, event *entity.LLMUsageEvent) error
	GetTokenUsage(ctx context.Context, writerID string, startInclusive, endExclusive time.Time) (int64, error)
}

// TokenCounter 按写作者与自然日累计 token 的计数器（由 Redis 实现）
type TokenCounter interface {
	Add(ctx context.Context, writerID string, day time.Time, tokens int64) (int64, error)
	Get(ctx context.Context, writerID string, day time.Time) (int64, error)
}
