package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"storyforge/internal/domain/entity"
)

type LLMUsageEventRepository struct {
	db *gorm.DB
}

func NewLLMUsageEventRepository(client *Client) *LLMUsageEventRepository {
	return &LLMUsageEventRepository{db: client.db}
}

func (r *LLMUsageEventRepository) Create(ctx context.Context, event *entity.LLMUsageEvent) error {
	ctx, span := tracer.Start(ctx, "postgres.LLMUsageEventRepository.Create")
	defer span.End()

	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create llm usage event: %w", err)
	}
	return nil
}

func (r *LLMUsageEventRepository) GetTokenUsage(ctx context.Context, writerID string, startInclusive, endExclusive time.Time) (int64, error) {
	ctx, span := tracer.Start(ctx, "postgres.LLMUsageEventRepository.GetTokenUsage")
	defer span.End()

	var total int64
	if err := tokenUsageQuery(r.db.WithContext(ctx), writerID, startInclusive, endExclusive).Scan(&total).Error; err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to get llm usage: %w", err)
	}
	return total, nil
}

func tokenUsageQuery(db *gorm.DB, writerID string, startInclusive, endExclusive time.Time) *gorm.DB {
	return db.Model(&entity.LLMUsageEvent{}).
		Where("writer_id = ? AND created_at >= ? AND created_at < ?", writerID, startInclusive, endExclusive).
		Select("COALESCE(SUM(COALESCE(tokens_prompt,0) + COALESCE(tokens_completion,0)),0)")
}
