// Package quota 提供写作者每日 Token 配额相关能力
package quota

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"storyforge/internal/domain/repository"
	"storyforge/internal/domain/service"
	apperrors "storyforge/pkg/errors"
	"storyforge/pkg/logger"
	"storyforge/pkg/metrics"
)

// TokenQuotaExceededError 表示写作者 Token 日配额已耗尽
type TokenQuotaExceededError struct {
	WriterID string
	Max      int64
	Used     int64
}

func (e TokenQuotaExceededError) Error() string {
	return fmt.Sprintf("token quota exceeded: writer=%s used=%d max=%d", e.WriterID, e.Used, e.Max)
}

// TokenQuotaChecker 在每个阶段开始前检查当日用量。
// 优先读 Redis 计数器，未配置时回退到 Postgres 流水聚合。
type TokenQuotaChecker struct {
	counter   repository.TokenCounter
	ledger    repository.LLMUsageEventRepository
	maxPerDay int64
	now       func() time.Time

	flusher      service.UsageFlusher
	flushTimeout time.Duration
}

const defaultFlushTimeout = 5 * time.Second

func NewTokenQuotaChecker(counter repository.TokenCounter, ledger repository.LLMUsageEventRepository, maxPerDay int64) *TokenQuotaChecker {
	return &TokenQuotaChecker{
		counter:   counter,
		ledger:    ledger,
		maxPerDay: maxPerDay,
		now:       time.Now,

		flushTimeout: defaultFlushTimeout,
	}
}

// WithFlusher 读取用量前先等待流式调用的用量落地，避免少算上一段。
func (c *TokenQuotaChecker) WithFlusher(f service.UsageFlusher) *TokenQuotaChecker {
	if c != nil {
		c.flusher = f
	}
	return c
}

func (c *TokenQuotaChecker) flush(ctx context.Context) error {
	if c.flusher == nil {
		return nil
	}
	fctx, cancel := context.WithTimeout(ctx, c.flushTimeout)
	defer cancel()
	err := c.flusher.Flush(fctx)
	if err == nil || ctx.Err() != nil {
		return ctx.Err()
	}
	logger.Warn(ctx, "pending llm usage not flushed before quota check", "error", err.Error())
	return nil
}

// CheckDailyTokens 返回 used/max，以及是否超过配额的 error。
func (c *TokenQuotaChecker) CheckDailyTokens(ctx context.Context, writerID string) (used int64, max int64, err error) {
	if c == nil || c.maxPerDay <= 0 || (c.counter == nil && c.ledger == nil) {
		return 0, 0, nil
	}
	writerID = strings.TrimSpace(writerID)
	if writerID == "" {
		return 0, c.maxPerDay, nil
	}

	if err := c.flush(ctx); err != nil {
		return 0, c.maxPerDay, err
	}

	now := c.now().UTC()
	switch {
	case c.counter != nil:
		used, err = c.counter.Get(ctx, writerID, now)
	default:
		start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		used, err = c.ledger.GetTokenUsage(ctx, writerID, start, start.Add(24*time.Hour))
	}
	if err != nil {
		return 0, c.maxPerDay, err
	}

	if used >= c.maxPerDay {
		return used, c.maxPerDay, TokenQuotaExceededError{
			WriterID: writerID,
			Max:      c.maxPerDay,
			Used:     used,
		}
	}
	return used, c.maxPerDay, nil
}

// Check 供会话层调用，错误已映射为 AppError。
func (c *TokenQuotaChecker) Check(ctx context.Context, writerID string) error {
	_, _, err := c.CheckDailyTokens(ctx, writerID)
	if err == nil {
		return nil
	}
	if exceeded, ok := err.(TokenQuotaExceededError); ok {
		metrics.QuotaRejectedTotal.Inc()
		return apperrors.ErrQuotaExceeded.
			WithDetail(fmt.Sprintf("used %d of %d tokens today", exceeded.Used, exceeded.Max)).
			WithError(exceeded)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return apperrors.Wrap(err, apperrors.CodeCacheError, "failed to read token usage")
}
