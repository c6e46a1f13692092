package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
)

const (
	quotaKeyPrefix = "storyforge:quota"
	// 跨时区与日切时仍能读到前一日的值
	quotaKeyTTL = 48 * time.Hour
)

// TokenCounter 按写作者与 UTC 自然日累计 token
type TokenCounter struct {
	rdb redis.Cmdable
}

func NewTokenCounter(client *Client) *TokenCounter {
	return &TokenCounter{rdb: client.rdb}
}

func quotaKey(writerID string, day time.Time) string {
	return fmt.Sprintf("%s:%s:%s", quotaKeyPrefix, strings.TrimSpace(writerID), day.UTC().Format("20060102"))
}

// Add INCRBY 并刷新 TTL，返回累加后的值
func (c *TokenCounter) Add(ctx context.Context, writerID string, day time.Time, tokens int64) (int64, error) {
	key := quotaKey(writerID, day)
	ctx, span := tracer.Start(ctx, "redis.TokenCounter.Add")
	span.SetAttributes(
		attribute.String("redis.key", key),
		attribute.Int64("quota.tokens", tokens),
	)
	defer span.End()

	var incr *redis.IntCmd
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.IncrBy(ctx, key, tokens)
		pipe.Expire(ctx, key, quotaKeyTTL)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to add token usage: %w", err)
	}
	return incr.Val(), nil
}

// Get 读取当日累计值，键不存在时为 0
func (c *TokenCounter) Get(ctx context.Context, writerID string, day time.Time) (int64, error) {
	key := quotaKey(writerID, day)
	ctx, span := tracer.Start(ctx, "redis.TokenCounter.Get")
	span.SetAttributes(attribute.String("redis.key", key))
	defer span.End()

	used, err := c.rdb.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to get token usage: %w", err)
	}
	return used, nil
}
