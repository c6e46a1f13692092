package node

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storyforge/pkg/logger"
	"storyforge/pkg/metrics"
)

// RetryPolicy 固定次数、固定间隔（不做指数退避）
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent 包装后的错误不会触发重试。
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// cancelled 以 ctx 错误为准，上一次失败原因只保留在消息里。
func cancelled(ctxErr, lastErr error) error {
	if lastErr == nil {
		return ctxErr
	}
	return fmt.Errorf("%w (last attempt: %v)", ctxErr, lastErr)
}

// Retry 依次执行 fn，直到成功、遇到不可重试错误、ctx 取消或尝试次数用尽。
// 返回实际尝试次数与最后一次错误（已剥离 Permanent 包装）；ctx 取消时返回的错误满足 errors.Is(err, ctx.Err())。
func Retry(ctx context.Context, stage string, policy RetryPolicy, fn func(ctx context.Context, attempt int) error) (int, error) {
	maxAttempts := policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, cancelled(err, lastErr)
		}

		err := fn(ctx, attempt)
		if err == nil {
			metrics.StageAttemptsTotal.WithLabelValues(stage, "success").Inc()
			return attempt, nil
		}
		lastErr = err

		var pe *permanentError
		if errors.As(err, &pe) {
			metrics.StageAttemptsTotal.WithLabelValues(stage, "aborted").Inc()
			return attempt, pe.err
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			metrics.StageAttemptsTotal.WithLabelValues(stage, "aborted").Inc()
			return attempt, err
		}

		metrics.StageAttemptsTotal.WithLabelValues(stage, "failed").Inc()
		logger.Warn(ctx, "stage attempt failed",
			"stage", stage,
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"error", err.Error(),
		)

		if attempt < maxAttempts && policy.Delay > 0 {
			timer := time.NewTimer(policy.Delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return attempt, cancelled(ctx.Err(), lastErr)
			case <-timer.C:
			}
		}
	}
	return maxAttempts, lastErr
}
