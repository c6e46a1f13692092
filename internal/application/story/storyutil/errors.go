package storyutil

import (
	"context"
	"errors"

	apperrors "storyforge/pkg/errors"
)

// StageError 把重试结束后的最后一个错误映射为 AppError；取消类错误原样返回。
func StageError(stage string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if apperrors.IsAppError(err) {
		return err
	}
	var verr ValidationError
	if errors.As(err, &verr) {
		return apperrors.ErrValidationFailed.WithDetail(stage).WithError(err)
	}
	return apperrors.ErrLLMCallFailed.WithDetail(stage).WithError(err)
}
