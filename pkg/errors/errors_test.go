package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_IsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("stage outline: %w", ErrUserAborted.WithDetail("quit at outline"))

	assert.True(t, stderrors.Is(err, ErrUserAborted))
	assert.False(t, stderrors.Is(err, ErrQuotaExceeded))
}

func TestAppError_WithDetailDoesNotMutateSentinel(t *testing.T) {
	_ = ErrValidationFailed.WithDetail("segments[0].title is required")

	assert.Empty(t, ErrValidationFailed.Detail)
}

func TestAppError_ErrorString(t *testing.T) {
	base := stderrors.New("connection refused")
	err := Wrap(base, CodeLLMCallFailed, "LLM call failed").WithDetail("attributes")

	assert.Equal(t, "[4005] LLM call failed (attributes): connection refused", err.Error())
	assert.ErrorIs(t, err, base)
}

func TestExitCode(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"plain", stderrors.New("boom"), 1},
		{"aborted", ErrUserAborted, 0},
		{"invalid", ErrInvalidParam, 2},
		{"quota", fmt.Errorf("wrapped: %w", ErrQuotaExceeded), 3},
		{"llm", ErrLLMCallFailed, 4},
		{"storage", New(CodeStorageError, "write failed"), 5},
		{"interrupted", fmt.Errorf("prose: %w", context.Canceled), 130},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ExitCode(tc.err))
		})
	}
}

func TestAsAppError_WrapsUnknown(t *testing.T) {
	appErr := AsAppError(stderrors.New("boom"))

	assert.Equal(t, CodeUnknown, appErr.Code)
	assert.True(t, IsAppError(appErr))
}
