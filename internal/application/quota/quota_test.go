package quota

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"storyforge/internal/domain/entity"
	"storyforge/internal/domain/service"
	apperrors "storyforge/pkg/errors"
)

type mockCounter struct {
	mock.Mock
}

func (m *mockCounter) Add(ctx context.Context, writerID string, day time.Time, tokens int64) (int64, error) {
	args := m.Called(ctx, writerID, day, tokens)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockCounter) Get(ctx context.Context, writerID string, day time.Time) (int64, error) {
	args := m.Called(ctx, writerID, day)
	return args.Get(0).(int64), args.Error(1)
}

type mockLedger struct {
	mock.Mock
}

func (m *mockLedger) Create(ctx context.Context, event *entity.LLMUsageEvent) error {
	return m.Called(ctx, event).Error(0)
}

func (m *mockLedger) GetTokenUsage(ctx context.Context, writerID string, start, end time.Time) (int64, error) {
	args := m.Called(ctx, writerID, start, end)
	return args.Get(0).(int64), args.Error(1)
}

var fixedNow = time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

func TestChecker_DisabledIsNoop(t *testing.T) {
	var nilChecker *TokenQuotaChecker
	assert.NoError(t, nilChecker.Check(context.Background(), "w"))
	assert.NoError(t, NewTokenQuotaChecker(nil, nil, 100).Check(context.Background(), "w"))
	assert.NoError(t, NewTokenQuotaChecker(new(mockCounter), nil, 0).Check(context.Background(), "w"))
}

type stepFlusher struct {
	block   bool
	flushed *bool
}

func (f *stepFlusher) Flush(ctx context.Context) error {
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	*f.flushed = true
	return nil
}

func TestChecker_FlushesPendingUsageBeforeRead(t *testing.T) {
	flushed := false
	counter := new(mockCounter)
	counter.On("Get", mock.Anything, "mara", fixedNow).Return(int64(100), nil).Run(func(mock.Arguments) {
		assert.True(t, flushed, "usage must be flushed before the counter is read")
	}).Once()

	c := NewTokenQuotaChecker(counter, nil, 100).WithFlusher(&stepFlusher{flushed: &flushed})
	c.now = func() time.Time { return fixedNow }

	err := c.Check(context.Background(), "mara")
	assert.True(t, errors.Is(err, apperrors.ErrQuotaExceeded))
	counter.AssertExpectations(t)
}

func TestChecker_FlushTimeoutStillChecks(t *testing.T) {
	counter := new(mockCounter)
	counter.On("Get", mock.Anything, "mara", fixedNow).Return(int64(1), nil).Once()

	c := NewTokenQuotaChecker(counter, nil, 100).WithFlusher(&stepFlusher{block: true})
	c.now = func() time.Time { return fixedNow }
	c.flushTimeout = 10 * time.Millisecond

	require.NoError(t, c.Check(context.Background(), "mara"))
	counter.AssertExpectations(t)
}

func TestChecker_CancelledWhileFlushing(t *testing.T) {
	c := NewTokenQuotaChecker(new(mockCounter), nil, 100).WithFlusher(&stepFlusher{block: true})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Check(ctx, "mara")
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, apperrors.IsAppError(err))
}

func TestChecker_UnderAndOverBudget(t *testing.T) {
	counter := new(mockCounter)
	counter.On("Get", mock.Anything, "mara", fixedNow).Return(int64(99), nil).Once()
	counter.On("Get", mock.Anything, "mara", fixedNow).Return(int64(100), nil).Once()

	c := NewTokenQuotaChecker(counter, nil, 100)
	c.now = func() time.Time { return fixedNow }

	require.NoError(t, c.Check(context.Background(), "mara"))

	err := c.Check(context.Background(), "mara")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrQuotaExceeded))
	assert.Equal(t, 3, apperrors.ExitCode(err))

	var exceeded TokenQuotaExceededError
	require.ErrorAs(t, err, &exceeded)
	assert.Equal(t, int64(100), exceeded.Used)
	counter.AssertExpectations(t)
}

func TestChecker_FallsBackToLedger(t *testing.T) {
	ledger := new(mockLedger)
	start := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	ledger.On("GetTokenUsage", mock.Anything, "mara", start, start.Add(24*time.Hour)).Return(int64(10), nil)

	c := NewTokenQuotaChecker(nil, ledger, 50)
	c.now = func() time.Time { return fixedNow }

	used, max, err := c.CheckDailyTokens(context.Background(), "mara")
	require.NoError(t, err)
	assert.Equal(t, int64(10), used)
	assert.Equal(t, int64(50), max)
	ledger.AssertExpectations(t)
}

func TestChecker_CounterErrorIsCacheError(t *testing.T) {
	counter := new(mockCounter)
	counter.On("Get", mock.Anything, "mara", mock.Anything).Return(int64(0), errors.New("dial tcp: refused"))

	err := NewTokenQuotaChecker(counter, nil, 10).Check(context.Background(), "mara")
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeCacheError, apperrors.AsAppError(err).Code)
}

func TestRecorder_AddsCounterAndLedger(t *testing.T) {
	counter := new(mockCounter)
	counter.On("Add", mock.Anything, "mara", fixedNow, int64(150)).Return(int64(150), nil)
	ledger := new(mockLedger)
	ledger.On("Create", mock.Anything, mock.MatchedBy(func(e *entity.LLMUsageEvent) bool {
		return e.WriterID == "mara" && e.SessionID == "s-1" && e.Workflow == "story_outline" && e.TotalTokens() == 150
	})).Return(nil)

	r := NewLLMUsageRecorder(counter, ledger)
	r.now = func() time.Time { return fixedNow }

	err := r.Record(context.Background(), service.LLMUsageInput{
		WriterID:         " mara ",
		SessionID:        "s-1",
		Workflow:         "story_outline",
		Provider:         "openai",
		Model:            "gpt-4o-mini",
		PromptTokens:     100,
		CompletionTokens: 50,
	})
	require.NoError(t, err)
	counter.AssertExpectations(t)
	ledger.AssertExpectations(t)
}

func TestRecorder_BestEffort(t *testing.T) {
	counter := new(mockCounter)
	counter.On("Add", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(int64(0), errors.New("redis down"))
	ledger := new(mockLedger)
	ledger.On("Create", mock.Anything, mock.Anything).Return(errors.New("pg down"))

	r := NewLLMUsageRecorder(counter, ledger)
	assert.NoError(t, r.Record(context.Background(), service.LLMUsageInput{WriterID: "w", PromptTokens: 1}))
}

func TestRecorder_SkipsAnonymousAndRejectsNegative(t *testing.T) {
	counter := new(mockCounter)
	r := NewLLMUsageRecorder(counter, nil)

	assert.NoError(t, r.Record(context.Background(), service.LLMUsageInput{PromptTokens: 5}))
	assert.Error(t, r.Record(context.Background(), service.LLMUsageInput{WriterID: "w", PromptTokens: -1}))
	counter.AssertNotCalled(t, "Add", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
