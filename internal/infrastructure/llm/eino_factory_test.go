package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyforge/internal/config"
	wfnode "storyforge/internal/workflow/node"
	apperrors "storyforge/pkg/errors"
)

func testLLMConfig() *config.LLMConfig {
	return &config.LLMConfig{
		DefaultProvider: "openai",
		Providers: map[string]config.ProviderConfig{
			"openai": {APIKey: "sk-test", BaseURL: "http://127.0.0.1:1/v1", Model: "gpt-4o-mini", MaxTokens: 512, Temperature: 0.7, Timeout: time.Second},
			"nokey":  {BaseURL: "http://127.0.0.1:1/v1", Model: "m"},
		},
	}
}

func TestGet_CachesPerProvider(t *testing.T) {
	f := NewEinoFactory(testLLMConfig())

	a, err := f.Get(context.Background(), "")
	require.NoError(t, err)
	b, err := f.Get(context.Background(), " openai ")
	require.NoError(t, err)
	assert.Same(t, a, b)
}

func TestGet_Errors(t *testing.T) {
	f := NewEinoFactory(testLLMConfig())

	_, err := f.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.True(t, wfnode.IsPermanent(err))
	assert.Equal(t, 2, apperrors.ExitCode(err))

	_, err = f.Get(context.Background(), "nokey")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key")
	assert.True(t, wfnode.IsPermanent(err))
	assert.True(t, errors.Is(err, apperrors.New(apperrors.CodeConfigError, "")))
	assert.Equal(t, 2, apperrors.ExitCode(err))
}

func TestChatModelConfig_OmitsZeroValues(t *testing.T) {
	cfg := chatModelConfig(config.ProviderConfig{APIKey: "k", Model: "m"})
	assert.Nil(t, cfg.MaxTokens)
	assert.Nil(t, cfg.Temperature)

	cfg = chatModelConfig(config.ProviderConfig{APIKey: "k", Model: "m", MaxTokens: 100, Temperature: 0.5})
	require.NotNil(t, cfg.MaxTokens)
	assert.Equal(t, 100, *cfg.MaxTokens)
	assert.InDelta(t, 0.5, float64(*cfg.Temperature), 1e-6)
}
