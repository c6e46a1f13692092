package wire

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyforge/internal/application/session"
	"storyforge/internal/application/story/genre"
	"storyforge/internal/config"
	"storyforge/internal/domain/entity"
	apperrors "storyforge/pkg/errors"
)

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Name: "storyforge", WriterID: "ada"},
		LLM: config.LLMConfig{
			DefaultProvider: "openai",
			Providers: map[string]config.ProviderConfig{
				"openai": {APIKey: "sk-test", Model: "gpt-4o-mini"},
				"local":  {APIKey: "none", BaseURL: "http://localhost:11434/v1", Model: "llama3"},
			},
			MaxAttempts: 3,
			RetryDelay:  time.Second,
		},
		Session: config.SessionConfig{
			OutputDir:            "stories",
			DefaultSegments:      5,
			MinSegments:          1,
			MaxSegments:          20,
			StreamProse:          true,
			PreviousContextRunes: 6000,
		},
	}
}

func TestApplyFlags(t *testing.T) {
	cfg := testConfig()
	require.NoError(t, ApplyFlags(cfg, Flags{Provider: "local", NoStream: true}))
	assert.Equal(t, "local", cfg.LLM.DefaultProvider)
	assert.False(t, cfg.Session.StreamProse)

	err := ApplyFlags(cfg, Flags{Provider: "missing"})
	require.Error(t, err)
	assert.Equal(t, 2, apperrors.ExitCode(err))
}

func TestProvideSessionOptions(t *testing.T) {
	genres, err := genre.Load()
	require.NoError(t, err)

	cfg := testConfig()
	cfg.Session.ProseMaxTokens = 1500

	opts, err := ProvideSessionOptions(cfg, Flags{Model: "gpt-4o", Genre: "Sci-Fi", Segments: 3, Output: " out.txt "}, genres)
	require.NoError(t, err)
	assert.Equal(t, "science fiction", opts.Genre)
	assert.Equal(t, 3, opts.Segments)
	assert.Equal(t, "out.txt", opts.OutputPath)
	assert.Equal(t, "ada", opts.WriterID)
	assert.Equal(t, "openai", opts.LLM.Provider)
	assert.Equal(t, "gpt-4o", opts.LLM.Model)
	assert.Nil(t, opts.LLM.MaxTokens)
	require.NotNil(t, opts.ProseLLM.MaxTokens)
	assert.Equal(t, 1500, *opts.ProseLLM.MaxTokens)
}

func TestProvideSessionOptions_Rejects(t *testing.T) {
	genres, err := genre.Load()
	require.NoError(t, err)

	_, err = ProvideSessionOptions(testConfig(), Flags{Genre: "cookbook"}, genres)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidParam))

	_, err = ProvideSessionOptions(testConfig(), Flags{Segments: 21}, genres)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidParam))
}

func TestOptionalProviders_Disabled(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()

	rc, cleanupRedis, err := ProvideRedisClient(ctx, cfg)
	require.NoError(t, err)
	assert.Nil(t, rc)
	cleanupRedis()

	pg, cleanupPG, err := ProvidePostgresClient(ctx, cfg)
	require.NoError(t, err)
	assert.Nil(t, pg)
	cleanupPG()

	assert.Nil(t, ProvideTokenCounter(nil))
	assert.Nil(t, ProvideUsageLedger(nil))
	assert.Nil(t, ProvideQuotaChecker(cfg, nil, nil, nil))
	assert.Nil(t, ProvideRouter(cfg, nil, nil))
}

func TestProvideRouter_Enabled(t *testing.T) {
	cfg := testConfig()
	cfg.Observability.Metrics = config.MetricsConfig{Enabled: true, Path: "/metrics"}
	r := ProvideRouter(cfg, nil, nil)
	require.NotNil(t, r)
	assert.NotNil(t, r.Engine())
}

func TestProvideRetryPolicy(t *testing.T) {
	p := ProvideRetryPolicy(testConfig())
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, time.Second, p.Delay)
}

type nopPrompter struct{}

func (nopPrompter) AskPrompt(context.Context) (string, error) { return "", apperrors.ErrUserAborted }
func (nopPrompter) ChooseGenre(context.Context, []genre.Genre) (string, error) {
	return "", nil
}
func (nopPrompter) AskSegmentCount(_ context.Context, def, _, _ int) (int, error) { return def, nil }
func (nopPrompter) Confirm(context.Context, string) (session.Decision, error) {
	return session.DecisionQuit, nil
}
func (nopPrompter) AskOutputPath(_ context.Context, def string) (string, error) { return def, nil }

type nopPrinter struct{}

func (nopPrinter) Attributes(*entity.StoryAttributes)    {}
func (nopPrinter) Outline(*entity.StoryOutline)          {}
func (nopPrinter) SegmentStart(entity.Segment, int, int) {}
func (nopPrinter) SegmentChunk(string)                   {}
func (nopPrinter) SegmentDone(entity.SegmentProse, bool) {}
func (nopPrinter) Saved(string, int)                     {}

func TestInitializeApp_OfflineDefaults(t *testing.T) {
	app, cleanup, err := InitializeApp(context.Background(), testConfig(), Flags{}, nopPrompter{}, nopPrinter{})
	require.NoError(t, err)
	defer cleanup()

	require.NotNil(t, app.Session)
	assert.Nil(t, app.Router)

	_, err = app.Session.Run(context.Background())
	assert.True(t, errors.Is(err, apperrors.ErrUserAborted))
}

func TestInitializeApp_InvalidFlag(t *testing.T) {
	_, _, err := InitializeApp(context.Background(), testConfig(), Flags{Genre: "cookbook"}, nopPrompter{}, nopPrinter{})
	require.Error(t, err)
	assert.Equal(t, 2, apperrors.ExitCode(err))
}
