package attributes

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyforge/internal/application/story/genre"
	"storyforge/internal/application/story/storyutil"
	"storyforge/internal/config"
	"storyforge/internal/domain/entity"
	"storyforge/internal/infrastructure/llm"
	"storyforge/internal/testutil/llmfake"
	wfmodel "storyforge/internal/workflow/model"
	wfnode "storyforge/internal/workflow/node"
	apperrors "storyforge/pkg/errors"
)

const validAttributesJSON = `{
  "title": " The Drowned Bell ",
  "genre": "Sci-Fi",
  "themes": ["memory", " ", "isolation"],
  "characters": [
    {"name": "Mara", "role": "Protagonist", "description": "A lighthouse keeper."},
    {"name": "Old Tom", "role": "supporting", "description": "A retired diver."}
  ],
  "setting": {"place": "A drowned coastal town", "era": "near future", "atmosphere": "fog"},
  "tone": "melancholic",
  "synopsis": "A keeper hears a bell ringing under the sea."
}`

func newGenerator(t *testing.T, fake *llmfake.ChatModel, attempts int) *Generator {
	t.Helper()
	genres, err := genre.Load()
	require.NoError(t, err)
	return NewGenerator(llmfake.NewFactory(fake), genres, wfnode.RetryPolicy{MaxAttempts: attempts})
}

func TestGenerate_NormalizesAndAccepts(t *testing.T) {
	fake := llmfake.New(llmfake.Reply{Content: "Here:\n" + validAttributesJSON, PromptTokens: 100, CompletionTokens: 50})
	g := newGenerator(t, fake, 3)

	out, err := g.Generate(context.Background(), &GenerateInput{
		Prompt: "a bell under the sea",
		LLM:    wfmodel.LLMParams{Provider: "openai", Model: "gpt-4o-mini"},
	})
	require.NoError(t, err)

	a := out.Attributes
	assert.Equal(t, "The Drowned Bell", a.Title)
	assert.Equal(t, "science fiction", a.Genre)
	assert.Equal(t, []string{"memory", "isolation"}, a.Themes)
	assert.Equal(t, entity.RoleProtagonist, a.Characters[0].Role)
	assert.Equal(t, []string{"Mara", "Old Tom"}, a.CharacterNames())
	assert.Equal(t, 1, out.Meta.Attempts)
	assert.Equal(t, 150, out.Meta.TotalTokens())
	assert.Equal(t, "openai", out.Meta.Provider)
}

func TestGenerate_RetriesOnShapeInvalidOutput(t *testing.T) {
	fake := llmfake.New(
		llmfake.Reply{Content: "I cannot produce JSON today"},
		llmfake.Reply{Content: `{"title":"x","genre":"fantasy","themes":[],"characters":[],"setting":{},"synopsis":""}`},
		llmfake.Reply{Content: validAttributesJSON},
	)
	g := newGenerator(t, fake, 3)

	out, err := g.Generate(context.Background(), &GenerateInput{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, 3, out.Meta.Attempts)
	assert.Len(t, fake.Calls(), 3)
}

func TestGenerate_ExhaustedValidationFailure(t *testing.T) {
	fake := llmfake.New(llmfake.Reply{Content: `{"title":"x","genre":"space western","themes":["a"],"characters":[{"name":"A","role":"protagonist","description":"d"},{"name":"a","role":"minor","description":"d"}],"setting":{"place":"p"},"synopsis":"s"}`})
	g := newGenerator(t, fake, 2)

	_, err := g.Generate(context.Background(), &GenerateInput{Prompt: "p"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrValidationFailed))
	assert.Equal(t, 4, apperrors.ExitCode(err))

	var verr storyutil.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Issues, "genre not in catalogue: space western")
	assert.Contains(t, verr.Issues, "characters[1].name duplicated: a")
	assert.Len(t, fake.Calls(), 2)
}

func TestGenerate_CallErrorMapsToLLMFailure(t *testing.T) {
	fake := llmfake.New(llmfake.Reply{Err: errors.New("connection refused")})
	g := newGenerator(t, fake, 3)

	_, err := g.Generate(context.Background(), &GenerateInput{Prompt: "p"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrLLMCallFailed))
	assert.Len(t, fake.Calls(), 3)
}

func TestGenerate_PinnedGenre(t *testing.T) {
	fake := llmfake.New(llmfake.Reply{Content: validAttributesJSON})
	g := newGenerator(t, fake, 1)

	_, err := g.Generate(context.Background(), &GenerateInput{Prompt: "p", PinnedGenre: "科幻"})
	require.NoError(t, err)
	assert.Contains(t, fake.Calls()[0].UserText(), "genre 必须为 science fiction")

	_, err = g.Generate(context.Background(), &GenerateInput{Prompt: "p", PinnedGenre: "mystery"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrValidationFailed))

	_, err = g.Generate(context.Background(), &GenerateInput{Prompt: "p", PinnedGenre: "cyber opera"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidParam))
}

func TestGenerate_EmptyPrompt(t *testing.T) {
	g := newGenerator(t, llmfake.New(), 3)
	_, err := g.Generate(context.Background(), &GenerateInput{Prompt: "   "})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidParam))
}

func TestGenerate_ContextCancelled(t *testing.T) {
	g := newGenerator(t, llmfake.New(llmfake.Reply{Content: validAttributesJSON}), 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Generate(ctx, &GenerateInput{Prompt: "p"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestGenerate_CancelledWhileWaitingToRetry(t *testing.T) {
	genres, err := genre.Load()
	require.NoError(t, err)
	fake := llmfake.New(llmfake.Reply{Content: "not json"})
	g := NewGenerator(llmfake.NewFactory(fake), genres, wfnode.RetryPolicy{MaxAttempts: 3, Delay: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	done := make(chan error, 1)
	go func() {
		_, err := g.Generate(ctx, &GenerateInput{Prompt: "p"})
		done <- err
	}()

	select {
	case err = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("generator did not observe cancellation")
	}
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.Is(err, apperrors.ErrValidationFailed))
	assert.Equal(t, 130, apperrors.ExitCode(err))
	assert.Len(t, fake.Calls(), 1)
}

type countingFactory struct {
	inner *llm.EinoFactory
	gets  atomic.Int32
}

func (f *countingFactory) Get(ctx context.Context, name string) (model.BaseChatModel, error) {
	f.gets.Add(1)
	return f.inner.Get(ctx, name)
}

func TestGenerate_MisconfiguredProviderFailsOnce(t *testing.T) {
	genres, err := genre.Load()
	require.NoError(t, err)
	factory := &countingFactory{inner: llm.NewEinoFactory(&config.LLMConfig{
		DefaultProvider: "nokey",
		Providers: map[string]config.ProviderConfig{
			"nokey": {BaseURL: "http://127.0.0.1:1/v1", Model: "m"},
		},
	})}
	g := NewGenerator(factory, genres, wfnode.RetryPolicy{MaxAttempts: 3, Delay: time.Hour})

	_, err = g.Generate(context.Background(), &GenerateInput{Prompt: "p"})
	require.Error(t, err)
	assert.Equal(t, int32(1), factory.gets.Load())
	assert.Equal(t, 2, apperrors.ExitCode(err))
	assert.False(t, errors.Is(err, apperrors.ErrLLMCallFailed))
	assert.Contains(t, err.Error(), "api_key")
}
