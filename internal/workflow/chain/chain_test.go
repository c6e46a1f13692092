package chain

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyforge/internal/testutil/llmfake"
	wfmodel "storyforge/internal/workflow/model"
)

func TestAttributesChain_RendersPromptAndSchema(t *testing.T) {
	fake := llmfake.New(llmfake.Reply{Content: `{"title":"x"}`})
	factory := llmfake.NewFactory(fake)
	c := NewAttributesChain(factory)

	out, err := c.Invoke(context.Background(), &wfmodel.AttributesGenerateInput{
		Prompt:    "  一个灯塔看守人发现海底的钟声  ",
		Genres:    []string{"fantasy", "mystery"},
		LLMParams: wfmodel.LLMParams{Provider: "openai", Model: "gpt-4o-mini"},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"title":"x"}`, out.Content)

	calls := fake.Calls()
	require.Len(t, calls, 1)
	user := calls[0].UserText()
	assert.Contains(t, user, "一个灯塔看守人发现海底的钟声")
	assert.Contains(t, user, "fantasy, mystery")
	// model + response_format
	assert.Equal(t, 2, calls[0].Options)
	assert.Equal(t, []string{"openai"}, factory.Requested())
}

func TestAttributesChain_PinnedGenreNarrowsEnum(t *testing.T) {
	fake := llmfake.New(llmfake.Reply{Content: `{}`})
	c := NewAttributesChain(llmfake.NewFactory(fake))

	_, err := c.Invoke(context.Background(), &wfmodel.AttributesGenerateInput{
		Prompt:      "p",
		Genres:      []string{"fantasy", "mystery"},
		PinnedGenre: "mystery",
	})
	require.NoError(t, err)
	user := fake.Calls()[0].UserText()
	assert.Contains(t, user, "genre 必须为 mystery")
	assert.NotContains(t, user, "fantasy")

	s := AttributesJSONSchema([]string{"mystery"})
	genre := s["properties"].(map[string]any)["genre"].(map[string]any)
	assert.Equal(t, []any{"mystery"}, genre["enum"])
}

func TestAttributesChain_FallsBackWithoutResponseFormat(t *testing.T) {
	fake := llmfake.New(
		llmfake.Reply{Err: errors.New("400: Unknown parameter: response_format")},
		llmfake.Reply{Content: `{"ok":true}`},
	)
	c := NewAttributesChain(llmfake.NewFactory(fake))

	out, err := c.Invoke(context.Background(), &wfmodel.AttributesGenerateInput{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, out.Content)

	calls := fake.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, 1, calls[0].Options)
	assert.Equal(t, 0, calls[1].Options)
}

func TestAttributesChain_FactoryError(t *testing.T) {
	factory := llmfake.NewFactory(nil)
	factory.Err = errors.New("llm provider not found: nope")
	c := NewAttributesChain(factory)

	_, err := c.Invoke(context.Background(), &wfmodel.AttributesGenerateInput{Prompt: "p", LLMParams: wfmodel.LLMParams{Provider: "nope"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llm provider not found")
	assert.ErrorIs(t, err, factory.Err)
}

func TestOutlineChain_RequiresCountAndNames(t *testing.T) {
	c := NewOutlineChain(llmfake.NewFactory(llmfake.New()))

	_, err := c.Invoke(context.Background(), &wfmodel.OutlineGenerateInput{CharacterNames: []string{"A"}})
	require.Error(t, err)

	_, err = c.Invoke(context.Background(), &wfmodel.OutlineGenerateInput{SegmentCount: 3})
	require.Error(t, err)
}

func TestOutlineChain_RendersCharacterNames(t *testing.T) {
	fake := llmfake.New(llmfake.Reply{Content: `{"segments":[]}`})
	c := NewOutlineChain(llmfake.NewFactory(fake))

	_, err := c.Invoke(context.Background(), &wfmodel.OutlineGenerateInput{
		Prompt:         "p",
		AttributesJSON: `{"title":"Bells"}`,
		CharacterNames: []string{"Mara", "Old Tom"},
		SegmentCount:   4,
	})
	require.NoError(t, err)

	calls := fake.Calls()
	require.Len(t, calls, 1)
	system := calls[0].Messages[0].Content
	assert.Contains(t, system, "Mara, Old Tom")
	assert.Contains(t, system, "恰好包含 4 个片段")
	assert.Contains(t, calls[0].UserText(), `{"title":"Bells"}`)
}

func TestOutlineJSONSchema_CharacterEnumAndCount(t *testing.T) {
	s := OutlineJSONSchema([]string{"Mara", "Tom"}, 3)
	segments := s["properties"].(map[string]any)["segments"].(map[string]any)
	assert.Equal(t, 3, segments["minItems"])
	assert.Equal(t, 3, segments["maxItems"])

	item := segments["items"].(map[string]any)
	chars := item["properties"].(map[string]any)["characters"].(map[string]any)
	enum := chars["items"].(map[string]any)["enum"]
	assert.Equal(t, []any{"Mara", "Tom"}, enum)
}

func TestProseChain_FirstSegmentHasNoPrevious(t *testing.T) {
	fake := llmfake.New(llmfake.Reply{Content: "The bell rang."})
	c := NewProseChain(llmfake.NewFactory(fake))

	out, err := c.Invoke(context.Background(), &wfmodel.ProseGenerateInput{
		SegmentIndex: 1,
		SegmentCount: 2,
		SegmentTitle: "Arrival",
		SegmentJSON:  `{"index":1}`,
	})
	require.NoError(t, err)
	assert.Equal(t, "The bell rang.", out.Content)

	user := fake.Calls()[0].UserText()
	assert.Contains(t, user, "这是故事的第一个片段")
	assert.Contains(t, user, "第 1 / 2 段")
	// 正文阶段不携带 response_format
	assert.Equal(t, 0, fake.Calls()[0].Options)
}

func TestProseChain_StreamCarriesPreviousProse(t *testing.T) {
	fake := llmfake.New(llmfake.Reply{Content: "Night fell over the harbour.", PromptTokens: 10, CompletionTokens: 5})
	c := NewProseChain(llmfake.NewFactory(fake))

	reader, err := c.Stream(context.Background(), &wfmodel.ProseGenerateInput{
		SegmentIndex:  2,
		SegmentCount:  2,
		PreviousTitle: "Arrival",
		PreviousProse: "She climbed the stairs.",
	})
	require.NoError(t, err)
	defer reader.Close()

	var text string
	for {
		msg, err := reader.Recv()
		if err != nil {
			break
		}
		text += msg.Content
	}
	assert.Equal(t, "Night fell over the harbour.", text)

	calls := fake.Calls()
	require.Len(t, calls, 1)
	assert.True(t, calls[0].Streamed)
	assert.Contains(t, calls[0].UserText(), "She climbed the stairs.")
}
