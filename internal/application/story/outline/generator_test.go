package outline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyforge/internal/application/story/storyutil"
	"storyforge/internal/domain/entity"
	"storyforge/internal/testutil/llmfake"
	wfnode "storyforge/internal/workflow/node"
	apperrors "storyforge/pkg/errors"
)

func sampleAttributes() *entity.StoryAttributes {
	return &entity.StoryAttributes{
		Title:  "The Drowned Bell",
		Genre:  "fantasy",
		Themes: []string{"memory"},
		Characters: []entity.Character{
			{Name: "Mara", Role: entity.RoleProtagonist, Description: "keeper"},
			{Name: "Old Tom", Role: entity.RoleSupporting, Description: "diver"},
		},
		Setting:  entity.Setting{Place: "harbour"},
		Synopsis: "s",
	}
}

const twoSegments = `{"segments":[
 {"index":7,"title":" Fog ","summary":"Mara hears the bell.","characters":["mara","Mara"],"setting":"lighthouse","goal":"setup"},
 {"index":3,"title":"Descent","summary":"Tom dives.","characters":["old tom"," Mara "],"setting":"sea","goal":"climax"}
]}`

func TestGenerate_RenumbersAndCanonicalises(t *testing.T) {
	fake := llmfake.New(llmfake.Reply{Content: twoSegments})
	g := NewGenerator(llmfake.NewFactory(fake), wfnode.RetryPolicy{MaxAttempts: 1})

	out, err := g.Generate(context.Background(), &GenerateInput{
		Prompt:       "bell",
		Attributes:   sampleAttributes(),
		SegmentCount: 2,
	})
	require.NoError(t, err)

	segs := out.Outline.Segments
	require.Len(t, segs, 2)
	assert.Equal(t, 1, segs[0].Index)
	assert.Equal(t, 2, segs[1].Index)
	assert.Equal(t, "Fog", segs[0].Title)
	assert.Equal(t, []string{"Mara"}, segs[0].Characters)
	assert.Equal(t, []string{"Old Tom", "Mara"}, segs[1].Characters)

	system := fake.Calls()[0].Messages[0].Content
	assert.Contains(t, system, "Mara, Old Tom")
	assert.Contains(t, fake.Calls()[0].UserText(), `"title":"The Drowned Bell"`)
}

func TestGenerate_RejectsWrongCountThenAccepts(t *testing.T) {
	fake := llmfake.New(
		llmfake.Reply{Content: `{"segments":[{"title":"a","summary":"b","characters":["Mara"]}]}`},
		llmfake.Reply{Content: twoSegments},
	)
	g := NewGenerator(llmfake.NewFactory(fake), wfnode.RetryPolicy{MaxAttempts: 3})

	out, err := g.Generate(context.Background(), &GenerateInput{Attributes: sampleAttributes(), SegmentCount: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, out.Meta.Attempts)
	assert.Equal(t, 2, out.Outline.Len())
}

func TestGenerate_UnknownCharacterRejected(t *testing.T) {
	fake := llmfake.New(llmfake.Reply{Content: `{"segments":[{"title":"a","summary":"b","characters":["Mara","The Stranger"]}]}`})
	g := NewGenerator(llmfake.NewFactory(fake), wfnode.RetryPolicy{MaxAttempts: 2})

	_, err := g.Generate(context.Background(), &GenerateInput{Attributes: sampleAttributes(), SegmentCount: 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrValidationFailed))

	var verr storyutil.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"segments[0].characters references unknown character: The Stranger"}, verr.Issues)
}

func TestGenerate_InvalidInput(t *testing.T) {
	g := NewGenerator(llmfake.NewFactory(llmfake.New()), wfnode.RetryPolicy{MaxAttempts: 1})

	_, err := g.Generate(context.Background(), &GenerateInput{SegmentCount: 2})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidParam))

	_, err = g.Generate(context.Background(), &GenerateInput{Attributes: sampleAttributes()})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidParam))

	_, err = g.Generate(context.Background(), &GenerateInput{Attributes: &entity.StoryAttributes{Title: "x"}, SegmentCount: 1})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidParam))
}

func TestValidate_SegmentWithoutCharacters(t *testing.T) {
	o := &entity.StoryOutline{Segments: []entity.Segment{{Title: "a", Summary: "b"}}}
	Normalize(o, sampleAttributes())
	err := Validate(o, sampleAttributes(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "segments[0].characters must have at least 1 item(s)")
}
