package storyutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyforge/internal/domain/entity"
)

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"The Bell Under the Sea": "the-bell-under-the-sea",
		"  Hello,   World!!  ":   "hello-world",
		"海底的钟声":                  "海底的钟声",
		"!!!":                    "story",
		"":                       "story",
		"Chapter 7: Return (v2)": "chapter-7-return-v2",
	}
	for in, want := range cases {
		assert.Equal(t, want, Slugify(in), in)
	}
}

func TestDecodeJSON(t *testing.T) {
	var out struct {
		Title string `json:"title"`
	}
	raw, err := DecodeJSON("Sure!\n```json\n{\"title\":\"Bells\"}\n```", &out)
	require.NoError(t, err)
	assert.Equal(t, `{"title":"Bells"}`, raw)
	assert.Equal(t, "Bells", out.Title)

	_, err = DecodeJSON("   ", &out)
	require.Error(t, err)

	_, err = DecodeJSON("{not json}", &out)
	require.Error(t, err)
}

func TestStructIssues_UsesJSONPaths(t *testing.T) {
	attrs := entity.StoryAttributes{
		Title:    "x",
		Genre:    "fantasy",
		Themes:   []string{"loss"},
		Synopsis: "s",
		Characters: []entity.Character{
			{Name: "", Role: "villain", Description: "d"},
		},
		Setting: entity.Setting{Place: "harbour"},
	}
	issues := StructIssues(attrs)
	assert.Contains(t, issues, "characters[0].name is required")
	assert.Contains(t, issues, "characters[0].role invalid: villain")
}

func TestStructIssues_EmptySlices(t *testing.T) {
	issues := StructIssues(entity.StoryOutline{})
	require.Len(t, issues, 1)
	assert.Equal(t, "segments is required", issues[0])
}

func TestValidationError(t *testing.T) {
	err := ValidationError{Stage: "outline", Issues: []string{"a", "b"}}
	assert.Equal(t, "outline validation failed: a; b", err.Error())
	assert.Equal(t, "outline validation failed", ValidationError{Stage: "outline"}.Error())
}
