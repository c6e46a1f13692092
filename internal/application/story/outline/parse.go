package outline

import (
	"storyforge/internal/application/story/storyutil"
	"storyforge/internal/domain/entity"
)

func ParseOutline(rawText string) (*entity.StoryOutline, string, error) {
	var o entity.StoryOutline
	raw, err := storyutil.DecodeJSON(rawText, &o)
	if err != nil {
		return nil, raw, storyutil.ValidationError{Stage: Stage, Issues: []string{err.Error()}}
	}
	return &o, raw, nil
}
