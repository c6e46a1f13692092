package attributes

import (
	"storyforge/internal/application/story/storyutil"
	"storyforge/internal/domain/entity"
)

// ParseAttributes 从模型输出中解析 StoryAttributes，并返回截取后的 JSON 文本。
func ParseAttributes(rawText string) (*entity.StoryAttributes, string, error) {
	var attrs entity.StoryAttributes
	raw, err := storyutil.DecodeJSON(rawText, &attrs)
	if err != nil {
		return nil, raw, storyutil.ValidationError{Stage: Stage, Issues: []string{err.Error()}}
	}
	return &attrs, raw, nil
}
