package outline

import (
	"fmt"
	"strings"

	"storyforge/internal/application/story/storyutil"
	"storyforge/internal/domain/entity"
)

// Normalize 清理空白、按出现顺序重新编号 1..n，并把角色引用规范为第一阶段的拼写。
// 无法识别的角色名保持原样，由 Validate 报告。
func Normalize(o *entity.StoryOutline, attrs *entity.StoryAttributes) {
	if o == nil {
		return
	}
	for i := range o.Segments {
		s := &o.Segments[i]
		s.Index = i + 1
		s.Title = strings.TrimSpace(s.Title)
		s.Summary = strings.TrimSpace(s.Summary)
		s.Setting = strings.TrimSpace(s.Setting)
		s.Goal = strings.TrimSpace(s.Goal)

		seen := make(map[string]struct{}, len(s.Characters))
		chars := make([]string, 0, len(s.Characters))
		for _, name := range s.Characters {
			name = strings.TrimSpace(name)
			if c := attrs.FindCharacter(name); c != nil {
				name = c.Name
			}
			key := strings.ToLower(name)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			chars = append(chars, name)
		}
		s.Characters = chars
	}
}

// Validate 校验片段数量与角色引用；角色必须来自 attrs。
func Validate(o *entity.StoryOutline, attrs *entity.StoryAttributes, count int) error {
	if o == nil {
		return storyutil.ValidationError{Stage: Stage, Issues: []string{"outline is nil"}}
	}

	issues := storyutil.StructIssues(o)
	if count > 0 && len(o.Segments) != count {
		issues = append(issues, fmt.Sprintf("segments must contain exactly %d item(s), got %d", count, len(o.Segments)))
	}

	for i, s := range o.Segments {
		for _, name := range s.Characters {
			if name == "" {
				continue
			}
			if attrs.FindCharacter(name) == nil {
				issues = append(issues, fmt.Sprintf("segments[%d].characters references unknown character: %s", i, name))
			}
		}
	}

	if len(issues) > 0 {
		return storyutil.ValidationError{Stage: Stage, Issues: issues}
	}
	return nil
}
