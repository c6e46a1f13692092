package attributes

import (
	"fmt"
	"strings"

	"storyforge/internal/application/story/genre"
	"storyforge/internal/application/story/storyutil"
	"storyforge/internal/domain/entity"
)

// Normalize 清理首尾空白，规范化体裁与角色定位；在 Validate 之前调用。
func Normalize(a *entity.StoryAttributes, genres *genre.Catalogue) {
	if a == nil {
		return
	}
	a.Title = strings.TrimSpace(a.Title)
	a.Genre = strings.TrimSpace(a.Genre)
	if canonical, ok := genres.Canonical(a.Genre); ok {
		a.Genre = canonical
	}
	a.Tone = strings.TrimSpace(a.Tone)
	a.Synopsis = strings.TrimSpace(a.Synopsis)

	themes := a.Themes[:0]
	for _, t := range a.Themes {
		if t = strings.TrimSpace(t); t != "" {
			themes = append(themes, t)
		}
	}
	a.Themes = themes

	for i := range a.Characters {
		c := &a.Characters[i]
		c.Name = strings.TrimSpace(c.Name)
		c.Role = entity.CharacterRole(strings.ToLower(strings.TrimSpace(string(c.Role))))
		c.Description = strings.TrimSpace(c.Description)
	}
	a.Setting.Place = strings.TrimSpace(a.Setting.Place)
	a.Setting.Era = strings.TrimSpace(a.Setting.Era)
	a.Setting.Atmosphere = strings.TrimSpace(a.Setting.Atmosphere)
}

// Validate 只校验输出形状，不评判叙事质量。
// pinnedGenre 非空时要求体裁与之一致。
func Validate(a *entity.StoryAttributes, genres *genre.Catalogue, pinnedGenre string) error {
	if a == nil {
		return storyutil.ValidationError{Stage: Stage, Issues: []string{"attributes is nil"}}
	}

	issues := storyutil.StructIssues(a)

	if a.Genre != "" && genres != nil {
		if !genres.Contains(a.Genre) {
			issues = append(issues, "genre not in catalogue: "+a.Genre)
		} else if pinnedGenre != "" {
			want, _ := genres.Canonical(pinnedGenre)
			got, _ := genres.Canonical(a.Genre)
			if want != got {
				issues = append(issues, fmt.Sprintf("genre must be %s, got %s", want, a.Genre))
			}
		}
	}

	seen := make(map[string]struct{}, len(a.Characters))
	for i, c := range a.Characters {
		key := strings.ToLower(c.Name)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			issues = append(issues, fmt.Sprintf("characters[%d].name duplicated: %s", i, c.Name))
			continue
		}
		seen[key] = struct{}{}
	}

	if len(issues) > 0 {
		return storyutil.ValidationError{Stage: Stage, Issues: issues}
	}
	return nil
}
