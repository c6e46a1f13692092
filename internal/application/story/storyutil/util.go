// Package storyutil 提供 story 应用层内部共享的工具函数。
package storyutil

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	wfnode "storyforge/internal/workflow/node"
)

// DecodeJSON 从模型输出中截取 JSON 并解码到 v，返回截取后的 JSON 文本。
func DecodeJSON(rawText string, v any) (string, error) {
	jsonText := wfnode.ExtractJSON(rawText)
	if strings.TrimSpace(jsonText) == "" {
		return jsonText, fmt.Errorf("empty model output")
	}
	if err := json.Unmarshal([]byte(jsonText), v); err != nil {
		return jsonText, fmt.Errorf("failed to parse json: %w", err)
	}
	return jsonText, nil
}

// MarshalForPrompt 序列化为紧凑 JSON，供下一阶段提示词插值。
func MarshalForPrompt(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

const maxSlugRunes = 80

// Slugify 生成文件名安全的短名：保留字母与数字（含 CJK），其余折叠为单个 '-'。
func Slugify(title string) string {
	var b strings.Builder
	n := 0
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(title)) {
		if n >= maxSlugRunes {
			break
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			n++
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			n++
			dash = true
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		return "story"
	}
	return slug
}
