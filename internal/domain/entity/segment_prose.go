package entity

import (
	"strings"
	"unicode"
)

// SegmentProse 第三阶段：某个片段生成的正文
type SegmentProse struct {
	Segment Segment `json:"segment"`
	Text    string  `json:"text"`

	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
}

// WordCount 统计词数；CJK 字符按单字计数
func (p SegmentProse) WordCount() int {
	return CountWords(p.Text)
}

// CountWords 统计文本词数
func CountWords(s string) int {
	count := 0
	inWord := false
	for _, r := range s {
		switch {
		case unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r) || unicode.Is(unicode.Hangul, r):
			count++
			inWord = false
		case unicode.IsSpace(r) || unicode.IsPunct(r):
			inWord = false
		default:
			if !inWord {
				count++
				inWord = true
			}
		}
	}
	return count
}

// JoinProse 拼接多个片段正文
func JoinProse(parts []SegmentProse, sep string) string {
	texts := make([]string, 0, len(parts))
	for _, p := range parts {
		texts = append(texts, strings.TrimSpace(p.Text))
	}
	return strings.Join(texts, sep)
}
