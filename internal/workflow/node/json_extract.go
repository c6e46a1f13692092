package node

import (
	"encoding/json"
	"strings"
)

// ExtractJSON 从模型输出中截取第一个括号配平的 JSON 对象或数组。
// 支持 markdown 代码块与前后夹杂的说明文字；找不到时返回去除空白后的原文。
func ExtractJSON(s string) string {
	text := strings.TrimSpace(s)
	if text == "" {
		return ""
	}
	if json.Valid([]byte(text)) {
		return text
	}

	for start := 0; start < len(text); start++ {
		if text[start] != '{' && text[start] != '[' {
			continue
		}
		end := matchingClose(text, start)
		if end < 0 {
			continue
		}
		candidate := text[start : end+1]
		if json.Valid([]byte(candidate)) {
			return candidate
		}
	}
	return text
}

// matchingClose 返回与 open 处括号配平的闭括号下标，字符串内的括号不计
func matchingClose(text string, open int) int {
	depth := 0
	inString := false
	escaped := false
	for i := open; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
