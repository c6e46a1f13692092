// Package output 负责把各片段正文拼接为纯文本并写入文件。
package output

import (
	"fmt"
	"strings"

	"storyforge/internal/domain/entity"
)

// Compose 生成最终文本：标题、各片段小标题与正文，之间以空行分隔。
// prose 的顺序即输出顺序。
func Compose(attrs *entity.StoryAttributes, prose []entity.SegmentProse) string {
	var b strings.Builder

	if attrs != nil && strings.TrimSpace(attrs.Title) != "" {
		b.WriteString(strings.TrimSpace(attrs.Title))
		b.WriteString("\n\n")
	}

	for i, p := range prose {
		if i > 0 {
			b.WriteString("\n\n")
		}
		if title := strings.TrimSpace(p.Segment.Title); title != "" {
			fmt.Fprintf(&b, "%d. %s\n\n", p.Segment.Index, title)
		}
		b.WriteString(strings.TrimSpace(p.Text))
	}
	b.WriteString("\n")
	return b.String()
}
