package terminal

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"storyforge/internal/application/session"
	"storyforge/internal/domain/entity"
	apperrors "storyforge/pkg/errors"
)

const wrapWidth = 88

type styles struct {
	title   lipgloss.Style
	heading lipgloss.Style
	label   lipgloss.Style
	muted   lipgloss.Style
	body    lipgloss.Style
	box     lipgloss.Style
	success lipgloss.Style
	failure lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		title:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("212")),
		heading: r.NewStyle().Bold(true).Foreground(lipgloss.Color("111")),
		label:   r.NewStyle().Bold(true),
		muted:   r.NewStyle().Faint(true),
		body:    r.NewStyle().Width(wrapWidth),
		box: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1).
			Width(wrapWidth),
		success: r.NewStyle().Foreground(lipgloss.Color("42")),
		failure: r.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
	}
}

// Printer 将阶段结果渲染到终端；渲染器按输出流探测颜色能力
type Printer struct {
	w  io.Writer
	st styles

	// partial 为 true 表示当前片段已输出流式文本但尚未完成
	partial bool
}

func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w, st: newStyles(lipgloss.NewRenderer(w))}
}

var _ session.Printer = (*Printer)(nil)

func (p *Printer) Attributes(a *entity.StoryAttributes) {
	if a == nil {
		return
	}
	var b strings.Builder
	b.WriteString(p.st.title.Render(a.Title))
	b.WriteString("\n")
	p.field(&b, "Genre", a.Genre)
	p.field(&b, "Themes", strings.Join(a.Themes, ", "))
	if a.Tone != "" {
		p.field(&b, "Tone", a.Tone)
	}
	p.field(&b, "Setting", joinNonEmpty(", ", a.Setting.Place, a.Setting.Era, a.Setting.Atmosphere))

	b.WriteString("\n")
	b.WriteString(p.st.heading.Render("Characters"))
	b.WriteString("\n")
	for _, c := range a.Characters {
		fmt.Fprintf(&b, "• %s %s\n  %s\n",
			p.st.label.Render(c.Name),
			p.st.muted.Render("("+string(c.Role)+")"),
			c.Description)
	}

	b.WriteString("\n")
	b.WriteString(p.st.heading.Render("Synopsis"))
	b.WriteString("\n")
	b.WriteString(a.Synopsis)

	p.println(p.st.box.Render(b.String()))
}

func (p *Printer) Outline(o *entity.StoryOutline) {
	if o == nil {
		return
	}
	var b strings.Builder
	b.WriteString(p.st.title.Render(fmt.Sprintf("Outline: %d segments", o.Len())))
	for _, seg := range o.Segments {
		b.WriteString("\n\n")
		b.WriteString(p.st.heading.Render(fmt.Sprintf("%d. %s", seg.Index, seg.Title)))
		b.WriteString("\n")
		b.WriteString(seg.Summary)
		b.WriteString("\n")
		b.WriteString(p.st.muted.Render("with " + strings.Join(seg.Characters, ", ")))
		if seg.Setting != "" {
			b.WriteString(p.st.muted.Render(" · " + seg.Setting))
		}
	}
	p.println(p.st.box.Render(b.String()))
}

func (p *Printer) SegmentStart(seg entity.Segment, total, attempt int) {
	if p.partial {
		p.println("")
		p.println(p.st.muted.Render("[previous attempt discarded]"))
		p.partial = false
	}
	head := fmt.Sprintf("── Segment %d/%d: %s", seg.Index, total, seg.Title)
	if attempt > 1 {
		head += p.st.muted.Render(fmt.Sprintf(" (attempt %d)", attempt))
	}
	p.println("\n" + p.st.heading.Render(head))
}

func (p *Printer) SegmentChunk(chunk string) {
	if chunk == "" {
		return
	}
	p.partial = true
	_, _ = io.WriteString(p.w, chunk)
}

func (p *Printer) SegmentDone(prose entity.SegmentProse, streamed bool) {
	p.partial = false
	if streamed {
		p.println("")
	} else {
		p.println(p.st.body.Render(prose.Text))
	}
	p.println(p.st.muted.Render(fmt.Sprintf("(%d words)", prose.WordCount())))
}

func (p *Printer) Saved(path string, words int) {
	p.println("\n" + p.st.success.Render(fmt.Sprintf("Saved %d words to %s", words, path)))
}

// Failure 打印会话终止原因；用户主动退出不算失败
func (p *Printer) Failure(err error) {
	if err == nil {
		return
	}
	if errors.Is(err, apperrors.ErrUserAborted) {
		p.println(p.st.muted.Render("Stopped. Nothing was saved."))
		return
	}
	p.println(p.st.failure.Render("Error: ") + err.Error())
}

func (p *Printer) field(b *strings.Builder, label, value string) {
	if value == "" {
		return
	}
	b.WriteString(p.st.label.Render(label + ": "))
	b.WriteString(value)
	b.WriteString("\n")
}

func (p *Printer) println(s string) {
	_, _ = fmt.Fprintln(p.w, s)
}

func joinNonEmpty(sep string, parts ...string) string {
	out := parts[:0:0]
	for _, s := range parts {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return strings.Join(out, sep)
}
