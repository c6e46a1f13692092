// Package terminal 是会话的终端实现：huh 表单收集输入，lipgloss 渲染阶段结果。
package terminal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/huh"

	"storyforge/internal/application/session"
	"storyforge/internal/application/story/genre"
	apperrors "storyforge/pkg/errors"
)

const (
	maxPromptRunes = 8000
	// modelChoosesGenre 选择框中“交给模型挑选”对应的值
	modelChoosesGenre = ""
)

// Prompter 基于 huh 的交互式输入
type Prompter struct {
	accessible bool
	in         io.Reader
	out        io.Writer
}

// PrompterOption 配置 Prompter
type PrompterOption func(*Prompter)

// WithAccessible 使用逐行问答模式（屏幕阅读器 / 非 TTY 友好）
func WithAccessible(on bool) PrompterOption {
	return func(p *Prompter) { p.accessible = on }
}

// WithIO 替换表单的输入输出
func WithIO(in io.Reader, out io.Writer) PrompterOption {
	return func(p *Prompter) {
		p.in = in
		p.out = out
	}
}

func NewPrompter(opts ...PrompterOption) *Prompter {
	p := &Prompter{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var _ session.Prompter = (*Prompter)(nil)

func (p *Prompter) AskPrompt(ctx context.Context) (string, error) {
	var text string
	field := huh.NewText().
		Title("What story should we write?").
		Description("Describe the idea: premise, characters, mood. Anything goes.").
		CharLimit(maxPromptRunes).
		Value(&text).
		Validate(validatePrompt)
	if err := p.run(ctx, field); err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (p *Prompter) ChooseGenre(ctx context.Context, genres []genre.Genre) (string, error) {
	choice := modelChoosesGenre
	field := huh.NewSelect[string]().
		Title("Genre").
		Description("Pin a genre or let the model pick one from the prompt.").
		Options(genreOptions(genres)...).
		Height(10).
		Value(&choice)
	if err := p.run(ctx, field); err != nil {
		return "", err
	}
	return choice, nil
}

func (p *Prompter) AskSegmentCount(ctx context.Context, def, min, max int) (int, error) {
	raw := strconv.Itoa(def)
	field := huh.NewInput().
		Title("How many segments?").
		Description(fmt.Sprintf("Between %d and %d.", min, max)).
		Value(&raw).
		Validate(func(s string) error {
			_, err := parseSegmentCount(s, min, max)
			return err
		})
	if err := p.run(ctx, field); err != nil {
		return 0, err
	}
	return parseSegmentCount(raw, min, max)
}

func (p *Prompter) Confirm(ctx context.Context, stage string) (session.Decision, error) {
	decision := session.DecisionContinue
	field := huh.NewSelect[session.Decision]().
		Title(fmt.Sprintf("Happy with the %s?", stage)).
		Options(decisionOptions()...).
		Value(&decision)
	if err := p.run(ctx, field); err != nil {
		return session.DecisionQuit, err
	}
	return decision, nil
}

func (p *Prompter) AskOutputPath(ctx context.Context, def string) (string, error) {
	path := def
	field := huh.NewInput().
		Title("Save the story to").
		Value(&path).
		Validate(func(s string) error {
			if strings.TrimSpace(s) == "" {
				return errors.New("path cannot be empty")
			}
			return nil
		})
	if err := p.run(ctx, field); err != nil {
		return "", err
	}
	return strings.TrimSpace(path), nil
}

func (p *Prompter) run(ctx context.Context, fields ...huh.Field) error {
	form := huh.NewForm(huh.NewGroup(fields...)).
		WithAccessible(p.accessible).
		WithShowHelp(true)
	if p.in != nil {
		form = form.WithInput(p.in)
	}
	if p.out != nil {
		form = form.WithOutput(p.out)
	}
	return mapFormError(ctx, form.RunWithContext(ctx))
}

// mapFormError 将 huh 的中断统一为 ErrUserAborted
func mapFormError(ctx context.Context, err error) error {
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, huh.ErrUserAborted):
		return apperrors.ErrUserAborted.WithDetail("form closed")
	default:
		return apperrors.Wrap(err, apperrors.CodeInternalError, "terminal form failed")
	}
}

func validatePrompt(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return errors.New("prompt cannot be empty")
	}
	if utf8.RuneCountInString(s) > maxPromptRunes {
		return fmt.Errorf("prompt is longer than %d characters", maxPromptRunes)
	}
	return nil
}

func parseSegmentCount(s string, min, max int) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, errors.New("enter a whole number")
	}
	if n < min || n > max {
		return 0, fmt.Errorf("must be between %d and %d", min, max)
	}
	return n, nil
}

func genreOptions(genres []genre.Genre) []huh.Option[string] {
	opts := make([]huh.Option[string], 0, len(genres)+1)
	opts = append(opts, huh.NewOption("Let the model choose", modelChoosesGenre))
	for _, g := range genres {
		label := g.Name
		if g.Description != "" {
			label = fmt.Sprintf("%s - %s", g.Name, g.Description)
		}
		opts = append(opts, huh.NewOption(label, g.Name))
	}
	return opts
}

func decisionOptions() []huh.Option[session.Decision] {
	return []huh.Option[session.Decision]{
		huh.NewOption("Continue", session.DecisionContinue),
		huh.NewOption("Regenerate", session.DecisionRegenerate),
		huh.NewOption("Quit", session.DecisionQuit),
	}
}
