package session

import (
	"context"

	"storyforge/internal/application/story/attributes"
	"storyforge/internal/application/story/genre"
	"storyforge/internal/application/story/outline"
	"storyforge/internal/application/story/prose"
	"storyforge/internal/domain/entity"
)

// Decision 每个阶段结果展示后用户的选择
type Decision int

const (
	DecisionContinue Decision = iota
	DecisionRegenerate
	DecisionQuit
)

func (d Decision) String() string {
	switch d {
	case DecisionContinue:
		return "continue"
	case DecisionRegenerate:
		return "regenerate"
	case DecisionQuit:
		return "quit"
	default:
		return "unknown"
	}
}

// Prompter 收集用户输入。用户中断表单时应返回 errors.ErrUserAborted。
type Prompter interface {
	AskPrompt(ctx context.Context) (string, error)
	// ChooseGenre 返回空字符串表示交给模型挑选
	ChooseGenre(ctx context.Context, genres []genre.Genre) (string, error)
	AskSegmentCount(ctx context.Context, def, min, max int) (int, error)
	Confirm(ctx context.Context, stage string) (Decision, error)
	AskOutputPath(ctx context.Context, def string) (string, error)
}

// Printer 展示阶段结果与流式正文
type Printer interface {
	Attributes(a *entity.StoryAttributes)
	Outline(o *entity.StoryOutline)
	SegmentStart(seg entity.Segment, total, attempt int)
	SegmentChunk(chunk string)
	SegmentDone(p entity.SegmentProse, streamed bool)
	Saved(path string, words int)
}

type AttributesStage interface {
	Generate(ctx context.Context, in *attributes.GenerateInput) (*attributes.GenerateOutput, error)
}

type OutlineStage interface {
	Generate(ctx context.Context, in *outline.GenerateInput) (*outline.GenerateOutput, error)
}

type ProseStage interface {
	WriteAll(ctx context.Context, in *prose.WriteInput, hooks prose.Hooks) ([]entity.SegmentProse, error)
}

type QuotaChecker interface {
	Check(ctx context.Context, writerID string) error
}
