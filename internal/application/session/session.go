// Package session 编排一次交互式分阶段生成：
// 提示 -> 属性 -> 大纲 -> 逐段正文 -> 保存，每个阶段后询问继续 / 重新生成 / 退出。
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"storyforge/internal/application/story/attributes"
	"storyforge/internal/application/story/genre"
	"storyforge/internal/application/story/outline"
	"storyforge/internal/application/story/output"
	"storyforge/internal/application/story/prose"
	"storyforge/internal/domain/entity"
	llmctx "storyforge/internal/domain/service"
	wfmodel "storyforge/internal/workflow/model"
	apperrors "storyforge/pkg/errors"
	"storyforge/pkg/logger"
	"storyforge/pkg/metrics"
	"storyforge/pkg/tracer"
)

// Options 会话参数；Genre/Segments/OutputPath 非零时跳过对应的询问。
type Options struct {
	WriterID string

	Genre      string
	Segments   int
	OutputPath string

	DefaultSegments int
	MinSegments     int
	MaxSegments     int
	OutputDir       string

	LLM      wfmodel.LLMParams
	ProseLLM wfmodel.LLMParams
}

type Deps struct {
	Prompter   Prompter
	Printer    Printer
	Genres     *genre.Catalogue
	Attributes AttributesStage
	Outline    OutlineStage
	Prose      ProseStage
	// Quota 可为 nil
	Quota QuotaChecker
}

type Result struct {
	SessionID  string
	Path       string
	Words      int
	Attributes *entity.StoryAttributes
	Outline    *entity.StoryOutline
	Prose      []entity.SegmentProse
}

type Session struct {
	deps Deps
	opts Options
}

func New(deps Deps, opts Options) (*Session, error) {
	if deps.Prompter == nil || deps.Printer == nil {
		return nil, fmt.Errorf("prompter and printer are required")
	}
	if deps.Attributes == nil || deps.Outline == nil || deps.Prose == nil {
		return nil, fmt.Errorf("all generation stages are required")
	}
	if deps.Genres == nil {
		return nil, fmt.Errorf("genre catalogue is required")
	}
	if opts.MinSegments < 1 {
		opts.MinSegments = 1
	}
	if opts.MaxSegments < opts.MinSegments {
		opts.MaxSegments = opts.MinSegments
	}
	opts.DefaultSegments = clamp(opts.DefaultSegments, opts.MinSegments, opts.MaxSegments)
	return &Session{deps: deps, opts: opts}, nil
}

func (s *Session) Run(ctx context.Context) (*Result, error) {
	sessionID := uuid.NewString()
	writerID := strings.TrimSpace(s.opts.WriterID)

	ctx = logger.WithContext(ctx, logger.SessionIDKey, sessionID)
	if writerID != "" {
		ctx = logger.WithContext(ctx, logger.WriterIDKey, writerID)
	}
	ctx = llmctx.WithSession(ctx, sessionID, writerID)

	ctx, span := tracer.Start(ctx, "story.session")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID))

	res, err := s.run(ctx)
	if err != nil {
		if errors.Is(err, apperrors.ErrUserAborted) {
			span.SetAttributes(attribute.Bool("session.aborted", true))
			logger.Info(ctx, "session aborted by user")
		} else {
			tracer.Fail(span, err)
		}
		return res, err
	}
	res.SessionID = sessionID
	return res, nil
}

func (s *Session) run(ctx context.Context) (*Result, error) {
	res := &Result{}

	prompt, err := s.deps.Prompter.AskPrompt(ctx)
	if err != nil {
		return res, err
	}
	if strings.TrimSpace(prompt) == "" {
		return res, apperrors.ErrInvalidParam.WithDetail("story prompt is empty")
	}

	pinned := strings.TrimSpace(s.opts.Genre)
	if pinned == "" {
		if pinned, err = s.deps.Prompter.ChooseGenre(ctx, s.deps.Genres.Genres()); err != nil {
			return res, err
		}
	}

	count := s.opts.Segments
	if count <= 0 {
		if count, err = s.deps.Prompter.AskSegmentCount(ctx, s.opts.DefaultSegments, s.opts.MinSegments, s.opts.MaxSegments); err != nil {
			return res, err
		}
	}
	if count < s.opts.MinSegments || count > s.opts.MaxSegments {
		return res, apperrors.ErrInvalidParam.WithDetail(
			fmt.Sprintf("segment count %d outside [%d, %d]", count, s.opts.MinSegments, s.opts.MaxSegments))
	}

	// 阶段一：属性
	err = s.confirmLoop(ctx, attributes.Stage, func(ctx context.Context) error {
		out, err := s.deps.Attributes.Generate(ctx, &attributes.GenerateInput{
			Prompt:      prompt,
			PinnedGenre: pinned,
			LLM:         s.opts.LLM,
		})
		if err != nil {
			return err
		}
		if out == nil || out.Attributes == nil {
			return apperrors.ErrGenerationFailed.WithDetail(attributes.Stage + " returned no attributes")
		}
		res.Attributes = out.Attributes
		s.deps.Printer.Attributes(out.Attributes)
		return nil
	})
	if err != nil {
		return res, err
	}

	// 阶段二：大纲（schema 依赖阶段一的角色名）
	err = s.confirmLoop(ctx, outline.Stage, func(ctx context.Context) error {
		out, err := s.deps.Outline.Generate(ctx, &outline.GenerateInput{
			Prompt:       prompt,
			Attributes:   res.Attributes,
			SegmentCount: count,
			LLM:          s.opts.LLM,
		})
		if err != nil {
			return err
		}
		if out == nil || out.Outline == nil || out.Outline.Len() != count {
			return apperrors.ErrGenerationFailed.WithDetail(fmt.Sprintf("%s does not have %d segments", outline.Stage, count))
		}
		res.Outline = out.Outline
		s.deps.Printer.Outline(out.Outline)
		return nil
	})
	if err != nil {
		return res, err
	}

	// 阶段三：逐段正文
	err = s.confirmLoop(ctx, prose.Stage, func(ctx context.Context) error {
		total := res.Outline.Len()
		streamed := false
		parts, err := s.deps.Prose.WriteAll(ctx, &prose.WriteInput{
			Attributes: res.Attributes,
			Outline:    res.Outline,
			LLM:        s.opts.ProseLLM,
		}, prose.Hooks{
			BeforeSegment: func(ctx context.Context, _ entity.Segment) error {
				return s.checkQuota(ctx)
			},
			OnAttempt: func(seg entity.Segment, attempt int) {
				streamed = false
				s.deps.Printer.SegmentStart(seg, total, attempt)
			},
			OnChunk: func(_ entity.Segment, chunk string) {
				streamed = true
				s.deps.Printer.SegmentChunk(chunk)
			},
			OnSegment: func(p entity.SegmentProse) error {
				s.deps.Printer.SegmentDone(p, streamed)
				return nil
			},
		})
		if err != nil {
			return err
		}
		// 不完整的正文不落盘
		if len(parts) != total {
			return apperrors.ErrGenerationFailed.WithDetail(fmt.Sprintf("%s returned %d of %d segments", prose.Stage, len(parts), total))
		}
		res.Prose = parts
		return nil
	})
	if err != nil {
		return res, err
	}

	path := strings.TrimSpace(s.opts.OutputPath)
	if path == "" {
		def := output.DefaultPath(s.opts.OutputDir, res.Attributes.Title)
		if path, err = s.deps.Prompter.AskOutputPath(ctx, def); err != nil {
			return res, err
		}
		if path = strings.TrimSpace(path); path == "" {
			path = def
		}
	}

	content := output.Compose(res.Attributes, res.Prose)
	if err := output.WriteFile(path, content); err != nil {
		return res, err
	}
	res.Path = path
	res.Words = entity.CountWords(entity.JoinProse(res.Prose, "\n\n"))
	metrics.StoryWordCount.Observe(float64(res.Words))

	s.deps.Printer.Saved(path, res.Words)
	logger.Info(ctx, "story saved", "path", path, "words", res.Words, "segments", len(res.Prose))
	return res, nil
}

// confirmLoop 执行阶段并询问用户；Regenerate 时重新执行，Quit 返回 ErrUserAborted。
func (s *Session) confirmLoop(ctx context.Context, stage string, run func(ctx context.Context) error) error {
	for {
		if stage != prose.Stage {
			// 正文阶段按片段检查配额
			if err := s.checkQuota(ctx); err != nil {
				return err
			}
		}
		if err := s.runStage(ctx, stage, run); err != nil {
			return err
		}

		decision, err := s.deps.Prompter.Confirm(ctx, stage)
		if err != nil {
			return err
		}
		logger.Debug(ctx, "stage decision", "stage", stage, "decision", decision.String())
		switch decision {
		case DecisionContinue:
			return nil
		case DecisionRegenerate:
			continue
		default:
			return apperrors.ErrUserAborted.WithDetail(stage)
		}
	}
}

func (s *Session) runStage(ctx context.Context, stage string, run func(ctx context.Context) error) error {
	ctx, span := tracer.Start(ctx, "story.stage."+stage)
	defer span.End()
	ctx = logger.WithContext(ctx, logger.StageKey, stage)

	start := time.Now()
	err := run(ctx)
	metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.StageRunsTotal.WithLabelValues(stage, "error").Inc()
		tracer.Fail(span, err)
		logger.Error(ctx, "stage failed", err)
		return err
	}
	metrics.StageRunsTotal.WithLabelValues(stage, "success").Inc()
	return nil
}

func (s *Session) checkQuota(ctx context.Context) error {
	if s.deps.Quota == nil {
		return nil
	}
	return s.deps.Quota.Check(ctx, s.opts.WriterID)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
