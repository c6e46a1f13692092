// Package prose 实现第三阶段：按顺序逐段生成正文，每段携带上一段正文作为滚动上下文。
package prose

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"storyforge/internal/application/story/storyutil"
	"storyforge/internal/domain/entity"
	workflowchain "storyforge/internal/workflow/chain"
	wfmodel "storyforge/internal/workflow/model"
	wfnode "storyforge/internal/workflow/node"
	workflowport "storyforge/internal/workflow/port"
	apperrors "storyforge/pkg/errors"
	"storyforge/pkg/logger"
	"storyforge/pkg/metrics"
	"storyforge/pkg/tracer"
)

const Stage = "prose"

// Hooks 供交互层展示进度；均可为 nil。
type Hooks struct {
	// OnAttempt 每个片段的每次尝试开始前调用（attempt 从 1 开始）
	OnAttempt func(seg entity.Segment, attempt int)
	// OnChunk 流式模式下收到增量文本
	OnChunk func(seg entity.Segment, chunk string)
	// OnSegment 片段被接受后调用；返回错误会中止后续片段
	OnSegment func(p entity.SegmentProse) error
	// BeforeSegment 片段开始前调用（如配额检查）；返回错误会中止
	BeforeSegment func(ctx context.Context, seg entity.Segment) error
}

type WriteInput struct {
	Attributes *entity.StoryAttributes
	Outline    *entity.StoryOutline
	LLM        wfmodel.LLMParams
}

type Options struct {
	Retry  wfnode.RetryPolicy
	Stream bool
	// PreviousContextRunes 上一片段正文保留的尾部长度，<=0 表示不截断
	PreviousContextRunes int
}

type Writer struct {
	chain *workflowchain.ProseChain
	opts  Options
}

func NewWriter(factory workflowport.ChatModelFactory, opts Options) *Writer {
	return &Writer{
		chain: workflowchain.NewProseChain(factory),
		opts:  opts,
	}
}

// WriteAll 严格按顺序生成全部片段：第 i 段在第 i-1 段被接受之后才开始。
func (w *Writer) WriteAll(ctx context.Context, in *WriteInput, hooks Hooks) ([]entity.SegmentProse, error) {
	if w == nil || w.chain == nil {
		return nil, fmt.Errorf("prose workflow not configured")
	}
	if in == nil || in.Attributes == nil || in.Outline.Len() == 0 {
		return nil, apperrors.ErrInvalidParam.WithDetail("attributes and a non-empty outline are required")
	}

	attrsJSON, err := storyutil.MarshalForPrompt(in.Attributes)
	if err != nil {
		return nil, apperrors.ErrInternalError.WithError(err)
	}
	outlineJSON, err := storyutil.MarshalForPrompt(in.Outline)
	if err != nil {
		return nil, apperrors.ErrInternalError.WithError(err)
	}

	total := in.Outline.Len()
	results := make([]entity.SegmentProse, 0, total)
	var prev *entity.SegmentProse
	for _, seg := range in.Outline.Segments {
		if hooks.BeforeSegment != nil {
			if err := hooks.BeforeSegment(ctx, seg); err != nil {
				return results, err
			}
		}

		segJSON, err := storyutil.MarshalForPrompt(seg)
		if err != nil {
			return results, apperrors.ErrInternalError.WithError(err)
		}
		chainIn := &wfmodel.ProseGenerateInput{
			AttributesJSON: attrsJSON,
			OutlineJSON:    outlineJSON,
			SegmentJSON:    segJSON,
			SegmentIndex:   seg.Index,
			SegmentCount:   total,
			SegmentTitle:   seg.Title,
			LLMParams:      in.LLM,
		}
		if prev != nil {
			chainIn.PreviousTitle = prev.Segment.Title
			chainIn.PreviousProse = previousContext(prev.Text, w.opts.PreviousContextRunes)
		}

		p, err := w.writeSegment(ctx, seg, chainIn, hooks)
		if err != nil {
			return results, err
		}
		results = append(results, *p)
		prev = &results[len(results)-1]

		metrics.SegmentsWritten.Inc()
		if hooks.OnSegment != nil {
			if err := hooks.OnSegment(*p); err != nil {
				return results, err
			}
		}
	}
	return results, nil
}

func previousContext(text string, maxRunes int) string {
	if maxRunes <= 0 {
		return text
	}
	return wfnode.TailByRunes(text, maxRunes)
}

func (w *Writer) writeSegment(ctx context.Context, seg entity.Segment, in *wfmodel.ProseGenerateInput, hooks Hooks) (*entity.SegmentProse, error) {
	ctx, span := tracer.Start(ctx, "story.prose.segment")
	defer span.End()
	span.SetAttributes(
		attribute.Int("segment.index", seg.Index),
		attribute.Int("segment.count", in.SegmentCount),
		attribute.Bool("segment.stream", w.opts.Stream),
		attribute.Bool("segment.has_previous", in.PreviousProse != ""),
	)
	ctx = logger.WithContext(ctx, logger.SegmentKey, seg.Index)

	meta := wfmodel.NewUsageMeta(in.LLMParams)
	var text string
	attempts, err := wfnode.Retry(ctx, Stage, w.opts.Retry, func(ctx context.Context, attempt int) error {
		if hooks.OnAttempt != nil {
			hooks.OnAttempt(seg, attempt)
		}

		var (
			out string
			err error
		)
		if w.opts.Stream {
			out, err = w.stream(ctx, seg, in, &meta, hooks.OnChunk)
		} else {
			out, err = w.invoke(ctx, in, &meta)
		}
		if err != nil {
			return err
		}

		out = strings.TrimSpace(out)
		if out == "" {
			metrics.ValidationTotal.WithLabelValues(Stage, "rejected").Inc()
			return storyutil.ValidationError{Stage: Stage, Issues: []string{fmt.Sprintf("segment %d text is empty", seg.Index)}}
		}
		metrics.ValidationTotal.WithLabelValues(Stage, "accepted").Inc()
		text = out
		return nil
	})
	span.SetAttributes(attribute.Int("segment.attempts", attempts))
	if err != nil {
		tracer.Fail(span, err)
		return nil, storyutil.StageError(fmt.Sprintf("%s segment %d", Stage, seg.Index), err)
	}

	logger.Info(ctx, "segment written",
		"attempts", attempts,
		"words", entity.CountWords(text),
		"prompt_tokens", meta.PromptTokens,
		"completion_tokens", meta.CompletionTokens,
	)
	return &entity.SegmentProse{
		Segment:          seg,
		Text:             text,
		PromptTokens:     meta.PromptTokens,
		CompletionTokens: meta.CompletionTokens,
	}, nil
}

func (w *Writer) invoke(ctx context.Context, in *wfmodel.ProseGenerateInput, meta *wfmodel.LLMUsageMeta) (string, error) {
	outMsg, err := w.chain.Invoke(ctx, in)
	if err != nil {
		return "", err
	}
	meta.AddUsage(outMsg)
	return outMsg.Content, nil
}

func (w *Writer) stream(ctx context.Context, seg entity.Segment, in *wfmodel.ProseGenerateInput, meta *wfmodel.LLMUsageMeta, onChunk func(entity.Segment, string)) (string, error) {
	reader, err := w.chain.Stream(ctx, in)
	if err != nil {
		return "", err
	}
	defer reader.Close()

	var b strings.Builder
	for {
		msg, err := reader.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		if msg == nil {
			continue
		}
		meta.AddUsage(msg)
		if msg.Content == "" {
			continue
		}
		b.WriteString(msg.Content)
		if onChunk != nil {
			onChunk(seg, msg.Content)
		}
	}
	return b.String(), nil
}
