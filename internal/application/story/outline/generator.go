// Package outline 实现第二阶段：把故事属性展开为有序片段，片段 schema 依赖第一阶段输出。
package outline

import (
	"context"
	"fmt"
	"strings"

	"storyforge/internal/application/story/storyutil"
	"storyforge/internal/domain/entity"
	workflowchain "storyforge/internal/workflow/chain"
	wfmodel "storyforge/internal/workflow/model"
	wfnode "storyforge/internal/workflow/node"
	workflowport "storyforge/internal/workflow/port"
	apperrors "storyforge/pkg/errors"
	"storyforge/pkg/logger"
	"storyforge/pkg/metrics"
)

const Stage = "outline"

type GenerateInput struct {
	Prompt       string
	Attributes   *entity.StoryAttributes
	SegmentCount int
	LLM          wfmodel.LLMParams
}

type GenerateOutput struct {
	Outline *entity.StoryOutline
	Raw     string
	Meta    wfmodel.LLMUsageMeta
}

type Generator struct {
	chain *workflowchain.OutlineChain
	retry wfnode.RetryPolicy
}

func NewGenerator(factory workflowport.ChatModelFactory, retry wfnode.RetryPolicy) *Generator {
	return &Generator{
		chain: workflowchain.NewOutlineChain(factory),
		retry: retry,
	}
}

func (g *Generator) Generate(ctx context.Context, in *GenerateInput) (*GenerateOutput, error) {
	if g == nil || g.chain == nil {
		return nil, fmt.Errorf("outline workflow not configured")
	}
	if in == nil || in.Attributes == nil {
		return nil, apperrors.ErrInvalidParam.WithDetail("story attributes are required")
	}
	if in.SegmentCount <= 0 {
		return nil, apperrors.ErrInvalidParam.WithDetail(fmt.Sprintf("segment count must be positive, got %d", in.SegmentCount))
	}
	names := in.Attributes.CharacterNames()
	if len(names) == 0 {
		return nil, apperrors.ErrInvalidParam.WithDetail("story attributes have no characters")
	}

	attrsJSON, err := storyutil.MarshalForPrompt(in.Attributes)
	if err != nil {
		return nil, apperrors.ErrInternalError.WithError(err)
	}

	chainIn := &wfmodel.OutlineGenerateInput{
		Prompt:         strings.TrimSpace(in.Prompt),
		AttributesJSON: attrsJSON,
		CharacterNames: names,
		SegmentCount:   in.SegmentCount,
		LLMParams:      in.LLM,
	}

	meta := wfmodel.NewUsageMeta(in.LLM)
	var (
		result *entity.StoryOutline
		raw    string
	)
	attempts, err := wfnode.Retry(ctx, Stage, g.retry, func(ctx context.Context, attempt int) error {
		outMsg, err := g.chain.Invoke(ctx, chainIn)
		if err != nil {
			return err
		}
		meta.AddUsage(outMsg)

		parsed, jsonText, err := ParseOutline(outMsg.Content)
		if err == nil {
			Normalize(parsed, in.Attributes)
			err = Validate(parsed, in.Attributes, in.SegmentCount)
		}
		if err != nil {
			metrics.ValidationTotal.WithLabelValues(Stage, "rejected").Inc()
			logger.Debug(ctx, "outline output rejected", "attempt", attempt, "error", err.Error())
			return err
		}
		metrics.ValidationTotal.WithLabelValues(Stage, "accepted").Inc()
		result, raw = parsed, jsonText
		return nil
	})
	meta.Attempts = attempts
	if err != nil {
		return nil, storyutil.StageError(Stage, err)
	}

	return &GenerateOutput{Outline: result, Raw: raw, Meta: meta}, nil
}
