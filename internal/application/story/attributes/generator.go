// Package attributes 实现第一阶段：从自由文本提示抽取结构化故事属性。
package attributes

import (
	"context"
	"fmt"
	"strings"

	"storyforge/internal/application/story/genre"
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

const Stage = "attributes"

type GenerateInput struct {
	Prompt      string
	PinnedGenre string
	LLM         wfmodel.LLMParams
}

type GenerateOutput struct {
	Attributes *entity.StoryAttributes
	Raw        string
	Meta       wfmodel.LLMUsageMeta
}

type Generator struct {
	chain  *workflowchain.AttributesChain
	genres *genre.Catalogue
	retry  wfnode.RetryPolicy
}

func NewGenerator(factory workflowport.ChatModelFactory, genres *genre.Catalogue, retry wfnode.RetryPolicy) *Generator {
	return &Generator{
		chain:  workflowchain.NewAttributesChain(factory),
		genres: genres,
		retry:  retry,
	}
}

func (g *Generator) Generate(ctx context.Context, in *GenerateInput) (*GenerateOutput, error) {
	if g == nil || g.chain == nil {
		return nil, fmt.Errorf("attributes workflow not configured")
	}
	if in == nil || strings.TrimSpace(in.Prompt) == "" {
		return nil, apperrors.ErrInvalidParam.WithDetail("story prompt is empty")
	}

	pinned := strings.TrimSpace(in.PinnedGenre)
	if pinned != "" {
		canonical, ok := g.genres.Canonical(pinned)
		if !ok {
			return nil, apperrors.ErrInvalidParam.WithDetail("unknown genre: " + pinned)
		}
		pinned = canonical
	}

	chainIn := &wfmodel.AttributesGenerateInput{
		Prompt:      in.Prompt,
		Genres:      g.genres.Names(),
		PinnedGenre: pinned,
		LLMParams:   in.LLM,
	}

	meta := wfmodel.NewUsageMeta(in.LLM)
	var (
		attrs *entity.StoryAttributes
		raw   string
	)
	attempts, err := wfnode.Retry(ctx, Stage, g.retry, func(ctx context.Context, attempt int) error {
		outMsg, err := g.chain.Invoke(ctx, chainIn)
		if err != nil {
			return err
		}
		meta.AddUsage(outMsg)

		parsed, jsonText, err := ParseAttributes(outMsg.Content)
		if err == nil {
			Normalize(parsed, g.genres)
			err = Validate(parsed, g.genres, pinned)
		}
		if err != nil {
			metrics.ValidationTotal.WithLabelValues(Stage, "rejected").Inc()
			logger.Debug(ctx, "attributes output rejected", "attempt", attempt, "raw", wfnode.TruncateByRunes(outMsg.Content, 500))
			return err
		}
		metrics.ValidationTotal.WithLabelValues(Stage, "accepted").Inc()
		attrs, raw = parsed, jsonText
		return nil
	})
	meta.Attempts = attempts
	if err != nil {
		return nil, storyutil.StageError(Stage, err)
	}

	return &GenerateOutput{Attributes: attrs, Raw: raw, Meta: meta}, nil
}
