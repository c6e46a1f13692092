package chain

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/cloudwego/eino/schema"

	wfmodel "storyforge/internal/workflow/model"
	workflowport "storyforge/internal/workflow/port"
	workflowprompt "storyforge/internal/workflow/prompt"
)

const WorkflowStoryOutline = "story_outline"

type OutlineChain struct {
	base *llmChain
}

func NewOutlineChain(factory workflowport.ChatModelFactory) *OutlineChain {
	return &OutlineChain{base: newLLMChain("outline", factory)}
}

func (c *OutlineChain) Invoke(ctx context.Context, in *wfmodel.OutlineGenerateInput) (*schema.Message, error) {
	if in == nil {
		return nil, fmt.Errorf("input is nil")
	}
	if c == nil || c.base == nil {
		return nil, fmt.Errorf("llm factory not configured")
	}
	if in.SegmentCount <= 0 {
		return nil, fmt.Errorf("segment count must be positive")
	}
	if len(in.CharacterNames) == 0 {
		return nil, fmt.Errorf("character names are required")
	}
	return c.base.invoke(ctx, &stageRequest{
		Workflow: WorkflowStoryOutline,
		Prompt:   workflowprompt.PromptStoryOutlineV1,
		Vars: map[string]any{
			"prompt":          strings.TrimSpace(in.Prompt),
			"attributes_json": strings.TrimSpace(in.AttributesJSON),
			"segment_count":   strconv.Itoa(in.SegmentCount),
			"character_names": strings.Join(in.CharacterNames, ", "),
		},
		Schema: &jsonSchemaSpec{
			Name:   "story_outline",
			Schema: OutlineJSONSchema(in.CharacterNames, in.SegmentCount),
		},
		Params: in.LLMParams,
	})
}

// OutlineJSONSchema 的角色枚举来自第一阶段输出，片段数量固定为 count。
func OutlineJSONSchema(characterNames []string, count int) map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []any{"segments"},
		"properties": map[string]any{
			"segments": map[string]any{
				"type":     "array",
				"minItems": count,
				"maxItems": count,
				"items": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"required":             []any{"index", "title", "summary", "characters", "setting", "goal"},
					"properties": map[string]any{
						"index":   map[string]any{"type": "integer"},
						"title":   map[string]any{"type": "string"},
						"summary": map[string]any{"type": "string"},
						"characters": map[string]any{
							"type":     "array",
							"minItems": 1,
							"items": map[string]any{
								"type": "string",
								"enum": stringsToAny(characterNames),
							},
						},
						"setting": map[string]any{"type": "string"},
						"goal":    map[string]any{"type": "string"},
					},
				},
			},
		},
	}
}
