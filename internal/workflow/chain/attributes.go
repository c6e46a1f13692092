package chain

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"storyforge/internal/domain/entity"
	wfmodel "storyforge/internal/workflow/model"
	workflowport "storyforge/internal/workflow/port"
	workflowprompt "storyforge/internal/workflow/prompt"
)

const WorkflowStoryAttributes = "story_attributes"

type AttributesChain struct {
	base *llmChain
}

func NewAttributesChain(factory workflowport.ChatModelFactory) *AttributesChain {
	return &AttributesChain{base: newLLMChain("attributes", factory)}
}

func (c *AttributesChain) Invoke(ctx context.Context, in *wfmodel.AttributesGenerateInput) (*schema.Message, error) {
	if in == nil {
		return nil, fmt.Errorf("input is nil")
	}
	if c == nil || c.base == nil {
		return nil, fmt.Errorf("llm factory not configured")
	}
	return c.base.invoke(ctx, &stageRequest{
		Workflow: WorkflowStoryAttributes,
		Prompt:   workflowprompt.PromptStoryAttributesV1,
		Vars:     attributesVars(in),
		Schema: &jsonSchemaSpec{
			Name:   "story_attributes",
			Schema: AttributesJSONSchema(allowedGenres(in)),
		},
		Params: in.LLMParams,
	})
}

func allowedGenres(in *wfmodel.AttributesGenerateInput) []string {
	if g := strings.TrimSpace(in.PinnedGenre); g != "" {
		return []string{g}
	}
	return in.Genres
}

func attributesVars(in *wfmodel.AttributesGenerateInput) map[string]any {
	rule := "从可选体裁中挑选最贴合用户想法的一个"
	if g := strings.TrimSpace(in.PinnedGenre); g != "" {
		rule = "用户已指定体裁，genre 必须为 " + g
	}
	roles := make([]string, 0, 4)
	for _, r := range entity.CharacterRoles() {
		roles = append(roles, string(r))
	}
	return map[string]any{
		"prompt":     strings.TrimSpace(in.Prompt),
		"genres":     strings.Join(allowedGenres(in), ", "),
		"genre_rule": rule,
		"roles":      strings.Join(roles, ", "),
	}
}

// AttributesJSONSchema 返回第一阶段的输出 schema；genres 为空时不约束体裁枚举。
func AttributesJSONSchema(genres []string) map[string]any {
	genreProp := map[string]any{"type": "string"}
	if len(genres) > 0 {
		genreProp["enum"] = stringsToAny(genres)
	}
	roles := make([]any, 0, 4)
	for _, r := range entity.CharacterRoles() {
		roles = append(roles, string(r))
	}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []any{"title", "genre", "themes", "characters", "setting", "tone", "synopsis"},
		"properties": map[string]any{
			"title": map[string]any{"type": "string"},
			"genre": genreProp,
			"themes": map[string]any{
				"type":     "array",
				"minItems": 1,
				"maxItems": 8,
				"items":    map[string]any{"type": "string"},
			},
			"characters": map[string]any{
				"type":     "array",
				"minItems": 1,
				"maxItems": 24,
				"items": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"required":             []any{"name", "role", "description"},
					"properties": map[string]any{
						"name":        map[string]any{"type": "string"},
						"role":        map[string]any{"type": "string", "enum": roles},
						"description": map[string]any{"type": "string"},
					},
				},
			},
			"setting": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"required":             []any{"place", "era", "atmosphere"},
				"properties": map[string]any{
					"place":      map[string]any{"type": "string"},
					"era":        map[string]any{"type": "string"},
					"atmosphere": map[string]any{"type": "string"},
				},
			},
			"tone":     map[string]any{"type": "string"},
			"synopsis": map[string]any{"type": "string"},
		},
	}
}
