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

const WorkflowSegmentProse = "segment_prose"

// ProseChain 生成单个片段正文（纯文本，不带 response_format）
type ProseChain struct {
	base *llmChain
}

func NewProseChain(factory workflowport.ChatModelFactory) *ProseChain {
	return &ProseChain{base: newLLMChain("prose", factory)}
}

func (c *ProseChain) Invoke(ctx context.Context, in *wfmodel.ProseGenerateInput) (*schema.Message, error) {
	req, err := c.request(in)
	if err != nil {
		return nil, err
	}
	return c.base.invoke(ctx, req)
}

func (c *ProseChain) Stream(ctx context.Context, in *wfmodel.ProseGenerateInput) (*schema.StreamReader[*schema.Message], error) {
	req, err := c.request(in)
	if err != nil {
		return nil, err
	}
	return c.base.stream(ctx, req)
}

func (c *ProseChain) request(in *wfmodel.ProseGenerateInput) (*stageRequest, error) {
	if in == nil {
		return nil, fmt.Errorf("input is nil")
	}
	if c == nil || c.base == nil {
		return nil, fmt.Errorf("llm factory not configured")
	}
	return &stageRequest{
		Workflow: WorkflowSegmentProse,
		Prompt:   workflowprompt.PromptSegmentProseV1,
		Vars:     proseVars(in),
		Params:   in.LLMParams,
	}, nil
}

func proseVars(in *wfmodel.ProseGenerateInput) map[string]any {
	prevTitle := strings.TrimSpace(in.PreviousTitle)
	prevProse := strings.TrimSpace(in.PreviousProse)
	if prevProse == "" {
		prevTitle = "无（这是故事的第一个片段）"
		prevProse = "无"
	}
	return map[string]any{
		"attributes_json": strings.TrimSpace(in.AttributesJSON),
		"outline_json":    strings.TrimSpace(in.OutlineJSON),
		"segment_json":    strings.TrimSpace(in.SegmentJSON),
		"segment_index":   strconv.Itoa(in.SegmentIndex),
		"segment_count":   strconv.Itoa(in.SegmentCount),
		"segment_title":   strings.TrimSpace(in.SegmentTitle),
		"previous_title":  prevTitle,
		"previous_prose":  prevProse,
	}
}
