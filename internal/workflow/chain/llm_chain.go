package chain

import (
	"context"
	"fmt"
	"strings"
	"sync"

	openaiopts "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	llmctx "storyforge/internal/domain/service"
	wfmodel "storyforge/internal/workflow/model"
	wfnode "storyforge/internal/workflow/node"
	workflowport "storyforge/internal/workflow/port"
	workflowprompt "storyforge/internal/workflow/prompt"
	"storyforge/pkg/logger"
)

var defaultPromptRegistry = workflowprompt.NewRegistry()

// jsonSchemaSpec 对应 OpenAI response_format.json_schema
type jsonSchemaSpec struct {
	Name   string
	Schema map[string]any
}

// stageRequest 是三个阶段共用的 LLM 调用请求
type stageRequest struct {
	Workflow string
	Prompt   workflowprompt.PromptID
	Vars     map[string]any
	Schema   *jsonSchemaSpec
	Params   wfmodel.LLMParams

	chatModel model.BaseChatModel
}

type llmChainState struct {
	Req      *stageRequest
	Messages []*schema.Message
	OutMsg   *schema.Message
}

// llmChain 编排 template -> llm -> finalize；provider 在运行时按请求解析。
type llmChain struct {
	name    string
	factory workflowport.ChatModelFactory

	chainOnce sync.Once
	chain     compose.Runnable[*stageRequest, *schema.Message]
	chainErr  error
}

func newLLMChain(name string, factory workflowport.ChatModelFactory) *llmChain {
	return &llmChain{name: name, factory: factory}
}

func (c *llmChain) invoke(ctx context.Context, req *stageRequest) (*schema.Message, error) {
	if c == nil || c.factory == nil {
		return nil, fmt.Errorf("llm factory not configured")
	}
	if req == nil {
		return nil, fmt.Errorf("input is nil")
	}
	chain, err := c.getChain()
	if err != nil {
		return nil, err
	}
	// provider 在进入图之前解析，配置错误不经过节点错误包装。
	chatModel, err := c.factory.Get(ctx, strings.TrimSpace(req.Params.Provider))
	if err != nil {
		return nil, err
	}
	resolved := *req
	resolved.chatModel = chatModel
	return chain.Invoke(ctx, &resolved)
}

// stream 返回 Eino StreamReader；调用方负责 Close()。
// 流可能在最后返回一个 Content 为空但包含 Usage 的消息。
func (c *llmChain) stream(ctx context.Context, req *stageRequest) (*schema.StreamReader[*schema.Message], error) {
	if c == nil || c.factory == nil {
		return nil, fmt.Errorf("llm factory not configured")
	}
	if req == nil {
		return nil, fmt.Errorf("input is nil")
	}

	provider := strings.TrimSpace(req.Params.Provider)
	ctx = llmctx.WithWorkflowProvider(ctx, req.Workflow+"_stream", provider)
	chatModel, err := c.factory.Get(ctx, provider)
	if err != nil {
		return nil, err
	}
	msgs, err := formatMessages(ctx, req)
	if err != nil {
		return nil, err
	}

	reader, err := chatModel.Stream(ctx, msgs, buildModelOptions(req, true)...)
	if err != nil && req.Schema != nil && wfnode.IsStructuredOutputUnsupported(err) {
		if reader != nil {
			reader.Close()
		}
		logger.Warn(ctx, "llm json_schema not supported for stream, fallback to prompt-only",
			"provider", provider,
			"model", strings.TrimSpace(req.Params.Model),
			"error", err.Error(),
		)
		return chatModel.Stream(ctx, msgs, buildModelOptions(req, false)...)
	}
	return reader, err
}

func (c *llmChain) getChain() (compose.Runnable[*stageRequest, *schema.Message], error) {
	c.chainOnce.Do(func() {
		c.chain, c.chainErr = c.buildChain(context.Background())
	})
	return c.chain, c.chainErr
}

func (c *llmChain) buildChain(ctx context.Context) (compose.Runnable[*stageRequest, *schema.Message], error) {
	chain := compose.NewChain[*stageRequest, *schema.Message]()

	chain.AppendLambda(
		compose.InvokableLambda(func(ctx context.Context, req *stageRequest) (*llmChainState, error) {
			if req == nil {
				return nil, fmt.Errorf("input is nil")
			}
			msgs, err := formatMessages(ctx, req)
			if err != nil {
				return nil, err
			}
			return &llmChainState{Req: req, Messages: msgs}, nil
		}),
		compose.WithNodeName(c.name+".template"),
	)

	chain.AppendLambda(
		compose.InvokableLambda(func(ctx context.Context, st *llmChainState) (*llmChainState, error) {
			if st == nil || st.Req == nil {
				return nil, fmt.Errorf("state is nil")
			}

			provider := strings.TrimSpace(st.Req.Params.Provider)
			ctx = llmctx.WithWorkflowProvider(ctx, st.Req.Workflow, provider)
			chatModel := st.Req.chatModel
			if chatModel == nil {
				var err error
				if chatModel, err = c.factory.Get(ctx, provider); err != nil {
					return nil, err
				}
			}

			outMsg, err := chatModel.Generate(ctx, st.Messages, buildModelOptions(st.Req, true)...)
			if err != nil && st.Req.Schema != nil && wfnode.IsStructuredOutputUnsupported(err) {
				logger.Warn(ctx, "llm json_schema not supported, fallback to prompt-only",
					"provider", provider,
					"model", strings.TrimSpace(st.Req.Params.Model),
					"error", err.Error(),
				)
				outMsg, err = chatModel.Generate(ctx, st.Messages, buildModelOptions(st.Req, false)...)
			}
			if err != nil {
				return nil, err
			}
			if outMsg == nil {
				return nil, fmt.Errorf("empty llm response")
			}
			st.OutMsg = outMsg
			return st, nil
		}),
		compose.WithNodeName(c.name+".llm"),
	)

	chain.AppendLambda(
		compose.InvokableLambda(func(_ context.Context, st *llmChainState) (*schema.Message, error) {
			if st == nil || st.OutMsg == nil {
				return nil, fmt.Errorf("state is nil")
			}
			return st.OutMsg, nil
		}),
		compose.WithNodeName(c.name+".finalize"),
	)

	return chain.Compile(ctx)
}

func formatMessages(ctx context.Context, req *stageRequest) ([]*schema.Message, error) {
	tpl, err := defaultPromptRegistry.ChatTemplate(req.Prompt)
	if err != nil {
		return nil, err
	}
	return tpl.Format(ctx, req.Vars)
}

func buildModelOptions(req *stageRequest, enableSchema bool) []model.Option {
	opts := make([]model.Option, 0, 4)
	if req == nil {
		return opts
	}

	p := req.Params
	if p.Temperature != nil {
		opts = append(opts, model.WithTemperature(*p.Temperature))
	}
	if p.MaxTokens != nil {
		opts = append(opts, model.WithMaxTokens(*p.MaxTokens))
	}
	if m := strings.TrimSpace(p.Model); m != "" {
		opts = append(opts, model.WithModel(m))
	}

	if enableSchema && req.Schema != nil {
		opts = append(opts, openaiopts.WithExtraFields(map[string]any{
			"response_format": map[string]any{
				"type": "json_schema",
				"json_schema": map[string]any{
					"name":   req.Schema.Name,
					"strict": false,
					"schema": req.Schema.Schema,
				},
			},
		}))
	}
	return opts
}

func stringsToAny(values []string) []any {
	out := make([]any, 0, len(values))
	for _, v := range values {
		out = append(out, v)
	}
	return out
}
