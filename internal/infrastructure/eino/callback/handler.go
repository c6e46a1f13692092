package callback

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	cbtemplate "github.com/cloudwego/eino/utils/callbacks"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"storyforge/internal/domain/service"
	"storyforge/pkg/logger"
	"storyforge/pkg/metrics"
	"storyforge/pkg/tracer"
)

type startTimeKey struct{}

// callInfo 一次模型调用结束时的统计信息
type callInfo struct {
	workflow string
	provider string
	model    string
	usage    *model.TokenUsage
	elapsed  float64
}

// pendingUsage 跟踪后台仍在读取的流式回调
type pendingUsage struct {
	wg sync.WaitGroup
}

// Flush 阻塞到所有流式回调完成记录，或 ctx 结束
func (p *pendingUsage) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func newChatModelCallbackHandler(usageRecorder service.LLMUsageRecorder, pending *pendingUsage) *cbtemplate.ModelCallbackHandler {
	return &cbtemplate.ModelCallbackHandler{
		OnStart: func(ctx context.Context, info *einocb.RunInfo, input *model.CallbackInput) context.Context {
			ctx = context.WithValue(ctx, startTimeKey{}, time.Now())

			attrs := []attribute.KeyValue{
				attribute.String("eino.workflow", service.WorkflowFromContext(ctx)),
				attribute.String("llm.provider", service.ProviderFromContext(ctx)),
				attribute.String("llm.model", modelNameFromInput(input)),
			}
			if info != nil {
				attrs = append(attrs,
					attribute.String("eino.node_name", info.Name),
					attribute.String("eino.type", info.Type),
				)
			}

			ctx, _ = tracer.Start(ctx, "llm.generate", trace.WithAttributes(attrs...))
			return ctx
		},

		OnEnd: func(ctx context.Context, _ *einocb.RunInfo, output *model.CallbackOutput) context.Context {
			ci := callInfo{
				workflow: service.WorkflowFromContext(ctx),
				provider: service.ProviderFromContext(ctx),
				model:    modelNameFromOutput(output),
				elapsed:  elapsedSeconds(ctx),
			}
			if output != nil {
				ci.usage = output.TokenUsage
			}
			finishCall(ctx, usageRecorder, ci)
			return ctx
		},

		// 流式输出：后台读完整个流后再统计；必须关闭 reader。配额检查前经 Flush 等待。
		OnEndWithStreamOutput: func(ctx context.Context, _ *einocb.RunInfo, output *schema.StreamReader[*model.CallbackOutput]) context.Context {
			ci := callInfo{
				workflow: service.WorkflowFromContext(ctx),
				provider: service.ProviderFromContext(ctx),
			}
			pending.wg.Add(1)
			go func() {
				defer pending.wg.Done()
				defer output.Close()
				for {
					chunk, err := output.Recv()
					if errors.Is(err, io.EOF) {
						break
					}
					if err != nil {
						logger.Debug(ctx, "llm stream callback ended with error", "error", err.Error())
						break
					}
					if chunk == nil {
						continue
					}
					if chunk.TokenUsage != nil {
						ci.usage = chunk.TokenUsage
					}
					if name := modelNameFromOutput(chunk); name != "" {
						ci.model = name
					}
				}
				ci.elapsed = elapsedSeconds(ctx)
				finishCall(ctx, usageRecorder, ci)
			}()
			return ctx
		},

		OnError: func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			workflow := service.WorkflowFromContext(ctx)
			provider := service.ProviderFromContext(ctx)
			modelName := ""
			if info != nil {
				modelName = info.Type
			}

			metrics.LLMCallTotal.WithLabelValues(workflow, provider, modelName, "error").Inc()
			if d := elapsedSeconds(ctx); d > 0 {
				metrics.LLMCallDuration.WithLabelValues(workflow, provider, modelName).Observe(d)
			}

			span := trace.SpanFromContext(ctx)
			tracer.Fail(span, err)
			span.End()
			return ctx
		},
	}
}

func finishCall(ctx context.Context, usageRecorder service.LLMUsageRecorder, ci callInfo) {
	metrics.LLMCallTotal.WithLabelValues(ci.workflow, ci.provider, ci.model, "success").Inc()
	if ci.elapsed > 0 {
		metrics.LLMCallDuration.WithLabelValues(ci.workflow, ci.provider, ci.model).Observe(ci.elapsed)
	}

	span := trace.SpanFromContext(ctx)
	defer span.End()
	if ci.usage == nil {
		return
	}

	promptTokens := ci.usage.PromptTokens
	completionTokens := ci.usage.CompletionTokens
	metrics.LLMTokensUsed.WithLabelValues(ci.workflow, ci.provider, ci.model, "prompt").Add(float64(promptTokens))
	metrics.LLMTokensUsed.WithLabelValues(ci.workflow, ci.provider, ci.model, "completion").Add(float64(completionTokens))
	span.SetAttributes(
		attribute.Int("llm.prompt_tokens", promptTokens),
		attribute.Int("llm.completion_tokens", completionTokens),
	)

	// 配额累计与流水由应用层实现，这里只做 best-effort 调用
	if usageRecorder != nil {
		if err := usageRecorder.Record(ctx, service.LLMUsageInput{
			WriterID:         service.WriterFromContext(ctx),
			SessionID:        service.SessionFromContext(ctx),
			Workflow:         ci.workflow,
			Provider:         ci.provider,
			Model:            ci.model,
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			DurationMs:       int(ci.elapsed * 1000),
		}); err != nil {
			logger.Warn(ctx, "failed to record llm usage", "error", err.Error())
		}
	}
}

func elapsedSeconds(ctx context.Context) float64 {
	start, ok := ctx.Value(startTimeKey{}).(time.Time)
	if !ok || start.IsZero() {
		return 0
	}
	return time.Since(start).Seconds()
}

func modelNameFromInput(in *model.CallbackInput) string {
	if in == nil || in.Config == nil {
		return ""
	}
	return in.Config.Model
}

func modelNameFromOutput(out *model.CallbackOutput) string {
	if out == nil || out.Config == nil {
		return ""
	}
	return out.Config.Model
}
