package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"storyforge/internal/config"
	wfnode "storyforge/internal/workflow/node"
	apperrors "storyforge/pkg/errors"
)

// EinoFactory 按 provider 名称惰性创建并缓存 OpenAI 兼容的 ChatModel
type EinoFactory struct {
	config *config.LLMConfig
	models map[string]model.BaseChatModel
	mu     sync.RWMutex
}

func NewEinoFactory(cfg *config.LLMConfig) *EinoFactory {
	return &EinoFactory{
		config: cfg,
		models: make(map[string]model.BaseChatModel),
	}
}

// Get 获取指定名称的 ChatModel，name 为空时使用默认 provider
func (f *EinoFactory) Get(ctx context.Context, name string) (model.BaseChatModel, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = f.config.DefaultProvider
	}

	f.mu.RLock()
	m, ok := f.models[name]
	f.mu.RUnlock()
	if ok {
		return m, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok = f.models[name]; ok {
		return m, nil
	}

	providerCfg, ok := f.config.Providers[name]
	if !ok {
		return nil, misconfigured(fmt.Errorf("provider %s not found in LLM config", name))
	}
	if strings.TrimSpace(providerCfg.APIKey) == "" {
		return nil, misconfigured(fmt.Errorf("provider %s has no api_key configured", name))
	}

	chatModel, err := openai.NewChatModel(ctx, chatModelConfig(providerCfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create eino chat model for %s: %w", name, err)
	}

	f.models[name] = chatModel
	return chatModel, nil
}

// misconfigured 配置类错误重试无意义，直接以配置错误结束阶段
func misconfigured(err error) error {
	return wfnode.Permanent(apperrors.Wrap(err, apperrors.CodeConfigError, "llm provider misconfigured"))
}

// chatModelConfig 零值字段不下发，交给服务端默认
func chatModelConfig(p config.ProviderConfig) *openai.ChatModelConfig {
	cfg := &openai.ChatModelConfig{
		APIKey:  p.APIKey,
		BaseURL: p.BaseURL,
		Model:   p.Model,
		Timeout: p.Timeout,
	}
	if p.MaxTokens > 0 {
		maxTokens := p.MaxTokens
		cfg.MaxTokens = &maxTokens
	}
	if p.Temperature > 0 {
		temperature := float32(p.Temperature)
		cfg.Temperature = &temperature
	}
	return cfg
}
