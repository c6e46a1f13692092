// Package llmfake 提供脚本化的 ChatModel，供各层单元测试使用。
package llmfake

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

type Reply struct {
	Content string
	Err     error

	PromptTokens     int
	CompletionTokens int
}

type Call struct {
	Messages []*schema.Message
	Options  int
	Streamed bool
}

// UserText 返回该次调用最后一条 user 消息内容
func (c Call) UserText() string {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i] != nil && c.Messages[i].Role == schema.User {
			return c.Messages[i].Content
		}
	}
	return ""
}

// ChatModel 依次消费 Replies；Respond 非空时优先使用。
type ChatModel struct {
	mu sync.Mutex

	Replies []Reply
	Respond func(call int, msgs []*schema.Message) Reply

	calls []Call
}

func New(replies ...Reply) *ChatModel {
	return &ChatModel{Replies: replies}
}

func (m *ChatModel) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

func (m *ChatModel) next(msgs []*schema.Message, opts []model.Option, streamed bool) Reply {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := len(m.calls)
	m.calls = append(m.calls, Call{Messages: msgs, Options: len(opts), Streamed: streamed})
	if m.Respond != nil {
		return m.Respond(idx, msgs)
	}
	if len(m.Replies) == 0 {
		return Reply{Err: fmt.Errorf("llmfake: no reply scripted for call %d", idx+1)}
	}
	r := m.Replies[0]
	if len(m.Replies) > 1 {
		m.Replies = m.Replies[1:]
	}
	return r
}

func (m *ChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r := m.next(input, opts, false)
	if r.Err != nil {
		return nil, r.Err
	}
	msg := schema.AssistantMessage(r.Content, nil)
	msg.ResponseMeta = usageMeta(r)
	return msg, nil
}

// Stream 把内容按空白切成若干块，最后附带一个仅含 Usage 的消息。
func (m *ChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r := m.next(input, opts, true)
	if r.Err != nil {
		return nil, r.Err
	}

	chunks := make([]*schema.Message, 0, 8)
	for _, part := range strings.SplitAfter(r.Content, " ") {
		if part == "" {
			continue
		}
		chunks = append(chunks, schema.AssistantMessage(part, nil))
	}
	tail := schema.AssistantMessage("", nil)
	tail.ResponseMeta = usageMeta(r)
	chunks = append(chunks, tail)
	return schema.StreamReaderFromArray(chunks), nil
}

func usageMeta(r Reply) *schema.ResponseMeta {
	if r.PromptTokens == 0 && r.CompletionTokens == 0 {
		return nil
	}
	return &schema.ResponseMeta{Usage: &schema.TokenUsage{
		PromptTokens:     r.PromptTokens,
		CompletionTokens: r.CompletionTokens,
		TotalTokens:      r.PromptTokens + r.CompletionTokens,
	}}
}

// Factory 实现 workflow port.ChatModelFactory
type Factory struct {
	Model *ChatModel
	Err   error

	mu        sync.Mutex
	requested []string
}

func NewFactory(m *ChatModel) *Factory {
	return &Factory{Model: m}
}

func (f *Factory) Get(_ context.Context, name string) (model.BaseChatModel, error) {
	f.mu.Lock()
	f.requested = append(f.requested, name)
	f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Model, nil
}

func (f *Factory) Requested() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requested...)
}
