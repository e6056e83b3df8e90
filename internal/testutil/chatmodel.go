package testutil

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ErrScriptExhausted 脚本回复已用完
var ErrScriptExhausted = errors.New("scripted chat model: no reply left")

// Reply 一次脚本回复
type Reply struct {
	Content string
	Err     error
}

// ScriptedChatModel 按脚本返回回复的 ChatModel，可并发调用
// Router 非空时优先按用户输入路由，否则按顺序消费 Replies
type ScriptedChatModel struct {
	mu      sync.Mutex
	Replies []Reply
	Router  func(prompt string) Reply
	Calls   []string
}

// NewScriptedChatModel 创建按顺序回复的模型
func NewScriptedChatModel(replies ...Reply) *ScriptedChatModel {
	return &ScriptedChatModel{Replies: replies}
}

// NewRoutingChatModel 创建按输入路由回复的模型
func NewRoutingChatModel(router func(prompt string) Reply) *ScriptedChatModel {
	return &ScriptedChatModel{Router: router}
}

// Generate 实现 model.BaseChatModel
func (m *ScriptedChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prompt := lastUserContent(input)

	m.mu.Lock()
	m.Calls = append(m.Calls, prompt)
	var reply Reply
	switch {
	case m.Router != nil:
		reply = m.Router(prompt)
	case len(m.Replies) > 0:
		reply = m.Replies[0]
		m.Replies = m.Replies[1:]
	default:
		reply = Reply{Err: ErrScriptExhausted}
	}
	m.mu.Unlock()

	if reply.Err != nil {
		return nil, reply.Err
	}
	return schema.AssistantMessage(reply.Content, nil), nil
}

// Stream 实现 model.BaseChatModel，测试中不使用
func (m *ScriptedChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("stream not supported")
}

// CallCount 已调用次数
func (m *ScriptedChatModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// CallsContaining 包含指定子串的调用次数
func (m *ScriptedChatModel) CallsContaining(substr string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.Calls {
		if strings.Contains(c, substr) {
			n++
		}
	}
	return n
}

func lastUserContent(input []*schema.Message) string {
	for i := len(input) - 1; i >= 0; i-- {
		if input[i].Role == schema.User {
			return input[i].Content
		}
	}
	return ""
}
