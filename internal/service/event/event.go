// Package event 提供会话生命周期事件总线
package event

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// EventType 事件类型
type EventType string

const (
	// ConversationOpened 新会话创建
	ConversationOpened EventType = "conversation.opened"
	// ConversationSplit 结束语触发的会话拆分
	ConversationSplit EventType = "conversation.split"
	// ConversationSolved 会话被标记为已解决
	ConversationSolved EventType = "conversation.solved"
	// ConversationReopened 会话重新打开
	ConversationReopened EventType = "conversation.reopened"
	// MessageIngested 消息写入
	MessageIngested EventType = "message.ingested"
	// SummaryUpdated 会话摘要更新
	SummaryUpdated EventType = "summary.updated"
)

// Event 生命周期事件
type Event struct {
	ID             string                 `json:"id"`
	Type           EventType              `json:"type"`
	ClientID       string                 `json:"client_id,omitempty"`
	ConversationID uint                   `json:"conversation_id,omitempty"`
	MessageID      uint                   `json:"message_id,omitempty"`
	Status         string                 `json:"status,omitempty"`
	Data           string                 `json:"data,omitempty"`
	Timestamp      time.Time              `json:"timestamp"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// New 创建事件
func New(t EventType, clientID string, conversationID uint) *Event {
	return &Event{
		ID:             "evt_" + uuid.New().String(),
		Type:           t,
		ClientID:       clientID,
		ConversationID: conversationID,
		Timestamp:      time.Now().UTC(),
	}
}

// Handler 事件处理器接口
type Handler interface {
	Handle(ctx context.Context, evt *Event) error
}

// HandlerFunc 函数类型的事件处理器
type HandlerFunc func(ctx context.Context, evt *Event) error

// Handle 实现 Handler 接口
func (f HandlerFunc) Handle(ctx context.Context, evt *Event) error {
	return f(ctx, evt)
}

// Publisher 事件发布接口
type Publisher interface {
	Publish(ctx context.Context, evt *Event)
}

// ========== EventBus ==========

const allEvents EventType = "*"

// EventBus 进程内事件总线
// 处理器同步执行，错误只记录不影响发布方
type EventBus struct {
	subscribers map[EventType][]Handler
	mu          sync.RWMutex
}

var _ Publisher = (*EventBus)(nil)

// NewEventBus 创建事件总线
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Handler),
	}
}

// Subscribe 订阅指定类型的事件
func (b *EventBus) Subscribe(t EventType, handler Handler) error {
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.subscribers[t] = append(b.subscribers[t], handler)
	return nil
}

// SubscribeAll 订阅所有事件
func (b *EventBus) SubscribeAll(handler Handler) error {
	return b.Subscribe(allEvents, handler)
}

// Publish 发布事件
func (b *EventBus) Publish(ctx context.Context, evt *Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subscribers[evt.Type])+len(b.subscribers[allEvents]))
	handlers = append(handlers, b.subscribers[evt.Type]...)
	handlers = append(handlers, b.subscribers[allEvents]...)
	b.mu.RUnlock()

	for _, h := range handlers {
		if err := h.Handle(ctx, evt); err != nil {
			log.Warn().Err(err).
				Str("event", string(evt.Type)).
				Uint("conversation_id", evt.ConversationID).
				Msg("event handler failed")
		}
	}
}

// Async 包装处理器使其异步执行
// 事件处理脱离发布方的 ctx，避免请求结束后被取消
func Async(h Handler) Handler {
	return HandlerFunc(func(ctx context.Context, evt *Event) error {
		go func() {
			if err := h.Handle(context.WithoutCancel(ctx), evt); err != nil {
				log.Warn().Err(err).Str("event", string(evt.Type)).Msg("async event handler failed")
			}
		}()
		return nil
	})
}

// NopPublisher 丢弃所有事件
type NopPublisher struct{}

// Publish 实现 Publisher
func (NopPublisher) Publish(context.Context, *Event) {}
