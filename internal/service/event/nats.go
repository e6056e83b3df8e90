package event

import (
	"context"
	"encoding/json"
	"fmt"
)

// MessagePublisher NATS 连接的发布能力
type MessagePublisher interface {
	Publish(subject string, data []byte) error
}

// NATSForwarder 把总线事件转发到 NATS，subject 为 <prefix>.<event type>
type NATSForwarder struct {
	conn   MessagePublisher
	prefix string
}

// NewNATSForwarder 创建 NATS 转发器
func NewNATSForwarder(conn MessagePublisher, prefix string) *NATSForwarder {
	return &NATSForwarder{conn: conn, prefix: prefix}
}

// Subject 事件对应的 subject
func (f *NATSForwarder) Subject(t EventType) string {
	if f.prefix == "" {
		return string(t)
	}
	return f.prefix + "." + string(t)
}

// Handle 实现 Handler
func (f *NATSForwarder) Handle(ctx context.Context, evt *Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := f.conn.Publish(f.Subject(evt.Type), data); err != nil {
		return fmt.Errorf("failed to publish event to nats: %w", err)
	}
	return nil
}
