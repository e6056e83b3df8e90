package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// Consumer 从 NATS 订阅聊天事件并逐批摄取
type Consumer struct {
	pipeline *Pipeline
	subject  string
	queue    string
	sub      *nats.Subscription
}

// NewConsumer 创建 NATS 摄取消费者
func NewConsumer(pipeline *Pipeline, subject, queue string) *Consumer {
	return &Consumer{pipeline: pipeline, subject: subject, queue: queue}
}

// Start 以队列组方式订阅，同组多实例分摊消息
func (c *Consumer) Start(conn *nats.Conn) error {
	if conn == nil {
		return errors.New("nats connection is nil")
	}
	sub, err := conn.QueueSubscribe(c.subject, c.queue, func(msg *nats.Msg) {
		if err := c.handleMessage(context.Background(), msg.Data); err != nil {
			log.Warn().Err(err).Str("subject", msg.Subject).Msg("dropped ingest message")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe %s: %w", c.subject, err)
	}
	c.sub = sub
	log.Info().Str("subject", c.subject).Str("queue", c.queue).Msg("ingest consumer started")
	return nil
}

// Stop 取消订阅并处理完已收到的消息
func (c *Consumer) Stop() error {
	if c.sub == nil {
		return nil
	}
	return c.sub.Drain()
}

// handleMessage 处理一条 NATS 消息，格式错误的消息直接丢弃
func (c *Consumer) handleMessage(ctx context.Context, data []byte) error {
	batches, err := DecodeBatches(data)
	if err != nil {
		return err
	}
	for _, b := range batches {
		report, err := c.pipeline.IngestNamespace(ctx, b)
		if err != nil {
			return fmt.Errorf("namespace %s: %w", b.Namespace, err)
		}
		log.Debug().
			Str("namespace", report.Namespace).
			Int("ingested", report.Ingested).
			Int("skipped", report.Skipped).
			Msg("ingest message processed")
	}
	return nil
}
