package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ashwinyue/chat-insight/internal/metrics"
	"github.com/ashwinyue/chat-insight/internal/model"
	"github.com/ashwinyue/chat-insight/internal/repository"
	"github.com/ashwinyue/chat-insight/internal/service/annotator"
)

// 发送方
const (
	SenderUser   = "user"
	SenderAgent  = "agent"
	SenderSystem = "system"
)

var (
	// ErrBlankMessage 消息内容为空
	ErrBlankMessage = errors.New("message text is blank")
	// ErrInvalidSender 未知的发送方
	ErrInvalidSender = errors.New("sender must be one of user, agent, system")
	// ErrUnknownAgent 坐席不存在
	ErrUnknownAgent = errors.New("agent not found")
	// ErrClientMismatch 客户与会话不匹配
	ErrClientMismatch = errors.New("client does not own conversation")
)

// InjectRequest 手动写入消息请求
type InjectRequest struct {
	ConversationID uint   `json:"conversation_id"`
	Sender         string `json:"sender" binding:"required,oneof=user agent system"`
	ClientID       string `json:"client_id,omitempty"`
	AgentID        string `json:"agent_id,omitempty"`
	Text           string `json:"text" binding:"required"`
}

// InjectResult 手动写入结果
type InjectResult struct {
	MessageID      uint                              `json:"message_id"`
	ConversationID uint                              `json:"conversation_id"`
	Status         string                            `json:"status"`
	Annotation     *annotator.MessageAnnotation      `json:"annotation,omitempty"`
	Summary        *annotator.ConversationAnnotation `json:"summary,omitempty"`
}

// InjectMessage 向指定会话写入一条消息，走与批次相同的单事件处理流程
// 与该客户的批次摄取共用命名空间锁
func (p *Pipeline) InjectMessage(ctx context.Context, req InjectRequest) (*InjectResult, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, ErrBlankMessage
	}

	var result *InjectResult
	err := WithConversationLock(ctx, p.locker, p.store, req.ConversationID, func(ctx context.Context, conv *model.Conversation) error {
		in := inbound{kind: KindText, text: text}
		switch req.Sender {
		case SenderUser:
			if req.ClientID != "" && req.ClientID != conv.ClientID {
				return ErrClientMismatch
			}
			in.direction = DirectionIn
		case SenderAgent:
			agent, err := p.store.GetAgent(ctx, strings.TrimSpace(req.AgentID))
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%w: %s", ErrUnknownAgent, req.AgentID)
			}
			if err != nil {
				return err
			}
			in.direction = DirectionAgent
			in.agentID = agent.AgentID
			in.agentName = agent.Name
		case SenderSystem:
			in.direction = DirectionSystem
		default:
			return ErrInvalidSender
		}
		now := p.now()
		in.timestamp = &now

		cur := &cursor{
			clientID:       conv.ClientID,
			conversationID: conv.ConversationID,
			status:         conv.Status,
		}
		out, err := p.processEvent(ctx, cur, in, nil)
		if err != nil {
			return err
		}
		metrics.EventsTotal.WithLabelValues("ingested").Inc()

		result = &InjectResult{
			MessageID:      out.message.MessageID,
			ConversationID: cur.conversationID,
			Status:         cur.status,
			Annotation:     out.annotation,
			Summary:        out.summary,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
