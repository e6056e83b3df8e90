// Package conversation 提供会话的运营操作：创建、关闭、重开和查询
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ashwinyue/chat-insight/internal/model"
	"github.com/ashwinyue/chat-insight/internal/repository"
	"github.com/ashwinyue/chat-insight/internal/service/annotator"
	"github.com/ashwinyue/chat-insight/internal/service/event"
	"github.com/ashwinyue/chat-insight/internal/service/ingest"
)

// ErrInvalidInput 请求参数不合法
var ErrInvalidInput = errors.New("invalid input")

// Service 会话服务
type Service struct {
	store     repository.Store
	annotator annotator.Annotator
	locker    ingest.Locker
	publisher event.Publisher
	now       func() time.Time
}

// NewService 创建会话服务
func NewService(store repository.Store, ann annotator.Annotator, locker ingest.Locker, publisher event.Publisher) *Service {
	if locker == nil {
		locker = ingest.NewLocalLocker()
	}
	if publisher == nil {
		publisher = event.NopPublisher{}
	}
	return &Service{
		store:     store,
		annotator: ann,
		locker:    locker,
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ========== 客户与坐席 ==========

// CreateClientRequest 创建客户请求
type CreateClientRequest struct {
	ClientID    string  `json:"client_id" binding:"required"`
	Name        string  `json:"name" binding:"required"`
	Email       *string `json:"email,omitempty" binding:"omitempty,email"`
	DateOfBirth string  `json:"date_of_birth,omitempty" binding:"omitempty,datetime=2006-01-02"`
	Gender      *string `json:"gender,omitempty"`
}

// CreateClient 创建客户
func (s *Service) CreateClient(ctx context.Context, req CreateClientRequest) (*model.Client, error) {
	client := &model.Client{
		ClientID: strings.TrimSpace(req.ClientID),
		Name:     strings.TrimSpace(req.Name),
		Email:    req.Email,
		Gender:   req.Gender,
	}
	if client.ClientID == "" || client.Name == "" {
		return nil, fmt.Errorf("%w: client_id and name are required", ErrInvalidInput)
	}
	if req.DateOfBirth != "" {
		dob, err := time.Parse("2006-01-02", req.DateOfBirth)
		if err != nil {
			return nil, fmt.Errorf("%w: date_of_birth: %v", ErrInvalidInput, err)
		}
		client.DateOfBirth = &dob
	}
	if err := s.store.CreateClient(ctx, client); err != nil {
		return nil, err
	}
	return client, nil
}

// CreateAgentRequest 创建坐席请求
type CreateAgentRequest struct {
	AgentID string  `json:"agent_id" binding:"required"`
	Name    string  `json:"name,omitempty"`
	Email   *string `json:"email,omitempty" binding:"omitempty,email"`
}

// CreateAgent 创建坐席，名称缺省为 Agent-<id>
func (s *Service) CreateAgent(ctx context.Context, req CreateAgentRequest) (*model.Agent, error) {
	agent := &model.Agent{
		AgentID: strings.TrimSpace(req.AgentID),
		Name:    strings.TrimSpace(req.Name),
		Email:   req.Email,
	}
	if agent.AgentID == "" {
		return nil, fmt.Errorf("%w: agent_id is required", ErrInvalidInput)
	}
	if agent.Name == "" {
		agent.Name = model.DefaultAgentName(agent.AgentID)
	}
	if err := s.store.CreateAgent(ctx, agent); err != nil {
		return nil, err
	}
	return agent, nil
}

// ListAgents 列出坐席
func (s *Service) ListAgents(ctx context.Context) ([]*model.Agent, error) {
	return s.store.ListAgents(ctx)
}

// GetProfile 获取客户人格画像
func (s *Service) GetProfile(ctx context.Context, clientID string) (*model.ClientProfile, error) {
	return s.store.GetProfile(ctx, clientID)
}

// ========== 会话 ==========

// Create 为客户新建进行中的会话
func (s *Service) Create(ctx context.Context, clientID string) (*model.Conversation, error) {
	if _, err := s.store.GetClient(ctx, clientID); err != nil {
		return nil, err
	}
	now := s.now()
	conv := &model.Conversation{
		ClientID:  clientID,
		StartedAt: &now,
		Status:    model.ConversationStatusInProgress,
	}
	if err := s.store.CreateConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	s.publish(ctx, event.ConversationOpened, conv)
	return conv, nil
}

// Get 获取会话
func (s *Service) Get(ctx context.Context, id uint) (*model.Conversation, error) {
	return s.store.GetConversation(ctx, id)
}

// ListByClient 按创建顺序列出客户的会话
func (s *Service) ListByClient(ctx context.Context, clientID string) ([]*model.Conversation, error) {
	if _, err := s.store.GetClient(ctx, clientID); err != nil {
		return nil, err
	}
	return s.store.ListConversationsByClient(ctx, clientID)
}

// Messages 列出会话消息及其情感、情绪标注
func (s *Service) Messages(ctx context.Context, id uint) ([]*model.Message, error) {
	if _, err := s.store.GetConversation(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListMessages(ctx, id)
}

// Close 关闭会话：标记 solved、记录结束时间，并基于完整对话重新生成摘要与画像
func (s *Service) Close(ctx context.Context, id uint) (*model.Conversation, error) {
	var conv *model.Conversation
	err := ingest.WithConversationLock(ctx, s.locker, s.store, id, func(ctx context.Context, locked *model.Conversation) error {
		conv = locked
		msgs, err := s.store.ListMessages(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to load messages: %w", err)
		}

		ann := s.annotator.AnnotateConversation(ctx, Transcript(msgs))
		now := s.now()
		err = s.store.Transaction(ctx, func(tx repository.Store) error {
			if err := tx.EndConversation(ctx, id, now); err != nil {
				return err
			}
			return ingest.SaveConversationAnnotation(ctx, tx, conv.ClientID, id, &ann, now)
		})
		if err != nil {
			return err
		}

		conv, err = s.store.GetConversation(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Info().Uint("conversation_id", id).Msg("conversation closed")
	s.publish(ctx, event.ConversationSolved, conv)
	s.publish(ctx, event.SummaryUpdated, conv)
	return conv, nil
}

// Reopen 重新打开会话，清空结束时间
func (s *Service) Reopen(ctx context.Context, id uint) (*model.Conversation, error) {
	var conv *model.Conversation
	err := ingest.WithConversationLock(ctx, s.locker, s.store, id, func(ctx context.Context, _ *model.Conversation) error {
		if err := s.store.ReopenConversation(ctx, id); err != nil {
			return err
		}
		var err error
		conv, err = s.store.GetConversation(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, event.ConversationReopened, conv)
	return conv, nil
}

func (s *Service) publish(ctx context.Context, t event.EventType, conv *model.Conversation) {
	evt := event.New(t, conv.ClientID, conv.ConversationID)
	evt.Status = conv.Status
	s.publisher.Publish(ctx, evt)
}

// Transcript 把消息转换为带角色的对话轮次
func Transcript(msgs []*model.Message) []annotator.Turn {
	turns := make([]annotator.Turn, 0, len(msgs))
	for _, m := range msgs {
		role := annotator.RoleSystem
		switch m.SenderType() {
		case model.SenderClient:
			role = annotator.RoleUser
		case model.SenderAgent:
			role = annotator.RoleAgent
		}
		turns = append(turns, annotator.Turn{Role: role, Text: m.Content})
	}
	return turns
}
