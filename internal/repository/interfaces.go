// Package repository 定义数据访问接口
// 接口抽象使依赖注入和单元测试成为可能
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/ashwinyue/chat-insight/internal/model"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("record not found")

// ErrAlreadyExists 主键冲突
var ErrAlreadyExists = errors.New("record already exists")

// ========== Store 接口 ==========

// Store 会话存储
// 一次事件的全部写入在 Transaction 内完成，作为一个提交单元
type Store interface {
	Transaction(ctx context.Context, fn func(tx Store) error) error

	// 客户与坐席，Ensure* 为幂等的 insert-if-absent
	EnsureClient(ctx context.Context, client *model.Client) (*model.Client, error)
	CreateClient(ctx context.Context, client *model.Client) error
	GetClient(ctx context.Context, clientID string) (*model.Client, error)
	EnsureAgent(ctx context.Context, agent *model.Agent) (*model.Agent, error)
	CreateAgent(ctx context.Context, agent *model.Agent) error
	GetAgent(ctx context.Context, agentID string) (*model.Agent, error)
	ListAgents(ctx context.Context) ([]*model.Agent, error)

	// 会话
	CreateConversation(ctx context.Context, conv *model.Conversation) error
	GetConversation(ctx context.Context, id uint) (*model.Conversation, error)
	ListConversationsByClient(ctx context.Context, clientID string) ([]*model.Conversation, error)
	UpdateConversationStatus(ctx context.Context, id uint, status string) error
	EndConversation(ctx context.Context, id uint, endedAt time.Time) error
	ReopenConversation(ctx context.Context, id uint) error

	// 消息，只追加
	CreateMessage(ctx context.Context, msg *model.Message) error
	ListMessages(ctx context.Context, conversationID uint) ([]*model.Message, error)
	ListClientMessages(ctx context.Context, conversationID uint) ([]*model.Message, error)
	DeleteBlankMessages(ctx context.Context) (int64, error)

	// 标注
	UpsertSentiment(ctx context.Context, messageID uint, label string) error
	AddEmotionPresence(ctx context.Context, messageID uint, emotions []string) error
	AddTopics(ctx context.Context, conversationID uint, topics []string) error
	UpsertSummary(ctx context.Context, conversationID uint, text string) error
	GetSummary(ctx context.Context, conversationID uint) (*model.ConversationSummary, error)
	UpsertProfile(ctx context.Context, profile *model.ClientProfile) error
	GetProfile(ctx context.Context, clientID string) (*model.ClientProfile, error)
}

// 确保 ConversationRepository 实现了接口
var _ Store = (*ConversationRepository)(nil)

// ========== InsightReader 接口 ==========

// ConversationFilter 会话查询条件，零值字段不参与过滤
type ConversationFilter struct {
	ClientID string
	Status   string
	From     *time.Time
	To       *time.Time
	Limit    int
}

// LabelCount 按标签计数
type LabelCount struct {
	Label string `json:"label"`
	Count int64  `json:"count"`
}

// TimePoint 带时间戳的标签，用于趋势分桶
type TimePoint struct {
	Timestamp time.Time
	Label     string
}

// InsightReader 只读投影查询
type InsightReader interface {
	ListConversations(ctx context.Context, filter ConversationFilter) ([]*model.Conversation, error)
	CountConversationsByStatus(ctx context.Context) (map[string]int64, error)
	CountNegativeMessages(ctx context.Context) (int64, error)
	CountTopics(ctx context.Context, limit int) ([]LabelCount, error)
	CountSentiments(ctx context.Context) ([]LabelCount, error)
	CountEmotions(ctx context.Context) ([]LabelCount, error)
	ListClients(ctx context.Context) ([]*model.Client, error)
	ListAgents(ctx context.Context) ([]*model.Agent, error)
	ListSummaries(ctx context.Context) ([]*model.ConversationSummary, error)
	SentimentPoints(ctx context.Context) ([]TimePoint, error)
	EmotionPoints(ctx context.Context) ([]TimePoint, error)
}

// 确保 InsightRepository 实现了接口
var _ InsightReader = (*InsightRepository)(nil)
