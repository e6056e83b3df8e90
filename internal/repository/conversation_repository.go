package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ashwinyue/chat-insight/internal/model"
)

// ConversationRepository 会话存储的 gorm 实现
type ConversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository 创建会话仓库
func NewConversationRepository(db *gorm.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// Transaction 在一个数据库事务中执行 fn
func (r *ConversationRepository) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&ConversationRepository{db: tx})
	})
}

// ========== 客户与坐席 ==========

// EnsureClient 不存在时创建客户，返回库中的记录
func (r *ConversationRepository) EnsureClient(ctx context.Context, client *model.Client) (*model.Client, error) {
	db := r.db.WithContext(ctx)
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(client).Error; err != nil {
		return nil, fmt.Errorf("failed to ensure client %s: %w", client.ClientID, err)
	}
	var out model.Client
	if err := db.Where("client_id = ?", client.ClientID).First(&out).Error; err != nil {
		return nil, translate(err)
	}
	return &out, nil
}

// CreateClient 创建客户，已存在时返回 ErrAlreadyExists
func (r *ConversationRepository) CreateClient(ctx context.Context, client *model.Client) error {
	return translate(r.db.WithContext(ctx).Create(client).Error)
}

// GetClient 获取客户及其画像
func (r *ConversationRepository) GetClient(ctx context.Context, clientID string) (*model.Client, error) {
	var client model.Client
	err := r.db.WithContext(ctx).Preload("Profile").Where("client_id = ?", clientID).First(&client).Error
	if err != nil {
		return nil, translate(err)
	}
	return &client, nil
}

// EnsureAgent 不存在时创建坐席，返回库中的记录
func (r *ConversationRepository) EnsureAgent(ctx context.Context, agent *model.Agent) (*model.Agent, error) {
	db := r.db.WithContext(ctx)
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(agent).Error; err != nil {
		return nil, fmt.Errorf("failed to ensure agent %s: %w", agent.AgentID, err)
	}
	var out model.Agent
	if err := db.Where("agent_id = ?", agent.AgentID).First(&out).Error; err != nil {
		return nil, translate(err)
	}
	return &out, nil
}

// CreateAgent 创建坐席
func (r *ConversationRepository) CreateAgent(ctx context.Context, agent *model.Agent) error {
	return translate(r.db.WithContext(ctx).Create(agent).Error)
}

// GetAgent 获取坐席
func (r *ConversationRepository) GetAgent(ctx context.Context, agentID string) (*model.Agent, error) {
	var agent model.Agent
	if err := r.db.WithContext(ctx).Where("agent_id = ?", agentID).First(&agent).Error; err != nil {
		return nil, translate(err)
	}
	return &agent, nil
}

// ListAgents 列出坐席
func (r *ConversationRepository) ListAgents(ctx context.Context) ([]*model.Agent, error) {
	var agents []*model.Agent
	err := r.db.WithContext(ctx).Order("agent_id").Find(&agents).Error
	return agents, err
}

// ========== 会话 ==========

// CreateConversation 创建会话
func (r *ConversationRepository) CreateConversation(ctx context.Context, conv *model.Conversation) error {
	if conv.Status == "" {
		conv.Status = model.ConversationStatusInProgress
	}
	return r.db.WithContext(ctx).Create(conv).Error
}

// GetConversation 获取会话
func (r *ConversationRepository) GetConversation(ctx context.Context, id uint) (*model.Conversation, error) {
	var conv model.Conversation
	err := r.db.WithContext(ctx).Preload("Summary").Preload("Topics").
		Where("conversation_id = ?", id).First(&conv).Error
	if err != nil {
		return nil, translate(err)
	}
	return &conv, nil
}

// ListConversationsByClient 按创建顺序列出客户的会话
func (r *ConversationRepository) ListConversationsByClient(ctx context.Context, clientID string) ([]*model.Conversation, error) {
	var convs []*model.Conversation
	err := r.db.WithContext(ctx).Where("client_id = ?", clientID).
		Order("conversation_id").Find(&convs).Error
	return convs, err
}

// UpdateConversationStatus 更新会话状态
func (r *ConversationRepository) UpdateConversationStatus(ctx context.Context, id uint, status string) error {
	return r.updateConversation(ctx, id, map[string]interface{}{"status": status})
}

// EndConversation 结束会话：标记 solved 并记录结束时间
func (r *ConversationRepository) EndConversation(ctx context.Context, id uint, endedAt time.Time) error {
	return r.updateConversation(ctx, id, map[string]interface{}{
		"status":   model.ConversationStatusSolved,
		"ended_at": endedAt,
	})
}

// ReopenConversation 重新打开会话，清空结束时间
func (r *ConversationRepository) ReopenConversation(ctx context.Context, id uint) error {
	return r.updateConversation(ctx, id, map[string]interface{}{
		"status":   model.ConversationStatusInProgress,
		"ended_at": gorm.Expr("NULL"),
	})
}

func (r *ConversationRepository) updateConversation(ctx context.Context, id uint, values map[string]interface{}) error {
	result := r.db.WithContext(ctx).Model(&model.Conversation{}).
		Where("conversation_id = ?", id).Updates(values)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}
	// 部分方言只统计实际变更的行，值未变化时需确认记录是否存在
	var n int64
	if err := r.db.WithContext(ctx).Model(&model.Conversation{}).
		Where("conversation_id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ========== 消息 ==========

// CreateMessage 追加消息
func (r *ConversationRepository) CreateMessage(ctx context.Context, msg *model.Message) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(msg).Error
}

// ListMessages 按写入顺序列出会话消息，带情感与情绪标注
func (r *ConversationRepository) ListMessages(ctx context.Context, conversationID uint) ([]*model.Message, error) {
	var msgs []*model.Message
	err := r.db.WithContext(ctx).Preload("Sentiment").Preload("Emotions").
		Where("conversation_id = ?", conversationID).
		Order("message_id").Find(&msgs).Error
	return msgs, err
}

// ListClientMessages 列出会话中客户发出的消息
func (r *ConversationRepository) ListClientMessages(ctx context.Context, conversationID uint) ([]*model.Message, error) {
	var msgs []*model.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND client_id IS NOT NULL", conversationID).
		Order("message_id").Find(&msgs).Error
	return msgs, err
}

// DeleteBlankMessages 清理内容为空的消息
func (r *ConversationRepository) DeleteBlankMessages(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("content IS NULL OR TRIM(content) = ''").
		Delete(&model.Message{})
	return result.RowsAffected, result.Error
}

// ========== 标注 ==========

// UpsertSentiment 写入消息情感，已存在时替换
func (r *ConversationRepository) UpsertSentiment(ctx context.Context, messageID uint, label string) error {
	row := model.SentimentAnalysis{MessageID: messageID, Sentiment: label}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "message_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"sentiment", "created_at"}),
	}).Create(&row).Error
}

// AddEmotionPresence 记录情绪存在，重复写入忽略
func (r *ConversationRepository) AddEmotionPresence(ctx context.Context, messageID uint, emotions []string) error {
	if len(emotions) == 0 {
		return nil
	}
	rows := make([]model.EmotionAnalysis, 0, len(emotions))
	for _, e := range emotions {
		rows = append(rows, model.EmotionAnalysis{MessageID: messageID, Emotion: e})
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
}

// AddTopics 写入话题目录及会话话题关联，均为 insert-if-absent
func (r *ConversationRepository) AddTopics(ctx context.Context, conversationID uint, topics []string) error {
	if len(topics) == 0 {
		return nil
	}
	// 每次 Create 使用新会话，避免语句状态在两次插入间共享
	db := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Session(&gorm.Session{})

	catalog := make([]model.Topic, 0, len(topics))
	links := make([]model.TopicAnalysis, 0, len(topics))
	for _, t := range topics {
		catalog = append(catalog, model.Topic{Topic: t})
		links = append(links, model.TopicAnalysis{ConversationID: conversationID, Topic: t})
	}
	if err := db.Create(&catalog).Error; err != nil {
		return fmt.Errorf("failed to add topics: %w", err)
	}
	if err := db.Create(&links).Error; err != nil {
		return fmt.Errorf("failed to link topics: %w", err)
	}
	return nil
}

// UpsertSummary 写入会话摘要，已存在时替换
func (r *ConversationRepository) UpsertSummary(ctx context.Context, conversationID uint, text string) error {
	row := model.ConversationSummary{ConversationID: conversationID, SummaryText: text}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "conversation_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"summary_text", "created_at"}),
	}).Create(&row).Error
}

// GetSummary 获取会话摘要
func (r *ConversationRepository) GetSummary(ctx context.Context, conversationID uint) (*model.ConversationSummary, error) {
	var s model.ConversationSummary
	if err := r.db.WithContext(ctx).Where("conversation_id = ?", conversationID).First(&s).Error; err != nil {
		return nil, translate(err)
	}
	return &s, nil
}

// UpsertProfile 整体替换客户画像
func (r *ConversationRepository) UpsertProfile(ctx context.Context, profile *model.ClientProfile) error {
	if profile.LastUpdatedAt.IsZero() {
		profile.LastUpdatedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "client_id"}},
		UpdateAll: true,
	}).Create(profile).Error
}

// GetProfile 获取客户画像
func (r *ConversationRepository) GetProfile(ctx context.Context, clientID string) (*model.ClientProfile, error) {
	var p model.ClientProfile
	if err := r.db.WithContext(ctx).Where("client_id = ?", clientID).First(&p).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}
