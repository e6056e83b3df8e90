package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/ashwinyue/chat-insight/internal/model"
)

// InsightRepository 看板查询
type InsightRepository struct {
	db *gorm.DB
}

// NewInsightRepository 创建查询仓库
func NewInsightRepository(db *gorm.DB) *InsightRepository {
	return &InsightRepository{db: db}
}

// ListConversations 列出会话及其消息、标注、话题和摘要
func (r *InsightRepository) ListConversations(ctx context.Context, filter ConversationFilter) ([]*model.Conversation, error) {
	q := r.db.WithContext(ctx).
		Preload("Messages", func(db *gorm.DB) *gorm.DB { return db.Order("message_id") }).
		Preload("Messages.Sentiment").
		Preload("Messages.Emotions").
		Preload("Summary").
		Preload("Topics")

	if filter.ClientID != "" {
		q = q.Where("client_id = ?", filter.ClientID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.From != nil {
		q = q.Where("started_at >= ?", *filter.From)
	}
	if filter.To != nil {
		q = q.Where("started_at < ?", *filter.To)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var convs []*model.Conversation
	err := q.Order("conversation_id DESC").Find(&convs).Error
	return convs, err
}

// CountConversationsByStatus 按状态统计会话数
func (r *InsightRepository) CountConversationsByStatus(ctx context.Context) (map[string]int64, error) {
	var rows []LabelCount
	err := r.db.WithContext(ctx).Model(&model.Conversation{}).
		Select("status AS label, COUNT(*) AS count").
		Group("status").Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Label] = row.Count
	}
	return out, nil
}

// CountNegativeMessages 统计消极情感消息数
func (r *InsightRepository) CountNegativeMessages(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.SentimentAnalysis{}).
		Where("sentiment IN ?", []string{
			model.SentimentWeakNegative,
			model.SentimentModerateNegative,
			model.SentimentStrongNegative,
		}).Count(&n).Error
	return n, err
}

// CountTopics 按出现会话数统计话题
func (r *InsightRepository) CountTopics(ctx context.Context, limit int) ([]LabelCount, error) {
	var rows []LabelCount
	q := r.db.WithContext(ctx).Model(&model.TopicAnalysis{}).
		Select("topic AS label, COUNT(*) AS count").
		Group("topic").Order("count DESC, label")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Scan(&rows).Error
	return rows, err
}

// CountSentiments 按标签统计情感
func (r *InsightRepository) CountSentiments(ctx context.Context) ([]LabelCount, error) {
	var rows []LabelCount
	err := r.db.WithContext(ctx).Model(&model.SentimentAnalysis{}).
		Select("sentiment AS label, COUNT(*) AS count").
		Group("sentiment").Order("label").Scan(&rows).Error
	return rows, err
}

// CountEmotions 按情绪统计存在次数
func (r *InsightRepository) CountEmotions(ctx context.Context) ([]LabelCount, error) {
	var rows []LabelCount
	err := r.db.WithContext(ctx).Model(&model.EmotionAnalysis{}).
		Select("emotion AS label, COUNT(*) AS count").
		Group("emotion").Order("label").Scan(&rows).Error
	return rows, err
}

// ListClients 列出客户及画像
func (r *InsightRepository) ListClients(ctx context.Context) ([]*model.Client, error) {
	var clients []*model.Client
	err := r.db.WithContext(ctx).Preload("Profile").Order("client_id").Find(&clients).Error
	return clients, err
}

// ListAgents 列出坐席
func (r *InsightRepository) ListAgents(ctx context.Context) ([]*model.Agent, error) {
	var agents []*model.Agent
	err := r.db.WithContext(ctx).Order("agent_id").Find(&agents).Error
	return agents, err
}

// ListSummaries 列出全部会话摘要
func (r *InsightRepository) ListSummaries(ctx context.Context) ([]*model.ConversationSummary, error) {
	var summaries []*model.ConversationSummary
	err := r.db.WithContext(ctx).Order("conversation_id").Find(&summaries).Error
	return summaries, err
}

// SentimentPoints 消息时间与情感标签
func (r *InsightRepository) SentimentPoints(ctx context.Context) ([]TimePoint, error) {
	var points []TimePoint
	err := r.db.WithContext(ctx).Table("sentiment_analysis AS s").
		Select("m.timestamp AS timestamp, s.sentiment AS label").
		Joins("JOIN message m ON m.message_id = s.message_id").
		Where("m.timestamp IS NOT NULL").
		Order("m.message_id").
		Scan(&points).Error
	return points, err
}

// EmotionPoints 消息时间与情绪
func (r *InsightRepository) EmotionPoints(ctx context.Context) ([]TimePoint, error) {
	var points []TimePoint
	err := r.db.WithContext(ctx).Table("emotion_analysis AS e").
		Select("m.timestamp AS timestamp, e.emotion AS label").
		Joins("JOIN message m ON m.message_id = e.message_id").
		Where("m.timestamp IS NOT NULL").
		Order("m.message_id").
		Scan(&points).Error
	return points, err
}
