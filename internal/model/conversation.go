package model

import "time"

// 会话状态
const (
	ConversationStatusInProgress = "in_progress"
	ConversationStatusSolved     = "solved"
)

// Conversation 一个客户与若干坐席之间的一段对话
type Conversation struct {
	ConversationID uint                 `gorm:"column:conversation_id;primaryKey;autoIncrement" json:"conversation_id"`
	ClientID       string               `gorm:"size:128;not null;index" json:"client_id"`
	StartedAt      *time.Time           `json:"started_at"`
	EndedAt        *time.Time           `json:"ended_at"`
	Status         string               `gorm:"size:32;not null;index;default:in_progress" json:"status"`
	Messages       []Message            `gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE" json:"messages,omitempty"`
	Summary        *ConversationSummary `gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE" json:"summary,omitempty"`
	Topics         []TopicAnalysis      `gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE" json:"topics,omitempty"`
}

// TableName 指定表名
func (Conversation) TableName() string {
	return "conversation"
}

// IsSolved 是否已解决
func (c *Conversation) IsSolved() bool {
	return c.Status == ConversationStatusSolved
}

// Message 会话中的一条消息
// ClientID/AgentID 是弱引用，不建外键：删除客户不要求删除历史消息
type Message struct {
	MessageID      uint               `gorm:"column:message_id;primaryKey;autoIncrement" json:"message_id"`
	Content        string             `gorm:"type:text;not null" json:"content"`
	Language       string             `gorm:"size:8;default:en" json:"language"`
	ClientID       *string            `gorm:"size:128;index" json:"client_id,omitempty"`
	AgentID        *string            `gorm:"size:128;index" json:"agent_id,omitempty"`
	Timestamp      *time.Time         `json:"timestamp"`
	ConversationID uint               `gorm:"not null;index" json:"conversation_id"`
	Sentiment      *SentimentAnalysis `gorm:"foreignKey:MessageID;constraint:OnDelete:CASCADE" json:"sentiment,omitempty"`
	Emotions       []EmotionAnalysis  `gorm:"foreignKey:MessageID;constraint:OnDelete:CASCADE" json:"emotions,omitempty"`
}

// TableName 指定表名
func (Message) TableName() string {
	return "message"
}

// 发送方类型
const (
	SenderClient = "client"
	SenderAgent  = "agent"
	SenderSystem = "system"
)

// SenderType 根据归属字段推导发送方
func (m *Message) SenderType() string {
	switch {
	case m.ClientID != nil:
		return SenderClient
	case m.AgentID != nil:
		return SenderAgent
	default:
		return SenderSystem
	}
}

// ConversationSummary 会话摘要，每个会话至多一条，重新生成时替换
type ConversationSummary struct {
	ConversationID uint      `gorm:"column:conversation_id;primaryKey;autoIncrement:false" json:"conversation_id"`
	SummaryText    string    `gorm:"type:text" json:"summary_text"`
	CreatedAt      time.Time `json:"created_at"`
}

// TableName 指定表名
func (ConversationSummary) TableName() string {
	return "conversation_summary"
}
