package model

import "time"

// Client 客户，以外部命名空间作为主键
type Client struct {
	ClientID      string         `gorm:"column:client_id;primaryKey;size:128" json:"client_id"`
	Name          string         `gorm:"size:255;not null" json:"name"`
	Email         *string        `gorm:"size:255" json:"email,omitempty"`
	DateOfBirth   *time.Time     `gorm:"type:date" json:"date_of_birth,omitempty"`
	Gender        *string        `gorm:"size:32" json:"gender,omitempty"`
	CreatedAt     time.Time      `gorm:"autoCreateTime" json:"created_at"`
	Profile       *ClientProfile `gorm:"foreignKey:ClientID;references:ClientID;constraint:OnDelete:CASCADE" json:"profile,omitempty"`
	// 外键建在 conversation.client_id 上
	Conversations []Conversation `gorm:"foreignKey:ClientID;references:ClientID" json:"-"`
}

// TableName 指定表名
func (Client) TableName() string {
	return "client"
}

// UnknownClientName 批次中没有客户消息时的占位名称
func UnknownClientName(namespace string) string {
	return "Unknown-" + namespace
}

// ClientProfile 客户 OCEAN 人格画像，每次重新生成时整体替换
type ClientProfile struct {
	ClientID          string    `gorm:"column:client_id;primaryKey;size:128" json:"client_id"`
	Openness          float64   `json:"openness"`
	Conscientiousness float64   `json:"conscientiousness"`
	Extraversion      float64   `json:"extraversion"`
	Agreeableness     float64   `json:"agreeableness"`
	Neuroticism       float64   `json:"neuroticism"`
	LastUpdatedAt     time.Time `json:"last_updated_at"`
}

// TableName 指定表名
func (ClientProfile) TableName() string {
	return "client_profile"
}
