package model

import "time"

// Agent 客服坐席
// 首次出现未知 agent_id 的坐席消息时创建
type Agent struct {
	AgentID   string    `gorm:"column:agent_id;primaryKey;size:128" json:"agent_id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	Email     *string   `gorm:"size:255" json:"email,omitempty"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName 指定表名
func (Agent) TableName() string {
	return "agent"
}

// DefaultAgentName 未提供名称时的坐席名
func DefaultAgentName(agentID string) string {
	return "Agent-" + agentID
}
