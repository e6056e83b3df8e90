package insight

import (
	"fmt"
	"sort"
	"time"

	"github.com/ashwinyue/chat-insight/internal/model"
)

// 看板中的状态与发送方名称
const (
	StatusInProgressLabel = "In Progress"
	SenderTenant          = "tenant"
	DefaultServiceArea    = "General"
	DefaultProperty       = "Malaysia"
	DefaultAgentRole      = "Customer Service"
)

// 会话整体情感
const (
	AggregateStrongPositive   = "strong positive"
	AggregateModeratePositive = "moderate positive"
	AggregateNeutral          = "neutral"
	AggregateModerateNegative = "moderate negative"
	AggregateStrongNegative   = "strong negative"
)

// ConversationView 会话投影
type ConversationView struct {
	ID          string        `json:"id"`
	TenantID    string        `json:"tenantId"`
	AgentIDs    []string      `json:"agentIds"`
	Status      string        `json:"status"`
	Sentiment   string        `json:"sentiment"`
	Emotions    []string      `json:"emotions"`
	Topics      []string      `json:"topics"`
	Summary     *string       `json:"summary"`
	Messages    []MessageView `json:"messages"`
	LastUpdated *string       `json:"lastUpdated"`
	StartedAt   *string       `json:"startedAt"`
}

// MessageView 消息投影
type MessageView struct {
	ID         uint     `json:"id"`
	SenderID   *string  `json:"senderId"`
	SenderType string   `json:"senderType"`
	Content    string   `json:"content"`
	Timestamp  *string  `json:"timestamp"`
	Sentiment  *int     `json:"sentiment"`
	Emotions   []string `json:"emotions"`
}

// ProjectConversation 把会话及其关联数据投影为看板结构
func ProjectConversation(conv *model.Conversation) ConversationView {
	view := ConversationView{
		ID:       ConversationRef(conv.ConversationID),
		TenantID: conv.ClientID,
		AgentIDs: []string{},
		Status:   StatusLabel(conv.Status),
		Emotions: []string{},
		Topics:   []string{},
		Messages: make([]MessageView, 0, len(conv.Messages)),
	}

	agents := map[string]struct{}{}
	emotions := map[string]struct{}{}
	var scores []int
	var first, last *time.Time

	for i := range conv.Messages {
		m := &conv.Messages[i]
		mv := MessageView{
			ID:         m.MessageID,
			SenderType: senderType(m),
			Content:    m.Content,
			Timestamp:  FormatTime(m.Timestamp),
			Emotions:   []string{},
		}
		switch {
		case m.ClientID != nil:
			mv.SenderID = m.ClientID
		case m.AgentID != nil:
			mv.SenderID = m.AgentID
			if _, ok := agents[*m.AgentID]; !ok {
				agents[*m.AgentID] = struct{}{}
				view.AgentIDs = append(view.AgentIDs, *m.AgentID)
			}
		}
		if m.Sentiment != nil {
			score := model.SentimentScore[m.Sentiment.Sentiment]
			mv.Sentiment = &score
			scores = append(scores, score)
		}
		for _, e := range m.Emotions {
			mv.Emotions = append(mv.Emotions, e.Emotion)
			emotions[e.Emotion] = struct{}{}
		}
		if ts := m.Timestamp; ts != nil {
			if first == nil || ts.Before(*first) {
				first = ts
			}
			if last == nil || ts.After(*last) {
				last = ts
			}
		}
		view.Messages = append(view.Messages, mv)
	}

	view.Sentiment = AggregateSentiment(scores)
	view.Emotions = catalogOrder(emotions)
	for _, t := range conv.Topics {
		view.Topics = append(view.Topics, t.Topic)
	}
	sort.Strings(view.Topics)
	if conv.Summary != nil {
		view.Summary = &conv.Summary.SummaryText
	}

	if first == nil {
		first = conv.StartedAt
	}
	view.StartedAt = FormatTime(first)
	view.LastUpdated = FormatTime(last)
	return view
}

// ConversationRef 会话对外编号
func ConversationRef(id uint) string {
	return fmt.Sprintf("CONV-%d", id)
}

// StatusLabel 状态展示名
func StatusLabel(status string) string {
	if status == model.ConversationStatusInProgress {
		return StatusInProgressLabel
	}
	return status
}

// AggregateSentiment 按平均分归类会话整体情感
func AggregateSentiment(scores []int) string {
	if len(scores) == 0 {
		return AggregateNeutral
	}
	sum := 0
	for _, s := range scores {
		sum += s
	}
	avg := float64(sum) / float64(len(scores))
	switch {
	case avg > 1:
		return AggregateStrongPositive
	case avg > 0:
		return AggregateModeratePositive
	case avg < -1:
		return AggregateStrongNegative
	case avg < 0:
		return AggregateModerateNegative
	default:
		return AggregateNeutral
	}
}

// FormatTime 统一输出 UTC RFC3339
func FormatTime(t *time.Time) *string {
	if t == nil || t.IsZero() {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

// Age 按出生日期计算周岁
func Age(dob *time.Time, now time.Time) *int {
	if dob == nil || dob.IsZero() {
		return nil
	}
	age := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		age--
	}
	return &age
}

func senderType(m *model.Message) string {
	switch m.SenderType() {
	case model.SenderClient:
		return SenderTenant
	case model.SenderAgent:
		return model.SenderAgent
	default:
		return model.SenderSystem
	}
}

func catalogOrder(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for _, e := range model.EmotionCatalog {
		if _, ok := set[e]; ok {
			out = append(out, e)
		}
	}
	return out
}
