// Package ingest 将原始聊天事件流切分为会话并逐条写入标注
package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ashwinyue/chat-insight/internal/model"
)

// 事件方向
const (
	DirectionIn     = "in"
	DirectionAgent  = "agent"
	DirectionSystem = "system"
)

// 消息类型
const (
	KindText     = "text"
	KindPostback = "postback"
	KindMedia    = "media"
)

// ClosePhrase 触发会话拆分的结束语，区分大小写
const ClosePhrase = "close the ticket"

// ErrMalformedBatch 批次格式错误，整批拒绝
var ErrMalformedBatch = errors.New("malformed batch")

var validate = validator.New()

// Payload 事件内容
// 非对象形式的 payload 视为空内容
type Payload struct {
	Text  string  `json:"text,omitempty"`
	Title *string `json:"title,omitempty"`
	URL   string  `json:"url,omitempty"`
}

// UnmarshalJSON 只解析对象形式的 payload
func (p *Payload) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		*p = Payload{}
		return nil
	}
	type plain Payload
	var v plain
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*p = Payload(v)
	if p.Title == nil {
		// "title": null 也视为带 title，取空串
		var keys map[string]json.RawMessage
		if err := json.Unmarshal(data, &keys); err == nil {
			if _, ok := keys["title"]; ok {
				empty := ""
				p.Title = &empty
			}
		}
	}
	return nil
}

// FlexibleID 兼容字符串和数字形式的 ID
type FlexibleID string

// UnmarshalJSON 接受字符串、数字或 null
func (id *FlexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = FlexibleID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("agent_id must be a string or number: %w", err)
	}
	*id = FlexibleID(n.String())
	return nil
}

// RawEvent 原始聊天事件
type RawEvent struct {
	Type     string     `json:"type" validate:"required,oneof=in agent system"`
	MsgType  string     `json:"msg_type" validate:"omitempty,oneof=text postback media"`
	Payload  Payload    `json:"payload"`
	Username string     `json:"username,omitempty"`
	AgentID  FlexibleID `json:"agent_id,omitempty"`
	TS       float64    `json:"ts" validate:"gte=0"`
}

// Batch 一个命名空间的事件批次
type Batch struct {
	Namespace string     `json:"user_ns" validate:"required"`
	Events    []RawEvent `json:"chat_history" validate:"dive"`
}

// DecodeBatches 解析批次，接受数组或单个对象
func DecodeBatches(data []byte) ([]Batch, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrMalformedBatch)
	}

	var batches []Batch
	if data[0] == '[' {
		if err := json.Unmarshal(data, &batches); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedBatch, err)
		}
	} else {
		var b Batch
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedBatch, err)
		}
		batches = []Batch{b}
	}

	for i := range batches {
		if err := ValidateBatch(&batches[i]); err != nil {
			return nil, fmt.Errorf("batch %d: %w", i, err)
		}
	}
	return batches, nil
}

// ValidateBatch 校验批次
func ValidateBatch(b *Batch) error {
	b.Namespace = strings.TrimSpace(b.Namespace)
	if err := validate.Struct(b); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedBatch, err)
	}
	return nil
}

// ExtractText 按消息类型提取文本
// postback 带 title 键时只用 title（null 为空串），否则优先 text，其次 url
func ExtractText(ev *RawEvent) string {
	if ev.MsgType == KindPostback && ev.Payload.Title != nil {
		return strings.TrimSpace(*ev.Payload.Title)
	}
	if ev.Payload.Text != "" {
		return strings.TrimSpace(ev.Payload.Text)
	}
	return strings.TrimSpace(ev.Payload.URL)
}

// SortEvents 按时间戳稳定排序，返回新切片
func SortEvents(events []RawEvent) []RawEvent {
	sorted := make([]RawEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].TS < sorted[j].TS
	})
	return sorted
}

// Time 事件时间，ts 为 0 时返回 nil
func (ev *RawEvent) Time() *time.Time {
	return tsToTime(ev.TS)
}

// AgentName 坐席名称，缺省为 Agent-<id>
func (ev *RawEvent) AgentName() string {
	if name := strings.TrimSpace(ev.Username); name != "" {
		return name
	}
	return model.DefaultAgentName(string(ev.AgentID))
}

func tsToTime(ts float64) *time.Time {
	if ts <= 0 {
		return nil
	}
	sec, frac := math.Modf(ts)
	t := time.Unix(int64(sec), int64(frac*1e9)).UTC()
	return &t
}

// hasText 批次中是否存在非空文本
func hasText(events []RawEvent) bool {
	for i := range events {
		if ExtractText(&events[i]) != "" {
			return true
		}
	}
	return false
}

// clientName 第一条客户消息的用户名，否则为 Unknown-<namespace>
func clientName(namespace string, events []RawEvent) string {
	for i := range events {
		if events[i].Type != DirectionIn {
			continue
		}
		if name := strings.TrimSpace(events[i].Username); name != "" {
			return name
		}
		break
	}
	return model.UnknownClientName(namespace)
}

// initialStatus 任一事件的文本包含 close（不区分大小写）即为 solved
// 与 ClosePhrase 是两个独立的判断
func initialStatus(events []RawEvent) string {
	for i := range events {
		if strings.Contains(strings.ToLower(events[i].Payload.Text), "close") {
			return model.ConversationStatusSolved
		}
	}
	return model.ConversationStatusInProgress
}

// bounds 批次的最早与最晚时间
func bounds(events []RawEvent) (start, end *time.Time) {
	for i := range events {
		t := events[i].Time()
		if t == nil {
			continue
		}
		if start == nil || t.Before(*start) {
			start = t
		}
		if end == nil || t.After(*end) {
			end = t
		}
	}
	return start, end
}
