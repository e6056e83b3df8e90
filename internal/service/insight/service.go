// Package insight 提供看板使用的只读投影
package insight

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ashwinyue/chat-insight/internal/metrics"
	"github.com/ashwinyue/chat-insight/internal/model"
	"github.com/ashwinyue/chat-insight/internal/repository"
	"github.com/ashwinyue/chat-insight/internal/service/event"
)

// Service 查询服务
type Service struct {
	reader repository.InsightReader
	cache  Cache
	now    func() time.Time
}

// NewService 创建查询服务，cache 为 nil 时不缓存
func NewService(reader repository.InsightReader, cache Cache) *Service {
	return &Service{
		reader: reader,
		cache:  cache,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Handle 任何写入事件都使缓存失效
func (s *Service) Handle(ctx context.Context, _ *event.Event) error {
	if s.cache != nil {
		s.cache.Invalidate(ctx)
	}
	return nil
}

// ========== 投影 ==========

// Filter 会话列表过滤条件
type Filter struct {
	ClientID string     `form:"client_id"`
	Status   string     `form:"status" binding:"omitempty,oneof=in_progress solved"`
	From     *time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To       *time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
	Limit    int        `form:"limit" binding:"omitempty,min=0,max=1000"`
}

func (f Filter) key() string {
	return fmt.Sprintf("conversations:%s:%s:%s:%s:%d", f.ClientID, f.Status, timeKey(f.From), timeKey(f.To), f.Limit)
}

// ListConversations 会话列表，含消息、标注、话题和摘要
func (s *Service) ListConversations(ctx context.Context, f Filter) ([]ConversationView, error) {
	return cached(ctx, s, f.key(), func(ctx context.Context) ([]ConversationView, error) {
		convs, err := s.reader.ListConversations(ctx, repository.ConversationFilter{
			ClientID: f.ClientID,
			Status:   f.Status,
			From:     f.From,
			To:       f.To,
			Limit:    f.Limit,
		})
		if err != nil {
			return nil, err
		}
		views := make([]ConversationView, 0, len(convs))
		for _, c := range convs {
			views = append(views, ProjectConversation(c))
		}
		return views, nil
	})
}

// KPIs 看板指标
type KPIs struct {
	Total      int64 `json:"total"`
	InProgress int64 `json:"inProgress"`
	Solved     int64 `json:"solved"`
	Negative   int64 `json:"negative"`
	Urgent     int64 `json:"urgent"`
}

// KPIs 会话数量按状态统计，以及消极消息数
func (s *Service) KPIs(ctx context.Context) (*KPIs, error) {
	return cached(ctx, s, "kpis", func(ctx context.Context) (*KPIs, error) {
		byStatus, err := s.reader.CountConversationsByStatus(ctx)
		if err != nil {
			return nil, err
		}
		negative, err := s.reader.CountNegativeMessages(ctx)
		if err != nil {
			return nil, err
		}
		k := &KPIs{
			InProgress: byStatus[model.ConversationStatusInProgress],
			Solved:     byStatus[model.ConversationStatusSolved],
			Negative:   negative,
		}
		for _, n := range byStatus {
			k.Total += n
		}
		return k, nil
	})
}

// Tenant 客户投影
type Tenant struct {
	ID                 string       `json:"id"`
	Name               string       `json:"name"`
	Age                *int         `json:"age"`
	Gender             *string      `json:"gender"`
	Property           string       `json:"property"`
	BigFivePersonality *Personality `json:"bigFivePersonality"`
}

// Personality 五维人格
type Personality struct {
	Openness          float64 `json:"openness"`
	Conscientiousness float64 `json:"conscientiousness"`
	Extraversion      float64 `json:"extraversion"`
	Agreeableness     float64 `json:"agreeableness"`
	Neuroticism       float64 `json:"neuroticism"`
}

// Tenants 客户列表，年龄由出生日期推算
func (s *Service) Tenants(ctx context.Context) ([]Tenant, error) {
	return cached(ctx, s, "tenants", func(ctx context.Context) ([]Tenant, error) {
		clients, err := s.reader.ListClients(ctx)
		if err != nil {
			return nil, err
		}
		now := s.now()
		out := make([]Tenant, 0, len(clients))
		for _, c := range clients {
			t := Tenant{
				ID:       c.ClientID,
				Name:     c.Name,
				Age:      Age(c.DateOfBirth, now),
				Gender:   c.Gender,
				Property: DefaultProperty,
			}
			if p := c.Profile; p != nil {
				t.BigFivePersonality = &Personality{
					Openness:          p.Openness,
					Conscientiousness: p.Conscientiousness,
					Extraversion:      p.Extraversion,
					Agreeableness:     p.Agreeableness,
					Neuroticism:       p.Neuroticism,
				}
			}
			out = append(out, t)
		}
		return out, nil
	})
}

// AgentView 坐席投影
type AgentView struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// Agents 坐席列表
func (s *Service) Agents(ctx context.Context) ([]AgentView, error) {
	return cached(ctx, s, "agents", func(ctx context.Context) ([]AgentView, error) {
		agents, err := s.reader.ListAgents(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]AgentView, 0, len(agents))
		for _, a := range agents {
			out = append(out, AgentView{ID: a.AgentID, Name: a.Name, Role: DefaultAgentRole})
		}
		return out, nil
	})
}

// TopicCount 话题热度
type TopicCount struct {
	Topic string `json:"topic"`
	Count int64  `json:"count"`
}

// TrendingTopics 按出现会话数排序的话题，limit<=0 表示不限
func (s *Service) TrendingTopics(ctx context.Context, limit int) ([]TopicCount, error) {
	return cached(ctx, s, fmt.Sprintf("topics:%d", limit), func(ctx context.Context) ([]TopicCount, error) {
		rows, err := s.reader.CountTopics(ctx, limit)
		if err != nil {
			return nil, err
		}
		out := make([]TopicCount, 0, len(rows))
		for _, r := range rows {
			out = append(out, TopicCount{Topic: r.Label, Count: r.Count})
		}
		return out, nil
	})
}

// SentimentShare 情感分布
type SentimentShare struct {
	ServiceArea string `json:"serviceArea"`
	Sentiment   string `json:"sentiment"`
	Count       int64  `json:"count"`
}

// SentimentDistribution 按情感标签计数
func (s *Service) SentimentDistribution(ctx context.Context) ([]SentimentShare, error) {
	return cached(ctx, s, "sentiment-distribution", func(ctx context.Context) ([]SentimentShare, error) {
		rows, err := s.reader.CountSentiments(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]SentimentShare, 0, len(rows))
		for _, r := range rows {
			out = append(out, SentimentShare{ServiceArea: DefaultServiceArea, Sentiment: r.Label, Count: r.Count})
		}
		return out, nil
	})
}

// EmotionShare 情绪分布
type EmotionShare struct {
	ServiceArea string `json:"serviceArea"`
	Emotion     string `json:"emotion"`
	Count       int64  `json:"count"`
}

// EmotionDistribution 按情绪计数
func (s *Service) EmotionDistribution(ctx context.Context) ([]EmotionShare, error) {
	return cached(ctx, s, "emotion-distribution", func(ctx context.Context) ([]EmotionShare, error) {
		rows, err := s.reader.CountEmotions(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]EmotionShare, 0, len(rows))
		for _, r := range rows {
			out = append(out, EmotionShare{ServiceArea: DefaultServiceArea, Emotion: r.Label, Count: r.Count})
		}
		return out, nil
	})
}

// Digest 摘要汇总
type Digest struct {
	Summary string `json:"summary"`
}

// SummaryDigest 拼接全部非空会话摘要
func (s *Service) SummaryDigest(ctx context.Context) (*Digest, error) {
	return cached(ctx, s, "summary", func(ctx context.Context) (*Digest, error) {
		summaries, err := s.reader.ListSummaries(ctx)
		if err != nil {
			return nil, err
		}
		parts := make([]string, 0, len(summaries))
		for _, sm := range summaries {
			if text := strings.TrimSpace(sm.SummaryText); text != "" {
				parts = append(parts, text)
			}
		}
		return &Digest{Summary: strings.Join(parts, " ")}, nil
	})
}

// cached 先查缓存，未命中时计算并写回
func cached[T any](ctx context.Context, s *Service, key string, load func(ctx context.Context) (T, error)) (T, error) {
	if s.cache != nil {
		if data, ok := s.cache.Get(ctx, key); ok {
			var v T
			if err := json.Unmarshal(data, &v); err == nil {
				metrics.CacheLookups.WithLabelValues("hit").Inc()
				return v, nil
			}
			log.Warn().Str("key", key).Msg("discarding undecodable insight cache entry")
		}
		metrics.CacheLookups.WithLabelValues("miss").Inc()
	}

	v, err := load(ctx)
	if err != nil {
		return v, err
	}
	if s.cache != nil {
		if data, err := json.Marshal(v); err == nil {
			s.cache.Set(ctx, key, data)
		}
	}
	return v, nil
}

func timeKey(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
