// Package annotator 为消息和会话生成情感、情绪、话题、摘要与人格标注
// 模型不可用或输出不合法时退化为确定性的默认结果，错误只记录不返回
package annotator

import (
	"context"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	"github.com/ashwinyue/chat-insight/internal/metrics"
	modelpkg "github.com/ashwinyue/chat-insight/internal/model"
)

// 标注引擎
const (
	EngineLLM       = "llm"
	EngineHeuristic = "heuristic"
	EngineFallback  = "fallback"
)

// 运行模式
const (
	ModeLLM       = "llm"
	ModeHeuristic = "heuristic"
)

// 对话角色
const (
	RoleUser   = "User"
	RoleAgent  = "Agent"
	RoleSystem = "System"
)

// Turn 对话中的一轮
type Turn struct {
	Role string
	Text string
}

// MessageAnnotation 单条消息的标注结果
type MessageAnnotation struct {
	Sentiment string
	Emotions  map[string]float64
	Topics    []string
	Engine    string
}

// Personality OCEAN 五维人格分数，取值 [0,1]
type Personality struct {
	Openness          float64 `json:"openness" jsonschema:"required,minimum=0,maximum=1"`
	Conscientiousness float64 `json:"conscientiousness" jsonschema:"required,minimum=0,maximum=1"`
	Extraversion      float64 `json:"extraversion" jsonschema:"required,minimum=0,maximum=1"`
	Agreeableness     float64 `json:"agreeableness" jsonschema:"required,minimum=0,maximum=1"`
	Neuroticism       float64 `json:"neuroticism" jsonschema:"required,minimum=0,maximum=1"`
}

// ConversationAnnotation 会话级标注结果
type ConversationAnnotation struct {
	Summary     string
	Personality Personality
	Engine      string
}

// Annotator 标注能力
// 对 Store 无副作用，可并发调用
type Annotator interface {
	AnnotateMessage(ctx context.Context, text string) MessageAnnotation
	AnnotateConversation(ctx context.Context, turns []Turn) ConversationAnnotation
}

// Config 标注器配置
type Config struct {
	Mode                string
	MessageTimeout      time.Duration
	ConversationTimeout time.Duration
	Temperature         float64
	Debug               bool // 记录每次模型调用
}

// Service 基于 eino ChatModel 的标注器
type Service struct {
	chatModel model.BaseChatModel
	cfg       Config
	handler   callbacks.Handler
}

var _ Annotator = (*Service)(nil)

// NewService 创建标注器，chatModel 可以为 nil
func NewService(chatModel model.BaseChatModel, cfg Config) *Service {
	if cfg.Mode == "" {
		cfg.Mode = ModeLLM
	}
	if cfg.MessageTimeout <= 0 {
		cfg.MessageTimeout = 8 * time.Second
	}
	if cfg.ConversationTimeout <= 0 {
		cfg.ConversationTimeout = 12 * time.Second
	}
	return &Service{
		chatModel: chatModel,
		cfg:       cfg,
		handler:   NewCallbackLogger(log.Logger, cfg.Debug),
	}
}

// AnnotateMessage 标注单条消息
func (s *Service) AnnotateMessage(ctx context.Context, text string) MessageAnnotation {
	if s.chatModel == nil {
		if s.cfg.Mode == ModeHeuristic {
			return s.record("message", HeuristicMessage(text))
		}
		return s.record("message", DefaultMessageAnnotation())
	}

	start := time.Now()
	raw, err := s.generate(ctx, "message", s.cfg.MessageTimeout, buildMessagePrompt(text))
	metrics.AnnotatorDuration.WithLabelValues("message").Observe(time.Since(start).Seconds())
	if err != nil {
		log.Warn().Err(err).Msg("message annotation failed, using fallback")
		return s.record("message", DefaultMessageAnnotation())
	}

	ann, err := parseMessageResponse(raw)
	if err != nil {
		log.Warn().Err(err).Str("response", truncate(raw, 200)).Msg("invalid message annotation, using fallback")
		return s.record("message", DefaultMessageAnnotation())
	}
	return s.record("message", ann)
}

// AnnotateConversation 生成会话摘要与人格画像
func (s *Service) AnnotateConversation(ctx context.Context, turns []Turn) ConversationAnnotation {
	if s.chatModel == nil {
		ann := FallbackConversation(turns)
		if s.cfg.Mode == ModeHeuristic {
			ann.Engine = EngineHeuristic
		}
		return s.recordConversation(ann)
	}

	start := time.Now()
	raw, err := s.generate(ctx, "conversation", s.cfg.ConversationTimeout, buildConversationPrompt(BuildTranscript(turns)))
	metrics.AnnotatorDuration.WithLabelValues("conversation").Observe(time.Since(start).Seconds())
	if err != nil {
		log.Warn().Err(err).Msg("conversation annotation failed, using fallback")
		return s.recordConversation(FallbackConversation(turns))
	}

	ann, err := parseConversationResponse(raw)
	if err != nil {
		log.Warn().Err(err).Str("response", truncate(raw, 200)).Msg("invalid conversation annotation, using fallback")
		return s.recordConversation(FallbackConversation(turns))
	}
	return s.recordConversation(ann)
}

// generate 单次有界调用，不重试
func (s *Service) generate(ctx context.Context, kind string, timeout time.Duration, messages []*schema.Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ctx = callbacks.InitCallbacks(ctx, runInfo(kind), s.handler)

	resp, err := s.chatModel.Generate(ctx, messages, model.WithTemperature(float32(s.cfg.Temperature)))
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func (s *Service) record(kind string, ann MessageAnnotation) MessageAnnotation {
	metrics.AnnotatorCalls.WithLabelValues(kind, ann.Engine).Inc()
	return ann
}

func (s *Service) recordConversation(ann ConversationAnnotation) ConversationAnnotation {
	metrics.AnnotatorCalls.WithLabelValues("conversation", ann.Engine).Inc()
	return ann
}

// DefaultMessageAnnotation 模型失败时的确定性结果：中性、neutral=1、无话题
func DefaultMessageAnnotation() MessageAnnotation {
	return MessageAnnotation{
		Sentiment: modelpkg.SentimentNeutral,
		Emotions:  NormalizeEmotions(nil),
		Topics:    []string{},
		Engine:    EngineFallback,
	}
}

// DefaultPersonality 默认人格向量
func DefaultPersonality() Personality {
	return Personality{
		Openness:          0.6,
		Conscientiousness: 0.55,
		Extraversion:      0.5,
		Agreeableness:     0.6,
		Neuroticism:       0.4,
	}
}

// FallbackConversation 基于规则的会话标注
func FallbackConversation(turns []Turn) ConversationAnnotation {
	return ConversationAnnotation{
		Summary:     FallbackSummary(turns),
		Personality: DefaultPersonality(),
		Engine:      EngineFallback,
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
