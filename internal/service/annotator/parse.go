package annotator

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/kaptinlin/jsonrepair"

	"github.com/ashwinyue/chat-insight/internal/model"
)

var (
	errNoJSON           = errors.New("no json object in response")
	errInvalidSentiment = errors.New("invalid sentiment label")
	errEmptySummary     = errors.New("empty summary")
	errMissingField     = errors.New("missing required field")
)

// messageResponse 模型对单条消息的响应
type messageResponse struct {
	Sentiment string        `json:"sentiment" jsonschema:"required,enum=SP,enum=MP,enum=WP,enum=N,enum=WN,enum=MN,enum=SN"`
	Emotions  emotionScores `json:"emotions" jsonschema:"required"`
	Topics    []string      `json:"topics" jsonschema:"required,maxItems=5"`
}

// 单项情绪缺省为 0，由 NormalizeEmotions 补齐 neutral
type emotionScores struct {
	Joy      float64 `json:"joy" jsonschema:"minimum=0,maximum=1"`
	Anger    float64 `json:"anger" jsonschema:"minimum=0,maximum=1"`
	Sadness  float64 `json:"sadness" jsonschema:"minimum=0,maximum=1"`
	Fear     float64 `json:"fear" jsonschema:"minimum=0,maximum=1"`
	Surprise float64 `json:"surprise" jsonschema:"minimum=0,maximum=1"`
	Disgust  float64 `json:"disgust" jsonschema:"minimum=0,maximum=1"`
	Neutral  float64 `json:"neutral" jsonschema:"minimum=0,maximum=1"`
}

func (e emotionScores) toMap() map[string]float64 {
	return map[string]float64{
		model.EmotionJoy:      e.Joy,
		model.EmotionAnger:    e.Anger,
		model.EmotionSadness:  e.Sadness,
		model.EmotionFear:     e.Fear,
		model.EmotionSurprise: e.Surprise,
		model.EmotionDisgust:  e.Disgust,
		model.EmotionNeutral:  e.Neutral,
	}
}

// conversationResponse 模型对会话的响应
type conversationResponse struct {
	Summary     string      `json:"summary" jsonschema:"required"`
	Personality Personality `json:"personality" jsonschema:"required"`
}

func parseMessageResponse(raw string) (MessageAnnotation, error) {
	var resp messageResponse
	if err := decodeObject(raw, messageJSONSchema, &resp); err != nil {
		return MessageAnnotation{}, err
	}

	label := strings.ToUpper(strings.TrimSpace(resp.Sentiment))
	if !model.IsSentimentLabel(label) {
		return MessageAnnotation{}, fmt.Errorf("%w: %q", errInvalidSentiment, resp.Sentiment)
	}

	return MessageAnnotation{
		Sentiment: label,
		Emotions:  NormalizeEmotions(resp.Emotions.toMap()),
		Topics:    CleanTopics(resp.Topics),
		Engine:    EngineLLM,
	}, nil
}

func parseConversationResponse(raw string) (ConversationAnnotation, error) {
	var resp conversationResponse
	if err := decodeObject(raw, conversationJSONSchema, &resp); err != nil {
		return ConversationAnnotation{}, err
	}

	summary := strings.TrimSpace(resp.Summary)
	if summary == "" {
		return ConversationAnnotation{}, errEmptySummary
	}

	return ConversationAnnotation{
		Summary:     summary,
		Personality: ClampPersonality(resp.Personality),
		Engine:      EngineLLM,
	}, nil
}

// decodeObject 从模型输出中提取 JSON 对象，按 schema 检查必填字段后解码
// 先去掉代码块标记，再截取最外层大括号，必要时用 jsonrepair 修复
func decodeObject(raw string, schema *jsonschema.Schema, v interface{}) error {
	s := extractObject(raw)
	if s == "" {
		return errNoJSON
	}
	if !json.Valid([]byte(s)) {
		repaired, err := jsonrepair.JSONRepair(s)
		if err != nil {
			return fmt.Errorf("failed to repair json: %w", err)
		}
		s = repaired
	}
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return fmt.Errorf("failed to decode json: %w", err)
	}
	if err := checkRequired(schema, obj, ""); err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(s), v); err != nil {
		return fmt.Errorf("failed to decode json: %w", err)
	}
	return nil
}

// checkRequired 检查 required 字段存在且不为 null，嵌套对象递归检查
func checkRequired(schema *jsonschema.Schema, obj map[string]interface{}, path string) error {
	for _, name := range schema.Required {
		val, ok := obj[name]
		if !ok || val == nil {
			return fmt.Errorf("%w: %s%s", errMissingField, path, name)
		}
		if schema.Properties == nil {
			continue
		}
		prop, ok := schema.Properties.Get(name)
		if !ok || prop == nil || prop.Type != "object" {
			continue
		}
		child, ok := val.(map[string]interface{})
		if !ok {
			return fmt.Errorf("%w: %s%s is not an object", errMissingField, path, name)
		}
		if err := checkRequired(prop, child, path+name+"."); err != nil {
			return err
		}
	}
	return nil
}

func extractObject(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	i := strings.IndexByte(s, '{')
	if i < 0 {
		return ""
	}
	tail := s[i:]
	// 大括号未闭合说明输出被截断，整段交给 jsonrepair 补全
	if strings.Count(tail, "{") > strings.Count(tail, "}") {
		return tail
	}
	j := strings.LastIndexByte(s, '}')
	return s[i : j+1]
}
