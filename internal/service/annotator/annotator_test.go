package annotator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashwinyue/chat-insight/internal/model"
	"github.com/ashwinyue/chat-insight/internal/testutil"
)

func newTestService(m *testutil.ScriptedChatModel) *Service {
	cfg := Config{MessageTimeout: time.Second, ConversationTimeout: time.Second}
	if m == nil {
		return NewService(nil, cfg)
	}
	return NewService(m, cfg)
}

func neutralOnly() map[string]float64 {
	return map[string]float64{
		model.EmotionJoy:      0,
		model.EmotionAnger:    0,
		model.EmotionSadness:  0,
		model.EmotionFear:     0,
		model.EmotionSurprise: 0,
		model.EmotionDisgust:  0,
		model.EmotionNeutral:  1,
	}
}

// ========== AnnotateMessage 测试 ==========

func TestAnnotateMessage_ValidResponse(t *testing.T) {
	m := testutil.NewScriptedChatModel(testutil.Reply{Content: "```json\n" +
		`{"sentiment":"wn","emotions":{"joy":0,"anger":0.5,"sadness":0.25,"fear":0,"surprise":0,"disgust":0,"neutral":0.9},"topics":["Wifi"," wifi ","Router"]}` +
		"\n```"})
	s := newTestService(m)

	ann := s.AnnotateMessage(context.Background(), "my wifi is down again")

	assert.Equal(t, EngineLLM, ann.Engine)
	assert.Equal(t, model.SentimentWeakNegative, ann.Sentiment)
	assert.Equal(t, 0.5, ann.Emotions[model.EmotionAnger])
	assert.Equal(t, 0.25, ann.Emotions[model.EmotionSadness])
	// neutral 被重新计算
	assert.Equal(t, 0.25, ann.Emotions[model.EmotionNeutral])
	assert.Equal(t, []string{"wifi", "router"}, ann.Topics)
	assert.Equal(t, 1, m.CallsContaining("my wifi is down again"))
}

func TestAnnotateMessage_Fallback(t *testing.T) {
	tests := []struct {
		name  string
		model *testutil.ScriptedChatModel
	}{
		{name: "no model", model: nil},
		{name: "transport error", model: testutil.NewScriptedChatModel(testutil.Reply{Err: errors.New("connection refused")})},
		{name: "not json", model: testutil.NewScriptedChatModel(testutil.Reply{Content: "I think the user is fine"})},
		{name: "unknown label", model: testutil.NewScriptedChatModel(testutil.Reply{Content: `{"sentiment":"happy","emotions":{},"topics":[]}`})},
		{name: "wrong shape", model: testutil.NewScriptedChatModel(testutil.Reply{Content: `{"sentiment":["N"],"emotions":"none"}`})},
		{name: "missing emotions and topics", model: testutil.NewScriptedChatModel(testutil.Reply{Content: `{"sentiment":"SN"}`})},
		{name: "null topics", model: testutil.NewScriptedChatModel(testutil.Reply{Content: `{"sentiment":"SN","emotions":{"anger":0.9},"topics":null}`})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestService(tt.model)

			ann := s.AnnotateMessage(context.Background(), "ok")

			assert.Equal(t, EngineFallback, ann.Engine)
			assert.Equal(t, model.SentimentNeutral, ann.Sentiment)
			assert.Equal(t, neutralOnly(), ann.Emotions)
			assert.Empty(t, ann.Topics)
		})
	}
}

func TestAnnotateMessage_RepairsTruncatedJSON(t *testing.T) {
	m := testutil.NewScriptedChatModel(testutil.Reply{Content: `Sure! {"sentiment":"SP","emotions":{"joy":0.8},"topics":["billing",]`})
	s := newTestService(m)

	ann := s.AnnotateMessage(context.Background(), "thanks, billing is sorted")

	assert.Equal(t, EngineLLM, ann.Engine)
	assert.Equal(t, model.SentimentStrongPositive, ann.Sentiment)
	assert.Equal(t, 0.8, ann.Emotions[model.EmotionJoy])
	assert.InDelta(t, 0.2, ann.Emotions[model.EmotionNeutral], 1e-9)
	assert.Equal(t, []string{"billing"}, ann.Topics)
}

func TestAnnotateMessage_Timeout(t *testing.T) {
	m := testutil.NewRoutingChatModel(func(string) testutil.Reply {
		time.Sleep(50 * time.Millisecond)
		return testutil.Reply{Err: context.DeadlineExceeded}
	})
	s := NewService(m, Config{MessageTimeout: 10 * time.Millisecond})

	ann := s.AnnotateMessage(context.Background(), "hello")
	assert.Equal(t, EngineFallback, ann.Engine)
}

func TestAnnotateMessage_HeuristicMode(t *testing.T) {
	s := NewService(nil, Config{Mode: ModeHeuristic})

	ann := s.AnnotateMessage(context.Background(), "The service was terrible and awful, I hate the wifi")

	assert.Equal(t, EngineHeuristic, ann.Engine)
	assert.Equal(t, model.SentimentStrongNegative, ann.Sentiment)
	assert.Equal(t, []string{"service", "terrible", "awful", "hate", "wifi"}, ann.Topics)
	assert.Equal(t, 0.22, ann.Emotions[model.EmotionJoy])
	assert.Equal(t, 0.5, ann.Emotions[model.EmotionNeutral])
}

// ========== AnnotateConversation 测试 ==========

func TestAnnotateConversation_ValidResponse(t *testing.T) {
	m := testutil.NewScriptedChatModel(testutil.Reply{
		Content: `{"summary":" Tenant reported a leaking tap; agent booked a plumber. ","personality":{"openness":0.7,"conscientiousness":1.4,"extraversion":-0.1,"agreeableness":0.5,"neuroticism":0.3}}`,
	})
	s := newTestService(m)

	ann := s.AnnotateConversation(context.Background(), []Turn{
		{Role: RoleUser, Text: "my tap is leaking"},
		{Role: RoleAgent, Text: "a plumber will come tomorrow"},
	})

	assert.Equal(t, EngineLLM, ann.Engine)
	assert.Equal(t, "Tenant reported a leaking tap; agent booked a plumber.", ann.Summary)
	assert.Equal(t, 1.0, ann.Personality.Conscientiousness)
	assert.Equal(t, 0.0, ann.Personality.Extraversion)
	assert.Equal(t, 1, m.CallsContaining("User: my tap is leaking\nAgent: a plumber will come tomorrow"))
}

func TestAnnotateConversation_Fallback(t *testing.T) {
	m := testutil.NewScriptedChatModel(testutil.Reply{Content: `{"summary":"   ","personality":{}}`})
	s := newTestService(m)

	ann := s.AnnotateConversation(context.Background(), []Turn{
		{Role: RoleUser, Text: "door lock broken"},
		{Role: RoleAgent, Text: "checking"},
		{Role: RoleUser, Text: "any update?"},
		{Role: RoleAgent, Text: "locksmith assigned"},
	})

	assert.Equal(t, EngineFallback, ann.Engine)
	assert.Equal(t, "Issue: door lock broken Outcome: locksmith assigned", ann.Summary)
	assert.Equal(t, DefaultPersonality(), ann.Personality)
}

func TestAnnotateConversation_MissingFields(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "no personality", content: `{"summary":"x"}`},
		{name: "null personality", content: `{"summary":"x","personality":null}`},
		{name: "partial personality", content: `{"summary":"x","personality":{"openness":0.9,"neuroticism":0.1}}`},
		{name: "no summary", content: `{"personality":{"openness":0.1,"conscientiousness":0.2,"extraversion":0.3,"agreeableness":0.4,"neuroticism":0.5}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestService(testutil.NewScriptedChatModel(testutil.Reply{Content: tt.content}))

			ann := s.AnnotateConversation(context.Background(), []Turn{
				{Role: RoleUser, Text: "parcel never arrived"},
				{Role: RoleAgent, Text: "refund issued"},
			})

			assert.Equal(t, EngineFallback, ann.Engine)
			assert.Equal(t, DefaultPersonality(), ann.Personality)
			assert.Equal(t, "Issue: parcel never arrived Outcome: refund issued", ann.Summary)
		})
	}
}

// ========== 辅助函数测试 ==========

func TestDecodeObject_RequiredFields(t *testing.T) {
	var msg messageResponse
	err := decodeObject(`{"sentiment":"N","emotions":{},"topics":[]}`, messageJSONSchema, &msg)
	require.NoError(t, err)
	assert.Equal(t, "N", msg.Sentiment)

	err = decodeObject(`{"sentiment":"N","topics":[]}`, messageJSONSchema, &msg)
	assert.ErrorIs(t, err, errMissingField)
	assert.Contains(t, err.Error(), "emotions")

	var conv conversationResponse
	err = decodeObject(`{"summary":"s","personality":{"openness":0.5,"conscientiousness":0.5,"extraversion":0.5,"agreeableness":0.5}}`, conversationJSONSchema, &conv)
	assert.ErrorIs(t, err, errMissingField)
	assert.Contains(t, err.Error(), "personality.neuroticism")
}

func TestNormalizeEmotions(t *testing.T) {
	tests := []struct {
		name    string
		input   map[string]float64
		neutral float64
	}{
		{name: "nil input", input: nil, neutral: 1},
		{name: "partial", input: map[string]float64{"joy": 0.3, "fear": 0.2}, neutral: 0.5},
		{name: "overflow", input: map[string]float64{"joy": 0.9, "anger": 0.8}, neutral: 0},
		{name: "out of range clamped", input: map[string]float64{"joy": 2, "anger": -1, "neutral": 5}, neutral: 0},
		{name: "neutral ignored", input: map[string]float64{"neutral": 0.1}, neutral: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := NormalizeEmotions(tt.input)
			require.Len(t, out, len(model.EmotionCatalog))
			sum := 0.0
			for k, v := range out {
				assert.GreaterOrEqual(t, v, 0.0, k)
				assert.LessOrEqual(t, v, 1.0, k)
				if k != model.EmotionNeutral {
					sum += v
				}
			}
			assert.InDelta(t, tt.neutral, out[model.EmotionNeutral], 1e-9)
			expected := 1 - sum
			if expected < 0 {
				expected = 0
			}
			assert.InDelta(t, expected, out[model.EmotionNeutral], 1e-3)
		})
	}
}

func TestPresentEmotions(t *testing.T) {
	emotions := NormalizeEmotions(map[string]float64{"joy": 0.2, "anger": 0.19, "surprise": 0.45})

	assert.Equal(t, []string{"joy", "surprise"}, PresentEmotions(emotions, 0.20))
	assert.Equal(t, []string{"joy", "anger", "surprise", "neutral"}, PresentEmotions(emotions, 0.1))
}

func TestCleanTopics(t *testing.T) {
	long := strings.Repeat("x", 80)
	out := CleanTopics([]string{" WiFi ", "wifi", "", "Rent", "a", "b", "c", "d"})
	assert.Equal(t, []string{"wifi", "rent", "a", "b", "c"}, out)

	out = CleanTopics([]string{long})
	require.Len(t, out, 1)
	assert.Len(t, out[0], 64)
}

func TestBuildTranscript(t *testing.T) {
	turns := []Turn{
		{Role: RoleUser, Text: "hi"},
		{Role: RoleAgent, Text: "  "},
		{Role: RoleSystem, Text: "agent joined"},
	}
	assert.Equal(t, "User: hi\nSystem: agent joined", BuildTranscript(turns))

	big := []Turn{{Role: RoleUser, Text: strings.Repeat("a", 7000)}}
	out := BuildTranscript(big)
	assert.Len(t, out, 6000)
	assert.True(t, strings.HasSuffix(out, "aaa"))
}

func TestFallbackSummary_Defaults(t *testing.T) {
	assert.Equal(t, "Issue: User reported an issue. Outcome: Agent provided guidance.", FallbackSummary(nil))

	long := strings.Repeat("b", 300)
	summary := FallbackSummary([]Turn{{Role: RoleUser, Text: long}})
	assert.Equal(t, "Issue: "+long[:160]+" Outcome: Agent provided guidance.", summary)
}

func TestLanguageDetector(t *testing.T) {
	d := NewLanguageDetector()

	assert.Equal(t, "en", d.Detect(""))
	assert.Equal(t, "en", d.Detect("ok"))
	assert.Equal(t, "en", d.Detect("The air conditioner in my room has stopped working since yesterday evening"))
}
