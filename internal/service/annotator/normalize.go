package annotator

import (
	"math"
	"strings"

	"github.com/ashwinyue/chat-insight/internal/model"
)

const (
	maxTopics         = 5
	maxTopicLength    = 64
	maxTranscriptLen  = 6000
	maxSummaryPartLen = 160
)

// NormalizeEmotions 补齐七种情绪并裁剪到 [0,1]
// neutral 总是按 1 - 其它情绪之和重新计算，结果保留三位小数
func NormalizeEmotions(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(model.EmotionCatalog))
	nonNeutral := 0.0
	for _, k := range model.EmotionCatalog {
		if k == model.EmotionNeutral {
			continue
		}
		v := clamp01(in[k])
		out[k] = v
		nonNeutral += v
	}
	out[model.EmotionNeutral] = clamp01(1 - nonNeutral)
	for k, v := range out {
		out[k] = round3(v)
	}
	return out
}

// PresentEmotions 返回强度不低于阈值的情绪，按目录顺序
func PresentEmotions(emotions map[string]float64, threshold float64) []string {
	var present []string
	for _, k := range model.EmotionCatalog {
		if v, ok := emotions[k]; ok && v >= threshold {
			present = append(present, k)
		}
	}
	return present
}

// CleanTopics 去空白、转小写、截断并去重，最多保留五个
func CleanTopics(topics []string) []string {
	seen := make(map[string]struct{}, len(topics))
	out := make([]string, 0, len(topics))
	for _, t := range topics {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if r := []rune(t); len(r) > maxTopicLength {
			t = strings.TrimSpace(string(r[:maxTopicLength]))
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
		if len(out) == maxTopics {
			break
		}
	}
	return out
}

// BuildTranscript 生成 "Role: text" 逐行文本，只保留末尾 6000 个字符
func BuildTranscript(turns []Turn) string {
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		if strings.TrimSpace(t.Text) == "" {
			continue
		}
		lines = append(lines, t.Role+": "+t.Text)
	}
	transcript := strings.Join(lines, "\n")
	if r := []rune(transcript); len(r) > maxTranscriptLen {
		transcript = string(r[len(r)-maxTranscriptLen:])
	}
	return transcript
}

// FallbackSummary 以第一条客户消息为问题、最后一条坐席消息为结果
func FallbackSummary(turns []Turn) string {
	issue := "User reported an issue."
	for _, t := range turns {
		if t.Role == RoleUser && strings.TrimSpace(t.Text) != "" {
			issue = truncate(t.Text, maxSummaryPartLen)
			break
		}
	}
	outcome := "Agent provided guidance."
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == RoleAgent && strings.TrimSpace(turns[i].Text) != "" {
			outcome = truncate(turns[i].Text, maxSummaryPartLen)
			break
		}
	}
	return "Issue: " + issue + " Outcome: " + outcome
}

// ClampPersonality 将人格分数裁剪到 [0,1]
func ClampPersonality(p Personality) Personality {
	return Personality{
		Openness:          clamp01(p.Openness),
		Conscientiousness: clamp01(p.Conscientiousness),
		Extraversion:      clamp01(p.Extraversion),
		Agreeableness:     clamp01(p.Agreeableness),
		Neuroticism:       clamp01(p.Neuroticism),
	}
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
