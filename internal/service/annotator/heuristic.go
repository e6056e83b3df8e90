package annotator

import (
	"regexp"
	"strings"

	"github.com/ashwinyue/chat-insight/internal/model"
)

var wordPattern = regexp.MustCompile(`[a-zA-Z']+`)

var stopWords = wordSet("a an the i you he she it we they me my your our their is are was were be been being to of in on at by for with about from and or but if then so than as this that these those here there")

var positiveWords = wordSet("love great awesome happy good amazing fantastic delighted wonderful excellent")

var negativeWords = wordSet("bad sad angry terrible awful worst frustrated upset hate horrible")

// baseEmotions 关键词模式下的固定情绪分布
var baseEmotions = map[string]float64{
	model.EmotionJoy:      0.22,
	model.EmotionAnger:    0.06,
	model.EmotionSadness:  0.06,
	model.EmotionFear:     0.06,
	model.EmotionSurprise: 0.08,
	model.EmotionDisgust:  0.02,
}

// HeuristicMessage 基于关键词的消息标注
func HeuristicMessage(text string) MessageAnnotation {
	words := wordPattern.FindAllString(strings.ToLower(text), -1)

	score := 0
	for _, w := range words {
		if _, ok := positiveWords[w]; ok {
			score++
		}
		if _, ok := negativeWords[w]; ok {
			score--
		}
	}

	var topics []string
	for _, w := range words {
		if _, stop := stopWords[w]; stop || len(w) <= 2 {
			continue
		}
		topics = append(topics, w)
		if len(topics) == maxTopics {
			break
		}
	}

	return MessageAnnotation{
		Sentiment: sentimentFromScore(score),
		Emotions:  NormalizeEmotions(baseEmotions),
		Topics:    CleanTopics(topics),
		Engine:    EngineHeuristic,
	}
}

func sentimentFromScore(score int) string {
	switch {
	case score >= 3:
		return model.SentimentStrongPositive
	case score == 2:
		return model.SentimentModeratePositive
	case score == 1:
		return model.SentimentWeakPositive
	case score == 0:
		return model.SentimentNeutral
	case score == -1:
		return model.SentimentWeakNegative
	case score == -2:
		return model.SentimentModerateNegative
	default:
		return model.SentimentStrongNegative
	}
}

func wordSet(s string) map[string]struct{} {
	fields := strings.Fields(s)
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}
