package model

import "time"

// 七级情感标签，从强积极到强消极
const (
	SentimentStrongPositive   = "SP"
	SentimentModeratePositive = "MP"
	SentimentWeakPositive     = "WP"
	SentimentNeutral          = "N"
	SentimentWeakNegative     = "WN"
	SentimentModerateNegative = "MN"
	SentimentStrongNegative   = "SN"
)

// SentimentLabels 按从积极到消极排列
var SentimentLabels = []string{
	SentimentStrongPositive,
	SentimentModeratePositive,
	SentimentWeakPositive,
	SentimentNeutral,
	SentimentWeakNegative,
	SentimentModerateNegative,
	SentimentStrongNegative,
}

// SentimentScore 标签对应的序数分值
var SentimentScore = map[string]int{
	SentimentStrongPositive:   3,
	SentimentModeratePositive: 2,
	SentimentWeakPositive:     1,
	SentimentNeutral:          0,
	SentimentWeakNegative:     -1,
	SentimentModerateNegative: -2,
	SentimentStrongNegative:   -3,
}

// IsSentimentLabel 检查标签是否合法
func IsSentimentLabel(label string) bool {
	_, ok := SentimentScore[label]
	return ok
}

// IsNegativeSentiment 是否为消极情感
func IsNegativeSentiment(label string) bool {
	return SentimentScore[label] < 0
}

// 情绪目录
const (
	EmotionJoy      = "joy"
	EmotionAnger    = "anger"
	EmotionSadness  = "sadness"
	EmotionFear     = "fear"
	EmotionSurprise = "surprise"
	EmotionDisgust  = "disgust"
	EmotionNeutral  = "neutral"
)

// EmotionCatalog 固定的七种情绪
var EmotionCatalog = []string{
	EmotionJoy,
	EmotionAnger,
	EmotionSadness,
	EmotionFear,
	EmotionSurprise,
	EmotionDisgust,
	EmotionNeutral,
}

// SentimentAnalysis 消息情感标注，每条消息至多一条
type SentimentAnalysis struct {
	MessageID uint      `gorm:"column:message_id;primaryKey;autoIncrement:false" json:"message_id"`
	Sentiment string    `gorm:"size:4;not null;index" json:"sentiment"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName 指定表名
func (SentimentAnalysis) TableName() string {
	return "sentiment_analysis"
}

// Emotion 情绪目录项
type Emotion struct {
	Emotion string `gorm:"column:emotion;primaryKey;size:32" json:"emotion"`
}

// TableName 指定表名
func (Emotion) TableName() string {
	return "emotion"
}

// EmotionAnalysis 消息-情绪存在关系，只记录存在不记录强度
type EmotionAnalysis struct {
	MessageID uint   `gorm:"column:message_id;primaryKey;autoIncrement:false" json:"message_id"`
	Emotion   string `gorm:"column:emotion;primaryKey;size:32" json:"emotion"`
}

// TableName 指定表名
func (EmotionAnalysis) TableName() string {
	return "emotion_analysis"
}

// Topic 全局去重的小写关键词
type Topic struct {
	Topic string `gorm:"column:topic;primaryKey;size:64" json:"topic"`
}

// TableName 指定表名
func (Topic) TableName() string {
	return "topic"
}

// TopicAnalysis 会话-话题关联
type TopicAnalysis struct {
	ConversationID uint   `gorm:"column:conversation_id;primaryKey;autoIncrement:false" json:"conversation_id"`
	Topic          string `gorm:"column:topic;primaryKey;size:64" json:"topic"`
}

// TableName 指定表名
func (TopicAnalysis) TableName() string {
	return "topic_analysis"
}
