package model

// 所有模型的统一导入点
// 用于 AutoMigrate，顺序保证被引用的表先创建
var AllModels = []interface{}{
	&Client{},
	&ClientProfile{},
	&Agent{},
	&Conversation{},
	&ConversationSummary{},
	&Message{},
	&SentimentAnalysis{},
	&Emotion{},
	&EmotionAnalysis{},
	&Topic{},
	&TopicAnalysis{},
}
