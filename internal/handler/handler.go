package handler

import (
	"github.com/ashwinyue/chat-insight/internal/service"
)

// Handlers 处理器集合
type Handlers struct {
	Ingest       *IngestHandler
	Conversation *ConversationHandler
	Insight      *InsightHandler
	Search       *SearchHandler
	System       *SystemHandler
}

// NewHandlers 创建所有处理器
func NewHandlers(svc *service.Services, checks ...HealthCheck) *Handlers {
	return &Handlers{
		Ingest:       NewIngestHandler(svc.Pipeline),
		Conversation: NewConversationHandler(svc.Conversation, svc.Pipeline),
		Insight:      NewInsightHandler(svc.Insight, svc.Trend),
		Search:       NewSearchHandler(svc.Search),
		System:       NewSystemHandler(svc.Config.App.Version, checks...),
	}
}
