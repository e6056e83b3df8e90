package router

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/ashwinyue/chat-insight/internal/handler"
	"github.com/ashwinyue/chat-insight/internal/metrics"
	"github.com/ashwinyue/chat-insight/internal/middleware"
	"github.com/ashwinyue/chat-insight/internal/service/auth"
)

// SetupRouter 设置路由
func SetupRouter(h *handler.Handlers, authSvc *auth.Service, logger zerolog.Logger) *gin.Engine {
	r := gin.New()

	// 中间件
	r.Use(middleware.RequestID())
	r.Use(middleware.RecoveryMiddleware())
	r.Use(middleware.LoggingMiddleware(logger))
	r.Use(middleware.MetricsMiddleware())
	r.Use(middleware.CORSMiddleware())

	// 运维
	r.GET("/health", h.System.Health)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	requireAuth := middleware.RequireAuth(authSvc)

	// API v1
	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", h.System.Health)

		// Ingest 批次摄取
		v1.POST("/ingest/batches", requireAuth, h.Ingest.IngestBatches)

		// Client 客户
		clients := v1.Group("/clients")
		{
			clients.POST("", requireAuth, h.Conversation.CreateClient)
			clients.GET("/:id/conversations", h.Conversation.ListClientConversations)
			clients.POST("/:id/conversations", requireAuth, h.Conversation.CreateConversation)
			clients.GET("/:id/profile", h.Conversation.GetProfile)
		}

		// Agent 坐席
		v1.POST("/agents", requireAuth, h.Conversation.CreateAgent)

		// Conversation 会话
		convs := v1.Group("/conversations")
		{
			convs.GET("/:id", h.Conversation.GetConversation)
			convs.GET("/:id/messages", h.Conversation.ListMessages)
			convs.POST("/:id/messages", requireAuth, h.Conversation.InjectMessage)
			convs.POST("/:id/close", requireAuth, h.Conversation.Close)
			convs.POST("/:id/reopen", requireAuth, h.Conversation.Reopen)
		}

		// Insight 看板
		insights := v1.Group("/insights")
		{
			insights.GET("/kpis", h.Insight.KPIs)
			insights.GET("/conversations", h.Insight.Conversations)
			insights.GET("/tenants", h.Insight.Tenants)
			insights.GET("/agents", h.Insight.Agents)
			insights.GET("/trending-topics", h.Insight.TrendingTopics)
			insights.GET("/sentiment-distribution", h.Insight.SentimentDistribution)
			insights.GET("/emotion-distribution", h.Insight.EmotionDistribution)
			insights.GET("/summary", h.Insight.Summary)
			insights.GET("/trends/sentiment", h.Insight.SentimentTrend)
			insights.GET("/trends/emotion", h.Insight.EmotionTrend)
		}

		// Search 检索
		v1.GET("/search/conversations", h.Search.SearchConversations)
	}

	return r
}
