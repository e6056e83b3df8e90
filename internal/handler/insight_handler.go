package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ashwinyue/chat-insight/internal/service/insight"
	"github.com/ashwinyue/chat-insight/internal/service/trend"
)

const defaultTopicLimit = 10

// InsightHandler 看板查询处理器
type InsightHandler struct {
	svc   *insight.Service
	trend *trend.Service
}

// NewInsightHandler 创建看板查询处理器
func NewInsightHandler(svc *insight.Service, trendSvc *trend.Service) *InsightHandler {
	return &InsightHandler{svc: svc, trend: trendSvc}
}

// KPIs 看板指标
// GET /api/v1/insights/kpis
func (h *InsightHandler) KPIs(c *gin.Context) {
	respond(c)(h.svc.KPIs(c.Request.Context()))
}

// Conversations 会话列表
// GET /api/v1/insights/conversations?client_id=&status=&from=&to=&limit=
func (h *InsightHandler) Conversations(c *gin.Context) {
	var f insight.Filter
	if err := c.ShouldBindQuery(&f); err != nil {
		BadRequest(c, err.Error())
		return
	}
	respond(c)(h.svc.ListConversations(c.Request.Context(), f))
}

// Tenants 客户列表
// GET /api/v1/insights/tenants
func (h *InsightHandler) Tenants(c *gin.Context) {
	respond(c)(h.svc.Tenants(c.Request.Context()))
}

// Agents 坐席列表
// GET /api/v1/insights/agents
func (h *InsightHandler) Agents(c *gin.Context) {
	respond(c)(h.svc.Agents(c.Request.Context()))
}

// TrendingTopics 热门话题
// GET /api/v1/insights/trending-topics?limit=
func (h *InsightHandler) TrendingTopics(c *gin.Context) {
	limit := defaultTopicLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			BadRequest(c, "invalid limit")
			return
		}
		limit = n
	}
	respond(c)(h.svc.TrendingTopics(c.Request.Context(), limit))
}

// SentimentDistribution 情感分布
// GET /api/v1/insights/sentiment-distribution
func (h *InsightHandler) SentimentDistribution(c *gin.Context) {
	respond(c)(h.svc.SentimentDistribution(c.Request.Context()))
}

// EmotionDistribution 情绪分布
// GET /api/v1/insights/emotion-distribution
func (h *InsightHandler) EmotionDistribution(c *gin.Context) {
	respond(c)(h.svc.EmotionDistribution(c.Request.Context()))
}

// Summary 摘要汇总
// GET /api/v1/insights/summary
func (h *InsightHandler) Summary(c *gin.Context) {
	respond(c)(h.svc.SummaryDigest(c.Request.Context()))
}

// SentimentTrend 情感趋势
// GET /api/v1/insights/trends/sentiment?granularity=day|month
func (h *InsightHandler) SentimentTrend(c *gin.Context) {
	respond(c)(h.trend.SentimentTrend(c.Request.Context(), c.DefaultQuery("granularity", trend.GranularityDay)))
}

// EmotionTrend 情绪趋势
// GET /api/v1/insights/trends/emotion?granularity=day|month
func (h *InsightHandler) EmotionTrend(c *gin.Context) {
	respond(c)(h.trend.EmotionTrend(c.Request.Context(), c.DefaultQuery("granularity", trend.GranularityDay)))
}

// respond 将 (data, err) 写成响应
func respond(c *gin.Context) func(interface{}, error) {
	return func(data interface{}, err error) {
		if err != nil {
			Error(c, err)
			return
		}
		Success(c, data)
	}
}
