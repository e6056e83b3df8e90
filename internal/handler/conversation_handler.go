package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/ashwinyue/chat-insight/internal/service/conversation"
	"github.com/ashwinyue/chat-insight/internal/service/ingest"
)

// ConversationHandler 会话处理器
type ConversationHandler struct {
	svc      *conversation.Service
	pipeline *ingest.Pipeline
}

// NewConversationHandler 创建会话处理器
func NewConversationHandler(svc *conversation.Service, pipeline *ingest.Pipeline) *ConversationHandler {
	return &ConversationHandler{svc: svc, pipeline: pipeline}
}

// ========== 客户与坐席 ==========

// CreateClient 创建客户
// POST /api/v1/clients
func (h *ConversationHandler) CreateClient(c *gin.Context) {
	var req conversation.CreateClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	client, err := h.svc.CreateClient(c.Request.Context(), req)
	if err != nil {
		Error(c, err)
		return
	}
	Created(c, client)
}

// CreateAgent 创建坐席
// POST /api/v1/agents
func (h *ConversationHandler) CreateAgent(c *gin.Context) {
	var req conversation.CreateAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	agent, err := h.svc.CreateAgent(c.Request.Context(), req)
	if err != nil {
		Error(c, err)
		return
	}
	Created(c, agent)
}

// GetProfile 获取客户人格画像
// GET /api/v1/clients/:id/profile
func (h *ConversationHandler) GetProfile(c *gin.Context) {
	profile, err := h.svc.GetProfile(c.Request.Context(), c.Param("id"))
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, profile)
}

// ========== 会话 ==========

// CreateConversation 为客户新建会话
// POST /api/v1/clients/:id/conversations
func (h *ConversationHandler) CreateConversation(c *gin.Context) {
	conv, err := h.svc.Create(c.Request.Context(), c.Param("id"))
	if err != nil {
		Error(c, err)
		return
	}
	Created(c, conv)
}

// ListClientConversations 列出客户的会话
// GET /api/v1/clients/:id/conversations
func (h *ConversationHandler) ListClientConversations(c *gin.Context) {
	convs, err := h.svc.ListByClient(c.Request.Context(), c.Param("id"))
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, convs)
}

// GetConversation 获取会话
// GET /api/v1/conversations/:id
func (h *ConversationHandler) GetConversation(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	conv, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, conv)
}

// ListMessages 列出会话消息
// GET /api/v1/conversations/:id/messages
func (h *ConversationHandler) ListMessages(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	msgs, err := h.svc.Messages(c.Request.Context(), id)
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, msgs)
}

// InjectMessage 向会话写入一条消息
// POST /api/v1/conversations/:id/messages
func (h *ConversationHandler) InjectMessage(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req ingest.InjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	req.ConversationID = id

	result, err := h.pipeline.InjectMessage(c.Request.Context(), req)
	if err != nil {
		Error(c, err)
		return
	}
	Created(c, result)
}

// Close 关闭会话并重新生成摘要
// POST /api/v1/conversations/:id/close
func (h *ConversationHandler) Close(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	conv, err := h.svc.Close(c.Request.Context(), id)
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, conv)
}

// Reopen 重新打开会话
// POST /api/v1/conversations/:id/reopen
func (h *ConversationHandler) Reopen(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	conv, err := h.svc.Reopen(c.Request.Context(), id)
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, conv)
}
