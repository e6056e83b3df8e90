package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/ashwinyue/chat-insight/internal/service/search"
)

// SearchHandler 会话检索处理器
type SearchHandler struct {
	svc *search.Service
}

// NewSearchHandler 创建检索处理器，svc 为 nil 时接口返回 503
func NewSearchHandler(svc *search.Service) *SearchHandler {
	return &SearchHandler{svc: svc}
}

// SearchConversations 按摘要和话题检索会话
// GET /api/v1/search/conversations?q=
func (h *SearchHandler) SearchConversations(c *gin.Context) {
	if h.svc == nil {
		ServiceUnavailable(c, "search is not configured")
		return
	}
	var q search.Query
	if err := c.ShouldBindQuery(&q); err != nil {
		BadRequest(c, err.Error())
		return
	}
	respond(c)(h.svc.Search(c.Request.Context(), q))
}
