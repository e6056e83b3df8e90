package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/ashwinyue/chat-insight/internal/service/ingest"
)

// IngestHandler 批次摄取处理器
type IngestHandler struct {
	pipeline *ingest.Pipeline
}

// NewIngestHandler 创建摄取处理器
func NewIngestHandler(pipeline *ingest.Pipeline) *IngestHandler {
	return &IngestHandler{pipeline: pipeline}
}

// IngestBatches 摄取一个或多个命名空间批次
// POST /api/v1/ingest/batches
// body 可以是批次数组或单个批次对象
func (h *IngestHandler) IngestBatches(c *gin.Context) {
	data, err := c.GetRawData()
	if err != nil {
		BadRequest(c, err.Error())
		return
	}

	batches, err := ingest.DecodeBatches(data)
	if err != nil {
		Error(c, err)
		return
	}

	report, err := h.pipeline.Ingest(c.Request.Context(), batches)
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, report)
}
