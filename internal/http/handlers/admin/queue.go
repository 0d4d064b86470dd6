package admin

import (
	"github.com/convtrack/internal/http/response"

	"github.com/gin-gonic/gin"
)

// GetPostbackQueueStats 获取投递队列状态（持久队列不可用时返回内联计数）
func (h *Handler) GetPostbackQueueStats(c *gin.Context) {
	response.Success(c, h.PostbackQueueService.Stats(c.Request.Context()))
}
