package admin

import (
	handlershared "github.com/convtrack/internal/http/handlers/shared"
	"github.com/convtrack/internal/http/response"

	"github.com/gin-gonic/gin"
)

// GetConversion 获取转化详情
func (h *Handler) GetConversion(c *gin.Context) {
	owner, ok := handlershared.GetOwner(c)
	if !ok {
		return
	}
	id, ok := handlershared.ParseUintParam(c, "id")
	if !ok {
		respondError(c, response.CodeBadRequest, "invalid id", nil)
		return
	}
	conversion, err := h.ConversionService.GetForOwner(owner, id)
	if err != nil {
		respondWithMappedError(c, err, ownerErrorRules, "failed to fetch conversion")
		return
	}
	response.Success(c, conversion)
}
