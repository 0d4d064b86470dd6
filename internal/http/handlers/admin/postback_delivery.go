package admin

import (
	"strconv"
	"strings"
	"time"

	handlershared "github.com/convtrack/internal/http/handlers/shared"
	"github.com/convtrack/internal/http/response"
	"github.com/convtrack/internal/repository"

	"github.com/gin-gonic/gin"
)

// GetPostbackDeliveries 获取投递日志（仅限当前归属的配置）
func (h *Handler) GetPostbackDeliveries(c *gin.Context) {
	owner, ok := handlershared.GetOwner(c)
	if !ok {
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = handlershared.NormalizePagination(page, pageSize)

	filter := repository.PostbackDeliveryListFilter{
		Page:         page,
		PageSize:     pageSize,
		ProfileID:    handlershared.ParseUintQuery(c, "profile_id"),
		ConversionID: handlershared.ParseUintQuery(c, "conversion_id"),
		ClickID:      strings.TrimSpace(c.Query("click_id")),
		Status:       strings.TrimSpace(c.Query("status")),
	}
	var err error
	if filter.CreatedFrom, err = parseTimeQuery(c, "created_from"); err != nil {
		respondError(c, response.CodeBadRequest, "invalid created_from", nil)
		return
	}
	if filter.CreatedTo, err = parseTimeQuery(c, "created_to"); err != nil {
		respondError(c, response.CodeBadRequest, "invalid created_to", nil)
		return
	}

	deliveries, total, err := h.PostbackProfileService.ListDeliveries(owner, filter)
	if err != nil {
		respondWithMappedError(c, err, ownerErrorRules, "failed to list postback deliveries")
		return
	}
	response.SuccessWithPage(c, deliveries, handlershared.BuildPagination(page, pageSize, total))
}

func parseTimeQuery(c *gin.Context, name string) (*time.Time, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}
