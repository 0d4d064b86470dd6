package public

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/convtrack/internal/constants"
	"github.com/convtrack/internal/http/response"
	"github.com/convtrack/internal/models"
	"github.com/convtrack/internal/service"

	"github.com/gin-gonic/gin"
)

const maxGenericSubs = 16

// TrackClickRequest 点击记录请求（GET 查询参数或 POST 表单/JSON）
type TrackClickRequest struct {
	ClickID      string            `form:"click_id" json:"click_id"`
	Code         string            `form:"code" json:"code"`
	AdvertiserID uint              `form:"advertiser_id" json:"advertiser_id"`
	PartnerID    uint              `form:"partner_id" json:"partner_id"`
	OfferID      uint              `form:"offer_id" json:"offer_id"`
	CampaignID   uint              `form:"campaign_id" json:"campaign_id"`
	FlowID       uint              `form:"flow_id" json:"flow_id"`
	Referrer     string            `form:"referrer" json:"referrer"`
	Site         string            `form:"site" json:"site"`
	Subs         map[string]string `form:"-" json:"subs"`
	UTMSource    string            `form:"utm_source" json:"utm_source"`
	UTMMedium    string            `form:"utm_medium" json:"utm_medium"`
	UTMCampaign  string            `form:"utm_campaign" json:"utm_campaign"`
	UTMTerm      string            `form:"utm_term" json:"utm_term"`
	UTMContent   string            `form:"utm_content" json:"utm_content"`
}

// TrackClick 记录点击
func (h *Handler) TrackClick(c *gin.Context) {
	var req TrackClickRequest
	var err error
	if c.Request.Method == http.MethodGet {
		err = c.ShouldBindQuery(&req)
	} else {
		err = c.ShouldBind(&req)
	}
	if err != nil {
		respondError(c, response.CodeBadRequest, "invalid request", err)
		return
	}
	if req.Subs == nil {
		req.Subs = map[string]string{}
	}
	for i := 1; i <= maxGenericSubs; i++ {
		key := fmt.Sprintf("sub%d", i)
		if _, exists := req.Subs[key]; exists {
			continue
		}
		if value, ok := c.GetQuery(key); ok {
			req.Subs[key] = value
		} else if value, ok := c.GetPostForm(key); ok {
			req.Subs[key] = value
		}
	}
	referrer := strings.TrimSpace(req.Referrer)
	if referrer == "" {
		referrer = c.GetHeader("Referer")
	}

	click, err := h.ClickService.RecordClick(c.Request.Context(), service.RecordClickInput{
		ClickID:      req.ClickID,
		TrackingCode: req.Code,
		AdvertiserID: req.AdvertiserID,
		PartnerID:    req.PartnerID,
		OfferID:      req.OfferID,
		CampaignID:   req.CampaignID,
		FlowID:       req.FlowID,
		Referrer:     referrer,
		Site:         req.Site,
		Subs:         req.Subs,
		UTMSource:    req.UTMSource,
		UTMMedium:    req.UTMMedium,
		UTMCampaign:  req.UTMCampaign,
		UTMTerm:      req.UTMTerm,
		UTMContent:   req.UTMContent,
		ClientIP:     c.ClientIP(),
		UserAgent:    c.GetHeader("User-Agent"),
	})
	if err != nil {
		respondWithMappedError(c, err, trackingErrorRules, "failed to record click")
		return
	}
	response.Success(c, gin.H{"click_id": click.ClickID})
}

// TrackEventRequest 第一方事件请求
type TrackEventRequest struct {
	AdvertiserID   uint                   `json:"advertiser_id" binding:"required"`
	OwnerID        uint                   `json:"owner_id"`
	Type           string                 `json:"type" binding:"required"`
	TxID           string                 `json:"txid" binding:"required"`
	Status         string                 `json:"status" binding:"required"`
	ClickID        string                 `json:"click_id"`
	Revenue        json.Number            `json:"revenue"`
	Currency       string                 `json:"currency"`
	AntifraudLevel string                 `json:"antifraud_level"`
	AntifraudScore *float64               `json:"antifraud_score"`
	Details        map[string]interface{} `json:"details"`
}

// TrackEvent 接收第一方转化事件（规范状态名）
func (h *Handler) TrackEvent(c *gin.Context) {
	var req TrackEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request", err)
		return
	}
	revenue, err := parseRevenue(req.Revenue)
	if err != nil {
		respondError(c, response.CodeBadRequest, "invalid revenue", nil)
		return
	}
	result, err := h.ConversionService.Ingest(c.Request.Context(), service.EventInput{
		Source:         constants.EventSourceFirstParty,
		AdvertiserID:   req.AdvertiserID,
		OwnerID:        req.OwnerID,
		Type:           req.Type,
		TxID:           req.TxID,
		Status:         req.Status,
		ClickID:        req.ClickID,
		Revenue:        revenue,
		Currency:       req.Currency,
		AntifraudLevel: req.AntifraudLevel,
		AntifraudScore: req.AntifraudScore,
		Details:        req.Details,
	})
	if err != nil {
		respondWithMappedError(c, err, trackingErrorRules, "failed to record event")
		return
	}
	response.Success(c, ingestResultView(result))
}

func parseRevenue(raw json.Number) (*models.Money, error) {
	value := strings.TrimSpace(raw.String())
	if value == "" {
		return nil, nil
	}
	money, err := models.NewMoneyFromString(value)
	if err != nil {
		return nil, err
	}
	return &money, nil
}

func ingestResultView(result *service.IngestResult) gin.H {
	return gin.H{
		"conversion_id":   result.Conversion.ID,
		"status":          result.Conversion.ConversionStatus,
		"previous_status": result.PreviousStatus,
		"created":         result.Created,
		"status_changed":  result.StatusChanged,
	}
}
