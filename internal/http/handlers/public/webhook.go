package public

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/convtrack/internal/constants"
	handlershared "github.com/convtrack/internal/http/handlers/shared"
	"github.com/convtrack/internal/http/response"
	"github.com/convtrack/internal/service"

	"github.com/gin-gonic/gin"
)

// TrackerWebhookRequest 推广追踪平台回调（表单或 JSON）
type TrackerWebhookRequest struct {
	ClickID        string                 `form:"click_id" json:"click_id"`
	TxID           string                 `form:"txid" json:"txid"`
	Event          string                 `form:"event" json:"event"`
	Status         string                 `form:"status" json:"status"`
	Payout         json.Number            `form:"payout" json:"payout"`
	Currency       string                 `form:"currency" json:"currency"`
	AntifraudLevel string                 `form:"antifraud_level" json:"antifraud_level"`
	AntifraudScore *float64               `form:"antifraud_score" json:"antifraud_score"`
	Details        map[string]interface{} `form:"-" json:"details"`
}

// PaymentWebhookRequest 支付平台回调
type PaymentWebhookRequest struct {
	TransactionID string                 `form:"transaction_id" json:"transaction_id"`
	EventType     string                 `form:"event_type" json:"event_type"`
	Status        string                 `form:"status" json:"status"`
	Amount        json.Number            `form:"amount" json:"amount"`
	Currency      string                 `form:"currency" json:"currency"`
	ClickID       string                 `form:"click_id" json:"click_id"`
	Metadata      map[string]interface{} `form:"-" json:"metadata"`
}

// TrackerWebhook 推广追踪平台状态回调
func (h *Handler) TrackerWebhook(c *gin.Context) {
	log := requestLog(c)
	advertiserID, ok := webhookAdvertiserID(c)
	if !ok {
		return
	}
	var req TrackerWebhookRequest
	if err := c.ShouldBind(&req); err != nil {
		log.Warnw("tracker_webhook_payload_invalid", "advertiser_id", advertiserID, "error", err)
		handlershared.RespondErrorWithStatus(c, http.StatusBadRequest, response.CodeBadRequest, "invalid payload", nil)
		return
	}
	revenue, err := parseRevenue(req.Payout)
	if err != nil {
		handlershared.RespondErrorWithStatus(c, http.StatusBadRequest, response.CodeBadRequest, "invalid payout", nil)
		return
	}
	eventType := strings.TrimSpace(req.Event)
	if eventType == "" {
		eventType = constants.ConversionTypePurchase
	}
	log.Infow("tracker_webhook_received",
		"advertiser_id", advertiserID,
		"txid", req.TxID,
		"event", eventType,
		"status", req.Status,
		"click_id", req.ClickID,
		"client_ip", c.ClientIP(),
	)
	result, err := h.ConversionService.Ingest(c.Request.Context(), service.EventInput{
		Source:         constants.EventSourceTracker,
		AdvertiserID:   advertiserID,
		Type:           eventType,
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
		log.Warnw("tracker_webhook_handle_failed", "advertiser_id", advertiserID, "txid", req.TxID, "error", err)
		respondWebhookError(c, err, trackingErrorRules)
		return
	}
	response.Success(c, ingestResultView(result))
}

// PaymentWebhook 支付平台状态回调
func (h *Handler) PaymentWebhook(c *gin.Context) {
	log := requestLog(c)
	advertiserID, ok := webhookAdvertiserID(c)
	if !ok {
		return
	}
	var req PaymentWebhookRequest
	if err := c.ShouldBind(&req); err != nil {
		log.Warnw("payment_webhook_payload_invalid", "advertiser_id", advertiserID, "error", err)
		handlershared.RespondErrorWithStatus(c, http.StatusBadRequest, response.CodeBadRequest, "invalid payload", nil)
		return
	}
	revenue, err := parseRevenue(req.Amount)
	if err != nil {
		handlershared.RespondErrorWithStatus(c, http.StatusBadRequest, response.CodeBadRequest, "invalid amount", nil)
		return
	}
	eventType := strings.TrimSpace(req.EventType)
	if eventType == "" {
		eventType = constants.ConversionTypePurchase
	}
	log.Infow("payment_webhook_received",
		"advertiser_id", advertiserID,
		"transaction_id", req.TransactionID,
		"event_type", eventType,
		"status", req.Status,
		"client_ip", c.ClientIP(),
	)
	result, err := h.ConversionService.Ingest(c.Request.Context(), service.EventInput{
		Source:       constants.EventSourcePayment,
		AdvertiserID: advertiserID,
		Type:         eventType,
		TxID:         req.TransactionID,
		Status:       req.Status,
		ClickID:      req.ClickID,
		Revenue:      revenue,
		Currency:     req.Currency,
		Details:      req.Metadata,
	})
	if err != nil {
		log.Warnw("payment_webhook_handle_failed", "advertiser_id", advertiserID, "transaction_id", req.TransactionID, "error", err)
		respondWebhookError(c, err, trackingErrorRules)
		return
	}
	response.Success(c, ingestResultView(result))
}

func webhookAdvertiserID(c *gin.Context) (uint, bool) {
	raw := strings.TrimSpace(c.Param("advertiser_id"))
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		handlershared.RespondErrorWithStatus(c, http.StatusBadRequest, response.CodeBadRequest, "invalid advertiser_id", nil)
		return 0, false
	}
	return uint(id), true
}
