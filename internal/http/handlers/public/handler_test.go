package public

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/convtrack/internal/config"
	"github.com/convtrack/internal/constants"
	"github.com/convtrack/internal/http/response"
	"github.com/convtrack/internal/models"
	"github.com/convtrack/internal/provider"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/spf13/viper"
	"gorm.io/gorm"
)

type testEnvelope struct {
	StatusCode int                    `json:"status_code"`
	Msg        string                 `json:"msg"`
	Data       map[string]interface{} `json:"data"`
}

func setupPublicHandlerTest(t *testing.T) (*Handler, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:public_handler_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}

	v := viper.New()
	config.SetDefaults(v)
	v.Set("redis.enabled", false)
	v.Set("queue.enabled", false)
	cfg, err := config.Unmarshal(v)
	if err != nil {
		t.Fatalf("load config failed: %v", err)
	}

	c := provider.NewContainer(cfg, db)
	t.Cleanup(func() { _ = c.Close() })
	h := New(c)

	r := gin.New()
	r.GET("/track/click", h.TrackClick)
	r.POST("/track/click", h.TrackClick)
	r.POST("/track/event", h.TrackEvent)
	r.POST("/webhooks/tracker/:advertiser_id", h.TrackerWebhook)
	r.POST("/webhooks/payment/:advertiser_id", h.PaymentWebhook)
	return h, r
}

func doRequest(t *testing.T, r *gin.Engine, req *http.Request) (*httptest.ResponseRecorder, testEnvelope) {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var env testEnvelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response failed: %v body=%s", err, w.Body.String())
	}
	return w, env
}

func jsonRequest(t *testing.T, method, target string, body interface{}) *http.Request {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body failed: %v", err)
	}
	req := httptest.NewRequest(method, target, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestTrackClickFromQuery(t *testing.T) {
	h, r := setupPublicHandlerTest(t)

	req := httptest.NewRequest(http.MethodGet, "/track/click?offer_id=7&partner_id=3&sub1=abc&sub2=geo:US|dev:ios&utm_source=fb", nil)
	req.Header.Set("Referer", "https://landing.example.com/a")
	_, env := doRequest(t, r, req)
	if env.StatusCode != response.CodeOK {
		t.Fatalf("unexpected status: %+v", env)
	}
	clickID, _ := env.Data["click_id"].(string)
	if len(clickID) != 26 {
		t.Fatalf("expected generated click id, got %q", clickID)
	}

	click, err := h.ClickService.GetClick(req.Context(), clickID)
	if err != nil || click == nil {
		t.Fatalf("get click failed: %v", err)
	}
	if click.OfferID != 7 || click.PartnerID != 3 {
		t.Fatalf("unexpected attribution: %+v", click)
	}
	if click.Subs["sub1"] != "abc" || click.Sub2Params["geo"] != "US" || click.Sub2Params["dev"] != "ios" {
		t.Fatalf("unexpected subs: subs=%v sub2=%v", click.Subs, click.Sub2Params)
	}
	if click.Referrer != "https://landing.example.com/a" || click.UTMSource != "fb" {
		t.Fatalf("unexpected referrer or utm: %+v", click)
	}
}

func TestTrackClickRejectsInvalidAndDuplicate(t *testing.T) {
	_, r := setupPublicHandlerTest(t)

	_, env := doRequest(t, r, httptest.NewRequest(http.MethodGet, "/track/click?partner_id=1", nil))
	if env.StatusCode != response.CodeBadRequest {
		t.Fatalf("expected bad request without offer, got %+v", env)
	}

	body := map[string]interface{}{"click_id": "fixed-1", "offer_id": 9}
	_, env = doRequest(t, r, jsonRequest(t, http.MethodPost, "/track/click", body))
	if env.StatusCode != response.CodeOK {
		t.Fatalf("first click should succeed: %+v", env)
	}
	_, env = doRequest(t, r, jsonRequest(t, http.MethodPost, "/track/click", body))
	if env.StatusCode != response.CodeConflict {
		t.Fatalf("expected conflict on duplicate click id, got %+v", env)
	}
}

func TestTrackEventCreatesAndMerges(t *testing.T) {
	h, r := setupPublicHandlerTest(t)

	event := map[string]interface{}{
		"advertiser_id": 5,
		"type":          "purchase",
		"txid":          "order-1",
		"status":        "pending",
		"revenue":       "12.50",
		"currency":      "usd",
	}
	_, env := doRequest(t, r, jsonRequest(t, http.MethodPost, "/track/event", event))
	if env.StatusCode != response.CodeOK {
		t.Fatalf("unexpected status: %+v", env)
	}
	if created, _ := env.Data["created"].(bool); !created {
		t.Fatalf("expected created conversion: %+v", env.Data)
	}

	event["status"] = "approved"
	event["revenue"] = 15
	_, env = doRequest(t, r, jsonRequest(t, http.MethodPost, "/track/event", event))
	if env.StatusCode != response.CodeOK {
		t.Fatalf("unexpected status: %+v", env)
	}
	if changed, _ := env.Data["status_changed"].(bool); !changed {
		t.Fatalf("expected status change: %+v", env.Data)
	}
	if env.Data["previous_status"] != constants.ConversionStatusPending {
		t.Fatalf("unexpected previous status: %+v", env.Data)
	}

	id := uint(env.Data["conversion_id"].(float64))
	conv, err := h.ConversionService.GetByID(id)
	if err != nil {
		t.Fatalf("get conversion failed: %v", err)
	}
	if conv.ConversionStatus != constants.ConversionStatusApproved || conv.Revenue.Plain() != "15" {
		t.Fatalf("unexpected conversion: status=%s revenue=%s", conv.ConversionStatus, conv.Revenue.Plain())
	}
}

func TestTrackEventRejectsNonCanonicalStatus(t *testing.T) {
	_, r := setupPublicHandlerTest(t)

	event := map[string]interface{}{
		"advertiser_id": 5,
		"type":          "purchase",
		"txid":          "order-2",
		"status":        "SALE",
	}
	_, env := doRequest(t, r, jsonRequest(t, http.MethodPost, "/track/event", event))
	if env.StatusCode != response.CodeBadRequest {
		t.Fatalf("expected bad request, got %+v", env)
	}

	event["status"] = "approved"
	event["revenue"] = "abc"
	_, env = doRequest(t, r, jsonRequest(t, http.MethodPost, "/track/event", event))
	if env.StatusCode != response.CodeBadRequest {
		t.Fatalf("expected bad request on invalid revenue, got %+v", env)
	}
}

func TestTrackerWebhookMapsExternalStatus(t *testing.T) {
	h, r := setupPublicHandlerTest(t)

	form := url.Values{}
	form.Set("txid", "tx-100")
	form.Set("status", "sale")
	form.Set("payout", "3.2")
	form.Set("click_id", "unknown-click")
	req := httptest.NewRequest(http.MethodPost, "/webhooks/tracker/11", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w, env := doRequest(t, r, req)
	if w.Code != http.StatusOK || env.StatusCode != response.CodeOK {
		t.Fatalf("unexpected response: code=%d env=%+v", w.Code, env)
	}
	if env.Data["status"] != constants.ConversionStatusApproved {
		t.Fatalf("expected mapped approved status, got %+v", env.Data)
	}

	conv, err := h.ConversionService.GetByID(uint(env.Data["conversion_id"].(float64)))
	if err != nil {
		t.Fatalf("get conversion failed: %v", err)
	}
	if conv.Source != constants.EventSourceTracker || conv.AdvertiserID != 11 || conv.Type != constants.ConversionTypePurchase {
		t.Fatalf("unexpected conversion: %+v", conv)
	}
}

func TestWebhookErrorsUseHTTPStatus(t *testing.T) {
	_, r := setupPublicHandlerTest(t)

	w, env := doRequest(t, r, jsonRequest(t, http.MethodPost, "/webhooks/payment/abc", map[string]interface{}{}))
	if w.Code != http.StatusBadRequest || env.StatusCode != response.CodeBadRequest {
		t.Fatalf("expected 400 on bad advertiser id, got code=%d env=%+v", w.Code, env)
	}

	w, env = doRequest(t, r, jsonRequest(t, http.MethodPost, "/webhooks/payment/4", map[string]interface{}{
		"status": "paid",
	}))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without transaction id, got code=%d env=%+v", w.Code, env)
	}

	w, env = doRequest(t, r, jsonRequest(t, http.MethodPost, "/webhooks/payment/4", map[string]interface{}{
		"transaction_id": "pay-1",
		"status":         "paid",
		"amount":         "20",
		"metadata":       map[string]interface{}{"gateway": "stripe"},
	}))
	if w.Code != http.StatusOK || env.StatusCode != response.CodeOK {
		t.Fatalf("unexpected response: code=%d env=%+v", w.Code, env)
	}
	if env.Data["status"] != constants.ConversionStatusApproved {
		t.Fatalf("expected paid to map to approved, got %+v", env.Data)
	}
}
