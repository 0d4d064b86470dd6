package postback

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/convtrack/internal/constants"
	"github.com/convtrack/internal/models"
)

var macroPattern = regexp.MustCompile(`\{([A-Za-z0-9_.\-]+)\}`)

const detailsMacroPrefix = "details."

// Request 渲染后的回传请求
type Request struct {
	Method  string
	URL     string
	Body    string
	Headers map[string]string
}

// Renderer 宏渲染器
type Renderer struct {
	now func() time.Time
}

// NewRenderer 创建宏渲染器
func NewRenderer() *Renderer {
	return &Renderer{now: time.Now}
}

// WithClock 替换时间源
func (r *Renderer) WithClock(now func() time.Time) *Renderer {
	if now != nil {
		r.now = now
	}
	return r
}

// MappedStatus 按配置映射状态，缺省回退规范状态
func MappedStatus(task Task, profile *models.PostbackProfile) string {
	if profile != nil {
		if mapped, ok := profile.StatusMap.Lookup(task.EventType, task.Status); ok {
			return mapped
		}
	}
	return task.Status
}

// Macros 生成固定宏与自定义宏取值
func (r *Renderer) Macros(task Task, profile *models.PostbackProfile) map[string]string {
	revenue := task.Revenue.Plain()
	values := map[string]string{
		"clickid":         task.ClickID,
		"click_id":        task.ClickID,
		"status":          MappedStatus(task, profile),
		"raw_status":      task.Status,
		"revenue":         revenue,
		"payout":          revenue,
		"currency":        task.Currency,
		"txid":            task.TxID,
		"event_type":      task.EventType,
		"conversion_id":   formatID(task.ConversionID),
		"advertiser_id":   formatID(task.AdvertiserID),
		"partner_id":      formatID(task.PartnerID),
		"offer_id":        formatID(task.OfferID),
		"campaign_id":     formatID(task.CampaignID),
		"flow_id":         formatID(task.FlowID),
		"antifraud_level": task.Level(),
		"timestamp":       strconv.FormatInt(r.now().Unix(), 10),
	}
	for key, raw := range task.Details {
		values[detailsMacroPrefix+key] = stringify(raw)
	}
	if profile != nil {
		// 自定义宏只能引用固定宏
		fixed := make(map[string]string, len(values))
		for k, v := range values {
			fixed[k] = v
		}
		for name, tpl := range profile.ExtraMacros {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			values[name] = substitute(tpl, fixed, nil)
		}
	}
	return values
}

// Render 替换模板中的 {macro}，未知宏保持原样
func (r *Renderer) Render(template string, task Task, profile *models.PostbackProfile) string {
	return substitute(template, r.Macros(task, profile), nil)
}

// RenderURL 渲染 URL 模板，宏值做 query 转义
func (r *Renderer) RenderURL(template string, task Task, profile *models.PostbackProfile) string {
	return substitute(template, r.Macros(task, profile), url.QueryEscape)
}

// BuildRequest 构建完整回传请求
func (r *Renderer) BuildRequest(task Task, profile *models.PostbackProfile) (*Request, error) {
	if profile == nil {
		return nil, fmt.Errorf("%w: profile is nil", ErrRequestBuild)
	}
	macros := r.Macros(task, profile)
	rawURL := substitute(profile.EndpointURL, macros, url.QueryEscape)
	endpoint, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestBuild, err)
	}
	if endpoint.Scheme != "http" && endpoint.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrRequestBuild, endpoint.Scheme)
	}

	params := make([]string, 0, len(profile.ParamsTemplate))
	for name := range profile.ParamsTemplate {
		if strings.TrimSpace(name) != "" {
			params = append(params, name)
		}
	}
	sort.Strings(params)
	rendered := make(map[string]string, len(params))
	for _, name := range params {
		rendered[name] = substitute(profile.ParamsTemplate[name], macros, nil)
	}

	method := strings.ToUpper(strings.TrimSpace(profile.Method))
	if method == "" {
		method = constants.PostbackMethodGet
	}
	req := &Request{Method: method, Headers: map[string]string{}}
	query := endpoint.Query()

	switch method {
	case constants.PostbackMethodGet:
		for _, name := range params {
			query.Set(name, rendered[name])
		}
	case constants.PostbackMethodPost:
		body, contentType, err := encodeBody(profile.BodyFormat, params, rendered)
		if err != nil {
			return nil, err
		}
		req.Body = body
		req.Headers["Content-Type"] = contentType
	default:
		return nil, fmt.Errorf("%w: unsupported method %q", ErrRequestBuild, method)
	}

	switch strings.ToLower(strings.TrimSpace(profile.AuthType)) {
	case constants.PostbackAuthQuery:
		if profile.AuthName != "" {
			query.Set(profile.AuthName, profile.AuthValue)
		}
	case constants.PostbackAuthHeader:
		if profile.AuthName != "" {
			req.Headers[profile.AuthName] = profile.AuthValue
		}
	}

	if profile.HmacEnabled {
		payload := substitute(profile.HmacPayloadTemplate, macros, nil)
		if strings.TrimSpace(profile.HmacPayloadTemplate) == "" {
			payload = req.Body
			if method == constants.PostbackMethodGet {
				payload = query.Encode()
			}
		}
		signature := Sign(profile.HmacSecret, payload)
		if method == constants.PostbackMethodGet {
			query.Set(profile.HmacParamName, signature)
		} else {
			req.Headers[profile.HmacParamName] = signature
		}
	}

	endpoint.RawQuery = query.Encode()
	req.URL = endpoint.String()
	return req, nil
}

// Sign HMAC-SHA256 十六进制签名
func Sign(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func encodeBody(format string, names []string, values map[string]string) (string, string, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case constants.PostbackBodyFormatJSON:
		body, err := json.Marshal(values)
		if err != nil {
			return "", "", fmt.Errorf("%w: %v", ErrRequestBuild, err)
		}
		return string(body), "application/json", nil
	default:
		form := url.Values{}
		for _, name := range names {
			form.Set(name, values[name])
		}
		return form.Encode(), "application/x-www-form-urlencoded", nil
	}
}

func substitute(template string, values map[string]string, escape func(string) string) string {
	if template == "" || !strings.Contains(template, "{") {
		return template
	}
	return macroPattern.ReplaceAllStringFunc(template, func(token string) string {
		name := token[1 : len(token)-1]
		value, ok := values[name]
		if !ok {
			return token
		}
		if escape != nil {
			return escape(value)
		}
		return value
	})
}

func formatID(id uint) string {
	if id == 0 {
		return ""
	}
	return strconv.FormatUint(uint64(id), 10)
}

func stringify(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(raw)
	}
}
