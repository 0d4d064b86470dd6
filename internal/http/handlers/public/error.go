package public

import (
	"errors"
	"net/http"

	handlershared "github.com/convtrack/internal/http/handlers/shared"
	"github.com/convtrack/internal/http/response"
	"github.com/convtrack/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// mappedHandlerError 定义业务错误到接口错误响应的映射关系。
type mappedHandlerError struct {
	target     error
	code       int
	httpStatus int
	msg        string
	detail     bool
}

var trackingErrorRules = []mappedHandlerError{
	{target: service.ErrValidation, code: response.CodeBadRequest, httpStatus: http.StatusBadRequest, msg: "invalid request", detail: true},
	{target: service.ErrDuplicateClick, code: response.CodeConflict, httpStatus: http.StatusConflict, msg: "click id already exists"},
	{target: service.ErrConversionConflict, code: response.CodeConflict, httpStatus: http.StatusConflict, msg: "conversion is being updated, retry later"},
}

func requestLog(c *gin.Context) *zap.SugaredLogger {
	return handlershared.RequestLog(c)
}

func respondError(c *gin.Context, code int, msg string, err error) {
	handlershared.RespondError(c, code, msg, err)
}

func resolveMappedError(err error, rules []mappedHandlerError) (mappedHandlerError, bool) {
	for _, rule := range rules {
		if errors.Is(err, rule.target) {
			if rule.detail {
				rule.msg = err.Error()
			}
			return rule, true
		}
	}
	return mappedHandlerError{}, false
}

func respondWithMappedError(c *gin.Context, err error, rules []mappedHandlerError, fallbackMsg string) {
	if rule, ok := resolveMappedError(err, rules); ok {
		respondError(c, rule.code, rule.msg, nil)
		return
	}
	respondError(c, response.CodeInternal, fallbackMsg, err)
}

// respondWebhookError 回调接口同时返回真实 HTTP 状态码，失败时对方可以重试
func respondWebhookError(c *gin.Context, err error, rules []mappedHandlerError) {
	if rule, ok := resolveMappedError(err, rules); ok {
		handlershared.RespondErrorWithStatus(c, rule.httpStatus, rule.code, rule.msg, nil)
		return
	}
	handlershared.RespondErrorWithStatus(c, http.StatusInternalServerError, response.CodeInternal, "webhook processing failed", err)
}
