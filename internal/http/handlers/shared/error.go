package shared

import (
	"github.com/convtrack/internal/http/response"
	"github.com/convtrack/internal/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestLog 提供携带 request_id 的日志实例。
func RequestLog(c *gin.Context) *zap.SugaredLogger {
	if c == nil {
		return logger.S()
	}
	if requestID, ok := c.Get("request_id"); ok {
		if id, ok := requestID.(string); ok && id != "" {
			return logger.SW("request_id", id)
		}
	}
	return logger.S()
}

// RespondError 返回错误响应，并在有原始错误时记录日志。
func RespondError(c *gin.Context, code int, msg string, err error) {
	appErr := response.WrapError(code, msg, err)
	if err != nil {
		RequestLog(c).Errorw("handler_error",
			"code", appErr.Code,
			"message", appErr.Message,
			"error", err,
		)
	}
	response.Error(c, appErr.Code, appErr.Message)
}

// RespondErrorWithStatus 返回错误响应并设置 HTTP 状态码。
func RespondErrorWithStatus(c *gin.Context, httpStatus int, code int, msg string, err error) {
	appErr := response.WrapErrorWithStatus(httpStatus, code, msg, err)
	if err != nil {
		RequestLog(c).Errorw("handler_error",
			"code", appErr.Code,
			"http_status", appErr.Status(),
			"message", appErr.Message,
			"error", err,
		)
	}
	response.ErrorWithStatus(c, appErr.Status(), appErr.Code, appErr.Message)
}
