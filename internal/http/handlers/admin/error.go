package admin

import (
	"errors"

	handlershared "github.com/convtrack/internal/http/handlers/shared"
	"github.com/convtrack/internal/http/response"
	"github.com/convtrack/internal/service"

	"github.com/gin-gonic/gin"
)

// mappedHandlerError 定义业务错误到接口错误响应的映射关系。
type mappedHandlerError struct {
	target error
	code   int
	msg    string
	detail bool
}

var ownerErrorRules = []mappedHandlerError{
	{target: service.ErrProfileForbidden, code: response.CodeForbidden, msg: "forbidden"},
	{target: service.ErrProfileNotFound, code: response.CodeNotFound, msg: "postback profile not found"},
	{target: service.ErrConversionNotFound, code: response.CodeNotFound, msg: "conversion not found"},
	{target: service.ErrValidation, code: response.CodeBadRequest, msg: "invalid request", detail: true},
}

func respondError(c *gin.Context, code int, msg string, err error) {
	handlershared.RespondError(c, code, msg, err)
}

func respondWithMappedError(c *gin.Context, err error, rules []mappedHandlerError, fallbackMsg string) {
	for _, rule := range rules {
		if errors.Is(err, rule.target) {
			msg := rule.msg
			if rule.detail {
				msg = err.Error()
			}
			respondError(c, rule.code, msg, nil)
			return
		}
	}
	respondError(c, response.CodeInternal, fallbackMsg, err)
}
