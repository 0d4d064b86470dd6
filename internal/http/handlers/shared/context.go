package shared

import (
	"strconv"
	"strings"

	"github.com/convtrack/internal/http/response"
	"github.com/convtrack/internal/repository"

	"github.com/gin-gonic/gin"
)

// 鉴权中间件写入的上下文键
const (
	OwnerScopeKey = "owner_scope"
	OwnerIDKey    = "owner_id"
)

// GetContextUint 从上下文读取 uint 值并统一处理错误响应。
func GetContextUint(c *gin.Context, key string) (uint, bool) {
	value, exists := c.Get(key)
	if !exists {
		RespondError(c, response.CodeUnauthorized, "unauthorized", nil)
		return 0, false
	}

	switch v := value.(type) {
	case uint:
		return v, true
	case int:
		if v < 0 {
			RespondError(c, response.CodeBadRequest, key+" is invalid", nil)
			return 0, false
		}
		return uint(v), true
	case float64:
		if v < 0 {
			RespondError(c, response.CodeBadRequest, key+" is invalid", nil)
			return 0, false
		}
		return uint(v), true
	default:
		RespondError(c, response.CodeInternal, key+" has unexpected type", nil)
		return 0, false
	}
}

// GetOwner 读取当前请求的归属身份。
func GetOwner(c *gin.Context) (repository.PostbackOwnerRef, bool) {
	id, ok := GetContextUint(c, OwnerIDKey)
	if !ok {
		return repository.PostbackOwnerRef{}, false
	}
	scope := strings.TrimSpace(c.GetString(OwnerScopeKey))
	if scope == "" || id == 0 {
		RespondError(c, response.CodeUnauthorized, "unauthorized", nil)
		return repository.PostbackOwnerRef{}, false
	}
	return repository.PostbackOwnerRef{Scope: scope, ID: id}, true
}

// ParseUintParam 解析路径中的 uint 参数。
func ParseUintParam(c *gin.Context, name string) (uint, bool) {
	raw := strings.TrimSpace(c.Param(name))
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || value == 0 {
		return 0, false
	}
	return uint(value), true
}

// ParseUintQuery 解析查询参数中的 uint，缺省或非法时返回 0。
func ParseUintQuery(c *gin.Context, name string) uint {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return 0
	}
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0
	}
	return uint(value)
}
