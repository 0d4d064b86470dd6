package service

import (
	"errors"
	"strings"
)

var (
	// ErrValidation 入参校验失败
	ErrValidation = errors.New("validation failed")
	// ErrDuplicateClick 点击标识已存在
	ErrDuplicateClick = errors.New("duplicate click id")
	// ErrConversionNotFound 转化不存在
	ErrConversionNotFound = errors.New("conversion not found")
	// ErrProfileNotFound 回传配置不存在
	ErrProfileNotFound = errors.New("postback profile not found")
	// ErrProfileForbidden 无权操作该回传配置
	ErrProfileForbidden = errors.New("postback profile forbidden")
	// ErrProfileInvalid 回传配置非法
	ErrProfileInvalid = errors.New("postback profile invalid")
	// ErrConversionConflict 并发写入同一幂等键且重试耗尽
	ErrConversionConflict = errors.New("conversion write conflict")
)

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}
