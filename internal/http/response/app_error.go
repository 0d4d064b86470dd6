package response

import "net/http"

// AppError 统一错误包装；HTTPStatus 为 0 时按 200 返回业务码
type AppError struct {
	Code       int
	HTTPStatus int
	Message    string
	Err        error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Status 实际写出的 HTTP 状态码
func (e *AppError) Status() int {
	if e == nil || e.HTTPStatus == 0 {
		return http.StatusOK
	}
	return e.HTTPStatus
}

// WrapError 包装错误
func WrapError(code int, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WrapErrorWithStatus 包装错误并指定 HTTP 状态码（外部回调方据此判断是否重试）
func WrapErrorWithStatus(httpStatus, code int, message string, err error) *AppError {
	appErr := WrapError(code, message, err)
	appErr.HTTPStatus = httpStatus
	return appErr
}
