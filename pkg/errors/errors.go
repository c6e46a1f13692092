// Package errors 提供统一的错误定义
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
)

// ErrorCode 错误码类型
type ErrorCode string

// 预定义错误码
const (
	// 通用错误 (1xxx)
	CodeUnknown       ErrorCode = "1000"
	CodeInvalidParam  ErrorCode = "1001"
	CodeInternalError ErrorCode = "1007"
	CodeUserAborted   ErrorCode = "1010"

	// 业务错误 (4xxx)
	CodeGenerationFailed ErrorCode = "4001"
	CodeValidationFailed ErrorCode = "4002"
	CodeLLMCallFailed    ErrorCode = "4005"
	CodeQuotaExceeded    ErrorCode = "4007"

	// 外部服务错误 (5xxx)
	CodeConfigError      ErrorCode = "5000"
	CodeDatabaseError    ErrorCode = "5001"
	CodeCacheError       ErrorCode = "5002"
	CodeStorageError     ErrorCode = "5004"
	CodeLLMProviderError ErrorCode = "5005"
)

// AppError 应用错误
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Detail  string    `json:"detail,omitempty"`
	Err     error     `json:"-"`
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	msg := e.Message
	if e.Detail != "" {
		msg = msg + " (" + e.Detail + ")"
	}
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, msg, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, msg)
}

// Unwrap 返回底层错误
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is 按错误码比较，使 errors.Is(err, ErrUserAborted) 这类判断成立
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithDetail 添加详细信息（返回副本，避免修改预定义错误）
func (e *AppError) WithDetail(detail string) *AppError {
	cp := *e
	cp.Detail = detail
	return &cp
}

// WithError 添加底层错误（返回副本）
func (e *AppError) WithError(err error) *AppError {
	cp := *e
	cp.Err = err
	return &cp
}

// New 创建新的应用错误
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap 包装错误
func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ExitCode 错误码转进程退出码
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		if stderrors.Is(err, context.Canceled) {
			// 被信号中断（Ctrl-C）
			return 130
		}
		return 1
	}
	switch appErr.Code {
	case CodeUserAborted:
		return 0
	case CodeInvalidParam, CodeConfigError:
		return 2
	case CodeQuotaExceeded:
		return 3
	case CodeGenerationFailed, CodeValidationFailed, CodeLLMCallFailed, CodeLLMProviderError:
		return 4
	case CodeStorageError, CodeDatabaseError, CodeCacheError:
		return 5
	default:
		return 1
	}
}

// 预定义错误
var (
	ErrInvalidParam  = New(CodeInvalidParam, "invalid parameter")
	ErrInternalError = New(CodeInternalError, "internal error")
	ErrUserAborted   = New(CodeUserAborted, "session aborted by user")

	ErrGenerationFailed = New(CodeGenerationFailed, "story generation failed")
	ErrValidationFailed = New(CodeValidationFailed, "validation failed")
	ErrLLMCallFailed    = New(CodeLLMCallFailed, "LLM call failed")
	ErrQuotaExceeded    = New(CodeQuotaExceeded, "token quota exceeded")
)

// IsAppError 检查是否为 AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// AsAppError 将错误转换为 AppError
func AsAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return Wrap(err, CodeUnknown, "unknown error")
}
