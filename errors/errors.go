// Package errors 映射引擎的错误分类
//
// 每个错误携带一个 ErrorCode，调用方通过 IsErrorCode 或 errors.Is(err, ErrXxx)
// 判断类别；驱动原始错误保留在 Unwrap 链上。
package errors

import (
	stdErrors "errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// ErrorCode 错误类别
type ErrorCode string

const (
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeTimeout      ErrorCode = "TIMEOUT"

	// 实体映射元信息（标签、表名、关联形状）无效
	ErrCodeSchema ErrorCode = "SCHEMA_ERROR"
	// 延迟代理没有可用的数据提供者
	ErrCodeUnboundProvider ErrorCode = "UNBOUND_PROVIDER"
	// 唯一键/主键冲突
	ErrCodeDuplicate ErrorCode = "DUPLICATE_ERROR"
	// 语句执行失败
	ErrCodeDatabase ErrorCode = "DATABASE_ERROR"
	// 变更通知发布失败
	ErrCodeChangeFeed ErrorCode = "CHANGEFEED_ERROR"
)

// IError 带错误码的错误
type IError interface {
	error

	Code() ErrorCode
	Message() string
	Cause() error
	// Details 附加的上下文键值，如 table、type、operation
	Details() map[string]any

	// Wrap 以 msg 为前缀包一层，错误码不变
	Wrap(msg string) IError
	// WithContext 返回附加了键值的副本，原错误不变
	WithContext(key string, value any) IError
}

// AppError IError 的唯一实现
type AppError struct {
	code    ErrorCode
	message string
	cause   error
	details map[string]any
}

func NewError(code ErrorCode, message string) IError {
	return &AppError{code: code, message: message}
}

func Errorf(code ErrorCode, format string, args ...any) IError {
	return &AppError{code: code, message: fmt.Sprintf(format, args...)}
}

// WrapError 以 code 包装 err；err 为 nil 时返回 nil
func WrapError(err error, code ErrorCode, message string) IError {
	if err == nil {
		return nil
	}
	return &AppError{code: code, message: message, cause: err}
}

// Error 格式：[CODE] message (k=v, ...): cause
func (e *AppError) Error() string {
	var sb strings.Builder
	sb.WriteString("[")
	sb.WriteString(string(e.code))
	sb.WriteString("] ")
	sb.WriteString(e.message)
	if len(e.details) > 0 {
		sb.WriteString(" (")
		for i, k := range slices.Sorted(maps.Keys(e.details)) {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%s=%v", k, e.details[k])
		}
		sb.WriteString(")")
	}
	if e.cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.cause.Error())
	}
	return sb.String()
}

func (e *AppError) Code() ErrorCode { return e.code }
func (e *AppError) Message() string { return e.message }
func (e *AppError) Cause() error    { return e.cause }
func (e *AppError) Unwrap() error   { return e.cause }

func (e *AppError) Details() map[string]any {
	return maps.Clone(e.details)
}

// Is 同错误码的 AppError 视为同类；否则沿 cause 链比较
func (e *AppError) Is(target error) bool {
	if target == nil {
		return false
	}
	if appErr, ok := target.(*AppError); ok {
		return e.code == appErr.code
	}
	return e.cause != nil && stdErrors.Is(e.cause, target)
}

func (e *AppError) Wrap(msg string) IError {
	return &AppError{
		code:    e.code,
		message: msg + ": " + e.message,
		cause:   e,
		details: maps.Clone(e.details),
	}
}

func (e *AppError) WithContext(key string, value any) IError {
	details := make(map[string]any, len(e.details)+1)
	maps.Copy(details, e.details)
	details[key] = value
	return &AppError{code: e.code, message: e.message, cause: e.cause, details: details}
}

// 各类别的比较目标，用于 errors.Is
var (
	ErrInternal        = NewError(ErrCodeInternal, "内部错误")
	ErrInvalidInput    = NewError(ErrCodeInvalidInput, "无效的输入参数")
	ErrNotFound        = NewError(ErrCodeNotFound, "资源未找到")
	ErrSchema          = NewError(ErrCodeSchema, "实体映射元信息无效")
	ErrUnboundProvider = NewError(ErrCodeUnboundProvider, "延迟代理未绑定数据提供者")
	ErrDuplicate       = NewError(ErrCodeDuplicate, "唯一键冲突")
	ErrDatabase        = NewError(ErrCodeDatabase, "数据库错误")
	ErrChangeFeed      = NewError(ErrCodeChangeFeed, "变更通知发布失败")
)

func IsNotFound(err error) bool {
	return IsErrorCode(err, ErrCodeNotFound)
}

// IsErrorCode 错误链上任一层带有 code 即为真
func IsErrorCode(err error, code ErrorCode) bool {
	for err != nil {
		var appErr *AppError
		if !stdErrors.As(err, &appErr) {
			return false
		}
		if appErr.code == code {
			return true
		}
		err = appErr.cause
	}
	return false
}

// CodeOf 最外层错误码；非 AppError 归为 INTERNAL_ERROR
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if stdErrors.As(err, &appErr) {
		return appErr.code
	}
	return ErrCodeInternal
}
