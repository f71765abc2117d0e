package errors

import (
	"context"
	"database/sql"
	stdErrors "errors"

	"tinyorm/logging"
)

// Wrap 包装错误并在调试级别记录，避免与上层 Warn 重复
func Wrap(ctx context.Context, err error, code ErrorCode, msg string) error {
	if err == nil {
		return nil
	}
	logging.FromContext(ctx).Debug(ctx, msg,
		logging.Error(err),
		logging.String("error_code", string(code)),
	)
	return WrapError(err, code, msg)
}

// WrapDatabaseError 将一条语句的执行失败归类为 AppError
//
//   - 已带错误码的错误原样返回
//   - sql.ErrNoRows 归为 NOT_FOUND
//   - 取消/超时归为 TIMEOUT
//   - 其余归为 DATABASE_ERROR，并以 Warn 记录
//
// operation 写入 Details()["operation"]，fields 一并进入日志。
func WrapDatabaseError(ctx context.Context, err error, operation string, fields ...logging.Field) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(IError); ok {
		return err
	}

	code, msg := classify(err)
	wrapped := WrapError(err, code, msg+": "+operation).WithContext("operation", operation)
	if code == ErrCodeDatabase {
		logging.FromContext(ctx).Warn(ctx, msg, append([]logging.Field{
			logging.Error(err),
			logging.String("operation", operation),
		}, fields...)...)
	}
	return wrapped
}

func classify(err error) (ErrorCode, string) {
	switch {
	case stdErrors.Is(err, sql.ErrNoRows):
		return ErrCodeNotFound, "记录不存在"
	case stdErrors.Is(err, context.DeadlineExceeded), stdErrors.Is(err, context.Canceled):
		return ErrCodeTimeout, "操作被取消或超时"
	default:
		return ErrCodeDatabase, "数据库操作失败"
	}
}
