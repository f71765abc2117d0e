package orm

import "tinyorm/errors"

var (
	// ErrUnboundProvider 延迟代理未绑定提供者时访问关联
	ErrUnboundProvider = errors.ErrUnboundProvider
	// ErrNotFound 实体上不存在所请求的关联字段
	ErrNotFound = errors.ErrNotFound
)

// IsSchemaError 错误是否源于实体映射元信息
func IsSchemaError(err error) bool {
	return errors.IsErrorCode(err, errors.ErrCodeSchema)
}

// IsStoreError 错误是否源于存储执行（含唯一键冲突与超时）
func IsStoreError(err error) bool {
	return errors.IsErrorCode(err, errors.ErrCodeDatabase) ||
		errors.IsErrorCode(err, errors.ErrCodeDuplicate) ||
		errors.IsErrorCode(err, errors.ErrCodeTimeout)
}

// IsDuplicate 错误是否为唯一键/主键冲突
func IsDuplicate(err error) bool {
	return errors.IsErrorCode(err, errors.ErrCodeDuplicate)
}

// IsUnboundProvider 错误是否为未绑定提供者
func IsUnboundProvider(err error) bool {
	return errors.IsErrorCode(err, errors.ErrCodeUnboundProvider)
}

func invalidInput(format string, args ...any) error {
	return errors.Errorf(errors.ErrCodeInvalidInput, format, args...)
}
