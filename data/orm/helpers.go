package orm

import (
	"context"
	"reflect"
)

// Save 持久化实体图
func Save[T any](ctx context.Context, p IProvider, entity *T) error {
	if entity == nil {
		return invalidInput("orm: cannot save nil %s", reflect.TypeOf((*T)(nil)).Elem())
	}
	return p.CreateOrUpdate(ctx, entity)
}

// ReadAll 读取 T 对应表的全部实体
func ReadAll[T any](ctx context.Context, p IProvider) ([]*T, error) {
	var out []*T
	if err := p.ReadAll(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetByID 按标识读取，不存在时返回 nil
func GetByID[T any](ctx context.Context, p IProvider, id int64) (*T, error) {
	dest := new(T)
	found, err := p.GetByID(ctx, id, dest)
	if err != nil || !found {
		return nil, err
	}
	return dest, nil
}

// GetNested 解析单个关联字段；R 为 *C 或 []*C
func GetNested[R any](ctx context.Context, p IProvider, parent any, field string) (R, error) {
	var zero R
	v, err := p.GetNestedEntity(ctx, parent, field)
	if err != nil || v == nil {
		return zero, err
	}
	r, ok := v.(R)
	if !ok {
		return zero, invalidInput("orm: relation %s is %T, not %s", field, v, reflect.TypeOf((*R)(nil)).Elem())
	}
	return r, nil
}

// Delete 删除实体对应的根行
func Delete[T any](ctx context.Context, p IProvider, entity *T) bool {
	if entity == nil {
		return false
	}
	return p.Delete(ctx, entity)
}
