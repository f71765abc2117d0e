// Package lazy 按需加载关联的实体代理。
//
// 代理持有一个标量已填充的实体；关联字段在第一次访问时通过提供者
// 单独查询，结果缓存在槽位中，之后的访问不再查询。
package lazy

import (
	"context"
	"reflect"
	"sync"

	"tinyorm/data/orm"
	"tinyorm/errors"
)

type slot struct {
	loaded bool
	value  any
}

// Proxy 包装实体 *T，关联字段延迟加载。
type Proxy[T any] struct {
	provider orm.IProvider
	entity   *T

	mu    sync.Mutex
	slots map[string]*slot
}

// New 创建代理；provider 为 nil 时代理未绑定，访问关联将返回 ErrUnboundProvider
func New[T any](provider orm.IProvider, entity *T) *Proxy[T] {
	if entity == nil {
		entity = new(T)
	}
	return &Proxy[T]{
		provider: provider,
		entity:   entity,
		slots:    make(map[string]*slot),
	}
}

// Fetch 只读取 id 对应实体的标量并包装为代理；不存在时返回 nil
func Fetch[T any](ctx context.Context, provider orm.IProvider, id int64) (*Proxy[T], error) {
	if provider == nil {
		return nil, orm.ErrUnboundProvider
	}
	ent := new(T)
	found, err := provider.GetScalars(ctx, id, ent)
	if err != nil || !found {
		return nil, err
	}
	return New(provider, ent), nil
}

// Entity 返回被代理的实体，标量字段与急加载得到的实体一致
func (p *Proxy[T]) Entity() *T {
	return p.entity
}

// Bound 是否绑定了提供者
func (p *Proxy[T]) Bound() bool {
	return p.provider != nil
}

// Loaded 关联字段是否已加载
func (p *Proxy[T]) Loaded(field string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.slots[field]
	return ok && s.loaded
}

// Load 返回关联字段的值：第一次访问时查询并缓存，之后直接返回缓存。
// 加载的值同时写入实体对应字段。
func (p *Proxy[T]) Load(ctx context.Context, field string) (any, error) {
	if p.provider == nil {
		return nil, errors.ErrUnboundProvider.WithContext("field", field)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.slots[field]; ok && s.loaded {
		return s.value, nil
	}

	v, err := p.provider.GetNestedEntity(ctx, p.entity, field)
	if err != nil {
		return nil, err
	}
	p.slots[field] = &slot{loaded: true, value: v}
	p.assign(field, v)
	return v, nil
}

func (p *Proxy[T]) assign(field string, v any) {
	f := reflect.ValueOf(p.entity).Elem().FieldByName(field)
	if !f.IsValid() || !f.CanSet() {
		return
	}
	if v == nil {
		f.Set(reflect.Zero(f.Type()))
		return
	}
	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(f.Type()) {
		f.Set(rv)
	}
}

// One 读取一对一关联
func One[C, T any](ctx context.Context, p *Proxy[T], field string) (*C, error) {
	v, err := p.Load(ctx, field)
	if err != nil || v == nil {
		return nil, err
	}
	c, ok := v.(*C)
	if !ok {
		return nil, errors.Errorf(errors.ErrCodeInvalidInput, "lazy: relation %s is %T, not *%s", field, v, reflect.TypeOf((*C)(nil)).Elem())
	}
	return c, nil
}

// Many 读取集合关联
func Many[C, T any](ctx context.Context, p *Proxy[T], field string) ([]*C, error) {
	v, err := p.Load(ctx, field)
	if err != nil || v == nil {
		return nil, err
	}
	cs, ok := v.([]*C)
	if !ok {
		return nil, errors.Errorf(errors.ErrCodeInvalidInput, "lazy: relation %s is %T, not []*%s", field, v, reflect.TypeOf((*C)(nil)).Elem())
	}
	return cs, nil
}
