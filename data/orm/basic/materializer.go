package basic

import (
	"context"
	"reflect"

	"github.com/spf13/cast"

	"tinyorm/data/orm"
	"tinyorm/errors"
	"tinyorm/logging"
)

type visitKey struct {
	t  reflect.Type
	id int64
}

// materializer 读取实体并按描述符解析其关联。
//
// 每次顶层调用新建一个实例。onPath 记录当前解析路径上的 (类型, 标识)：
// 在自己的祖先链上再次出现的实体只填充标量，环路因此终止；
// 不同分支共享的实体（菱形）仍被完整解析。
type materializer struct {
	exec     *Executor
	registry *orm.Registry
	maxDepth int
	// shallow 只解析一层：加载到的子实体不再解析其关联
	shallow bool

	onPath map[visitKey]bool
}

func newMaterializer(exec *Executor, registry *orm.Registry, maxDepth int) *materializer {
	return &materializer{
		exec:     exec,
		registry: registry,
		maxDepth: maxDepth,
		onPath:   make(map[visitKey]bool),
	}
}

// load 执行 spec 并返回 *T 列表，按结果集顺序
func (m *materializer) load(ctx context.Context, desc *orm.Descriptor, spec orm.Specification, depth int) ([]reflect.Value, error) {
	rows, err := m.exec.Select(ctx, spec)
	if err != nil {
		return nil, err
	}

	out := make([]reflect.Value, 0, len(rows))
	for _, row := range rows {
		ent := desc.New()
		if err := m.exec.Hydrate(ctx, desc, row, ent); err != nil {
			return nil, err
		}
		out = append(out, ent)

		if m.shallow || (m.maxDepth > 0 && depth >= m.maxDepth) {
			continue
		}
		id, ok := desc.IdentityOf(ent)
		if !ok {
			continue
		}
		key := visitKey{t: desc.Type, id: id}
		if m.onPath[key] {
			logging.FromContext(ctx).Debug(ctx, "cycle detected, scalars only", logging.Table(desc.Table), logging.EntityID(id))
			continue
		}
		m.onPath[key] = true
		err := m.resolveAll(ctx, desc, ent, id, spec, depth)
		delete(m.onPath, key)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// resolveAll 按声明顺序解析实体的全部关联
func (m *materializer) resolveAll(ctx context.Context, desc *orm.Descriptor, ent reflect.Value, id int64, spec orm.Specification, depth int) error {
	for _, rel := range desc.Relations {
		if rel.Kind == orm.ManyToMany && spec.Excludes(rel.Target) {
			continue
		}
		val, err := m.resolve(ctx, desc, rel, id, depth+1)
		if err != nil {
			return err
		}
		if f := orm.FieldByIndex(ent, rel.Index); f.IsValid() && f.CanSet() {
			f.Set(val)
		}
	}
	return nil
}

// resolve 加载一个关联的值：一对一为 *C（可能为 nil），集合为 []*C
func (m *materializer) resolve(ctx context.Context, owner *orm.Descriptor, rel orm.RelationMeta, parentID int64, depth int) (reflect.Value, error) {
	target, err := m.registry.Resolve(rel.Target)
	if err != nil {
		return reflect.Value{}, err
	}

	var children []reflect.Value
	switch rel.Kind {
	case orm.OneToOne, orm.OneToMany:
		children, err = m.load(ctx, target, orm.Where(target.Table, rel.ForeignKey, parentID), depth)
	case orm.ManyToMany:
		var ids []int64
		ids, err = m.linkedIDs(ctx, rel, parentID)
		if err != nil {
			return reflect.Value{}, err
		}
		spec := orm.Where(target.Table, target.Identity.Column, ids...).WithExcluded(owner.Type)
		children, err = m.load(ctx, target, spec, depth)
	}
	if err != nil {
		return reflect.Value{}, err
	}

	ptrType := reflect.PointerTo(target.Type)
	if rel.Kind == orm.OneToOne {
		if len(children) == 0 {
			return reflect.Zero(ptrType), nil
		}
		return children[0], nil
	}
	slice := reflect.MakeSlice(reflect.SliceOf(ptrType), 0, len(children))
	return reflect.Append(slice, children...), nil
}

// linkedIDs 读取中间表中与 parentID 关联的子实体标识
func (m *materializer) linkedIDs(ctx context.Context, rel orm.RelationMeta, parentID int64) ([]int64, error) {
	rows, err := m.exec.Select(ctx, orm.Where(rel.JoinTable, rel.JoinForeignKey, parentID))
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		raw, ok := row.Get(rel.JoinReferences)
		if !ok || raw == nil {
			continue
		}
		if b, isBytes := raw.([]byte); isBytes {
			raw = string(b)
		}
		id, err := cast.ToInt64E(raw)
		if err != nil {
			return nil, errors.WrapError(err, errors.ErrCodeSchema, "orm: join column "+rel.JoinTable+"."+rel.JoinReferences+" is not an integer")
		}
		ids = append(ids, id)
	}
	return ids, nil
}
