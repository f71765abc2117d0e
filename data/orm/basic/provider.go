package basic

import (
	"context"
	"reflect"

	"github.com/google/uuid"

	core "tinyorm/data/db"
	"tinyorm/data/db/dialect"
	"tinyorm/data/orm"
	"tinyorm/data/orm/changefeed"
	"tinyorm/errors"
	"tinyorm/logging"
)

// Provider 是基于 tinyorm/data/db + tinyorm/data/db/sql 的 orm.IProvider 实现。
//
// 不持有单次调用的可变状态（访问集合、变更缓冲均按调用创建），可在多个 goroutine 间共享。
type Provider struct {
	db   core.IDatabase
	opts orm.Options
	caps orm.Capabilities
}

var _ orm.IProvider = (*Provider)(nil)

// New 创建一个基于指定 IDatabase 的提供者。
func New(db core.IDatabase, options ...orm.Option) *Provider {
	opts := orm.CollectOptions(options...)
	caps := orm.NewCapabilities(
		orm.CapabilityBasicCRUD,
		orm.CapabilityPreload,
		orm.CapabilityLazyLoad,
		orm.CapabilityAssociationWrite,
	).
		With(orm.CapabilityTransaction, opts.Transactional).
		With(orm.CapabilityReturning, dialect.FromDatabase(db).SupportsReturning())
	return &Provider{db: db, opts: opts, caps: caps}
}

// Capabilities 返回提供者支持的能力。
func (p *Provider) Capabilities() orm.Capabilities { return p.caps }

// Registry 返回提供者使用的描述符注册表
func (p *Provider) Registry() *orm.Registry { return p.opts.Registry }

// CreateOrUpdate 持久化实体图。事务模式下任一语句失败则整体回滚，
// 并撤销本次调用回填的标识。
func (p *Provider) CreateOrUpdate(ctx context.Context, entity any) error {
	v, desc, err := p.entityValue(entity)
	if err != nil {
		return err
	}
	ctx = p.withOp(ctx, "create_or_update", desc)

	c := newCascader(nil, p.opts.Registry)
	err = p.write(ctx, func(exec *Executor) error {
		c.exec = exec
		return c.persist(ctx, v, nil)
	})
	if err != nil && p.opts.Transactional {
		c.rollback(ctx)
	}
	// 非事务模式下失败前已执行的语句已经提交，其变更照常发布
	p.publish(ctx, c.changes)
	return err
}

// ReadAll 全表读取并急加载；dest 为 *[]*T
func (p *Provider) ReadAll(ctx context.Context, dest any) error {
	rv := reflect.ValueOf(dest)
	if rv.Kind() != reflect.Ptr || rv.IsNil() || rv.Elem().Kind() != reflect.Slice ||
		rv.Elem().Type().Elem().Kind() != reflect.Ptr {
		return errors.Errorf(errors.ErrCodeInvalidInput, "orm: ReadAll dest must be *[]*T, got %T", dest)
	}
	desc, err := p.opts.Registry.Resolve(rv.Type())
	if err != nil {
		return err
	}
	ctx = p.withOp(ctx, "read_all", desc)

	m := newMaterializer(NewExecutor(p.db), p.opts.Registry, p.opts.MaxDepth)
	ents, err := m.load(ctx, desc, orm.All(desc.Table), 0)
	if err != nil {
		return err
	}
	slice := reflect.MakeSlice(rv.Elem().Type(), 0, len(ents))
	rv.Elem().Set(reflect.Append(slice, ents...))
	return nil
}

// GetByID 按标识读取并急加载；dest 为 *T
func (p *Provider) GetByID(ctx context.Context, id int64, dest any) (bool, error) {
	return p.getByID(ctx, "get_by_id", id, dest, false)
}

// GetScalars 按标识读取，不解析关联；dest 为 *T
func (p *Provider) GetScalars(ctx context.Context, id int64, dest any) (bool, error) {
	return p.getByID(ctx, "get_scalars", id, dest, true)
}

func (p *Provider) getByID(ctx context.Context, op string, id int64, dest any, shallow bool) (bool, error) {
	rv := reflect.ValueOf(dest)
	if rv.Kind() != reflect.Ptr || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return false, errors.Errorf(errors.ErrCodeInvalidInput, "orm: %s dest must be *T, got %T", op, dest)
	}
	desc, err := p.opts.Registry.Resolve(rv.Type())
	if err != nil {
		return false, err
	}
	ctx = p.withOp(ctx, op, desc)

	m := newMaterializer(NewExecutor(p.db), p.opts.Registry, p.opts.MaxDepth)
	m.shallow = shallow
	ents, err := m.load(ctx, desc, orm.Where(desc.Table, desc.Identity.Column, id), 0)
	if err != nil || len(ents) == 0 {
		return false, err
	}
	rv.Elem().Set(ents[0].Elem())
	return true, nil
}

// GetNestedEntity 只解析 parent 的一个关联，子实体只含标量
func (p *Provider) GetNestedEntity(ctx context.Context, parent any, field string) (any, error) {
	v, desc, err := p.entityValue(parent)
	if err != nil {
		return nil, err
	}
	rel, ok := desc.Relation(field)
	if !ok {
		return nil, errors.Errorf(errors.ErrCodeNotFound, "orm: %s has no relation %q", desc.Type, field)
	}
	ctx = p.withOp(ctx, "get_nested", desc)

	target, err := p.opts.Registry.Resolve(rel.Target)
	if err != nil {
		return nil, err
	}
	id, persisted := desc.IdentityOf(v)
	if !persisted {
		// 未持久化的实体在存储中没有关联行
		if rel.Many() {
			return reflect.MakeSlice(reflect.SliceOf(reflect.PointerTo(target.Type)), 0, 0).Interface(), nil
		}
		return nil, nil
	}

	m := newMaterializer(NewExecutor(p.db), p.opts.Registry, 0)
	m.shallow = true
	val, err := m.resolve(ctx, desc, rel, id, 1)
	if err != nil {
		return nil, err
	}
	if !rel.Many() && val.IsNil() {
		return nil, nil
	}
	return val.Interface(), nil
}

// Delete 按标识删除根行，不级联。失败只记录日志。
func (p *Provider) Delete(ctx context.Context, entity any) bool {
	v, desc, err := p.entityValue(entity)
	if err != nil {
		p.opts.Logger.Warn(ctx, "delete rejected", logging.Error(err))
		return false
	}
	ctx = p.withOp(ctx, "delete", desc)
	logger := logging.FromContext(ctx)

	id, ok := desc.IdentityOf(v)
	if !ok {
		logger.Debug(ctx, "delete skipped: entity has no identity", logging.Table(desc.Table))
		return false
	}
	deleted, err := NewExecutor(p.db).Delete(ctx, desc, id)
	if err != nil {
		logger.Warn(ctx, "delete failed", logging.Table(desc.Table), logging.EntityID(id), logging.Error(err))
		return false
	}
	if deleted {
		p.publish(ctx, []changefeed.Change{changefeed.NewChange(changefeed.OpDeleted, desc.Table, id)})
	}
	return deleted
}

// write 在事务中（或逐条提交）执行写操作
func (p *Provider) write(ctx context.Context, fn func(exec *Executor) error) error {
	if !p.opts.Transactional {
		return fn(NewExecutor(p.db))
	}

	tx, err := p.db.Begin(ctx)
	if err != nil {
		return errors.WrapDatabaseError(ctx, err, "begin")
	}
	if err := fn(NewExecutor(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logging.FromContext(ctx).Warn(ctx, "rollback failed", logging.Error(rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.WrapDatabaseError(ctx, err, "commit")
	}
	return nil
}

func (p *Provider) publish(ctx context.Context, changes []changefeed.Change) {
	if len(changes) == 0 {
		return
	}
	if err := p.opts.ChangeFeed.Publish(ctx, changes...); err != nil {
		logging.FromContext(ctx).Warn(ctx, "change feed publish failed", logging.Int("changes", len(changes)), logging.Error(err))
	}
}

// withOp 为顶层调用分配 op_id 并将日志器放入 ctx
func (p *Provider) withOp(ctx context.Context, op string, desc *orm.Descriptor) context.Context {
	logger := p.opts.Logger.WithFields(
		logging.OpID(uuid.NewString()),
		logging.String("op", op),
		logging.Table(desc.Table),
	)
	return logging.ContextWithLogger(ctx, logger)
}

// entityValue 校验实体为非 nil 的 *T 并解析描述符
func (p *Provider) entityValue(entity any) (reflect.Value, *orm.Descriptor, error) {
	v := reflect.ValueOf(entity)
	if !v.IsValid() || v.Kind() != reflect.Ptr || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return reflect.Value{}, nil, errors.Errorf(errors.ErrCodeInvalidInput, "orm: entity must be a non-nil pointer to struct, got %T", entity)
	}
	desc, err := p.opts.Registry.Resolve(v.Type())
	if err != nil {
		return reflect.Value{}, nil, err
	}
	return v, desc, nil
}
