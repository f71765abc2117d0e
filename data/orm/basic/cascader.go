package basic

import (
	"context"
	"reflect"

	"tinyorm/data/orm"
	"tinyorm/data/orm/changefeed"
	"tinyorm/logging"
)

type entityKey struct {
	t   reflect.Type
	ptr uintptr
}

type assignedIdentity struct {
	desc *orm.Descriptor
	v    reflect.Value
}

// backfill 一次内存中的外键回填及其原值
type backfill struct {
	field reflect.Value
	old   reflect.Value
}

// cascader 持久化一个实体图：先写根，再回填子实体外键并递归。
//
// 每次顶层调用新建一个实例；同一内存实体在一次调用内只写一次。
type cascader struct {
	exec     *Executor
	registry *orm.Registry

	visited   map[entityKey]bool
	assigned  []assignedIdentity
	backfills []backfill
	changes   []changefeed.Change
}

func newCascader(exec *Executor, registry *orm.Registry) *cascader {
	return &cascader{
		exec:     exec,
		registry: registry,
		visited:  make(map[entityKey]bool),
	}
}

// persist 插入或更新 v（*T）及其可达关联。extra 为实体自身没有字段的附加列（外键）。
func (c *cascader) persist(ctx context.Context, v reflect.Value, extra map[string]any) error {
	if !v.IsValid() || v.IsNil() {
		return nil
	}
	key := entityKey{t: v.Type(), ptr: v.Pointer()}
	if c.visited[key] {
		return nil
	}
	c.visited[key] = true

	desc, err := c.registry.Resolve(v.Type())
	if err != nil {
		return err
	}

	cols, vals := columnValues(desc, v, extra)
	id, persisted := desc.IdentityOf(v)
	if persisted {
		if err := c.exec.Update(ctx, desc, id, cols, vals); err != nil {
			return err
		}
		c.changes = append(c.changes, changefeed.NewChange(changefeed.OpUpdated, desc.Table, id))
	} else {
		id, err = c.exec.Insert(ctx, desc, cols, vals)
		if err != nil {
			return err
		}
		if err := desc.SetIdentity(v, id); err != nil {
			return err
		}
		c.assigned = append(c.assigned, assignedIdentity{desc: desc, v: v})
		c.changes = append(c.changes, changefeed.NewChange(changefeed.OpCreated, desc.Table, id))
	}

	for _, rel := range desc.Relations {
		field := orm.FieldByIndex(v, rel.Index)
		if !field.IsValid() || field.IsNil() {
			continue
		}
		target, err := c.registry.Resolve(rel.Target)
		if err != nil {
			return err
		}
		switch rel.Kind {
		case orm.OneToOne:
			err = c.persistChild(ctx, target, rel, field, id)
		case orm.OneToMany:
			for i := 0; i < field.Len() && err == nil; i++ {
				err = c.persistChild(ctx, target, rel, field.Index(i), id)
			}
		case orm.ManyToMany:
			for i := 0; i < field.Len() && err == nil; i++ {
				err = c.link(ctx, target, rel, field.Index(i), id)
			}
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// persistChild 将子实体外键指向 parentID 后递归写入
func (c *cascader) persistChild(ctx context.Context, target *orm.Descriptor, rel orm.RelationMeta, child reflect.Value, parentID int64) error {
	if child.IsNil() {
		return nil
	}
	if c.visited[entityKey{t: child.Type(), ptr: child.Pointer()}] {
		// 环路中已写过的实体：只补写外键列
		return c.relink(ctx, target, rel, child, parentID)
	}
	if cm, ok := target.Column(rel.ForeignKey); ok && !cm.PrimaryKey {
		if f := orm.FieldByIndex(child, cm.Index); f.IsValid() && f.CanSet() {
			if err := c.setForeignKey(f, parentID); err != nil {
				return err
			}
			return c.persist(ctx, child, nil)
		}
	}
	return c.persist(ctx, child, map[string]any{rel.ForeignKey: parentID})
}

func (c *cascader) relink(ctx context.Context, target *orm.Descriptor, rel orm.RelationMeta, child reflect.Value, parentID int64) error {
	childID, ok := target.IdentityOf(child)
	if !ok {
		return nil
	}
	if cm, ok := target.Column(rel.ForeignKey); ok {
		if f := orm.FieldByIndex(child, cm.Index); f.IsValid() && f.CanSet() {
			if err := c.setForeignKey(f, parentID); err != nil {
				return err
			}
		}
	}
	if err := c.exec.Update(ctx, target, childID, []string{rel.ForeignKey}, []any{parentID}); err != nil {
		return err
	}
	c.changes = append(c.changes, changefeed.NewChange(changefeed.OpUpdated, target.Table, childID))
	return nil
}

// setForeignKey 回填外键字段并记下原值，回滚时恢复
func (c *cascader) setForeignKey(f reflect.Value, parentID int64) error {
	old := reflect.New(f.Type()).Elem()
	old.Set(f)
	if err := orm.AssignValue(f, parentID); err != nil {
		return err
	}
	c.backfills = append(c.backfills, backfill{field: f, old: old})
	return nil
}

// link 写入子实体，再确保中间表存在 (parentID, childID)
func (c *cascader) link(ctx context.Context, target *orm.Descriptor, rel orm.RelationMeta, child reflect.Value, parentID int64) error {
	if child.IsNil() {
		return nil
	}
	if err := c.persist(ctx, child, nil); err != nil {
		return err
	}
	childID, ok := target.IdentityOf(child)
	if !ok {
		return nil
	}
	exists, err := c.exec.LinkExists(ctx, rel, parentID, childID)
	if err != nil || exists {
		return err
	}
	linked, err := c.exec.Link(ctx, rel, parentID, childID)
	if err != nil {
		return err
	}
	if linked {
		c.changes = append(c.changes, changefeed.Linked(rel.JoinTable, parentID, childID))
	}
	return nil
}

// rollback 撤销本次调用回填的标识与外键，使实体回到调用前的状态
func (c *cascader) rollback(ctx context.Context) {
	for i := len(c.backfills) - 1; i >= 0; i-- {
		c.backfills[i].field.Set(c.backfills[i].old)
	}
	for _, a := range c.assigned {
		a.desc.ClearIdentity(a.v)
	}
	if len(c.assigned) > 0 || len(c.backfills) > 0 {
		logging.FromContext(ctx).Debug(ctx, "reverted in-memory writes after rollback",
			logging.Int("identities", len(c.assigned)), logging.Int("foreign_keys", len(c.backfills)))
	}
	c.assigned = nil
	c.backfills = nil
	c.changes = nil
}

// columnValues 取非标识列的值；extra 中实体没有的列追加在后
func columnValues(desc *orm.Descriptor, v reflect.Value, extra map[string]any) ([]string, []any) {
	valueCols := desc.ValueColumns()
	cols := make([]string, 0, len(valueCols)+len(extra))
	vals := make([]any, 0, len(valueCols)+len(extra))
	for _, cm := range valueCols {
		cols = append(cols, cm.Column)
		vals = append(vals, orm.ColumnValue(orm.FieldByIndex(v, cm.Index)))
	}
	for col, val := range extra {
		if _, ok := desc.Column(col); ok {
			continue
		}
		cols = append(cols, col)
		vals = append(vals, val)
	}
	return cols, vals
}
