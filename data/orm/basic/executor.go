package basic

import (
	"context"
	"reflect"

	core "tinyorm/data/db"
	dbsql "tinyorm/data/db/sql"
	"tinyorm/data/orm"
	"tinyorm/errors"
	"tinyorm/logging"
)

// Row 一行查询结果，列按结果集顺序保存
type Row struct {
	Columns []string
	Values  []any
}

// Get 按列名取值
func (r Row) Get(column string) (any, bool) {
	for i, c := range r.Columns {
		if c == column {
			return r.Values[i], true
		}
	}
	return nil, false
}

// Executor 将 Specification 与实体写操作翻译为语句并在一个 IDatabase 上执行。
//
// 既可包装普通连接也可包装事务；本身不持有可变状态。
type Executor struct {
	db  core.IQuerier
	sql dbsql.ISql
}

// NewExecutor 创建执行器
func NewExecutor(db core.IQuerier) *Executor {
	return &Executor{db: db, sql: dbsql.New(db)}
}

// Select 执行 SELECT * FROM table [WHERE column IN (...)]
func (e *Executor) Select(ctx context.Context, spec orm.Specification) ([]Row, error) {
	if spec.Empty() {
		return nil, nil
	}
	if !dbsql.IsSafeIdentifier(spec.Table) || (spec.Filtered() && !dbsql.IsSafeIdentifier(spec.Column)) {
		return nil, errors.Errorf(errors.ErrCodeInvalidInput, "orm: unsafe specification %s.%s", spec.Table, spec.Column)
	}

	sb := e.sql.Select().From(spec.Table)
	if spec.Filtered() {
		keys := spec.Keys()
		vals := make([]any, len(keys))
		for i, k := range keys {
			vals[i] = k
		}
		sb.WhereIn(spec.Column, vals...)
	}
	q, args := sb.Build()
	logging.FromContext(ctx).Debug(ctx, "select", logging.Table(spec.Table), logging.Int("args", len(args)))

	rows, err := e.db.Query(ctx, q, args...)
	if err != nil {
		return nil, errors.WrapDatabaseError(ctx, err, "select", logging.Table(spec.Table))
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, errors.WrapDatabaseError(ctx, err, "select", logging.Table(spec.Table))
	}

	var out []Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.WrapDatabaseError(ctx, err, "scan", logging.Table(spec.Table))
		}
		out = append(out, Row{Columns: cols, Values: vals})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapDatabaseError(ctx, err, "select", logging.Table(spec.Table))
	}
	return out, nil
}

// Hydrate 按列与字段的绑定将 row 写入 dest（*T）。未绑定的列被忽略。
//
// 可空列应映射到指针字段；NULL 落到非指针字段时只能写入零值，记一条 Debug 日志。
func (e *Executor) Hydrate(ctx context.Context, desc *orm.Descriptor, row Row, dest reflect.Value) error {
	for i, col := range row.Columns {
		cm, ok := desc.Column(col)
		if !ok {
			continue
		}
		f := orm.FieldByIndex(dest, cm.Index)
		if !f.IsValid() || !f.CanSet() {
			continue
		}
		if row.Values[i] == nil && f.Kind() != reflect.Ptr && f.Kind() != reflect.Slice {
			logging.FromContext(ctx).Debug(ctx, "null into non-pointer field, zero value used",
				logging.Table(desc.Table), logging.String("column", col), logging.String("field", cm.Field))
		}
		if err := orm.AssignValue(f, row.Values[i]); err != nil {
			return errors.WrapError(err, errors.ErrCodeSchema, "orm: cannot assign column "+desc.Table+"."+col+" to field "+cm.Field)
		}
	}
	return nil
}

// Insert 插入一行并返回生成的标识
func (e *Executor) Insert(ctx context.Context, desc *orm.Descriptor, cols []string, vals []any) (int64, error) {
	ib := e.sql.InsertInto(desc.Table)
	if len(cols) > 0 {
		ib.Columns(cols...).Values(vals...)
	}
	logging.FromContext(ctx).Debug(ctx, "insert", logging.Table(desc.Table), logging.Int("args", len(vals)))

	if e.sql.Dialect().SupportsReturning() {
		var id int64
		if err := ib.Returning(desc.Identity.Column).QueryRow(ctx).Scan(&id); err != nil {
			return 0, e.writeError(ctx, err, "insert", desc.Table)
		}
		return id, nil
	}

	res, err := ib.Exec(ctx)
	if err != nil {
		return 0, e.writeError(ctx, err, "insert", desc.Table)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, errors.WrapDatabaseError(ctx, err, "last_insert_id", logging.Table(desc.Table))
	}
	return id, nil
}

// Update 按标识更新给定列；没有列时不执行语句
func (e *Executor) Update(ctx context.Context, desc *orm.Descriptor, id int64, cols []string, vals []any) error {
	if len(cols) == 0 {
		return nil
	}
	ub := e.sql.Update(desc.Table)
	for i, c := range cols {
		ub.Set(c, vals[i])
	}
	ub.WhereEq(desc.Identity.Column, id)
	logging.FromContext(ctx).Debug(ctx, "update", logging.Table(desc.Table), logging.EntityID(id), logging.Int("args", len(vals)+1))

	res, err := ub.Exec(ctx)
	if err != nil {
		return e.writeError(ctx, err, "update", desc.Table, logging.EntityID(id))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		logging.FromContext(ctx).Debug(ctx, "update matched no rows", logging.Table(desc.Table), logging.EntityID(id))
	}
	return nil
}

// Delete 按标识删除一行，恰好删除一行时返回 true
func (e *Executor) Delete(ctx context.Context, desc *orm.Descriptor, id int64) (bool, error) {
	logging.FromContext(ctx).Debug(ctx, "delete", logging.Table(desc.Table), logging.EntityID(id))
	res, err := e.sql.DeleteFrom(desc.Table).WhereEq(desc.Identity.Column, id).Exec(ctx)
	if err != nil {
		return false, errors.WrapDatabaseError(ctx, err, "delete", logging.Table(desc.Table), logging.EntityID(id))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.WrapDatabaseError(ctx, err, "rows_affected", logging.Table(desc.Table))
	}
	return n == 1, nil
}

// LinkExists 中间表中是否已存在 (parentID, childID)
func (e *Executor) LinkExists(ctx context.Context, rel orm.RelationMeta, parentID, childID int64) (bool, error) {
	logging.FromContext(ctx).Debug(ctx, "link exists", logging.Table(rel.JoinTable), logging.EntityID(parentID))
	var n int64
	err := e.sql.Select("COUNT(*)").From(rel.JoinTable).
		WhereEq(rel.JoinForeignKey, parentID).
		WhereEq(rel.JoinReferences, childID).
		QueryRow(ctx).
		Scan(&n)
	if err != nil {
		return false, errors.WrapDatabaseError(ctx, err, "link_exists", logging.Table(rel.JoinTable))
	}
	return n > 0, nil
}

// Link 插入中间表行。唯一键冲突视为已关联，返回 false。
//
// 支持 ON CONFLICT 的方言在语句内吸收冲突，不让事务进入中止状态。
func (e *Executor) Link(ctx context.Context, rel orm.RelationMeta, parentID, childID int64) (bool, error) {
	logging.FromContext(ctx).Debug(ctx, "link", logging.Table(rel.JoinTable), logging.EntityID(parentID), logging.Int64("related_id", childID))
	res, err := e.sql.InsertInto(rel.JoinTable).
		Columns(rel.JoinForeignKey, rel.JoinReferences).
		Values(parentID, childID).
		OnConflictDoNothing().
		Exec(ctx)
	if err == nil {
		if e.sql.Dialect().SupportsOnConflict() {
			if n, rerr := res.RowsAffected(); rerr == nil && n == 0 {
				logging.FromContext(ctx).Debug(ctx, "link already present", logging.Table(rel.JoinTable), logging.EntityID(parentID))
				return false, nil
			}
		}
		return true, nil
	}
	if e.sql.Dialect().IsUniqueViolation(err) {
		logging.FromContext(ctx).Debug(ctx, "link already present", logging.Table(rel.JoinTable), logging.EntityID(parentID))
		return false, nil
	}
	return false, errors.WrapDatabaseError(ctx, err, "link", logging.Table(rel.JoinTable))
}

// writeError 唯一键冲突归为 DUPLICATE_ERROR，其余交给 WrapDatabaseError
func (e *Executor) writeError(ctx context.Context, err error, op, table string, fields ...logging.Field) error {
	if e.sql.Dialect().IsUniqueViolation(err) {
		return errors.WrapError(err, errors.ErrCodeDuplicate, "orm: "+op+" violates a unique key").
			WithContext("table", table)
	}
	return errors.WrapDatabaseError(ctx, err, op, append([]logging.Field{logging.Table(table)}, fields...)...)
}
