package orm

import (
	"reflect"

	"github.com/spf13/cast"

	"tinyorm/errors"
)

// RelationKind 表示关联类型。
type RelationKind string

const (
	// OneToOne 子表外键列保存父实体 id，最多一行
	OneToOne RelationKind = "one_to_one"
	// OneToMany 与 OneToOne 相同的形状，多行
	OneToMany RelationKind = "one_to_many"
	// ManyToMany 通过显式中间表关联，子实体自身的 id 列作为关联目标
	ManyToMany RelationKind = "many_to_many"
)

// ColumnMeta 描述一个标量字段与列的绑定。
type ColumnMeta struct {
	Field         string
	Column        string
	Index         []int
	Type          reflect.Type
	PrimaryKey    bool
	AutoIncrement bool
}

// RelationMeta 描述一个关联字段。
type RelationMeta struct {
	Field  string
	Index  []int
	Kind   RelationKind
	Target reflect.Type // 关联实体的结构体类型（非指针）

	// ForeignKey 子表上保存父 id 的列（OneToOne/OneToMany）
	ForeignKey string

	JoinTable      string // 中间表（ManyToMany）
	JoinForeignKey string // 中间表中指向父实体的列
	JoinReferences string // 中间表中指向子实体的列
}

// Many 是否为集合关联
func (r RelationMeta) Many() bool {
	return r.Kind == OneToMany || r.Kind == ManyToMany
}

// Descriptor 实体类型的映射元信息，解析后不可变。
type Descriptor struct {
	Type      reflect.Type
	Table     string
	Columns   []ColumnMeta
	Identity  ColumnMeta
	Relations []RelationMeta

	byColumn map[string]int
	byField  map[string]int
	relIndex map[string]int
}

// Column 按列名查找绑定
func (d *Descriptor) Column(column string) (ColumnMeta, bool) {
	i, ok := d.byColumn[column]
	if !ok {
		return ColumnMeta{}, false
	}
	return d.Columns[i], true
}

// FieldColumn 按字段名查找绑定
func (d *Descriptor) FieldColumn(field string) (ColumnMeta, bool) {
	i, ok := d.byField[field]
	if !ok {
		return ColumnMeta{}, false
	}
	return d.Columns[i], true
}

// Relation 按字段名查找关联
func (d *Descriptor) Relation(field string) (RelationMeta, bool) {
	i, ok := d.relIndex[field]
	if !ok {
		return RelationMeta{}, false
	}
	return d.Relations[i], true
}

// ValueColumns 返回参与 INSERT/UPDATE 的列（排除标识列），保持声明顺序
func (d *Descriptor) ValueColumns() []ColumnMeta {
	cols := make([]ColumnMeta, 0, len(d.Columns))
	for _, c := range d.Columns {
		if c.PrimaryKey {
			continue
		}
		cols = append(cols, c)
	}
	return cols
}

// New 分配一个零值实体，返回 *T 对应的 reflect.Value
func (d *Descriptor) New() reflect.Value {
	return reflect.New(d.Type)
}

// IdentityOf 读取实体标识；v 为 *T
func (d *Descriptor) IdentityOf(v reflect.Value) (int64, bool) {
	if p, ok := v.Interface().(Persistable); ok {
		return p.PrimaryKey()
	}
	f := FieldByIndex(v, d.Identity.Index)
	if !f.IsValid() {
		return 0, false
	}
	if f.Kind() == reflect.Ptr {
		if f.IsNil() {
			return 0, false
		}
		f = f.Elem()
	}
	id, err := cast.ToInt64E(f.Interface())
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

// SetIdentity 回填实体标识；v 为 *T。标识字段类型无法容纳 id 时返回 SchemaError
func (d *Descriptor) SetIdentity(v reflect.Value, id int64) error {
	if p, ok := v.Interface().(Persistable); ok {
		p.SetPrimaryKey(id)
		return nil
	}
	f := FieldByIndex(v, d.Identity.Index)
	if !f.IsValid() || !f.CanSet() {
		return errors.Errorf(errors.ErrCodeSchema, "orm: identity field %s.%s is not settable", d.Table, d.Identity.Field)
	}
	if err := AssignValue(f, id); err != nil {
		return errors.WrapError(err, errors.ErrCodeSchema, "orm: cannot assign identity to "+d.Table+"."+d.Identity.Field)
	}
	return nil
}

// ClearIdentity 将标识恢复为未持久化状态（事务回滚后撤销回填）
func (d *Descriptor) ClearIdentity(v reflect.Value) {
	f := FieldByIndex(v, d.Identity.Index)
	if f.IsValid() && f.CanSet() {
		f.Set(reflect.Zero(f.Type()))
	}
}

// FieldByIndex 沿 index 取字段，遇到 nil 指针返回无效值
func FieldByIndex(v reflect.Value, index []int) reflect.Value {
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	for _, i := range index {
		if v.Kind() == reflect.Ptr {
			if v.IsNil() {
				return reflect.Value{}
			}
			v = v.Elem()
		}
		if v.Kind() != reflect.Struct || i < 0 || i >= v.NumField() {
			return reflect.Value{}
		}
		v = v.Field(i)
	}
	return v
}
