package orm

import (
	"reflect"
	"strings"
	"sync"

	"github.com/go-openapi/inflect"

	dbsql "tinyorm/data/db/sql"
	"tinyorm/errors"
)

// TagName 实体字段映射所使用的结构体标签
const TagName = "orm"

// Tabler 实体通过 TableName 声明所在表
type Tabler interface {
	TableName() string
}

// Registry 实体类型到 Descriptor 的解析缓存。
//
// 每种类型只解析一次；解析失败不缓存，修正后可重试。
// 关联目标类型不在解析时递归解析，首次遍历关联时才解析，
// 因此相互引用的类型（Student ⇄ Class）可以任意顺序注册。
type Registry struct {
	mu    sync.RWMutex
	descs map[reflect.Type]*Descriptor
}

// NewRegistry 创建独立的注册表
func NewRegistry() *Registry {
	return &Registry{descs: make(map[reflect.Type]*Descriptor)}
}

var defaultRegistry = NewRegistry()

// DefaultRegistry 进程级默认注册表
func DefaultRegistry() *Registry {
	return defaultRegistry
}

// Register 在默认注册表中解析并缓存 T
func Register[T any]() (*Descriptor, error) {
	return defaultRegistry.Resolve(reflect.TypeOf((*T)(nil)).Elem())
}

// MustRegister 同 Register，失败时 panic；用于启动阶段
func MustRegister[T any]() *Descriptor {
	d, err := Register[T]()
	if err != nil {
		panic(err)
	}
	return d
}

// ResolveValue 解析实体值（T、*T、[]*T 或 *[]*T）对应的 Descriptor
func (r *Registry) ResolveValue(v any) (*Descriptor, error) {
	if v == nil {
		return nil, errors.NewError(errors.ErrCodeInvalidInput, "orm: entity is nil")
	}
	return r.Resolve(reflect.TypeOf(v))
}

// Resolve 解析类型对应的 Descriptor，指针与切片会被剥离到元素结构体
func (r *Registry) Resolve(t reflect.Type) (*Descriptor, error) {
	if t == nil {
		return nil, errors.NewError(errors.ErrCodeInvalidInput, "orm: type is nil")
	}
	t = indirectType(t)

	r.mu.RLock()
	d, ok := r.descs[t]
	r.mu.RUnlock()
	if ok {
		return d, nil
	}

	d, err := buildDescriptor(t)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// 并发解析同一类型时保留先写入者，保证同一类型只有一个 Descriptor 实例
	if existing, ok := r.descs[t]; ok {
		return existing, nil
	}
	r.descs[t] = d
	return d, nil
}

func indirectType(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Ptr || t.Kind() == reflect.Slice {
		t = t.Elem()
	}
	return t
}

func schemaErrorf(t reflect.Type, format string, args ...any) error {
	return errors.Errorf(errors.ErrCodeSchema, format, args...).WithContext("type", t.String())
}

func buildDescriptor(t reflect.Type) (*Descriptor, error) {
	if t.Kind() != reflect.Struct {
		return nil, schemaErrorf(t, "orm: %s is not a struct", t)
	}

	table, ok := tableNameOf(t)
	if !ok || table == "" {
		return nil, schemaErrorf(t, "orm: %s does not declare TableName()", t)
	}
	if !dbsql.IsSafeIdentifier(table) {
		return nil, schemaErrorf(t, "orm: %s has unsafe table name %q", t, table)
	}

	d := &Descriptor{
		Type:     t,
		Table:    table,
		byColumn: make(map[string]int),
		byField:  make(map[string]int),
		relIndex: make(map[string]int),
	}

	var walkErr error
	var walk func(reflect.Type, []int)
	walk = func(cur reflect.Type, prefix []int) {
		for i := 0; i < cur.NumField() && walkErr == nil; i++ {
			f := cur.Field(i)
			if f.PkgPath != "" && !f.Anonymous {
				continue
			}
			tag, hasTag := f.Tag.Lookup(TagName)
			if tag == "-" {
				continue
			}
			index := append(append([]int(nil), prefix...), i)

			// 内嵌结构体（例如 orm.Model）展开
			if f.Anonymous && f.Type.Kind() == reflect.Struct && f.Type != timeType && !hasTag {
				walk(f.Type, index)
				continue
			}
			if f.PkgPath != "" {
				continue
			}

			opts := parseTag(tag)
			if kind, ok := opts["rel"]; ok {
				walkErr = d.addRelation(f, index, RelationKind(kind), opts)
				continue
			}
			if !isScalarType(f.Type) {
				// 未标注的复合字段不参与映射
				continue
			}
			walkErr = d.addColumn(f, index, opts)
		}
	}
	walk(t, nil)
	if walkErr != nil {
		return nil, walkErr
	}

	found := false
	for _, c := range d.Columns {
		if c.PrimaryKey {
			if found {
				return nil, schemaErrorf(t, "orm: %s declares more than one primary key", t)
			}
			d.Identity = c
			found = true
		}
	}
	if !found {
		return nil, schemaErrorf(t, "orm: %s has no identity column", t)
	}
	return d, nil
}

func (d *Descriptor) addColumn(f reflect.StructField, index []int, opts map[string]string) error {
	col := opts["column"]
	if col == "" {
		col = inflect.Underscore(f.Name)
	}
	if !dbsql.IsSafeIdentifier(col) {
		return schemaErrorf(d.Type, "orm: %s.%s has unsafe column name %q", d.Type, f.Name, col)
	}
	if _, dup := d.byColumn[col]; dup {
		return schemaErrorf(d.Type, "orm: %s maps column %q twice", d.Type, col)
	}
	_, pk := opts["primarykey"]
	_, auto := opts["autoincrement"]
	d.byColumn[col] = len(d.Columns)
	d.byField[f.Name] = len(d.Columns)
	d.Columns = append(d.Columns, ColumnMeta{
		Field:         f.Name,
		Column:        col,
		Index:         index,
		Type:          f.Type,
		PrimaryKey:    pk,
		AutoIncrement: auto,
	})
	return nil
}

func (d *Descriptor) addRelation(f reflect.StructField, index []int, kind RelationKind, opts map[string]string) error {
	rel := RelationMeta{
		Field:          f.Name,
		Index:          index,
		Kind:           kind,
		ForeignKey:     opts["foreignkey"],
		JoinTable:      opts["jointable"],
		JoinForeignKey: opts["joinforeignkey"],
		JoinReferences: opts["joinreferences"],
	}

	ft := f.Type
	switch kind {
	case OneToOne:
		if ft.Kind() != reflect.Ptr || ft.Elem().Kind() != reflect.Struct {
			return schemaErrorf(d.Type, "orm: %s.%s one_to_one must be a pointer to struct, got %s", d.Type, f.Name, ft)
		}
		rel.Target = ft.Elem()
	case OneToMany, ManyToMany:
		if ft.Kind() != reflect.Slice || ft.Elem().Kind() != reflect.Ptr || ft.Elem().Elem().Kind() != reflect.Struct {
			return schemaErrorf(d.Type, "orm: %s.%s %s must be a slice of pointers to struct, got %s", d.Type, f.Name, kind, ft)
		}
		rel.Target = ft.Elem().Elem()
	default:
		return schemaErrorf(d.Type, "orm: %s.%s has unknown relation kind %q", d.Type, f.Name, kind)
	}

	var required []string
	if kind == ManyToMany {
		required = []string{rel.JoinTable, rel.JoinForeignKey, rel.JoinReferences}
		if rel.JoinTable == "" || rel.JoinForeignKey == "" || rel.JoinReferences == "" {
			return schemaErrorf(d.Type, "orm: %s.%s many_to_many requires joinTable, joinForeignKey and joinReferences", d.Type, f.Name)
		}
	} else {
		required = []string{rel.ForeignKey}
		if rel.ForeignKey == "" {
			return schemaErrorf(d.Type, "orm: %s.%s %s requires foreignKey", d.Type, f.Name, kind)
		}
	}
	for _, name := range required {
		if !dbsql.IsSafeIdentifier(name) {
			return schemaErrorf(d.Type, "orm: %s.%s has unsafe identifier %q", d.Type, f.Name, name)
		}
	}

	d.relIndex[f.Name] = len(d.Relations)
	d.Relations = append(d.Relations, rel)
	return nil
}

// parseTag 解析 `key:value;flag` 形式的标签，键统一小写
func parseTag(tag string) map[string]string {
	opts := make(map[string]string)
	for _, part := range strings.Split(tag, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, _ := strings.Cut(part, ":")
		opts[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	return opts
}

func tableNameOf(t reflect.Type) (string, bool) {
	if tn, ok := reflect.New(t).Interface().(Tabler); ok {
		return tn.TableName(), true
	}
	return "", false
}

func isScalarType(t reflect.Type) bool {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == timeType {
		return true
	}
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64,
		reflect.String:
		return true
	case reflect.Slice:
		return t.Elem().Kind() == reflect.Uint8
	default:
		return false
	}
}
