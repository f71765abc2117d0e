package orm

import (
	"reflect"
	"slices"
)

// Specification 描述一次“按列 IN 集合过滤”或“全表扫描”的查询。
//
// Filtered 且值集合为空时结果为空，不访问存储。
// Excluded 为多对多解析时的环路保护：目标类型在其中的多对多关联不再解析。
type Specification struct {
	Table    string
	Column   string
	Values   []*int64
	Excluded []reflect.Type

	filtered bool
}

// All 全表扫描
func All(table string) Specification {
	return Specification{Table: table}
}

// Where 按 column IN (ids...) 过滤
func Where(table, column string, ids ...int64) Specification {
	values := make([]*int64, len(ids))
	for i := range ids {
		id := ids[i]
		values[i] = &id
	}
	return WhereIn(table, column, values...)
}

// WhereIn 同 Where，允许 nil 值（nil 永远不匹配）
func WhereIn(table, column string, values ...*int64) Specification {
	return Specification{Table: table, Column: column, Values: values, filtered: true}
}

// Filtered 是否带过滤条件
func (s Specification) Filtered() bool {
	return s.filtered
}

// Keys 返回去除 nil 与重复值后的过滤值，保持首次出现顺序
func (s Specification) Keys() []int64 {
	keys := make([]int64, 0, len(s.Values))
	for _, v := range s.Values {
		if v == nil || slices.Contains(keys, *v) {
			continue
		}
		keys = append(keys, *v)
	}
	return keys
}

// Empty 过滤集合为空：结果必为空
func (s Specification) Empty() bool {
	return s.filtered && len(s.Keys()) == 0
}

// Excludes 类型是否在排除集合中
func (s Specification) Excludes(t reflect.Type) bool {
	return slices.Contains(s.Excluded, indirectType(t))
}

// WithExcluded 追加排除类型，返回新的 Specification
func (s Specification) WithExcluded(types ...reflect.Type) Specification {
	out := s
	out.Excluded = slices.Clone(s.Excluded)
	for _, t := range types {
		t = indirectType(t)
		if !slices.Contains(out.Excluded, t) {
			out.Excluded = append(out.Excluded, t)
		}
	}
	return out
}
