package orm

// Persistable 由所有实体实现，引擎通过它读写标识，而无需按具体类型分派。
//
// 嵌入 Model 即可获得默认实现；未实现该接口的实体由描述符通过反射访问标识字段。
type Persistable interface {
	// PrimaryKey 返回标识；持久化之前 ok 为 false
	PrimaryKey() (id int64, ok bool)
	// SetPrimaryKey 在插入后回填生成的标识
	SetPrimaryKey(id int64)
}

// Model 实体基类：可空自增主键 id。
type Model struct {
	ID *int64 `orm:"column:id;primaryKey;autoIncrement" json:"id,omitempty" yaml:"id,omitempty"`
}

func (m *Model) PrimaryKey() (int64, bool) {
	if m == nil || m.ID == nil {
		return 0, false
	}
	return *m.ID, true
}

func (m *Model) SetPrimaryKey(id int64) {
	m.ID = &id
}
