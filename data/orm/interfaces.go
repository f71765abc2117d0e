package orm

import "context"

// IProvider 映射引擎对外的数据访问契约。
//
// 所有方法同步阻塞，context 贯穿到每一条存储调用。
// 实体参数均为指向结构体的指针（*T）。
type IProvider interface {
	// CreateOrUpdate 持久化实体及其可达的关联图：无标识插入，有标识更新。
	CreateOrUpdate(ctx context.Context, entity any) error
	// ReadAll 全表读取并急加载全部关联；dest 为 *[]*T。
	ReadAll(ctx context.Context, dest any) error
	// GetByID 按标识读取并急加载；dest 为 *T，不存在时返回 false。
	GetByID(ctx context.Context, id int64, dest any) (bool, error)
	// GetScalars 按标识只读取标量字段，关联保持为空；供延迟代理使用。
	GetScalars(ctx context.Context, id int64, dest any) (bool, error)
	// GetNestedEntity 只解析 parent 的一个关联字段，不递归。
	// 一对一返回 *C（不存在时为 nil），集合关联返回 []*C。
	GetNestedEntity(ctx context.Context, parent any, field string) (any, error)
	// Delete 按标识删除根行；失败只记录日志并返回 false。
	Delete(ctx context.Context, entity any) bool
	// Capabilities 返回提供者支持的能力集合。
	Capabilities() Capabilities
}
