// Package db 映射引擎所依赖的最小存储抽象
//
// 引擎只依赖 IQuerier：连接与事务都满足它，因此同一个执行器既可以逐条提交，
// 也可以在一个事务内运行。驱动相关的差异（占位符、RETURNING、唯一键错误）
// 由 dialect 包根据 IDialectNameProvider 推断。
package db

import (
	"context"
	"database/sql"
)

// IQuerier 执行语句的公共能力；query 使用 ? 占位符，由实现按方言改写
type IQuerier interface {
	Query(ctx context.Context, query string, args ...any) (IRows, error)
	QueryRow(ctx context.Context, query string, args ...any) IRow
	Exec(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// IDatabase 连接池
type IDatabase interface {
	IQuerier

	// Begin 开启事务；不支持嵌套
	Begin(ctx context.Context) (ITransaction, error)
	Ping(ctx context.Context) error
	Close() error
}

// ITransaction 一次事务；Commit/Rollback 之后不可再用
type ITransaction interface {
	IQuerier

	Commit() error
	Rollback() error
}

// IDialectNameProvider 可选接口：返回 "sqlite"、"postgres"、"mysql" 等 driver 名
type IDialectNameProvider interface {
	GetDialectName() string
}

type IRows interface {
	Next() bool
	Scan(dest ...any) error
	Close() error
	Err() error
	Columns() ([]string, error)
}

type IRow interface {
	Scan(dest ...any) error
	Err() error
}

// DBConfig 连接配置
type DBConfig struct {
	Driver string // sqlite（默认）, postgres, mysql
	DSN    string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // 秒
	ConnMaxIdleTime int // 秒

	// PingTimeout 打开后可用性检查的超时秒数，0 表示 3 秒
	PingTimeout int
}
