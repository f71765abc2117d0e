// Package basic 基于 database/sql 的 core.IDatabase 实现
package basic

import (
	"context"
	"database/sql"
	"time"

	core "tinyorm/data/db"
	"tinyorm/data/db/dialect"
)

// DB 连接池；语句中的 ? 按方言改写后交给驱动
type DB struct {
	conn
	db *sql.DB
}

// New 打开连接并 Ping 确认可用
//
// Driver 需已通过空导入注册（例如 `_ "modernc.org/sqlite"`），未指定时为 sqlite。
func New(config core.DBConfig) (*DB, error) {
	driver := config.Driver
	if driver == "" {
		driver = "sqlite"
	}

	sqlDB, err := sql.Open(driver, config.DSN)
	if err != nil {
		return nil, err
	}
	configurePool(sqlDB, config)

	timeout := 3 * time.Second
	if config.PingTimeout > 0 {
		timeout = time.Duration(config.PingTimeout) * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	return Wrap(sqlDB, driver), nil
}

func configurePool(sqlDB *sql.DB, config core.DBConfig) {
	if config.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(config.ConnMaxLifetime) * time.Second)
	}
	if config.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(time.Duration(config.ConnMaxIdleTime) * time.Second)
	}
}

// Wrap 包装已打开的 *sql.DB（测试中配合 sqlmock 使用）
func Wrap(sqlDB *sql.DB, driver string) *DB {
	return &DB{conn: conn{q: sqlDB, dialect: dialect.New(driver)}, db: sqlDB}
}

func (d *DB) Begin(ctx context.Context) (core.ITransaction, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &Tx{conn: conn{q: tx, dialect: d.dialect}, tx: tx}, nil
}

func (d *DB) Ping(ctx context.Context) error { return d.db.PingContext(ctx) }
func (d *DB) Close() error                   { return d.db.Close() }
