package basic

import (
	"context"
	"database/sql"

	core "tinyorm/data/db"
	"tinyorm/data/db/dialect"
)

// querier *sql.DB 与 *sql.Tx 共有的方法
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// conn 在 querier 之上做占位符改写，DB 与 Tx 共用
type conn struct {
	q       querier
	dialect dialect.Dialect
}

func (c conn) Query(ctx context.Context, query string, args ...any) (core.IRows, error) {
	rows, err := c.q.QueryContext(ctx, c.dialect.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	return &Rows{rows: rows}, nil
}

func (c conn) QueryRow(ctx context.Context, query string, args ...any) core.IRow {
	return &Row{row: c.q.QueryRowContext(ctx, c.dialect.Rebind(query), args...)}
}

func (c conn) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.q.ExecContext(ctx, c.dialect.Rebind(query), args...)
}

// GetDialectName 实现 core.IDialectNameProvider
func (c conn) GetDialectName() string {
	return string(c.dialect.Name())
}

// Tx 事务，实现 core.ITransaction
type Tx struct {
	conn
	tx *sql.Tx
}

func (t *Tx) Commit() error   { return t.tx.Commit() }
func (t *Tx) Rollback() error { return t.tx.Rollback() }
