package sql

import (
	"context"
	"database/sql"
	"strings"

	core "tinyorm/data/db"
	"tinyorm/data/db/dialect"
)

type deleteBuilder struct {
	db      core.IQuerier
	dialect dialect.Dialect

	table string
	where predicates
}

func (b *deleteBuilder) WhereEq(column string, val any) IDeleteBuilder {
	b.where.eq(b.dialect, column, val)
	return b
}

// Build 不允许无条件删除
func (b *deleteBuilder) Build() (string, []any) {
	mustIdentifier("table", b.table)
	if b.where.empty() {
		panic("deleteBuilder: delete without where is not allowed")
	}

	var sb strings.Builder
	sb.WriteString("DELETE FROM ")
	sb.WriteString(b.dialect.QuoteIdentifier(b.table))
	args := b.where.write(&sb)
	return sb.String(), args
}

func (b *deleteBuilder) Exec(ctx context.Context) (sql.Result, error) {
	q, args := b.Build()
	return b.db.Exec(ctx, q, args...)
}
