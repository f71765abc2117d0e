package sql

import (
	"context"
	"strconv"
	"strings"

	core "tinyorm/data/db"
	"tinyorm/data/db/dialect"
)

type selectBuilder struct {
	db      core.IQuerier
	dialect dialect.Dialect

	cols  []string
	table string
	where predicates
	limit int
}

func (b *selectBuilder) From(table string) ISelectBuilder {
	b.table = table
	return b
}

func (b *selectBuilder) WhereEq(column string, val any) ISelectBuilder {
	b.where.eq(b.dialect, column, val)
	return b
}

func (b *selectBuilder) WhereIn(column string, vals ...any) ISelectBuilder {
	b.where.in(b.dialect, column, vals)
	return b
}

func (b *selectBuilder) Limit(n int) ISelectBuilder {
	if n < 0 {
		panic("selectBuilder: limit cannot be negative")
	}
	b.limit = n
	return b
}

// Build 列为 * 或聚合表达式（含括号）时原样输出，其余按标识符转义
func (b *selectBuilder) Build() (string, []any) {
	mustIdentifier("table", b.table)

	cols := make([]string, len(b.cols))
	for i, c := range b.cols {
		if c == "*" || strings.ContainsAny(c, "()") {
			cols[i] = c
			continue
		}
		mustIdentifier("column", c)
		cols[i] = b.dialect.QuoteIdentifier(c)
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(cols, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(b.dialect.QuoteIdentifier(b.table))
	args := b.where.write(&sb)
	if b.limit > 0 {
		sb.WriteString(" LIMIT ")
		sb.WriteString(strconv.Itoa(b.limit))
	}
	return sb.String(), args
}

func (b *selectBuilder) Query(ctx context.Context) (core.IRows, error) {
	q, args := b.Build()
	return b.db.Query(ctx, q, args...)
}

func (b *selectBuilder) QueryRow(ctx context.Context) core.IRow {
	q, args := b.Build()
	return b.db.QueryRow(ctx, q, args...)
}
