package sql

import (
	"context"
	"database/sql"
	"strings"

	core "tinyorm/data/db"
	"tinyorm/data/db/dialect"
)

type updateBuilder struct {
	db      core.IQuerier
	dialect dialect.Dialect

	table   string
	setCols []string
	setArgs []any
	where   predicates
}

func (b *updateBuilder) Set(col string, val any) IUpdateBuilder {
	mustIdentifier("column", col)
	b.setCols = append(b.setCols, col)
	b.setArgs = append(b.setArgs, val)
	return b
}

func (b *updateBuilder) WhereEq(column string, val any) IUpdateBuilder {
	b.where.eq(b.dialect, column, val)
	return b
}

// Build SET 在前、WHERE 在后，参数顺序与占位符一致
func (b *updateBuilder) Build() (string, []any) {
	if len(b.setCols) == 0 {
		panic("updateBuilder: no columns to set")
	}
	mustIdentifier("table", b.table)

	var sb strings.Builder
	sb.WriteString("UPDATE ")
	sb.WriteString(b.dialect.QuoteIdentifier(b.table))
	sb.WriteString(" SET ")
	for i, col := range b.setCols {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(b.dialect.QuoteIdentifier(col))
		sb.WriteString(" = ?")
	}
	args := append(append([]any(nil), b.setArgs...), b.where.write(&sb)...)
	return sb.String(), args
}

func (b *updateBuilder) Exec(ctx context.Context) (sql.Result, error) {
	q, args := b.Build()
	return b.db.Exec(ctx, q, args...)
}
