package sql

import (
	"context"
	"database/sql"
	"strings"

	core "tinyorm/data/db"
	"tinyorm/data/db/dialect"
)

type insertBuilder struct {
	db      core.IQuerier
	dialect dialect.Dialect

	table     string
	columns   []string
	rows      [][]any
	returning string
	ignore    bool
}

func (b *insertBuilder) Columns(cols ...string) IInsertBuilder {
	b.columns = cols
	return b
}

func (b *insertBuilder) Values(vals ...any) IInsertBuilder {
	if len(vals) == 0 {
		return b
	}
	b.rows = append(b.rows, vals)
	return b
}

func (b *insertBuilder) Returning(col string) IInsertBuilder {
	if b.dialect.SupportsReturning() {
		mustIdentifier("column", col)
		b.returning = col
	}
	return b
}

func (b *insertBuilder) OnConflictDoNothing() IInsertBuilder {
	b.ignore = b.dialect.SupportsOnConflict()
	return b
}

// Build 生成 INSERT 语句。
//
// 没有任何列时生成默认值插入（只依赖自增主键的实体）。
func (b *insertBuilder) Build() (string, []any) {
	mustIdentifier("table", b.table)

	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(b.dialect.QuoteIdentifier(b.table))

	var args []any
	if len(b.columns) == 0 {
		if b.dialect.Name() == dialect.NameMySQL {
			sb.WriteString(" () VALUES ()")
		} else {
			sb.WriteString(" DEFAULT VALUES")
		}
	} else {
		if len(b.rows) == 0 {
			panic("insertBuilder: at least one row is required")
		}
		args = make([]any, 0, len(b.rows)*len(b.columns))

		quotedCols := make([]string, len(b.columns))
		for i, col := range b.columns {
			mustIdentifier("column", col)
			quotedCols[i] = b.dialect.QuoteIdentifier(col)
		}
		sb.WriteString(" (")
		sb.WriteString(strings.Join(quotedCols, ", "))
		sb.WriteString(") VALUES ")

		rowPlaceholder := "(" + placeholders(len(b.columns)) + ")"
		for i, row := range b.rows {
			if len(row) != len(b.columns) {
				panic("insertBuilder: values length mismatch columns length")
			}
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(rowPlaceholder)
			args = append(args, row...)
		}
	}

	if b.ignore {
		sb.WriteString(" ON CONFLICT DO NOTHING")
	}
	if b.returning != "" {
		sb.WriteString(" RETURNING ")
		sb.WriteString(b.dialect.QuoteIdentifier(b.returning))
	}

	return sb.String(), args
}

func (b *insertBuilder) Exec(ctx context.Context) (sql.Result, error) {
	q, args := b.Build()
	return b.db.Exec(ctx, q, args...)
}

func (b *insertBuilder) QueryRow(ctx context.Context) core.IRow {
	q, args := b.Build()
	return b.db.QueryRow(ctx, q, args...)
}
