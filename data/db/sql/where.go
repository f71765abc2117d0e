package sql

import (
	"strings"

	"tinyorm/data/db/dialect"
)

// predicates 以 AND 连接的 WHERE 条件。只接受列名加绑定参数，不接受原始 SQL 片段。
type predicates struct {
	conds []string
	args  []any
}

func (p *predicates) eq(d dialect.Dialect, column string, val any) {
	mustIdentifier("column", column)
	p.conds = append(p.conds, d.QuoteIdentifier(column)+" = ?")
	p.args = append(p.args, val)
}

// in 空集合生成恒假条件，任何行都不匹配
func (p *predicates) in(d dialect.Dialect, column string, vals []any) {
	mustIdentifier("column", column)
	if len(vals) == 0 {
		p.conds = append(p.conds, "1 = 0")
		return
	}
	p.conds = append(p.conds, d.QuoteIdentifier(column)+" IN ("+placeholders(len(vals))+")")
	p.args = append(p.args, vals...)
}

func (p *predicates) empty() bool { return len(p.conds) == 0 }

// write 追加 " WHERE ..."，返回参数副本，多次 Build 互不影响
func (p *predicates) write(sb *strings.Builder) []any {
	if len(p.conds) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(p.conds, " AND "))
	}
	return append([]any(nil), p.args...)
}
