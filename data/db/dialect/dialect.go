// Package dialect 驱动之间映射引擎需要区分的少量差异
package dialect

import (
	"strconv"
	"strings"

	core "tinyorm/data/db"
)

// Name 标准化的方言名
type Name string

const (
	NameMySQL    Name = "mysql"
	NameSQLite   Name = "sqlite"
	NamePostgres Name = "postgres"
	NameUnknown  Name = ""
)

// traits 一种方言的全部差异
type traits struct {
	quote        string   // 标识符引号，空表示不转义
	numbered     bool     // 占位符为 $1, $2 ...
	returning    bool     // 插入需 RETURNING 取回标识（驱动不支持 LastInsertId）
	onConflict   bool     // 支持 ON CONFLICT DO NOTHING；失败语句会中止整个事务的方言需要它
	uniqueMarker []string // 唯一键冲突错误消息中的关键字（小写）
}

var registry = map[Name]traits{
	NameMySQL: {
		quote:        "`",
		uniqueMarker: []string{"duplicate entry", "duplicate key"},
	},
	NameSQLite: {
		quote:        `"`,
		uniqueMarker: []string{"unique constraint failed", "primary key must be unique"},
	},
	NamePostgres: {
		quote:        `"`,
		numbered:     true,
		returning:    true,
		onConflict:   true,
		uniqueMarker: []string{"duplicate key value", "unique constraint"},
	},
	NameUnknown: {
		uniqueMarker: []string{"duplicate key", "unique constraint"},
	},
}

var aliases = map[string]Name{
	"mysql":      NameMySQL,
	"sqlite":     NameSQLite,
	"sqlite3":    NameSQLite,
	"postgres":   NamePostgres,
	"postgresql": NamePostgres,
	"pgx":        NamePostgres,
}

// Dialect 值类型，可自由复制
type Dialect struct {
	name Name
	t    traits
}

// New 按 driver 名构造（大小写不敏感）；不认识的名字得到 Unknown
func New(driver string) Dialect {
	name := aliases[strings.ToLower(strings.TrimSpace(driver))]
	return Dialect{name: name, t: registry[name]}
}

// FromDatabase 从连接或事务推断方言；未实现 IDialectNameProvider 时为 Unknown
func FromDatabase(db core.IQuerier) Dialect {
	if p, ok := db.(core.IDialectNameProvider); ok {
		return New(p.GetDialectName())
	}
	return New("")
}

func (d Dialect) Name() Name { return d.name }

// QuoteIdentifier 转义标识符，schema.table 逐段转义；不做语法校验
func (d Dialect) QuoteIdentifier(name string) string {
	if name == "" || d.t.quote == "" {
		return name
	}
	parts := strings.Split(name, ".")
	for i, p := range parts {
		if p != "" {
			parts[i] = d.t.quote + p + d.t.quote
		}
	}
	return strings.Join(parts, ".")
}

// Rebind 将 ? 改写为方言占位符
//
// 简单逐字节扫描，不识别字符串字面量中的 ?；引擎生成的语句只用绑定参数。
func (d Dialect) Rebind(query string) string {
	if !d.t.numbered || !strings.Contains(query, "?") {
		return query
	}
	var sb strings.Builder
	sb.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] != '?' {
			sb.WriteByte(query[i])
			continue
		}
		n++
		sb.WriteByte('$')
		sb.WriteString(strconv.Itoa(n))
	}
	return sb.String()
}

// SupportsReturning lib/pq 不实现 sql.Result.LastInsertId，postgres 必须用 RETURNING
func (d Dialect) SupportsReturning() bool {
	return d.t.returning
}

// SupportsOnConflict postgres 中一条失败语句会使事务进入中止状态，
// 可预期的冲突须在语句内吸收
func (d Dialect) SupportsOnConflict() bool {
	return d.t.onConflict
}

// IsUniqueViolation 按错误消息关键字识别唯一键/主键冲突
func (d Dialect) IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, m := range d.t.uniqueMarker {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
