package querysql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/restq/internal/ir"
)

// Dialect identifies the SQL flavor a compiler emits.
type Dialect string

const (
	SQLite   Dialect = "sqlite3"
	Postgres Dialect = "postgres"
)

// ParseDialect maps a database/sql driver name to a Dialect.
func ParseDialect(driver string) (Dialect, error) {
	switch driver {
	case "sqlite3", "sqlite":
		return SQLite, nil
	case "postgres", "pq", "postgresql":
		return Postgres, nil
	default:
		return "", fmt.Errorf("unsupported driver %q", driver)
	}
}

// Placeholder returns the bind parameter marker for the n-th (1-based) parameter.
func (d Dialect) Placeholder(n int) string {
	if d == Postgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// Quote quotes an identifier. Embedded quotes are doubled.
func (d Dialect) Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// columnType returns the DDL type for a field.
func (d Dialect) columnType(t ir.FieldType) string {
	switch t {
	case ir.TypeInt:
		if d == Postgres {
			return "BIGINT"
		}
		return "INTEGER"
	case ir.TypeFloat:
		if d == Postgres {
			return "DOUBLE PRECISION"
		}
		return "REAL"
	case ir.TypeBool:
		return "BOOLEAN"
	case ir.TypeDatetime:
		if d == Postgres {
			return "TIMESTAMPTZ"
		}
		return "TEXT"
	default:
		return "TEXT"
	}
}

// autoIncrementID returns the DDL for an integer primary key that the
// database assigns.
func (d Dialect) autoIncrementID(col string) string {
	if d == Postgres {
		return d.Quote(col) + " BIGSERIAL PRIMARY KEY"
	}
	return d.Quote(col) + " INTEGER PRIMARY KEY AUTOINCREMENT"
}
