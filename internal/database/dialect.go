package database

import (
	"fmt"
	"strings"
)

// Dialect controls the SQL placeholder style and the statement features the
// query builder and placeholder compiler may rely on.
type Dialect int

const (
	// DialectPostgres uses $1, $2, ... placeholders and supports RETURNING.
	DialectPostgres Dialect = iota

	// DialectMySQL uses ? placeholders and has no RETURNING clause.
	DialectMySQL
)

func (d Dialect) String() string {
	switch d {
	case DialectPostgres:
		return "postgres"
	case DialectMySQL:
		return "mysql"
	default:
		return fmt.Sprintf("dialect(%d)", int(d))
	}
}

// Marker returns the native placeholder for the n-th (1-based) bind slot.
// Postgres: $1, $2, ...   MySQL: ? (n is ignored)
func (d Dialect) Marker(n int) string {
	if d == DialectMySQL {
		return "?"
	}
	return fmt.Sprintf("$%d", n)
}

// SupportsReturning reports whether INSERT/UPDATE/DELETE may carry a
// RETURNING clause.
func (d Dialect) SupportsReturning() bool {
	return d == DialectPostgres
}

// EmptyInsert is the INSERT tail used when no column is bound.
func (d Dialect) EmptyInsert() string {
	if d == DialectMySQL {
		return "() VALUES ()"
	}
	return "DEFAULT VALUES"
}

// QuoteIdent wraps a SQL identifier in the dialect's quote character.
// Generated statements leave identifiers bare; QuoteIdent is used for the
// catalog DDL the introspector issues.
func (d Dialect) QuoteIdent(name string) string {
	if d == DialectMySQL {
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
