package database

import "context"

// DB is the single catalog connection a schema run holds from introspection
// through custom-query resolution. Layers above this package talk only to
// this interface; they never import the postgres or mysql packages directly.
//
// A DB is not safe for concurrent use: it wraps exactly one live connection.
type DB interface {
	// Dialect reports which SQL flavour the connection speaks.
	Dialect() Dialect

	// Ping verifies the database is reachable.
	Ping(ctx context.Context) error

	// Query executes a SQL statement that returns multiple rows.
	Query(ctx context.Context, sql string, args ...any) (Rows, error)

	// QueryRow executes a SQL statement that returns at most one row.
	QueryRow(ctx context.Context, sql string, args ...any) Row

	// Exec runs a statement in autocommit mode and returns the affected row count.
	Exec(ctx context.Context, sql string, args ...any) (int64, error)

	// Describe executes sql without fetching rows and returns the
	// driver-reported result columns in order. The statement is closed
	// before Describe returns.
	Describe(ctx context.Context, sql string) ([]Field, error)

	// Close releases the connection.
	Close(ctx context.Context) error
}

// Field is one column of a described result set. TypeName is the
// normalized catalog type name (format_type on PostgreSQL, the lower-cased
// DatabaseTypeName on MySQL).
type Field struct {
	Name     string
	TypeName string
}

// Rows is an abstraction over a database result set.
// Callers must always call Close() when done, even on error.
type Rows interface {
	// Next advances to the next row.
	// Returns false when no more rows exist or on error.
	Next() bool

	// Scan copies the current row's columns into the provided destinations.
	Scan(dest ...any) error

	// Columns returns the column names of the result set.
	Columns() ([]string, error)

	// Close releases resources held by the result set.
	Close()

	// Err returns any error encountered during iteration.
	Err() error
}

// Row is an abstraction over a single database row.
type Row interface {
	Scan(dest ...any) error
}
