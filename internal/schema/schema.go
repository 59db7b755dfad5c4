// Package schema holds the relational model protodb compiles queries from
// (Schema, Table, Column, Index, ForeignRelation, CompiledQuery) and the
// per-dialect catalog readers that feed it.
package schema

import (
	"context"

	"github.com/koustreak/protodb/internal/database"
	"github.com/koustreak/protodb/internal/errs"
)

// Reader is the interface for reading a live catalog. Every method decodes
// rows into typed records; errors are *errs.Error.
type Reader interface {
	// ListTables returns the base tables of schema in name order.
	// Partitions are never returned.
	ListTables(ctx context.Context, schema string) ([]TableRecord, error)

	// ListColumns returns the columns of one table in ordinal order.
	ListColumns(ctx context.Context, schema, table string) ([]ColumnRecord, error)

	// ListIndexes returns the index columns of one table.
	ListIndexes(ctx context.Context, schema, table string) ([]IndexRecord, error)

	// ListForeignKeys returns the foreign key column pairs of one table.
	ListForeignKeys(ctx context.Context, schema, table string) ([]ForeignKeyRecord, error)

	// ListCheckConstraints returns the definition text of every check
	// constraint on one table.
	ListCheckConstraints(ctx context.Context, schema, table string) ([]string, error)

	// AddVersionColumn adds a bigint column to the table in autocommit mode.
	AddVersionColumn(ctx context.Context, schema, table, column string) error
}

// NewReader returns the Reader for db's dialect.
func NewReader(db database.DB) (Reader, error) {
	switch db.Dialect() {
	case database.DialectPostgres:
		return NewPgReader(db), nil
	case database.DialectMySQL:
		return NewMySQLReader(db), nil
	default:
		return nil, errs.Newf(errs.ErrKindConfig, "no catalog reader for dialect %s", db.Dialect())
	}
}
