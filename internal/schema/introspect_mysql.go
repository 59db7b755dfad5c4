package schema

import (
	"context"
	"fmt"
	"strings"

	"github.com/koustreak/protodb/internal/database"
	"github.com/koustreak/protodb/internal/errs"
)

// MySQLReader implements Reader for MySQL using information_schema.
// A MySQL database plays the role of a schema.
type MySQLReader struct {
	db database.DB
}

// NewMySQLReader creates a new MySQL catalog reader
func NewMySQLReader(db database.DB) *MySQLReader {
	return &MySQLReader{db: db}
}

var _ Reader = (*MySQLReader)(nil)

const myListTables = `
	SELECT table_schema, table_name
	FROM information_schema.tables
	WHERE table_schema = ?
	  AND table_type = 'BASE TABLE'
	ORDER BY table_name`

// ListTables returns all base tables in the given database.
func (m *MySQLReader) ListTables(ctx context.Context, schema string) ([]TableRecord, error) {
	rows, err := m.db.Query(ctx, myListTables, schema)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return database.Collect(rows, func(r database.Rows) (TableRecord, error) {
		var t TableRecord
		if err := r.Scan(&t.Schema, &t.Name); err != nil {
			return t, errs.Wrap(errs.ErrKindCatalog, "decode table row", err)
		}
		return t, nil
	})
}

const myListColumns = `
	SELECT
		column_name,
		ordinal_position,
		data_type,
		column_type,
		column_default,
		is_nullable = 'YES',
		column_key = 'PRI',
		extra LIKE '%auto_increment%'
	FROM information_schema.columns
	WHERE table_schema = ?
	  AND table_name = ?
	ORDER BY ordinal_position`

// ListColumns returns column details for a single table in ordinal order.
// enum column types populate EnumValues directly.
func (m *MySQLReader) ListColumns(ctx context.Context, schema, table string) ([]ColumnRecord, error) {
	rows, err := m.db.Query(ctx, myListColumns, schema, table)
	if err != nil {
		return nil, fmt.Errorf("list columns of %s.%s: %w", schema, table, err)
	}
	return database.Collect(rows, func(r database.Rows) (ColumnRecord, error) {
		var c ColumnRecord
		err := r.Scan(&c.Name, &c.Ordinal, &c.DataType, &c.TypeName, &c.Default,
			&c.Nullable, &c.PrimaryKey, &c.Sequence)
		if err != nil {
			return c, errs.Wrap(errs.ErrKindCatalog, "decode column row", err)
		}
		if strings.EqualFold(c.DataType, "enum") {
			if values, ok := ParseEnumType(c.TypeName); ok {
				c.EnumValues = values
			}
		}
		return c, nil
	})
}

const myListIndexes = `
	SELECT
		index_name,
		column_name,
		non_unique = 0,
		index_name = 'PRIMARY',
		NULLIF(index_comment, '')
	FROM information_schema.statistics
	WHERE table_schema = ?
	  AND table_name = ?
	ORDER BY index_name, seq_in_index`

// ListIndexes returns one record per indexed column, grouped by index name.
func (m *MySQLReader) ListIndexes(ctx context.Context, schema, table string) ([]IndexRecord, error) {
	rows, err := m.db.Query(ctx, myListIndexes, schema, table)
	if err != nil {
		return nil, fmt.Errorf("list indexes of %s.%s: %w", schema, table, err)
	}
	return database.Collect(rows, scanIndexRecord)
}

const myListForeignKeys = `
	SELECT
		constraint_name,
		referenced_table_schema,
		referenced_table_name,
		referenced_column_name,
		column_name,
		ordinal_position
	FROM information_schema.key_column_usage
	WHERE table_schema = ?
	  AND table_name = ?
	  AND referenced_table_name IS NOT NULL
	ORDER BY constraint_name, ordinal_position`

// ListForeignKeys returns the column pairs of every foreign key on the table.
func (m *MySQLReader) ListForeignKeys(ctx context.Context, schema, table string) ([]ForeignKeyRecord, error) {
	rows, err := m.db.Query(ctx, myListForeignKeys, schema, table)
	if err != nil {
		return nil, fmt.Errorf("list foreign keys of %s.%s: %w", schema, table, err)
	}
	return database.Collect(rows, scanForeignKeyRecord)
}

const myListCheckConstraints = `
	SELECT cc.check_clause
	FROM information_schema.table_constraints tc
	JOIN information_schema.check_constraints cc
	  ON cc.constraint_schema = tc.constraint_schema
	 AND cc.constraint_name = tc.constraint_name
	WHERE tc.table_schema = ?
	  AND tc.table_name = ?
	  AND tc.constraint_type = 'CHECK'
	ORDER BY tc.constraint_name`

// ListCheckConstraints returns the check_clause text of each check
// constraint (MySQL 8.0.16 and later).
func (m *MySQLReader) ListCheckConstraints(ctx context.Context, schema, table string) ([]string, error) {
	rows, err := m.db.Query(ctx, myListCheckConstraints, schema, table)
	if err != nil {
		return nil, fmt.Errorf("list check constraints of %s.%s: %w", schema, table, err)
	}
	return database.Collect(rows, scanString)
}

// AddVersionColumn issues ALTER TABLE schema.table ADD COLUMN column bigint.
func (m *MySQLReader) AddVersionColumn(ctx context.Context, schema, table, column string) error {
	return addVersionColumn(ctx, m.db, schema, table, column)
}
