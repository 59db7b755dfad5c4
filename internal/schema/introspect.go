package schema

import (
	"context"
	"fmt"

	"github.com/koustreak/protodb/internal/database"
	"github.com/koustreak/protodb/internal/errs"
)

// PgReader implements Reader for PostgreSQL using pg_catalog and
// information_schema.
type PgReader struct {
	db database.DB
}

// NewPgReader creates a new Postgres catalog reader
func NewPgReader(db database.DB) *PgReader {
	return &PgReader{db: db}
}

var _ Reader = (*PgReader)(nil)

const pgListTables = `
	SELECT ns.nspname::text, cls.relname::text
	FROM pg_catalog.pg_class cls
	JOIN pg_catalog.pg_namespace ns ON ns.oid = cls.relnamespace
	WHERE ns.nspname = $1
	  AND cls.relkind IN ('r', 'p')
	  AND NOT cls.relispartition
	ORDER BY cls.relname`

// ListTables returns all base tables in the given schema, partitions excluded.
func (p *PgReader) ListTables(ctx context.Context, schema string) ([]TableRecord, error) {
	rows, err := p.db.Query(ctx, pgListTables, schema)
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

const pgListColumns = `
	SELECT
		c.column_name::text,
		c.ordinal_position::int,
		c.data_type::text,
		format_type(a.atttypid, NULL),
		c.column_default::text,
		c.is_nullable = 'YES',
		EXISTS (
			SELECT 1
			FROM pg_catalog.pg_index pi
			WHERE pi.indrelid = t.oid
			  AND pi.indisprimary
			  AND a.attnum = ANY(pi.indkey)
		),
		pg_get_serial_sequence(quote_ident(ns.nspname) || '.' || quote_ident(t.relname), c.column_name) IS NOT NULL
			OR c.is_identity = 'YES'
	FROM pg_catalog.pg_namespace ns
	JOIN pg_catalog.pg_class t
	  ON t.relnamespace = ns.oid
	 AND t.relkind IN ('r', 'p')
	JOIN information_schema.columns c
	  ON c.table_schema = ns.nspname
	 AND c.table_name = t.relname
	JOIN pg_catalog.pg_attribute a
	  ON a.attrelid = t.oid
	 AND a.attname = c.column_name
	WHERE ns.nspname = $1
	  AND t.relname = $2
	ORDER BY c.ordinal_position`

// ListColumns returns column details for a single table in ordinal order.
func (p *PgReader) ListColumns(ctx context.Context, schema, table string) ([]ColumnRecord, error) {
	rows, err := p.db.Query(ctx, pgListColumns, schema, table)
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
		return c, nil
	})
}

const pgListIndexes = `
	SELECT
		i.relname::text,
		a.attname::text,
		ix.indisunique,
		ix.indisprimary,
		obj_description(i.oid, 'pg_class')
	FROM pg_catalog.pg_index ix
	JOIN pg_catalog.pg_class t ON t.oid = ix.indrelid
	JOIN pg_catalog.pg_class i ON i.oid = ix.indexrelid
	JOIN pg_catalog.pg_namespace ns ON ns.oid = t.relnamespace
	JOIN pg_catalog.pg_attribute a
	  ON a.attrelid = t.oid
	 AND a.attnum = ANY(ix.indkey)
	WHERE ns.nspname = $1
	  AND t.relname = $2
	ORDER BY i.relname, array_position(ix.indkey::int2[], a.attnum)`

// ListIndexes returns one record per indexed column, grouped by index name.
func (p *PgReader) ListIndexes(ctx context.Context, schema, table string) ([]IndexRecord, error) {
	rows, err := p.db.Query(ctx, pgListIndexes, schema, table)
	if err != nil {
		return nil, fmt.Errorf("list indexes of %s.%s: %w", schema, table, err)
	}
	return database.Collect(rows, scanIndexRecord)
}

const pgListForeignKeys = `
	SELECT DISTINCT
		rc.constraint_name::text,
		f_kcu.table_schema::text,
		f_kcu.table_name::text,
		f_kcu.column_name::text,
		kcu.column_name::text,
		kcu.ordinal_position::int
	FROM information_schema.key_column_usage kcu
	JOIN information_schema.referential_constraints rc
	  ON rc.constraint_schema = kcu.constraint_schema
	 AND rc.constraint_name = kcu.constraint_name
	JOIN information_schema.key_column_usage f_kcu
	  ON f_kcu.constraint_schema = rc.unique_constraint_schema
	 AND f_kcu.constraint_name = rc.unique_constraint_name
	 AND f_kcu.ordinal_position = kcu.position_in_unique_constraint
	WHERE kcu.table_schema = $1
	  AND kcu.table_name = $2
	  AND kcu.position_in_unique_constraint IS NOT NULL
	ORDER BY 1, 6`

// ListForeignKeys returns the column pairs of every foreign key on the table.
func (p *PgReader) ListForeignKeys(ctx context.Context, schema, table string) ([]ForeignKeyRecord, error) {
	rows, err := p.db.Query(ctx, pgListForeignKeys, schema, table)
	if err != nil {
		return nil, fmt.Errorf("list foreign keys of %s.%s: %w", schema, table, err)
	}
	return database.Collect(rows, scanForeignKeyRecord)
}

const pgListCheckConstraints = `
	SELECT pg_get_constraintdef(pgc.oid)
	FROM pg_catalog.pg_constraint pgc
	JOIN pg_catalog.pg_class cls ON cls.oid = pgc.conrelid
	JOIN pg_catalog.pg_namespace ns ON ns.oid = cls.relnamespace
	WHERE pgc.contype = 'c'
	  AND ns.nspname = $1
	  AND cls.relname = $2
	ORDER BY pgc.conname`

// ListCheckConstraints returns pg_get_constraintdef text for each check.
func (p *PgReader) ListCheckConstraints(ctx context.Context, schema, table string) ([]string, error) {
	rows, err := p.db.Query(ctx, pgListCheckConstraints, schema, table)
	if err != nil {
		return nil, fmt.Errorf("list check constraints of %s.%s: %w", schema, table, err)
	}
	return database.Collect(rows, scanString)
}

// AddVersionColumn issues ALTER TABLE schema.table ADD COLUMN column bigint.
func (p *PgReader) AddVersionColumn(ctx context.Context, schema, table, column string) error {
	return addVersionColumn(ctx, p.db, schema, table, column)
}

// --- shared helpers ---

func addVersionColumn(ctx context.Context, db database.DB, schema, table, column string) error {
	stmt := fmt.Sprintf("ALTER TABLE %s.%s ADD COLUMN %s bigint", schema, table, column)
	if _, err := db.Exec(ctx, stmt); err != nil {
		return errs.Wrap(errs.ErrKindMigration, fmt.Sprintf("add version column %s to %s.%s", column, schema, table), err)
	}
	return nil
}

func scanIndexRecord(r database.Rows) (IndexRecord, error) {
	var rec IndexRecord
	if err := r.Scan(&rec.Name, &rec.Column, &rec.Unique, &rec.Primary, &rec.Comment); err != nil {
		return rec, errs.Wrap(errs.ErrKindCatalog, "decode index row", err)
	}
	return rec, nil
}

func scanForeignKeyRecord(r database.Rows) (ForeignKeyRecord, error) {
	var rec ForeignKeyRecord
	err := r.Scan(&rec.Constraint, &rec.ForeignSchema, &rec.ForeignTable,
		&rec.ForeignColumn, &rec.LocalColumn, &rec.Ordinal)
	if err != nil {
		return rec, errs.Wrap(errs.ErrKindCatalog, "decode foreign key row", err)
	}
	return rec, nil
}

func scanString(r database.Rows) (string, error) {
	var s string
	if err := r.Scan(&s); err != nil {
		return s, errs.Wrap(errs.ErrKindCatalog, "decode text row", err)
	}
	return s, nil
}
