// Package postgres is the PostgreSQL catalog driver, backed by a single
// pgx connection.
package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/koustreak/protodb/internal/database"
)

func init() {
	database.Register(database.DriverPostgres, func(ctx context.Context, cfg *database.Config) (database.DB, error) {
		return New(ctx, cfg)
	})
}

// Driver is a PostgreSQL implementation of database.DB over one pgx.Conn.
// It is not safe for concurrent use.
type Driver struct {
	conn *pgx.Conn
}

// New connects to PostgreSQL using the provided Config and returns a Driver.
// It calls Ping to validate the connection before returning.
func New(ctx context.Context, cfg *database.Config) (*Driver, error) {
	connCfg, err := buildConnConfig(cfg)
	if err != nil {
		return nil, err
	}

	conn, err := pgx.ConnectConfig(ctx, connCfg)
	if err != nil {
		return nil, mapError(err, "connect failed")
	}

	d := &Driver{conn: conn}
	if err := d.Ping(ctx); err != nil {
		_ = conn.Close(ctx)
		return nil, err
	}
	return d, nil
}

var _ database.DB = (*Driver)(nil)

// --- database.DB implementation ---

func (d *Driver) Dialect() database.Dialect { return database.DialectPostgres }

// Ping verifies the connection is alive.
func (d *Driver) Ping(ctx context.Context) error {
	if err := d.conn.Ping(ctx); err != nil {
		return mapError(err, "ping failed")
	}
	return nil
}

// Close terminates the connection.
func (d *Driver) Close(ctx context.Context) error {
	if err := d.conn.Close(ctx); err != nil {
		return mapError(err, "close failed")
	}
	return nil
}

// Query executes a SQL statement that returns multiple rows.
func (d *Driver) Query(ctx context.Context, sql string, args ...any) (database.Rows, error) {
	rows, err := d.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapError(err, "query failed")
	}
	return &pgxRows{rows: rows}, nil
}

// QueryRow executes a SQL statement expected to return at most one row.
func (d *Driver) QueryRow(ctx context.Context, sql string, args ...any) database.Row {
	return &pgxRow{row: d.conn.QueryRow(ctx, sql, args...)}
}

// Exec runs sql in autocommit mode.
func (d *Driver) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	tag, err := d.conn.Exec(ctx, sql, args...)
	if err != nil {
		return 0, mapError(err, "exec failed")
	}
	return tag.RowsAffected(), nil
}

const formatTypesQuery = `
	SELECT oid, format_type(oid, NULL)
	FROM pg_catalog.pg_type
	WHERE oid = ANY($1)`

// Describe runs sql, reads the field descriptions pgx reports for it and
// resolves each type OID through format_type.
func (d *Driver) Describe(ctx context.Context, sql string) ([]database.Field, error) {
	rows, err := d.conn.Query(ctx, sql)
	if err != nil {
		return nil, mapError(err, "describe failed")
	}

	descs := rows.FieldDescriptions()
	names := make([]string, len(descs))
	oids := make([]uint32, len(descs))
	for i, fd := range descs {
		names[i] = fd.Name
		oids[i] = fd.DataTypeOID
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "describe failed")
	}

	typeNames, err := d.formatTypes(ctx, oids)
	if err != nil {
		return nil, err
	}

	fields := make([]database.Field, len(names))
	for i, name := range names {
		fields[i] = database.Field{Name: name, TypeName: typeNames[oids[i]]}
	}
	return fields, nil
}

func (d *Driver) formatTypes(ctx context.Context, oids []uint32) (map[uint32]string, error) {
	out := make(map[uint32]string, len(oids))
	if len(oids) == 0 {
		return out, nil
	}

	rows, err := d.conn.Query(ctx, formatTypesQuery, oids)
	if err != nil {
		return nil, mapError(err, "resolve type names")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			oid  uint32
			name string
		)
		if err := rows.Scan(&oid, &name); err != nil {
			return nil, mapError(err, "scan type name")
		}
		out[oid] = name
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "resolve type names")
	}
	return out, nil
}

// --- pgx type wrappers ---

// pgxRows wraps pgx.Rows to satisfy database.Rows.
type pgxRows struct {
	rows pgx.Rows
}

func (r *pgxRows) Next() bool { return r.rows.Next() }
func (r *pgxRows) Close()     { r.rows.Close() }

func (r *pgxRows) Scan(dest ...any) error {
	if err := r.rows.Scan(dest...); err != nil {
		return mapError(err, "scan failed")
	}
	return nil
}

func (r *pgxRows) Err() error {
	if err := r.rows.Err(); err != nil {
		return mapError(err, "iteration failed")
	}
	return nil
}

func (r *pgxRows) Columns() ([]string, error) {
	descs := r.rows.FieldDescriptions()
	cols := make([]string, len(descs))
	for i, d := range descs {
		cols[i] = d.Name
	}
	return cols, nil
}

// pgxRow wraps pgx.Row to satisfy database.Row.
type pgxRow struct {
	row pgx.Row
}

func (r *pgxRow) Scan(dest ...any) error {
	if err := r.row.Scan(dest...); err != nil {
		return mapError(err, "scan failed")
	}
	return nil
}
