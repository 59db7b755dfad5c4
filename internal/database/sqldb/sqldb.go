// Package sqldb adapts a database/sql handle to database.DB by pinning one
// *sql.Conn for the lifetime of the adapter. The MySQL driver is built on it,
// and tests drive it with go-sqlmock.
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/koustreak/protodb/internal/database"
	"github.com/koustreak/protodb/internal/errs"
)

// ErrorMapper translates native driver errors into *errs.Error.
type ErrorMapper func(err error, msg string) *errs.Error

// Conn is a database.DB over a single pinned *sql.Conn.
type Conn struct {
	db      *sql.DB
	conn    *sql.Conn
	dialect database.Dialect
	mapErr  ErrorMapper
}

// New pins one connection from db. Conn owns db afterwards: Close closes both.
// A nil mapErr uses MapError.
func New(ctx context.Context, db *sql.DB, dialect database.Dialect, mapErr ErrorMapper) (*Conn, error) {
	if mapErr == nil {
		mapErr = MapError
	}
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, mapErr(err, "acquire connection")
	}
	return &Conn{db: db, conn: conn, dialect: dialect, mapErr: mapErr}, nil
}

var _ database.DB = (*Conn)(nil)

func (c *Conn) Dialect() database.Dialect { return c.dialect }

func (c *Conn) Ping(ctx context.Context) error {
	if err := c.conn.PingContext(ctx); err != nil {
		return c.mapErr(err, "ping failed")
	}
	return nil
}

func (c *Conn) Query(ctx context.Context, query string, args ...any) (database.Rows, error) {
	rows, err := c.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, c.mapErr(err, "query failed")
	}
	return &sqlRows{rows: rows}, nil
}

func (c *Conn) QueryRow(ctx context.Context, query string, args ...any) database.Row {
	return &sqlRow{row: c.conn.QueryRowContext(ctx, query, args...), mapErr: c.mapErr}
}

func (c *Conn) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := c.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, c.mapErr(err, "exec failed")
	}
	n, err := res.RowsAffected()
	if err != nil {
		// Some drivers cannot report a count for DDL.
		return 0, nil
	}
	return n, nil
}

// Describe runs query and reports the result columns from ColumnTypes.
func (c *Conn) Describe(ctx context.Context, query string) ([]database.Field, error) {
	rows, err := c.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, c.mapErr(err, "describe failed")
	}
	defer rows.Close()

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, c.mapErr(err, "read column types")
	}

	fields := make([]database.Field, len(types))
	for i, ct := range types {
		fields[i] = database.Field{
			Name:     ct.Name(),
			TypeName: strings.ToLower(ct.DatabaseTypeName()),
		}
	}
	if err := rows.Close(); err != nil {
		return nil, c.mapErr(err, "close describe")
	}
	return fields, nil
}

// Close returns the pinned connection and closes the pool behind it.
func (c *Conn) Close(_ context.Context) error {
	connErr := c.conn.Close()
	dbErr := c.db.Close()
	if err := errors.Join(connErr, dbErr); err != nil {
		return c.mapErr(err, "close failed")
	}
	return nil
}

// MapError is the driver-neutral mapping used when a driver supplies none.
func MapError(err error, msg string) *errs.Error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	}
	if errors.Is(err, sql.ErrConnDone) {
		return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
	}
	return errs.Wrap(errs.ErrKindQueryFailed, msg, err)
}

// --- sql type wrappers ---

type sqlRows struct {
	rows *sql.Rows
}

func (r *sqlRows) Next() bool                 { return r.rows.Next() }
func (r *sqlRows) Scan(dest ...any) error     { return r.rows.Scan(dest...) }
func (r *sqlRows) Columns() ([]string, error) { return r.rows.Columns() }
func (r *sqlRows) Close()                     { _ = r.rows.Close() }
func (r *sqlRows) Err() error                 { return r.rows.Err() }

type sqlRow struct {
	row    *sql.Row
	mapErr ErrorMapper
}

func (r *sqlRow) Scan(dest ...any) error {
	if err := r.row.Scan(dest...); err != nil {
		return r.mapErr(err, "scan row")
	}
	return nil
}
