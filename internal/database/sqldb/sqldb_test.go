package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/protodb/internal/database"
	"github.com/koustreak/protodb/internal/errs"
)

func newConn(t *testing.T) (*Conn, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	conn, err := New(context.Background(), db, database.DialectMySQL, nil)
	require.NoError(t, err)
	return conn, mock
}

func TestConn_Query(t *testing.T) {
	conn, mock := newConn(t)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT name FROM t WHERE id = ?")).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("alice").AddRow("bob"))

	rows, err := conn.Query(ctx, "SELECT name FROM t WHERE id = ?", 7)
	require.NoError(t, err)

	names, err := database.Collect(rows, func(r database.Rows) (string, error) {
		var s string
		return s, r.Scan(&s)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, names)
	assert.Equal(t, database.DialectMySQL, conn.Dialect())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConn_QueryError(t *testing.T) {
	conn, mock := newConn(t)

	mock.ExpectQuery("SELECT").WillReturnError(errors.New("syntax error"))

	_, err := conn.Query(context.Background(), "SELECT broken")
	require.Error(t, err)
	assert.True(t, errs.IsQueryFailed(err))
}

func TestConn_QueryRowNotFound(t *testing.T) {
	conn, mock := newConn(t)

	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"one"}))

	var one int
	err := conn.QueryRow(context.Background(), "SELECT 1").Scan(&one)
	require.Error(t, err)
	assert.True(t, errs.IsNotFound(err))
}

func TestConn_Exec(t *testing.T) {
	conn, mock := newConn(t)

	mock.ExpectExec(regexp.QuoteMeta("ALTER TABLE app.orders ADD COLUMN version bigint")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	n, err := conn.Exec(context.Background(), "ALTER TABLE app.orders ADD COLUMN version bigint")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConn_Describe(t *testing.T) {
	conn, mock := newConn(t)

	rows := sqlmock.NewRowsWithColumnDefinition(
		sqlmock.NewColumn("id").OfType("BIGINT", int64(0)),
		sqlmock.NewColumn("status").OfType("VARCHAR", ""),
	)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM (SELECT id, status FROM app.orders) AS probe LIMIT 0")).
		WillReturnRows(rows)

	fields, err := conn.Describe(context.Background(), "SELECT * FROM (SELECT id, status FROM app.orders) AS probe LIMIT 0")
	require.NoError(t, err)
	assert.Equal(t, []database.Field{
		{Name: "id", TypeName: "bigint"},
		{Name: "status", TypeName: "varchar"},
	}, fields)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConn_Close(t *testing.T) {
	conn, mock := newConn(t)
	mock.ExpectClose()

	require.NoError(t, conn.Close(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind errs.ErrKind
	}{
		{"deadline", context.DeadlineExceeded, errs.ErrKindTimeout},
		{"canceled", context.Canceled, errs.ErrKindTimeout},
		{"no rows", sql.ErrNoRows, errs.ErrKindNotFound},
		{"conn done", sql.ErrConnDone, errs.ErrKindConnectionFailed},
		{"other", errors.New("boom"), errs.ErrKindQueryFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, MapError(tt.err, "op").Kind)
		})
	}
	assert.Nil(t, MapError(nil, "op"))
}
