// Package mysql is the MySQL catalog driver. It pins one database/sql
// connection through sqldb and translates go-sql-driver errors.
package mysql

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/koustreak/protodb/internal/database"
	"github.com/koustreak/protodb/internal/database/sqldb"
	"github.com/koustreak/protodb/internal/errs"
)

const defaultConnTimeout = 10 * time.Second

func init() {
	database.Register(database.DriverMySQL, func(ctx context.Context, cfg *database.Config) (database.DB, error) {
		return New(ctx, cfg)
	})
}

// New opens a MySQL connection from cfg, pins it and pings it.
func New(ctx context.Context, cfg *database.Config) (*sqldb.Conn, error) {
	connector, err := buildConnector(cfg)
	if err != nil {
		return nil, err
	}

	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(1)

	timeout := cfg.ConnectTimeout
	if timeout == 0 {
		timeout = defaultConnTimeout
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := sqldb.New(pingCtx, db, database.DialectMySQL, mapError)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := conn.Ping(pingCtx); err != nil {
		_ = conn.Close(ctx)
		return nil, err
	}
	return conn, nil
}

// buildConnector parses the DSN and applies protodb's defaults: a dial
// timeout and parseTime so temporal columns scan into time.Time.
func buildConnector(cfg *database.Config) (*mysql.Connector, error) {
	mcfg, err := parseDSN(cfg)
	if err != nil {
		return nil, err
	}
	connector, err := mysql.NewConnector(mcfg)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConfig, "mysql: invalid connector config", err)
	}
	return connector, nil
}

func parseDSN(cfg *database.Config) (*mysql.Config, error) {
	if cfg == nil || cfg.DSN == "" {
		return nil, errs.New(errs.ErrKindConfig, "mysql: empty DSN")
	}

	mcfg, err := mysql.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConfig, "mysql: invalid DSN", err)
	}
	if mcfg.Timeout == 0 {
		mcfg.Timeout = cfg.ConnectTimeout
		if mcfg.Timeout == 0 {
			mcfg.Timeout = defaultConnTimeout
		}
	}
	mcfg.ParseTime = true
	return mcfg, nil
}

// SchemaFromDSN returns the database named in a MySQL DSN. MySQL has no
// schema level below the database, so the configured schema defaults to it.
func SchemaFromDSN(dsn string) (string, error) {
	mcfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", errs.Wrap(errs.ErrKindConfig, "mysql: invalid DSN", err)
	}
	return mcfg.DBName, nil
}
