package postgres

import (
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/koustreak/protodb/internal/database"
	"github.com/koustreak/protodb/internal/errs"
)

const (
	defaultConnTimeout = 10 * time.Second
	applicationName    = "protodb"
)

// buildConnConfig parses cfg.DSN and applies protodb's connection defaults.
func buildConnConfig(cfg *database.Config) (*pgx.ConnConfig, error) {
	if cfg == nil || cfg.DSN == "" {
		return nil, errs.New(errs.ErrKindConfig, "postgres: empty DSN")
	}

	connCfg, err := pgx.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConfig, "postgres: invalid DSN", err)
	}

	connCfg.ConnectTimeout = withDefault(cfg.ConnectTimeout, defaultConnTimeout)
	if _, ok := connCfg.RuntimeParams["application_name"]; !ok {
		connCfg.RuntimeParams["application_name"] = applicationName
	}
	return connCfg, nil
}

// withDefault returns val if non-zero, otherwise returns def
func withDefault(val, def time.Duration) time.Duration {
	if val == 0 {
		return def
	}
	return val
}
