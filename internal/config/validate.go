package config

import (
	"strings"
	"time"

	"github.com/koustreak/protodb/internal/database"
	"github.com/koustreak/protodb/internal/errs"
	"github.com/koustreak/protodb/internal/logger"
)

// Validate checks the whole configuration before any connection is made.
// Every failure is an ErrKindConfig error naming the offending entry.
func (c *Config) Validate() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateGenerator(); err != nil {
		return err
	}
	if _, err := logger.ParseLevel(c.Logging.Level); err != nil {
		return errs.Wrap(errs.ErrKindConfig, "logging.level", err)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return errs.Newf(errs.ErrKindConfig, "logging.format: %q is not json or console", c.Logging.Format)
	}
	return c.validateOutput()
}

func (c *Config) validateDatabase() error {
	if _, err := database.Driver(c.Database.Driver).Dialect(); err != nil {
		return errs.Wrap(errs.ErrKindConfig, "database.driver", err)
	}
	if c.Database.DSN == "" {
		return errs.Newf(errs.ErrKindConfig, "database.dsn is required (or set %s)", EnvDSN)
	}
	if c.Database.ConnectTimeout != "" {
		d, err := time.ParseDuration(c.Database.ConnectTimeout)
		if err != nil {
			return errs.Wrap(errs.ErrKindConfig, "database.connect_timeout", err)
		}
		if d < 0 {
			return errs.New(errs.ErrKindConfig, "database.connect_timeout must not be negative")
		}
	}
	return nil
}

func (c *Config) validateGenerator() error {
	g := c.Generator
	if len(g.Schemas) == 0 {
		return errs.New(errs.ErrKindConfig, "generator.schemas: at least one schema is required")
	}
	schemas := make(map[string]bool, len(g.Schemas))
	for _, s := range g.Schemas {
		if s == "" || strings.Contains(s, ".") {
			return errs.Newf(errs.ErrKindConfig, "generator.schemas: invalid schema name %q", s)
		}
		if schemas[s] {
			return errs.Newf(errs.ErrKindConfig, "generator.schemas: duplicate schema %q", s)
		}
		schemas[s] = true
	}

	checkRef := func(section, ref string) error {
		if ref == "" {
			return errs.Newf(errs.ErrKindConfig, "%s: empty table reference", section)
		}
		schemaName, table, _ := strings.Cut(c.Qualify(ref), ".")
		if table == "" || strings.Contains(table, ".") {
			return errs.Newf(errs.ErrKindConfig, "%s: malformed table reference %q", section, ref)
		}
		if !schemas[schemaName] {
			return errs.Newf(errs.ErrKindConfig, "%s: table %q is not in a configured schema", section, ref)
		}
		return nil
	}

	for _, ref := range g.ExcludedTables {
		if err := checkRef("generator.excluded_tables", ref); err != nil {
			return err
		}
	}
	for _, e := range g.ExcludedColumns {
		if err := checkRef("generator.excluded_columns", e.Table); err != nil {
			return err
		}
		if len(e.Columns) == 0 {
			return errs.Newf(errs.ErrKindConfig, "generator.excluded_columns: no columns listed for %q", e.Table)
		}
		for _, col := range e.Columns {
			if col == "" {
				return errs.Newf(errs.ErrKindConfig, "generator.excluded_columns: empty column name for %q", e.Table)
			}
		}
	}
	for _, e := range g.Extensions {
		if err := checkRef("generator.extensions", e.Table); err != nil {
			return err
		}
	}
	for _, m := range g.Mapping {
		if err := checkRef("generator.mapping", m.Table); err != nil {
			return err
		}
		names := make(map[string]bool, len(m.Queries))
		for _, q := range m.Queries {
			if q.Name == "" || strings.TrimSpace(q.Query) == "" {
				return errs.Newf(errs.ErrKindConfig, "generator.mapping: query entries for %q need a name and a query", m.Table)
			}
			if names[q.Name] {
				return errs.Newf(errs.ErrKindConfig, "generator.mapping: duplicate query name %q for %q", q.Name, m.Table)
			}
			names[q.Name] = true
		}
	}
	for _, tx := range g.Transforms {
		if err := checkRef("generator.transforms", tx.Table); err != nil {
			return err
		}
		stages := []struct {
			name string
			list []ColumnXform
		}{
			{"select", tx.Xforms.Select},
			{"insert", tx.Xforms.Insert},
			{"update", tx.Xforms.Update},
		}
		for _, st := range stages {
			stage := st.name
			for _, x := range st.list {
				if x.Column == "" || strings.TrimSpace(x.Xform) == "" {
					return errs.Newf(errs.ErrKindConfig, "generator.transforms: %s entries for %q need a column and an xform", stage, tx.Table)
				}
				if stage == "select" && x.DataType == "" {
					return errs.Newf(errs.ErrKindConfig, "generator.transforms: select xform for %s.%s needs a data_type", tx.Table, x.Column)
				}
			}
		}
	}

	if g.InjectVersionColumn && g.VersionColumn == "" {
		return errs.New(errs.ErrKindConfig, "generator.inject_version_column requires generator.version_column")
	}
	return nil
}

func (c *Config) validateOutput() error {
	if m := c.Output.Minio; m != nil {
		if m.Endpoint == "" || m.Bucket == "" {
			return errs.New(errs.ErrKindConfig, "output.minio: endpoint and bucket are required")
		}
	}
	if strings.Contains(c.Output.Key, "..") {
		return errs.Newf(errs.ErrKindConfig, "output.key: %q must not contain '..'", c.Output.Key)
	}
	return nil
}
