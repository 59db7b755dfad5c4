// Package config loads and validates the protodb run configuration from a
// YAML or TOML file.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"go.yaml.in/yaml/v3"

	"github.com/koustreak/protodb/internal/database"
	"github.com/koustreak/protodb/internal/database/mysql"
	"github.com/koustreak/protodb/internal/errs"
	"github.com/koustreak/protodb/internal/filestore"
	"github.com/koustreak/protodb/internal/logger"
	"github.com/koustreak/protodb/internal/phase"
)

// EnvDSN overrides database.dsn when set.
const EnvDSN = "PROTODB_DSN"

// DefaultManifestKey is the manifest object name when output.key is empty.
const DefaultManifestKey = "protodb.json"

// Format is a configuration file syntax.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// Config is the complete run configuration.
type Config struct {
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Generator GeneratorConfig `yaml:"generator" toml:"generator"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
	Output    OutputConfig    `yaml:"output" toml:"output"`
}

type DatabaseConfig struct {
	Driver         string `yaml:"driver" toml:"driver"`
	DSN            string `yaml:"dsn" toml:"dsn"`
	ConnectTimeout string `yaml:"connect_timeout" toml:"connect_timeout"`
}

// GeneratorConfig selects schemas and shapes the generated queries. Table
// references may be bare or schema-qualified; bare names refer to the
// first configured schema.
type GeneratorConfig struct {
	Schemas             []string          `yaml:"schemas" toml:"schemas"`
	ExcludedTables      []string          `yaml:"excluded_tables" toml:"excluded_tables"`
	ExcludedColumns     []ExcludedColumns `yaml:"excluded_columns" toml:"excluded_columns"`
	Extensions          []TableExtension  `yaml:"extensions" toml:"extensions"`
	Mapping             []TableMapping    `yaml:"mapping" toml:"mapping"`
	Transforms          []TableTransforms `yaml:"transforms" toml:"transforms"`
	VersionColumn       string            `yaml:"version_column" toml:"version_column"`
	InjectVersionColumn bool              `yaml:"inject_version_column" toml:"inject_version_column"`
}

type ExcludedColumns struct {
	Table   string   `yaml:"table" toml:"table"`
	Columns []string `yaml:"columns" toml:"columns"`
}

type TableExtension struct {
	Table     string `yaml:"table" toml:"table"`
	Extension string `yaml:"extension" toml:"extension"`
}

type TableMapping struct {
	Table   string       `yaml:"table" toml:"table"`
	Queries []NamedQuery `yaml:"queries" toml:"queries"`
}

type NamedQuery struct {
	Name  string `yaml:"name" toml:"name"`
	Query string `yaml:"query" toml:"query"`
}

type TableTransforms struct {
	Table  string `yaml:"table" toml:"table"`
	Xforms Xforms `yaml:"xforms" toml:"xforms"`
}

type Xforms struct {
	Select []ColumnXform `yaml:"select" toml:"select"`
	Insert []ColumnXform `yaml:"insert" toml:"insert"`
	Update []ColumnXform `yaml:"update" toml:"update"`
}

type ColumnXform struct {
	Column   string `yaml:"column" toml:"column"`
	DataType string `yaml:"data_type" toml:"data_type"`
	Xform    string `yaml:"xform" toml:"xform"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// OutputConfig says where the manifest is published: a local directory, or
// a MinIO bucket when Minio is set.
type OutputConfig struct {
	Path  string       `yaml:"path" toml:"path"`
	Key   string       `yaml:"key" toml:"key"`
	Minio *MinioConfig `yaml:"minio" toml:"minio"`
}

type MinioConfig struct {
	Endpoint  string `yaml:"endpoint" toml:"endpoint"`
	AccessKey string `yaml:"access_key" toml:"access_key"`
	SecretKey string `yaml:"secret_key" toml:"secret_key"`
	Bucket    string `yaml:"bucket" toml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl" toml:"use_ssl"`
	Region    string `yaml:"region" toml:"region"`
}

// Load reads the file at path, picking the syntax from its extension, then
// applies the environment override and defaults and validates the result.
func Load(path string) (*Config, error) {
	format, err := formatOf(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConfig, fmt.Sprintf("open config %q", path), err)
	}
	defer f.Close()

	return Parse(f, format)
}

// Parse decodes r in the given format and returns the validated config.
func Parse(r io.Reader, format Format) (*Config, error) {
	var cfg Config
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && err != io.EOF {
			return nil, errs.Wrap(errs.ErrKindConfig, "decode yaml config", err)
		}
	case FormatTOML:
		md, err := toml.NewDecoder(r).Decode(&cfg)
		if err != nil {
			return nil, errs.Wrap(errs.ErrKindConfig, "decode toml config", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, errs.Newf(errs.ErrKindConfig, "unknown config key %q", undecoded[0].String())
		}
	default:
		return nil, errs.Newf(errs.ErrKindConfig, "unsupported config format %q", format)
	}

	if dsn := os.Getenv(EnvDSN); dsn != "" {
		cfg.Database.DSN = dsn
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func formatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", errs.Newf(errs.ErrKindConfig, "cannot tell config format of %q: use .yaml, .yml or .toml", path)
	}
}

func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = string(database.DriverPostgres)
	}
	if len(c.Generator.Schemas) == 0 {
		switch database.Driver(c.Database.Driver) {
		case database.DriverPostgres:
			c.Generator.Schemas = []string{"public"}
		case database.DriverMySQL:
			if name, err := mysql.SchemaFromDSN(c.Database.DSN); err == nil && name != "" {
				c.Generator.Schemas = []string{name}
			}
		}
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	if c.Output.Key == "" {
		c.Output.Key = DefaultManifestKey
	}
	if c.Output.Path == "" && c.Output.Minio == nil {
		c.Output.Path = "."
	}
}

// ConnConfig converts the database section into a connection config.
func (c *Config) ConnConfig() (*database.Config, error) {
	cfg := &database.Config{Driver: database.Driver(c.Database.Driver), DSN: c.Database.DSN}
	if c.Database.ConnectTimeout != "" {
		d, err := time.ParseDuration(c.Database.ConnectTimeout)
		if err != nil {
			return nil, errs.Wrap(errs.ErrKindConfig, "database.connect_timeout", err)
		}
		cfg.ConnectTimeout = d
	}
	return cfg, nil
}

// LoggerConfig converts the logging section into a logger config writing
// to stderr.
func (c *Config) LoggerConfig() *logger.Config {
	cfg := logger.DefaultConfig()
	cfg.Level = c.Logging.Level
	cfg.Format = c.Logging.Format
	return cfg
}

// StoreConfig returns the file store the manifest is published to.
func (c *Config) StoreConfig() *filestore.Config {
	if m := c.Output.Minio; m != nil {
		cfg := filestore.DefaultConfig(m.Endpoint, m.AccessKey, m.SecretKey, m.Bucket)
		cfg.UseSSL = m.UseSSL
		cfg.Region = m.Region
		return cfg
	}
	return filestore.LocalConfig(c.Output.Path)
}

// Qualify returns ref as "schema.table", qualifying a bare name with the
// first configured schema.
func (c *Config) Qualify(ref string) string {
	if strings.Contains(ref, ".") || len(c.Generator.Schemas) == 0 {
		return ref
	}
	return c.Generator.Schemas[0] + "." + ref
}

// ExcludedTables returns the table block-list with every entry qualified.
func (c *Config) ExcludedTables() []string {
	out := make([]string, 0, len(c.Generator.ExcludedTables))
	for _, ref := range c.Generator.ExcludedTables {
		out = append(out, c.Qualify(ref))
	}
	return out
}

// PhaseSettings converts the generator section into phase settings with
// qualified table references.
func (c *Config) PhaseSettings() phase.Settings {
	g := c.Generator
	var s phase.Settings
	for _, e := range g.ExcludedColumns {
		s.ExcludedColumns = append(s.ExcludedColumns, phase.ColumnExclusion{Table: c.Qualify(e.Table), Columns: e.Columns})
	}
	for _, e := range g.Extensions {
		s.Extensions = append(s.Extensions, phase.Extension{Table: c.Qualify(e.Table), Extension: e.Extension})
	}
	for _, m := range g.Mapping {
		for _, q := range m.Queries {
			s.CustomQueries = append(s.CustomQueries, phase.CustomQuery{Table: c.Qualify(m.Table), Name: q.Name, Query: q.Query})
		}
	}
	for _, tx := range g.Transforms {
		table := c.Qualify(tx.Table)
		stages := []struct {
			stage phase.Stage
			list  []ColumnXform
		}{
			{phase.StageSelect, tx.Xforms.Select},
			{phase.StageInsert, tx.Xforms.Insert},
			{phase.StageUpdate, tx.Xforms.Update},
		}
		for _, st := range stages {
			for _, x := range st.list {
				s.Transforms = append(s.Transforms, phase.Transform{
					Table: table, Stage: st.stage, Column: x.Column, DataType: x.DataType, Expr: x.Xform,
				})
			}
		}
	}
	return s
}
