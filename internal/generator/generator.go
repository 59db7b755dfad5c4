// Package generator runs a full compilation: for every configured schema it
// opens one catalog connection, introspects the schema, applies the
// configuration phases and compiles the canonical queries of every table.
package generator

import (
	"context"
	"fmt"
	"time"

	"github.com/koustreak/protodb/internal/compiler"
	"github.com/koustreak/protodb/internal/config"
	"github.com/koustreak/protodb/internal/database"
	"github.com/koustreak/protodb/internal/introspect"
	"github.com/koustreak/protodb/internal/logger"
	"github.com/koustreak/protodb/internal/phase"
	"github.com/koustreak/protodb/internal/querybuild"
	"github.com/koustreak/protodb/internal/resolver"
	"github.com/koustreak/protodb/internal/schema"
)

// Connector opens the catalog connection for one schema.
type Connector func(ctx context.Context, cfg *database.Config) (database.DB, error)

// Options customizes a Generator. Zero values fall back to database.Open,
// a logging observer and the no-op logger.
type Options struct {
	Connector Connector
	Observer  introspect.Observer
	Logger    *logger.Logger
}

// Generator compiles every schema named in a Config.
type Generator struct {
	cfg      *config.Config
	connect  Connector
	observer introspect.Observer
	log      *logger.Logger
}

// New returns a Generator for a validated cfg.
func New(cfg *config.Config, opts Options) *Generator {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	connect := opts.Connector
	if connect == nil {
		connect = database.Open
	}
	obs := opts.Observer
	if obs == nil {
		obs = introspect.NewLogObserver(log)
	}
	return &Generator{cfg: cfg, connect: connect, observer: obs, log: log}
}

// Result is everything a run produced, one entry per schema in
// configuration order.
type Result struct {
	Driver  database.Driver
	Schemas []*SchemaResult
}

// Schema looks up the result for one schema.
func (r *Result) Schema(name string) (*SchemaResult, bool) {
	for _, s := range r.Schemas {
		if s.Schema.Name == name {
			return s, true
		}
	}
	return nil, false
}

// SchemaResult is the final model of one schema and its canonical queries,
// keyed by table name then by tag (CREATE, READ, UPDATE, DELETE,
// <CONSTRAINT>_UPDATE). Custom queries live on each Table.
type SchemaResult struct {
	Schema  *schema.Schema
	Queries map[string]map[string]*schema.CompiledQuery
}

// Query returns the compiled query for table and tag.
func (s *SchemaResult) Query(table, tag string) (*schema.CompiledQuery, bool) {
	q, ok := s.Queries[table][tag]
	return q, ok
}

// Run compiles every configured schema. Any error aborts the run and no
// partial result is returned.
func (g *Generator) Run(ctx context.Context) (*Result, error) {
	connCfg, err := g.cfg.ConnConfig()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	res := &Result{Driver: connCfg.Driver}
	for _, name := range g.cfg.Generator.Schemas {
		sr, err := g.generateSchema(ctx, connCfg, name)
		if err != nil {
			return nil, fmt.Errorf("schema %s: %w", name, err)
		}
		res.Schemas = append(res.Schemas, sr)
	}

	g.log.InfoWith("generation complete", map[string]any{
		"schemas":  len(res.Schemas),
		"duration": time.Since(start).String(),
	})
	return res, nil
}

func (g *Generator) generateSchema(ctx context.Context, connCfg *database.Config, name string) (*SchemaResult, error) {
	log := g.log.With().Str("schema", name).Logger()

	db, err := g.connect(ctx, connCfg)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := db.Close(ctx); cerr != nil {
			log.WarnWith("closing catalog connection failed", cerr, nil)
		}
	}()

	reader, err := schema.NewReader(db)
	if err != nil {
		return nil, err
	}

	model, err := introspect.New(reader, introspect.Options{
		ExcludedTables: g.cfg.ExcludedTables(),
		VersionColumn:  g.cfg.Generator.VersionColumn,
		InjectVersion:  g.cfg.Generator.InjectVersionColumn,
		Observer:       g.observer,
		Logger:         log,
	}).Inspect(ctx, name)
	if err != nil {
		return nil, err
	}

	comp := compiler.New(db.Dialect())
	res := resolver.New(db, comp, log)
	model, err = phase.Standard(g.cfg.PhaseSettings(), res, log).Run(ctx, model)
	if err != nil {
		return nil, err
	}

	queries, err := compileTables(model, querybuild.New(db.Dialect()), comp)
	if err != nil {
		return nil, err
	}

	log.With().Int("tables", len(model.Tables)).Logger().Info("schema compiled")
	return &SchemaResult{Schema: model, Queries: queries}, nil
}

func compileTables(s *schema.Schema, b *querybuild.Builder, c *compiler.Compiler) (map[string]map[string]*schema.CompiledQuery, error) {
	out := make(map[string]map[string]*schema.CompiledQuery, len(s.Tables))
	for _, name := range s.TableNames() {
		t := s.Tables[name]
		stmts, err := b.Build(t)
		if err != nil {
			return nil, fmt.Errorf("build queries for %s: %w", t.FQN(), err)
		}

		byTag := make(map[string]*schema.CompiledQuery, len(stmts))
		for _, st := range stmts {
			q, err := c.Compile(st.Kind, st.SQL)
			if err != nil {
				return nil, fmt.Errorf("compile %s query for %s: %w", st.Tag, t.FQN(), err)
			}
			q.Name = st.Tag
			byTag[st.Tag] = q
		}
		out[name] = byTag
	}
	return out, nil
}
