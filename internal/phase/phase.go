// Package phase applies configuration to an introspected schema. Each phase
// is a pure step from one schema snapshot to the next; a Pipeline runs them
// in a fixed order.
package phase

import (
	"context"
	"strings"

	"github.com/koustreak/protodb/internal/errs"
	"github.com/koustreak/protodb/internal/logger"
	"github.com/koustreak/protodb/internal/schema"
)

// Phase transforms a schema snapshot. Apply must not modify its input.
type Phase interface {
	Name() string
	Apply(ctx context.Context, s *schema.Schema) (*schema.Schema, error)
}

// Settings is the phase configuration. Table references are
// schema-qualified ("app.orders"); a phase ignores entries for other schemas.
type Settings struct {
	ExcludedColumns []ColumnExclusion
	Extensions      []Extension
	CustomQueries   []CustomQuery
	Transforms      []Transform
}

type ColumnExclusion struct {
	Table   string
	Columns []string
}

type Extension struct {
	Table     string
	Extension string
}

type CustomQuery struct {
	Table string
	Name  string
	Query string
}

// Stage names the statement family a Transform applies to.
type Stage string

const (
	StageSelect Stage = "select"
	StageInsert Stage = "insert"
	StageUpdate Stage = "update"
)

type Transform struct {
	Table    string
	Stage    Stage
	Column   string
	DataType string
	Expr     string
}

// Pipeline runs phases in order, handing each the previous one's output.
type Pipeline struct {
	phases []Phase
	log    *logger.Logger
}

// NewPipeline returns a Pipeline over phases.
func NewPipeline(log *logger.Logger, phases ...Phase) *Pipeline {
	if log == nil {
		log = logger.Nop()
	}
	return &Pipeline{phases: phases, log: log}
}

// Standard returns the configuration pipeline in its fixed order: column
// exclusion, extension tagging, custom queries, transforms.
func Standard(settings Settings, resolver QueryResolver, log *logger.Logger) *Pipeline {
	return NewPipeline(log,
		Exclusion(settings.ExcludedColumns),
		Extensions(settings.Extensions),
		Custom(settings.CustomQueries, resolver),
		Transforms(settings.Transforms),
	)
}

// Run applies every phase to s and returns the final snapshot.
func (p *Pipeline) Run(ctx context.Context, s *schema.Schema) (*schema.Schema, error) {
	cur := s
	for _, ph := range p.phases {
		if err := ctx.Err(); err != nil {
			return nil, errs.Wrap(errs.ErrKindTimeout, "phase pipeline cancelled", err)
		}
		next, err := ph.Apply(ctx, cur)
		if err != nil {
			return nil, err
		}
		p.log.Debugf("phase %s applied to schema %s", ph.Name(), s.Name)
		cur = next
	}
	return cur, nil
}

// splitRef splits "schema.table". A bare name has an empty schema.
func splitRef(ref string) (string, string) {
	if i := strings.IndexByte(ref, '.'); i >= 0 {
		return ref[:i], ref[i+1:]
	}
	return "", ref
}

// lookup resolves ref against s. ok is false when ref names another schema;
// a ref into s naming no table is a configuration error.
func lookup(s *schema.Schema, ref, phase string) (*schema.Table, bool, error) {
	schemaName, table := splitRef(ref)
	if schemaName != "" && schemaName != s.Name {
		return nil, false, nil
	}
	t, found := s.Table(table)
	if !found {
		return nil, false, errs.Newf(errs.ErrKindConfig, "%s: table %s.%s not found", phase, s.Name, table)
	}
	return t, true, nil
}
