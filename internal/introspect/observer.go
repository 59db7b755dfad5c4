package introspect

import (
	"github.com/koustreak/protodb/internal/logger"
	"github.com/koustreak/protodb/internal/schema"
)

// Observer receives structured progress events during introspection.
// No introspection behavior depends on what an Observer does.
type Observer interface {
	TableDiscovered(t *schema.Table)
	ColumnDiscovered(t *schema.Table, c *schema.Column)
	IndexDiscovered(t *schema.Table, idx *schema.Index)
	RelationDiscovered(t *schema.Table, rel *schema.ForeignRelation)
	EnumDiscovered(t *schema.Table, c *schema.Column)
	MigrationAttempted(t *schema.Table, column string)
	MigrationFailed(t *schema.Table, column string, err error)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) TableDiscovered(*schema.Table)                             {}
func (NopObserver) ColumnDiscovered(*schema.Table, *schema.Column)            {}
func (NopObserver) IndexDiscovered(*schema.Table, *schema.Index)              {}
func (NopObserver) RelationDiscovered(*schema.Table, *schema.ForeignRelation) {}
func (NopObserver) EnumDiscovered(*schema.Table, *schema.Column)              {}
func (NopObserver) MigrationAttempted(*schema.Table, string)                  {}
func (NopObserver) MigrationFailed(*schema.Table, string, error)              {}

// LogObserver writes every event to a logger: discoveries at debug level,
// migrations at info and failures at warn.
type LogObserver struct {
	log *logger.Logger
}

// NewLogObserver returns an Observer backed by log.
func NewLogObserver(log *logger.Logger) *LogObserver {
	if log == nil {
		log = logger.Nop()
	}
	return &LogObserver{log: log}
}

func (o *LogObserver) table(t *schema.Table) *logger.Logger {
	return o.log.With().Str("schema", t.Schema).Str("table", t.Name).Logger()
}

func (o *LogObserver) TableDiscovered(t *schema.Table) {
	o.table(t).Debug("table discovered")
}

func (o *LogObserver) ColumnDiscovered(t *schema.Table, c *schema.Column) {
	o.table(t).With().
		Str("column", c.Name).
		Str("type", c.TypeName).
		Str("kind", string(c.Kind)).
		Bool("pkey", c.PrimaryKey).
		Bool("sequence", c.Sequence).
		Logger().
		Debug("column discovered")
}

func (o *LogObserver) IndexDiscovered(t *schema.Table, idx *schema.Index) {
	o.table(t).With().
		Str("index", idx.Name).
		Str("type", string(idx.Type)).
		Any("columns", idx.Columns).
		Logger().
		Debug("index discovered")
}

func (o *LogObserver) RelationDiscovered(t *schema.Table, rel *schema.ForeignRelation) {
	o.table(t).With().
		Str("constraint", rel.Constraint).
		Str("references", rel.ForeignSchema+"."+rel.ForeignTable).
		Any("columns", rel.LocalColumns()).
		Logger().
		Debug("foreign relation discovered")
}

func (o *LogObserver) EnumDiscovered(t *schema.Table, c *schema.Column) {
	o.table(t).With().
		Str("column", c.Name).
		Any("values", c.Enum.Values).
		Logger().
		Debug("value domain discovered")
}

func (o *LogObserver) MigrationAttempted(t *schema.Table, column string) {
	o.table(t).With().Str("column", column).Logger().Info("adding version column")
}

func (o *LogObserver) MigrationFailed(t *schema.Table, column string, err error) {
	o.table(t).WarnWith("version column not added, table stays unversioned", err, map[string]any{
		"column": column,
	})
}
