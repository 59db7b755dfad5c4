// Package introspect builds the schema model for one database schema from a
// catalog Reader.
package introspect

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/koustreak/protodb/internal/errs"
	"github.com/koustreak/protodb/internal/logger"
	"github.com/koustreak/protodb/internal/schema"
	"github.com/koustreak/protodb/internal/typemap"
)

// Options controls what Inspect reads and whether it may alter tables.
type Options struct {
	// ExcludedTables lists tables to skip. A qualified name ("app.audit")
	// matches only in its schema; a bare name matches in any schema.
	ExcludedTables []string

	// VersionColumn is the optimistic-concurrency column name. Empty
	// disables version handling.
	VersionColumn string

	// InjectVersion adds VersionColumn to tables that lack it.
	InjectVersion bool

	Observer Observer
	Logger   *logger.Logger
}

// Introspector reads a schema through a Reader.
type Introspector struct {
	reader   schema.Reader
	opts     Options
	observer Observer
	log      *logger.Logger
}

// New creates an Introspector. A nil Observer or Logger is replaced by a
// no-op one.
func New(reader schema.Reader, opts Options) *Introspector {
	obs := opts.Observer
	if obs == nil {
		obs = NopObserver{}
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Introspector{reader: reader, opts: opts, observer: obs, log: log}
}

// Inspect reads every non-excluded base table of schemaName, in name order,
// and returns the populated model.
func (in *Introspector) Inspect(ctx context.Context, schemaName string) (*schema.Schema, error) {
	records, err := in.reader.ListTables(ctx, schemaName)
	if err != nil {
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Name < records[j].Name })

	s := schema.New(schemaName)
	for _, rec := range records {
		if in.excluded(schemaName, rec.Name) {
			in.log.Debugf("skipping excluded table %s.%s", schemaName, rec.Name)
			continue
		}
		t, err := in.inspectTable(ctx, schemaName, rec.Name)
		if err != nil {
			return nil, fmt.Errorf("inspect table %s.%s: %w", schemaName, rec.Name, err)
		}
		s.AddTable(t)
	}

	in.log.With().Str("schema", schemaName).Int("tables", len(s.Tables)).Logger().Info("schema introspected")
	return s, nil
}

func (in *Introspector) excluded(schemaName, table string) bool {
	for _, e := range in.opts.ExcludedTables {
		if e == table || e == schemaName+"."+table {
			return true
		}
	}
	return false
}

func (in *Introspector) inspectTable(ctx context.Context, schemaName, name string) (*schema.Table, error) {
	t := schema.NewTable(schemaName, name)
	in.observer.TableDiscovered(t)

	if err := in.readColumns(ctx, t); err != nil {
		return nil, err
	}
	if in.opts.VersionColumn != "" && !t.IsVersioned() && in.opts.InjectVersion {
		in.injectVersion(ctx, t)
	}
	if err := in.readIndexes(ctx, t); err != nil {
		return nil, err
	}
	if err := in.readRelations(ctx, t); err != nil {
		return nil, err
	}
	if err := in.readEnums(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// readColumns seeds the column model and the derived lists: every column is
// selected, key columns go to the pkey list and everything that is neither a
// key nor a sequence is insertable and updatable.
func (in *Introspector) readColumns(ctx context.Context, t *schema.Table) error {
	records, err := in.reader.ListColumns(ctx, t.Schema, t.Name)
	if err != nil {
		return err
	}

	for _, rec := range records {
		c := &schema.Column{
			Schema:     t.Schema,
			Table:      t.Name,
			Name:       rec.Name,
			Ordinal:    rec.Ordinal,
			Default:    rec.Default,
			Nullable:   rec.Nullable,
			PrimaryKey: rec.PrimaryKey,
			Sequence:   rec.Sequence,
		}
		c.SetType(rec.DataType, rec.TypeName)
		if len(rec.EnumValues) > 0 {
			c.Enum = &schema.EnumDomain{Values: rec.EnumValues}
		}
		if in.opts.VersionColumn != "" && c.Name == in.opts.VersionColumn {
			c.Version = true
			t.VersionColumn = c.Name
		}

		t.AddColumn(c)
		t.Include(schema.ListSelect, c.Name)
		if c.PrimaryKey {
			t.Include(schema.ListPkey, c.Name)
		}
		if c.Sequence && t.SequenceColumn == "" {
			t.SequenceColumn = c.Name
		}
		if !c.PrimaryKey && !c.Sequence {
			t.Include(schema.ListInsert, c.Name)
			t.Include(schema.ListUpdate, c.Name)
		}

		if !isKnownType(c) {
			in.log.Warnf("no mapping for type %q of %s.%s, using %s", c.TypeName, t.FQN(), c.Name, c.Kind)
		}
		in.observer.ColumnDiscovered(t, c)
		if c.Enum != nil {
			in.observer.EnumDiscovered(t, c)
		}
	}
	return nil
}

// injectVersion adds the version column. Failure leaves the table
// unversioned and is reported, never returned.
func (in *Introspector) injectVersion(ctx context.Context, t *schema.Table) {
	name := in.opts.VersionColumn
	in.observer.MigrationAttempted(t, name)

	if err := in.reader.AddVersionColumn(ctx, t.Schema, t.Name, name); err != nil {
		if !errs.IsMigration(err) {
			err = errs.Wrap(errs.ErrKindMigration, "add version column", err)
		}
		in.observer.MigrationFailed(t, name, err)
		in.log.WarnWith("version column injection failed", err, map[string]any{"table": t.FQN()})
		return
	}

	c := &schema.Column{
		Schema:   t.Schema,
		Table:    t.Name,
		Name:     name,
		Ordinal:  t.LastOrdinal() + 1,
		Nullable: true,
		Version:  true,
	}
	c.SetType("bigint", "bigint")
	t.AddColumn(c)
	t.VersionColumn = name
	t.Include(schema.ListSelect, name)
	t.Include(schema.ListInsert, name)
	t.Include(schema.ListUpdate, name)
	in.observer.ColumnDiscovered(t, c)
}

// readIndexes groups the name-ordered index rows into indexes; a new index
// starts whenever the name changes.
func (in *Introspector) readIndexes(ctx context.Context, t *schema.Table) error {
	records, err := in.reader.ListIndexes(ctx, t.Schema, t.Name)
	if err != nil {
		return err
	}

	var (
		order []*schema.Index
		cur   *schema.Index
	)
	for _, rec := range records {
		if cur == nil || cur.Name != rec.Name {
			cur = &schema.Index{
				Schema:   t.Schema,
				Table:    t.Name,
				Name:     rec.Name,
				Type:     indexType(rec),
				IsList:   strings.HasPrefix(rec.Name, schema.ListPrefix),
				IsLookup: strings.HasPrefix(rec.Name, schema.LookupPrefix),
			}
			if rec.Comment != nil {
				cur.Comment = *rec.Comment
			}
			t.Indexes[cur.Name] = cur
			order = append(order, cur)
		}
		cur.Columns = append(cur.Columns, rec.Column)
	}

	for _, idx := range order {
		in.observer.IndexDiscovered(t, idx)
	}
	return nil
}

func isKnownType(c *schema.Column) bool {
	return typemap.Map(c.TypeName).Known
}

func indexType(rec schema.IndexRecord) schema.IndexType {
	switch {
	case rec.Primary:
		return schema.IndexPrimaryKey
	case rec.Unique:
		return schema.IndexUnique
	default:
		return schema.IndexNonUnique
	}
}

// readRelations groups the foreign key rows by constraint and takes every
// local column off the update list: those columns change only through the
// relation's own update statement.
func (in *Introspector) readRelations(ctx context.Context, t *schema.Table) error {
	records, err := in.reader.ListForeignKeys(ctx, t.Schema, t.Name)
	if err != nil {
		return err
	}

	var cur *schema.ForeignRelation
	for _, rec := range records {
		if cur == nil || cur.Constraint != rec.Constraint {
			cur = &schema.ForeignRelation{
				Constraint:    rec.Constraint,
				ForeignSchema: rec.ForeignSchema,
				ForeignTable:  rec.ForeignTable,
			}
			t.Relations = append(t.Relations, cur)
		}
		cur.Columns = append(cur.Columns, schema.ForeignColumn{
			Local:   rec.LocalColumn,
			Foreign: rec.ForeignColumn,
			Ordinal: rec.Ordinal,
		})
	}

	for _, rel := range t.Relations {
		for _, local := range rel.LocalColumns() {
			t.Exclude(schema.ListUpdate, local)
		}
		in.observer.RelationDiscovered(t, rel)
	}
	return nil
}

// readEnums attaches value domains parsed from check constraints. Shapes the
// parser does not recognize, and columns the table does not have, are
// skipped.
func (in *Introspector) readEnums(ctx context.Context, t *schema.Table) error {
	defs, err := in.reader.ListCheckConstraints(ctx, t.Schema, t.Name)
	if err != nil {
		return err
	}

	for _, def := range defs {
		name, values, ok := schema.ParseCheckConstraint(def)
		if !ok {
			continue
		}
		c, found := t.Column(name)
		if !found {
			continue
		}
		c.Enum = &schema.EnumDomain{Values: values}
		in.observer.EnumDiscovered(t, c)
	}
	return nil
}
