// Package querybuild renders the canonical statements of a table as SQL text
// with `$column` placeholders, ready for the placeholder compiler.
package querybuild

import (
	"fmt"
	"strings"

	"github.com/koustreak/protodb/internal/database"
	"github.com/koustreak/protodb/internal/errs"
	"github.com/koustreak/protodb/internal/schema"
	"github.com/koustreak/protodb/internal/sqlscan"
)

// Canonical statement tags. Foreign key updates are tagged
// "<CONSTRAINT>_UPDATE".
const (
	TagCreate = "CREATE"
	TagRead   = "READ"
	TagUpdate = "UPDATE"
	TagDelete = "DELETE"
)

// Statement is one rendered canonical statement.
type Statement struct {
	Tag  string
	Kind schema.QueryKind
	SQL  string
}

// Builder renders statements for one dialect.
type Builder struct {
	dialect database.Dialect
}

// New returns a Builder for dialect.
func New(dialect database.Dialect) *Builder {
	return &Builder{dialect: dialect}
}

// Build renders the statement set of t in tag order: CREATE, READ, UPDATE,
// DELETE, then one update per foreign relation. Tables without a primary key
// get CREATE only; an UPDATE with nothing to set is left out.
func (b *Builder) Build(t *schema.Table) ([]Statement, error) {
	if err := CheckContract(t); err != nil {
		return nil, err
	}

	stmts := []Statement{{Tag: TagCreate, Kind: schema.KindCreate, SQL: b.insert(t)}}
	if !t.HasPrimaryKey() {
		return stmts, nil
	}

	stmts = append(stmts, Statement{Tag: TagRead, Kind: schema.KindRead, SQL: b.read(t)})
	if sql, ok := b.update(t, t.UpdateList); ok {
		stmts = append(stmts, Statement{Tag: TagUpdate, Kind: schema.KindUpdate, SQL: sql})
	}
	stmts = append(stmts, Statement{Tag: TagDelete, Kind: schema.KindDelete, SQL: b.delete(t)})

	for _, rel := range t.Relations {
		set := relationSet(t, rel)
		if sql, ok := b.update(t, set); ok {
			stmts = append(stmts, Statement{
				Tag:  RelationTag(rel),
				Kind: schema.KindForeignKeyUpdate,
				SQL:  sql,
			})
		}
	}
	return stmts, nil
}

// RelationTag is the statement tag of a foreign relation's update.
func RelationTag(rel *schema.ForeignRelation) string {
	return strings.ToUpper(rel.Constraint) + "_" + TagUpdate
}

// CheckContract verifies that every `$name` inside an insert or update
// transform names a column of t. Select transforms are plain projections and
// take no placeholders at all.
func CheckContract(t *schema.Table) error {
	for _, c := range t.Columns {
		for i, expr := range []string{c.SelectXform, c.InsertXform, c.UpdateXform} {
			if expr == "" {
				continue
			}
			names, err := sqlscan.Placeholders(expr)
			if err != nil {
				return errs.Wrap(errs.ErrKindParse, fmt.Sprintf("transform of %s.%s", t.FQN(), c.Name), err)
			}
			if i == 0 && len(names) > 0 {
				return errs.Newf(errs.ErrKindContract,
					"select transform of %s.%s references $%s; select transforms cannot take parameters", t.FQN(), c.Name, names[0])
			}
			for _, name := range names {
				if _, ok := t.Column(name); !ok {
					return errs.Newf(errs.ErrKindContract,
						"transform of %s.%s references $%s, which is not a column of the table", t.FQN(), c.Name, name)
				}
			}
		}
	}
	return nil
}

func (b *Builder) insert(t *schema.Table) string {
	var cols, values []string
	for _, name := range t.InsertList {
		c, ok := t.Column(name)
		if !ok || c.Sequence || c.Virtual {
			continue
		}
		cols = append(cols, c.Name)
		switch {
		case c.Version:
			values = append(values, "0")
		case c.InsertXform != "":
			values = append(values, c.InsertXform)
		default:
			values = append(values, "$"+c.Name)
		}
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(t.FQN())
	if len(cols) == 0 {
		sb.WriteString(" ")
		sb.WriteString(b.dialect.EmptyInsert())
	} else {
		fmt.Fprintf(&sb, " (%s) VALUES (%s)", strings.Join(cols, ", "), strings.Join(values, ", "))
	}
	b.writeReturning(&sb, t)
	return sb.String()
}

func (b *Builder) read(t *schema.Table) string {
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s",
		strings.Join(SelectItems(t), ", "), t.FQN(), strings.Join(pkeyPredicates(t), " AND "))
}

func (b *Builder) delete(t *schema.Table) string {
	return fmt.Sprintf("DELETE FROM %s WHERE %s", t.FQN(), strings.Join(pkeyPredicates(t), " AND "))
}

// update renders an UPDATE setting names. The WHERE clause is the primary
// key plus, on versioned tables, the version predicate.
func (b *Builder) update(t *schema.Table, names []string) (string, bool) {
	var set []string
	for _, name := range names {
		c, ok := t.Column(name)
		if !ok || c.Sequence || c.Virtual {
			continue
		}
		switch {
		case c.Version:
			set = append(set, versionBump(c.Name))
		case c.UpdateXform != "":
			set = append(set, c.Name+" = "+c.UpdateXform)
		default:
			set = append(set, c.Name+" = $"+c.Name)
		}
	}
	if len(set) == 0 {
		return "", false
	}

	where := pkeyPredicates(t)
	if t.IsVersioned() {
		where = append(where, versionBump(t.VersionColumn))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "UPDATE %s SET %s WHERE %s", t.FQN(), strings.Join(set, ", "), strings.Join(where, " AND "))
	b.writeReturning(&sb, t)
	return sb.String(), true
}

func (b *Builder) writeReturning(sb *strings.Builder, t *schema.Table) {
	if !b.dialect.SupportsReturning() {
		return
	}
	items := SelectItems(t)
	if len(items) == 0 {
		return
	}
	sb.WriteString(" RETURNING ")
	sb.WriteString(strings.Join(items, ", "))
}

// SelectItems renders the select list of t. Columns with a select transform
// render as "xform AS name"; virtual columns without one are dropped.
func SelectItems(t *schema.Table) []string {
	items := make([]string, 0, len(t.SelectList))
	for _, name := range t.SelectList {
		c, ok := t.Column(name)
		if !ok {
			continue
		}
		switch {
		case c.SelectXform != "":
			items = append(items, c.SelectXform+" AS "+c.Name)
		case c.Virtual:
		default:
			items = append(items, c.Name)
		}
	}
	return items
}

func pkeyPredicates(t *schema.Table) []string {
	preds := make([]string, 0, len(t.PkeyList))
	for _, name := range t.PkeyList {
		preds = append(preds, name+" = $"+name)
	}
	return preds
}

func versionBump(name string) string {
	return name + " = " + name + " + 1"
}

// relationSet is the SET list of a foreign relation's update: its local
// columns in table column order, plus the version column when versioned.
func relationSet(t *schema.Table, rel *schema.ForeignRelation) []string {
	local := make(map[string]bool, len(rel.Columns))
	for _, fc := range rel.Columns {
		local[fc.Local] = true
	}
	var set []string
	for _, c := range t.Columns {
		if local[c.Name] || (c.Version && c.Name == t.VersionColumn) {
			set = append(set, c.Name)
		}
	}
	return set
}
