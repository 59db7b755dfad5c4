package phase

import (
	"context"

	"github.com/koustreak/protodb/internal/errs"
	"github.com/koustreak/protodb/internal/schema"
)

type exclusion struct {
	entries []ColumnExclusion
}

// Exclusion removes configured columns from the select, insert and update
// lists and marks them excluded. Excluding a primary key column or naming
// an unknown column is a configuration error.
func Exclusion(entries []ColumnExclusion) Phase {
	return exclusion{entries: entries}
}

func (exclusion) Name() string { return "exclusion" }

func (p exclusion) Apply(_ context.Context, in *schema.Schema) (*schema.Schema, error) {
	s := in.Clone()
	for _, e := range p.entries {
		t, ok, err := lookup(s, e.Table, "excluded_columns")
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		for _, name := range e.Columns {
			c, found := t.Column(name)
			if !found {
				return nil, errs.Newf(errs.ErrKindConfig, "excluded_columns: column %s not found in %s", name, t.FQN())
			}
			if c.PrimaryKey {
				return nil, errs.Newf(errs.ErrKindConfig, "excluded_columns: %s.%s is a primary key column and cannot be excluded", t.FQN(), name)
			}
			c.Excluded = true
			t.Exclude(schema.ListSelect, name)
			t.Exclude(schema.ListInsert, name)
			t.Exclude(schema.ListUpdate, name)
		}
	}
	return s, nil
}
