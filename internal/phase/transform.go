package phase

import (
	"context"

	"github.com/koustreak/protodb/internal/errs"
	"github.com/koustreak/protodb/internal/schema"
)

type transforms struct {
	entries []Transform
}

// Transforms applies per-column expression overrides, all select entries
// first, then insert, then update.
//
// A select transform on an unknown column creates a virtual column. Insert
// and update transforms must name an existing column that is neither a
// primary key nor a sequence; on an excluded column they put it back on the
// stage's list, except that a foreign key column never returns to the
// update list.
func Transforms(entries []Transform) Phase {
	return transforms{entries: entries}
}

func (transforms) Name() string { return "transforms" }

func (p transforms) Apply(_ context.Context, in *schema.Schema) (*schema.Schema, error) {
	s := in.Clone()
	for _, stage := range []Stage{StageSelect, StageInsert, StageUpdate} {
		for _, x := range p.entries {
			if x.Stage != stage {
				continue
			}
			t, ok, err := lookup(s, x.Table, "transforms")
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			if stage == StageSelect {
				applySelect(t, x)
				continue
			}
			if err := applyWrite(t, x); err != nil {
				return nil, err
			}
		}
	}
	return s, nil
}

func applySelect(t *schema.Table, x Transform) {
	if c, found := t.Column(x.Column); found {
		c.SelectXform = x.Expr
		return
	}

	c := &schema.Column{
		Schema:      t.Schema,
		Table:       t.Name,
		Name:        x.Column,
		Ordinal:     t.LastOrdinal() + 1,
		Nullable:    true,
		Virtual:     true,
		SelectXform: x.Expr,
	}
	c.SetType(x.DataType, x.DataType)
	t.AddColumn(c)
	t.Include(schema.ListSelect, c.Name)
}

func applyWrite(t *schema.Table, x Transform) error {
	c, found := t.Column(x.Column)
	if !found {
		return errs.Newf(errs.ErrKindConfig, "transforms: %s transform on unknown column %s.%s", x.Stage, t.FQN(), x.Column)
	}
	if c.PrimaryKey || c.Sequence {
		return errs.Newf(errs.ErrKindConfig, "transforms: %s transform on key column %s.%s", x.Stage, t.FQN(), x.Column)
	}

	if x.Stage == StageInsert {
		c.InsertXform = x.Expr
		if c.Excluded {
			t.Include(schema.ListInsert, c.Name)
		}
		return nil
	}

	c.UpdateXform = x.Expr
	if c.Excluded && !t.IsForeignKeyColumn(c.Name) {
		t.Include(schema.ListUpdate, c.Name)
	}
	return nil
}
