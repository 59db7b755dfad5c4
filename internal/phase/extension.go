package phase

import (
	"context"

	"github.com/koustreak/protodb/internal/schema"
)

type extensions struct {
	entries []Extension
}

// Extensions tags tables with an opaque extension string for downstream
// generators.
func Extensions(entries []Extension) Phase {
	return extensions{entries: entries}
}

func (extensions) Name() string { return "extensions" }

func (p extensions) Apply(_ context.Context, in *schema.Schema) (*schema.Schema, error) {
	s := in.Clone()
	for _, e := range p.entries {
		t, ok, err := lookup(s, e.Table, "extensions")
		if err != nil {
			return nil, err
		}
		if ok {
			t.Extension = e.Extension
		}
	}
	return s, nil
}
