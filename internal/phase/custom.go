package phase

import (
	"context"
	"fmt"

	"github.com/koustreak/protodb/internal/errs"
	"github.com/koustreak/protodb/internal/schema"
)

// QueryResolver compiles a hand-authored query template against a table.
type QueryResolver interface {
	Resolve(ctx context.Context, t *schema.Table, name, template string) (*schema.CompiledQuery, error)
}

type custom struct {
	entries  []CustomQuery
	resolver QueryResolver
}

// Custom registers the configured custom queries on their tables, compiled
// through resolver.
func Custom(entries []CustomQuery, resolver QueryResolver) Phase {
	return custom{entries: entries, resolver: resolver}
}

func (custom) Name() string { return "custom" }

func (p custom) Apply(ctx context.Context, in *schema.Schema) (*schema.Schema, error) {
	s := in.Clone()
	for _, e := range p.entries {
		t, ok, err := lookup(s, e.Table, "mapping")
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if p.resolver == nil {
			return nil, errs.Newf(errs.ErrKindConfig, "mapping: no resolver for custom query %s on %s", e.Name, t.FQN())
		}
		if _, dup := t.CustomQueries[e.Name]; dup {
			return nil, errs.Newf(errs.ErrKindConfig, "mapping: duplicate custom query %s on %s", e.Name, t.FQN())
		}

		q, err := p.resolver.Resolve(ctx, t, e.Name, e.Query)
		if err != nil {
			return nil, fmt.Errorf("custom query %s on %s: %w", e.Name, t.FQN(), err)
		}
		t.CustomQueries[e.Name] = q
	}
	return s, nil
}
