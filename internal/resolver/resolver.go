// Package resolver compiles hand-authored custom queries and describes
// their result sets against the live catalog connection.
package resolver

import (
	"context"
	"fmt"
	"strings"

	"github.com/koustreak/protodb/internal/compiler"
	"github.com/koustreak/protodb/internal/database"
	"github.com/koustreak/protodb/internal/errs"
	"github.com/koustreak/protodb/internal/logger"
	"github.com/koustreak/protodb/internal/querybuild"
	"github.com/koustreak/protodb/internal/schema"
	"github.com/koustreak/protodb/internal/sqlscan"
	"github.com/koustreak/protodb/internal/typemap"
)

// Resolver turns a custom query template into a CompiledQuery with a
// described result set.
type Resolver struct {
	db       database.DB
	compiler *compiler.Compiler
	log      *logger.Logger
}

// New returns a Resolver describing probes on db.
func New(db database.DB, c *compiler.Compiler, log *logger.Logger) *Resolver {
	if log == nil {
		log = logger.Nop()
	}
	return &Resolver{db: db, compiler: c, log: log}
}

// Resolve expands a `*` projection to the table's select list, compiles the
// result as a custom query named name and describes its result set.
func (r *Resolver) Resolve(ctx context.Context, t *schema.Table, name, template string) (*schema.CompiledQuery, error) {
	sql, err := ExpandStar(template, querybuild.SelectItems(t))
	if err != nil {
		return nil, err
	}

	q, err := r.compiler.Compile(schema.KindCustom, sql)
	if err != nil {
		return nil, err
	}
	q.Name = name

	probe, ok, err := Probe(sql, t)
	if err != nil {
		return nil, err
	}
	q.Result = []schema.ResultField{}
	if !ok {
		return q, nil
	}

	fields, err := r.db.Describe(ctx, Wrap(probe))
	if err != nil {
		return nil, fmt.Errorf("describe custom query %s: %w", name, err)
	}
	for _, f := range fields {
		mapped := typemap.Map(f.TypeName)
		q.Result = append(q.Result, schema.ResultField{
			Name:     f.Name,
			TypeName: f.TypeName,
			Kind:     mapped.Kind,
			Array:    mapped.Array,
		})
	}

	r.log.With().
		Str("table", t.FQN()).
		Str("query", name).
		Int("fields", len(q.Result)).
		Logger().
		Debug("custom query resolved")
	return q, nil
}

// Wrap turns a probe into a statement that returns no rows but reports the
// probe's result columns.
func Wrap(probe string) string {
	return "SELECT * FROM (" + probe + ") AS probe LIMIT 0"
}

// ExpandStar replaces every bare `*` item of a SELECT or RETURNING list
// with items. `count(*)`, `t.*` and arithmetic are left alone.
func ExpandStar(sql string, items []string) (string, error) {
	toks, err := sqlscan.Tokenize(sql)
	if err != nil {
		return "", errs.Wrap(errs.ErrKindParse, "tokenize custom query", err)
	}
	depths, err := sqlscan.Depths(toks)
	if err != nil {
		return "", errs.Wrap(errs.ErrKindParse, "custom query", err)
	}

	expansion := strings.Join(items, ", ")
	var b strings.Builder
	last := 0
	for i, tok := range toks {
		if tok.Type != sqlscan.Star || depths[i] != 0 || i == 0 || !startsItem(toks[i-1]) {
			continue
		}
		if i+1 < len(toks) && toks[i+1].Type != sqlscan.Comma && !toks[i+1].Is("FROM") && toks[i+1].Type != sqlscan.Semicolon {
			continue
		}
		b.WriteString(sql[last:tok.Pos])
		b.WriteString(expansion)
		last = tok.End
	}
	b.WriteString(sql[last:])
	return b.String(), nil
}

func startsItem(prev sqlscan.Token) bool {
	if prev.Type == sqlscan.Comma {
		return true
	}
	switch prev.Keyword() {
	case "SELECT", "DISTINCT", "ALL", "RETURNING":
		return true
	}
	return false
}

// Probe derives the statement whose result columns describe sql's result
// set. A statement with a RETURNING clause and no leading SELECT probes
// `SELECT <returning list> FROM <table>`; a SELECT probes itself with the
// WHERE clause and everything after it removed. ok is false when sql
// produces no rows.
func Probe(sql string, t *schema.Table) (probe string, ok bool, err error) {
	toks, err := sqlscan.Tokenize(sql)
	if err != nil {
		return "", false, errs.Wrap(errs.ErrKindParse, "tokenize custom query", err)
	}
	if len(toks) == 0 {
		return "", false, errs.New(errs.ErrKindParse, "empty custom query")
	}
	depths, err := sqlscan.Depths(toks)
	if err != nil {
		return "", false, errs.Wrap(errs.ErrKindParse, "custom query", err)
	}

	end := len(sql)
	for i, tok := range toks {
		if depths[i] == 0 && tok.Type == sqlscan.Semicolon {
			end = tok.Pos
			break
		}
	}

	if toks[0].Is("SELECT") {
		for i, tok := range toks {
			if depths[i] == 0 && tok.Is("WHERE") {
				end = tok.Pos
				break
			}
		}
		return strings.TrimSpace(sql[:end]), true, nil
	}

	for i, tok := range toks {
		if depths[i] == 0 && tok.Is("RETURNING") {
			list := strings.TrimSpace(sql[tok.End:end])
			if list == "" {
				return "", false, nil
			}
			return "SELECT " + list + " FROM " + t.FQN(), true, nil
		}
	}
	return "", false, nil
}
