// Package compiler turns canonical SQL text with `$name` placeholders into
// driver-ready statements: native markers in occurrence order plus the
// ordered bind and output parameter lists.
package compiler

import (
	"strings"

	"github.com/koustreak/protodb/internal/database"
	"github.com/koustreak/protodb/internal/errs"
	"github.com/koustreak/protodb/internal/schema"
	"github.com/koustreak/protodb/internal/sqlscan"
)

// Compiler compiles statements for one dialect. It holds no state between
// calls and is safe for concurrent use.
type Compiler struct {
	dialect database.Dialect
}

// New returns a Compiler emitting dialect's native markers.
func New(dialect database.Dialect) *Compiler {
	return &Compiler{dialect: dialect}
}

// Dialect returns the dialect the compiler emits.
func (c *Compiler) Dialect() database.Dialect {
	return c.dialect
}

// statement is a tokenized SQL text with per-token nesting depth.
type statement struct {
	sql    string
	toks   []sqlscan.Token
	depths []int
}

// Compile parses sql and returns the compiled query. The caller sets Name.
func (c *Compiler) Compile(kind schema.QueryKind, sql string) (*schema.CompiledQuery, error) {
	st, err := parse(sql)
	if err != nil {
		return nil, err
	}

	stmtType, err := st.statementType()
	if err != nil {
		return nil, err
	}

	binds, err := st.bindTokens(stmtType)
	if err != nil {
		return nil, err
	}

	var outputs []string
	if stmtType == schema.StatementSelect {
		outputs = st.projection()
	} else {
		outputs = st.returning()
	}

	q := &schema.CompiledQuery{
		Kind:         kind,
		Statement:    stmtType,
		BindParams:   make([]string, 0, len(binds)),
		OutputParams: outputs,
	}
	for _, i := range binds {
		q.BindParams = append(q.BindParams, st.toks[i].Name())
	}
	q.SQL = st.rewrite(binds, func(n int, _ string) string { return c.dialect.Marker(n) })
	q.NamedSQL = st.rewrite(binds, func(_ int, name string) string { return "@" + name })
	if q.OutputParams == nil {
		q.OutputParams = []string{}
	}
	return q, nil
}

func parse(sql string) (*statement, error) {
	toks, err := sqlscan.Tokenize(sql)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindParse, "tokenize statement", err)
	}
	if len(toks) == 0 {
		return nil, errs.New(errs.ErrKindParse, "empty statement")
	}
	for _, t := range toks {
		if t.Type == sqlscan.Positional {
			return nil, errs.Newf(errs.ErrKindParse, "positional marker %s at offset %d; use $name placeholders", t.Text, t.Pos)
		}
	}
	depths, err := sqlscan.Depths(toks)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindParse, "unbalanced statement", err)
	}
	return &statement{sql: sql, toks: toks, depths: depths}, nil
}

func (st *statement) statementType() (schema.StatementType, error) {
	switch kw := st.toks[0].Keyword(); kw {
	case "INSERT":
		return schema.StatementInsert, nil
	case "UPDATE":
		return schema.StatementUpdate, nil
	case "SELECT":
		return schema.StatementSelect, nil
	case "DELETE":
		return schema.StatementDelete, nil
	default:
		return "", errs.Newf(errs.ErrKindParse, "unrecognized statement keyword %q", st.toks[0].Text)
	}
}

// topLevel returns the index of the first depth-0 Word kw at or after from,
// or -1.
func (st *statement) topLevel(kw string, from int) int {
	for i := from; i < len(st.toks); i++ {
		if st.depths[i] == 0 && st.toks[i].Is(kw) {
			return i
		}
	}
	return -1
}

// bindTokens returns the indexes of the placeholder tokens that become bind
// parameters. INSERT and UPDATE bind every placeholder. SELECT and DELETE
// bind only inside the WHERE clause, at its own level or one group deeper.
func (st *statement) bindTokens(stmtType schema.StatementType) ([]int, error) {
	var binds []int
	if stmtType == schema.StatementInsert || stmtType == schema.StatementUpdate {
		for i, t := range st.toks {
			if t.Type == sqlscan.Placeholder {
				binds = append(binds, i)
			}
		}
		return binds, nil
	}

	where := st.topLevel("WHERE", 0)
	end := len(st.toks)
	if where >= 0 {
		if ret := st.topLevel("RETURNING", where); ret >= 0 {
			end = ret
		}
	}

	for i, t := range st.toks {
		if t.Type != sqlscan.Placeholder {
			continue
		}
		if where < 0 || i < where || i >= end {
			return nil, errs.Newf(errs.ErrKindParse, "placeholder %s at offset %d is outside the WHERE clause", t.Text, t.Pos)
		}
		if st.depths[i] > 1 {
			return nil, errs.Newf(errs.ErrKindParse, "placeholder %s at offset %d is nested too deep in the WHERE clause", t.Text, t.Pos)
		}
		binds = append(binds, i)
	}
	return binds, nil
}

// rewrite splices a replacement over every bind token. marker receives the
// 1-based bind slot and the placeholder name.
func (st *statement) rewrite(binds []int, marker func(n int, name string) string) string {
	var b strings.Builder
	b.Grow(len(st.sql))
	last := 0
	for n, i := range binds {
		t := st.toks[i]
		b.WriteString(st.sql[last:t.Pos])
		b.WriteString(marker(n+1, t.Name()))
		last = t.End
	}
	b.WriteString(st.sql[last:])
	return b.String()
}

var projectionEnd = map[string]bool{
	"FROM":   true,
	"WHERE":  true,
	"GROUP":  true,
	"HAVING": true,
	"ORDER":  true,
	"LIMIT":  true,
	"UNION":  true,
	"INTO":   true,
}

// projection names the SELECT list items. An empty projection yields an
// empty list.
func (st *statement) projection() []string {
	start := 1
	for start < len(st.toks) && (st.toks[start].Is("DISTINCT") || st.toks[start].Is("ALL")) {
		start++
	}
	end := start
	for end < len(st.toks) {
		t := st.toks[end]
		if st.depths[end] == 0 && (projectionEnd[t.Keyword()] || t.Type == sqlscan.Semicolon) {
			break
		}
		end++
	}
	return st.names(start, end)
}

// returning names the items of a top-level RETURNING clause.
func (st *statement) returning() []string {
	ret := st.topLevel("RETURNING", 0)
	if ret < 0 {
		return []string{}
	}
	end := ret + 1
	for end < len(st.toks) && !(st.depths[end] == 0 && st.toks[end].Type == sqlscan.Semicolon) {
		end++
	}
	return st.names(ret+1, end)
}

func (st *statement) names(start, end int) []string {
	names := []string{}
	if start >= end {
		return names
	}
	for _, item := range sqlscan.SplitList(st.toks[start:end], st.depths[start:end], 0) {
		if len(item) == 0 {
			continue
		}
		names = append(names, st.itemName(item))
	}
	return names
}

// Words that end an expression and are never an implicit alias.
var notAlias = map[string]bool{
	"END":   true,
	"NULL":  true,
	"TRUE":  true,
	"FALSE": true,
}

// itemName derives the output name of one projection item: an explicit
// AS alias, an implicit trailing alias, the last segment of a dotted
// identifier (ignoring a trailing ::cast), or the expression text.
func (st *statement) itemName(item []sqlscan.Token) string {
	n := len(item)
	last := item[n-1]
	isIdent := last.Type == sqlscan.Word || last.Type == sqlscan.QuotedIdent

	if n >= 2 && isIdent && item[n-2].Is("AS") {
		return last.Name()
	}
	if n >= 2 && isIdent && !notAlias[last.Keyword()] {
		switch item[n-2].Type {
		case sqlscan.Dot, sqlscan.Operator:
		default:
			return last.Name()
		}
	}

	expr := item
	for i, t := range item {
		if t.Type == sqlscan.Operator && t.Text == "::" {
			expr = item[:i]
			break
		}
	}
	if name, ok := dottedName(expr); ok {
		return name
	}
	return st.sql[item[0].Pos:last.End]
}

// dottedName reports the last segment of ident(.ident)* token runs.
func dottedName(toks []sqlscan.Token) (string, bool) {
	if len(toks) == 0 || len(toks)%2 == 0 {
		return "", false
	}
	for i, t := range toks {
		if i%2 == 1 {
			if t.Type != sqlscan.Dot {
				return "", false
			}
			continue
		}
		switch t.Type {
		case sqlscan.Word, sqlscan.QuotedIdent:
		case sqlscan.Star:
			if i != len(toks)-1 {
				return "", false
			}
		default:
			return "", false
		}
	}
	return toks[len(toks)-1].Name(), true
}
