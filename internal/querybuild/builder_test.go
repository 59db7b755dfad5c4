package querybuild

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/protodb/internal/compiler"
	"github.com/koustreak/protodb/internal/database"
	"github.com/koustreak/protodb/internal/errs"
	"github.com/koustreak/protodb/internal/schema"
)

type colSpec struct {
	name     string
	typ      string
	pkey     bool
	seq      bool
	version  bool
	insert   bool
	update   bool
	nullable bool
}

func newTable(name string, specs ...colSpec) *schema.Table {
	t := schema.NewTable("app", name)
	for i, s := range specs {
		c := &schema.Column{
			Schema: "app", Table: name, Name: s.name, Ordinal: i + 1,
			PrimaryKey: s.pkey, Sequence: s.seq, Version: s.version, Nullable: s.nullable,
		}
		c.SetType(s.typ, s.typ)
		t.AddColumn(c)
		t.Include(schema.ListSelect, s.name)
		if s.pkey {
			t.Include(schema.ListPkey, s.name)
		}
		if s.seq {
			t.SequenceColumn = s.name
		}
		if s.version {
			t.VersionColumn = s.name
		}
		if s.insert {
			t.Include(schema.ListInsert, s.name)
		}
		if s.update {
			t.Include(schema.ListUpdate, s.name)
		}
	}
	return t
}

func ordersTable() *schema.Table {
	t := newTable("orders",
		colSpec{name: "id", typ: "integer", pkey: true, seq: true},
		colSpec{name: "customer_id", typ: "integer", insert: true},
		colSpec{name: "status", typ: "text", insert: true, update: true},
		colSpec{name: "version", typ: "bigint", version: true, insert: true, update: true},
	)
	t.Relations = []*schema.ForeignRelation{{
		Constraint:    "orders_customer_fk",
		ForeignSchema: "app",
		ForeignTable:  "customers",
		Columns:       []schema.ForeignColumn{{Local: "customer_id", Foreign: "id", Ordinal: 1}},
	}}
	return t
}

func byTag(stmts []Statement) map[string]Statement {
	m := make(map[string]Statement, len(stmts))
	for _, s := range stmts {
		m[s.Tag] = s
	}
	return m
}

func tags(stmts []Statement) []string {
	out := make([]string, 0, len(stmts))
	for _, s := range stmts {
		out = append(out, s.Tag)
	}
	return out
}

func TestBuild_Postgres(t *testing.T) {
	stmts, err := New(database.DialectPostgres).Build(ordersTable())
	require.NoError(t, err)
	assert.Equal(t, []string{"CREATE", "READ", "UPDATE", "DELETE", "ORDERS_CUSTOMER_FK_UPDATE"}, tags(stmts))

	const returning = " RETURNING id, customer_id, status, version"
	m := byTag(stmts)
	assert.Equal(t, "INSERT INTO app.orders (customer_id, status, version) VALUES ($customer_id, $status, 0)"+returning, m["CREATE"].SQL)
	assert.Equal(t, "SELECT id, customer_id, status, version FROM app.orders WHERE id = $id", m["READ"].SQL)
	assert.Equal(t, "UPDATE app.orders SET status = $status, version = version + 1 WHERE id = $id AND version = version + 1"+returning, m["UPDATE"].SQL)
	assert.Equal(t, "DELETE FROM app.orders WHERE id = $id", m["DELETE"].SQL)
	assert.Equal(t, "UPDATE app.orders SET customer_id = $customer_id, version = version + 1 WHERE id = $id AND version = version + 1"+returning, m["ORDERS_CUSTOMER_FK_UPDATE"].SQL)
	assert.Equal(t, schema.KindForeignKeyUpdate, m["ORDERS_CUSTOMER_FK_UPDATE"].Kind)
}

func TestBuild_MySQLHasNoReturning(t *testing.T) {
	stmts, err := New(database.DialectMySQL).Build(ordersTable())
	require.NoError(t, err)
	for _, s := range stmts {
		assert.NotContains(t, s.SQL, "RETURNING", s.Tag)
	}
	assert.Equal(t, "INSERT INTO app.orders (customer_id, status, version) VALUES ($customer_id, $status, 0)", byTag(stmts)["CREATE"].SQL)
}

func TestBuild_EmptyInsert(t *testing.T) {
	tbl := newTable("counters", colSpec{name: "id", typ: "bigint", pkey: true, seq: true})

	pg, err := New(database.DialectPostgres).Build(tbl)
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO app.counters DEFAULT VALUES RETURNING id", pg[0].SQL)
	assert.Equal(t, []string{"CREATE", "READ", "DELETE"}, tags(pg))

	my, err := New(database.DialectMySQL).Build(tbl)
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO app.counters () VALUES ()", my[0].SQL)
}

func TestBuild_NoPrimaryKeyGetsCreateOnly(t *testing.T) {
	tbl := newTable("events",
		colSpec{name: "kind", typ: "text", insert: true, update: true},
		colSpec{name: "payload", typ: "jsonb", insert: true, update: true},
	)
	stmts, err := New(database.DialectPostgres).Build(tbl)
	require.NoError(t, err)
	assert.Equal(t, []string{"CREATE"}, tags(stmts))
}

func TestBuild_Transforms(t *testing.T) {
	tbl := newTable("people",
		colSpec{name: "id", typ: "integer", pkey: true, seq: true},
		colSpec{name: "first", typ: "text", insert: true, update: true},
		colSpec{name: "last", typ: "text", insert: true, update: true},
	)
	first, _ := tbl.Column("first")
	first.InsertXform = "initcap($first)"
	first.UpdateXform = "coalesce($first, first)"

	full := &schema.Column{Schema: "app", Table: "people", Name: "full_name", Ordinal: tbl.LastOrdinal() + 1, Virtual: true, SelectXform: "first || ' ' || last"}
	full.SetType("text", "text")
	tbl.AddColumn(full)
	tbl.Include(schema.ListSelect, "full_name")

	ghost := &schema.Column{Schema: "app", Table: "people", Name: "ghost", Ordinal: tbl.LastOrdinal() + 1, Virtual: true}
	tbl.AddColumn(ghost)
	tbl.Include(schema.ListSelect, "ghost")

	m := byTag(mustBuild(t, tbl))
	const returning = " RETURNING id, first, last, first || ' ' || last AS full_name"
	assert.Equal(t, "INSERT INTO app.people (first, last) VALUES (initcap($first), $last)"+returning, m["CREATE"].SQL)
	assert.Equal(t, "UPDATE app.people SET first = coalesce($first, first), last = $last WHERE id = $id"+returning, m["UPDATE"].SQL)
	assert.Equal(t, "SELECT id, first, last, first || ' ' || last AS full_name FROM app.people WHERE id = $id", m["READ"].SQL)
}

func TestBuild_ContractViolation(t *testing.T) {
	tbl := ordersTable()
	status, _ := tbl.Column("status")
	status.InsertXform = "lower($state)"

	_, err := New(database.DialectPostgres).Build(tbl)
	require.Error(t, err)
	assert.True(t, errs.IsContract(err))
	assert.Contains(t, err.Error(), "$state")
}

func TestBuild_SelectTransformTakesNoParameters(t *testing.T) {
	tbl := ordersTable()
	status, _ := tbl.Column("status")
	status.SelectXform = "coalesce(status, $id)"

	_, err := New(database.DialectPostgres).Build(tbl)
	require.Error(t, err)
	assert.True(t, errs.IsContract(err))
	assert.Contains(t, err.Error(), "select transform of app.orders.status")

	status.SelectXform = "upper(status)"
	stmts, err := New(database.DialectPostgres).Build(tbl)
	require.NoError(t, err)
	read := byTag(stmts)[TagRead]
	q, err := compiler.New(database.DialectPostgres).Compile(read.Kind, read.SQL)
	require.NoError(t, err)
	assert.Equal(t, []string{"id"}, q.BindParams)
}

func TestBuild_SkipsUpdateWithEmptySet(t *testing.T) {
	tbl := newTable("tags",
		colSpec{name: "id", typ: "integer", pkey: true},
		colSpec{name: "label", typ: "text", insert: true},
	)
	stmts := mustBuild(t, tbl)
	assert.Equal(t, []string{"CREATE", "READ", "DELETE"}, tags(stmts))
}

func TestBuild_CompiledInvariants(t *testing.T) {
	c := compiler.New(database.DialectPostgres)
	compiled := map[string]*schema.CompiledQuery{}
	for _, s := range mustBuild(t, ordersTable()) {
		q, err := c.Compile(s.Kind, s.SQL)
		require.NoError(t, err, s.Tag)
		compiled[s.Tag] = q
	}

	create := compiled["CREATE"]
	assert.Equal(t, []string{"customer_id", "status"}, create.BindParams)
	assert.NotContains(t, create.BindParams, "version")
	assert.Contains(t, create.OutputParams, "version")

	update := compiled["UPDATE"]
	assert.Equal(t, []string{"status", "id"}, update.BindParams)
	assert.NotContains(t, update.BindParams, "customer_id")

	fk := compiled["ORDERS_CUSTOMER_FK_UPDATE"]
	assert.Equal(t, []string{"customer_id", "id"}, fk.BindParams)
	assert.Equal(t, "UPDATE app.orders SET customer_id = $1, version = version + 1 WHERE id = $2 AND version = version + 1 RETURNING id, customer_id, status, version", fk.SQL)

	read := compiled["READ"]
	assert.Equal(t, []string{"id"}, read.BindParams)
	assert.Equal(t, []string{"id", "customer_id", "status", "version"}, read.OutputParams)

	del := compiled["DELETE"]
	assert.Equal(t, []string{"id"}, del.BindParams)
	assert.Empty(t, del.OutputParams)
}

func TestBuild_Idempotent(t *testing.T) {
	b := New(database.DialectPostgres)
	first := mustBuild(t, ordersTable())
	second, err := b.Build(ordersTable())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func mustBuild(t *testing.T, tbl *schema.Table) []Statement {
	t.Helper()
	stmts, err := New(database.DialectPostgres).Build(tbl)
	require.NoError(t, err)
	return stmts
}
