package phase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/protodb/internal/errs"
	"github.com/koustreak/protodb/internal/schema"
	"github.com/koustreak/protodb/internal/typemap"
)

func shop() *schema.Schema {
	s := schema.New("app")

	orders := schema.NewTable("app", "orders")
	add := func(name, typ string, pkey, seq, fk bool) {
		c := &schema.Column{Schema: "app", Table: "orders", Name: name, Ordinal: orders.LastOrdinal() + 1, PrimaryKey: pkey, Sequence: seq}
		c.SetType(typ, typ)
		orders.AddColumn(c)
		orders.Include(schema.ListSelect, name)
		if pkey {
			orders.Include(schema.ListPkey, name)
		}
		if seq {
			orders.SequenceColumn = name
		}
		if !pkey && !seq {
			orders.Include(schema.ListInsert, name)
			if !fk {
				orders.Include(schema.ListUpdate, name)
			}
		}
	}
	add("id", "integer", true, true, false)
	add("customer_id", "integer", false, false, true)
	add("status", "text", false, false, false)
	add("note", "text", false, false, false)
	orders.Relations = []*schema.ForeignRelation{{
		Constraint: "orders_customer_fk", ForeignSchema: "app", ForeignTable: "customers",
		Columns: []schema.ForeignColumn{{Local: "customer_id", Foreign: "id", Ordinal: 1}},
	}}
	s.AddTable(orders)
	return s
}

type fakeResolver struct {
	calls []string
	err   error
}

func (f *fakeResolver) Resolve(_ context.Context, t *schema.Table, name, template string) (*schema.CompiledQuery, error) {
	f.calls = append(f.calls, t.Name+"/"+name)
	if f.err != nil {
		return nil, f.err
	}
	return &schema.CompiledQuery{Kind: schema.KindCustom, Name: name, SQL: template}, nil
}

func orders(t *testing.T, s *schema.Schema) *schema.Table {
	t.Helper()
	tbl, ok := s.Table("orders")
	require.True(t, ok)
	return tbl
}

func TestExclusion(t *testing.T) {
	in := shop()
	out, err := Exclusion([]ColumnExclusion{{Table: "app.orders", Columns: []string{"note"}}}).Apply(context.Background(), in)
	require.NoError(t, err)

	tbl := orders(t, out)
	assert.Equal(t, []string{"id", "customer_id", "status"}, tbl.SelectList)
	assert.Equal(t, []string{"customer_id", "status"}, tbl.InsertList)
	assert.Equal(t, []string{"status"}, tbl.UpdateList)
	note, _ := tbl.Column("note")
	assert.True(t, note.Excluded)

	// input snapshot untouched
	assert.Contains(t, orders(t, in).SelectList, "note")
	inNote, _ := orders(t, in).Column("note")
	assert.False(t, inNote.Excluded)
}

func TestExclusion_Errors(t *testing.T) {
	tests := []struct {
		name  string
		entry ColumnExclusion
	}{
		{"primary key", ColumnExclusion{Table: "app.orders", Columns: []string{"id"}}},
		{"unknown column", ColumnExclusion{Table: "app.orders", Columns: []string{"nope"}}},
		{"unknown table", ColumnExclusion{Table: "app.missing", Columns: []string{"id"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Exclusion([]ColumnExclusion{tt.entry}).Apply(context.Background(), shop())
			require.Error(t, err)
			assert.True(t, errs.IsConfig(err))
		})
	}
}

func TestExclusion_OtherSchemaIgnored(t *testing.T) {
	out, err := Exclusion([]ColumnExclusion{{Table: "billing.orders", Columns: []string{"id"}}}).Apply(context.Background(), shop())
	require.NoError(t, err)
	assert.Contains(t, orders(t, out).SelectList, "id")
}

func TestExtensions(t *testing.T) {
	out, err := Extensions([]Extension{{Table: "app.orders", Extension: "option (audited) = true;"}}).Apply(context.Background(), shop())
	require.NoError(t, err)
	assert.Equal(t, "option (audited) = true;", orders(t, out).Extension)

	_, err = Extensions([]Extension{{Table: "app.nope", Extension: "x"}}).Apply(context.Background(), shop())
	assert.True(t, errs.IsConfig(err))
}

func TestCustom(t *testing.T) {
	r := &fakeResolver{}
	out, err := Custom([]CustomQuery{{Table: "app.orders", Name: "by_status", Query: "select * from app.orders where status = $status"}}, r).
		Apply(context.Background(), shop())
	require.NoError(t, err)

	require.Contains(t, orders(t, out).CustomQueries, "by_status")
	assert.Equal(t, []string{"orders/by_status"}, r.calls)

	r.err = errs.New(errs.ErrKindParse, "bad template")
	_, err = Custom([]CustomQuery{{Table: "app.orders", Name: "bad", Query: "with x"}}, r).Apply(context.Background(), shop())
	require.Error(t, err)
	assert.True(t, errs.IsParse(err))
	assert.Contains(t, err.Error(), "custom query bad on app.orders")
}

func TestCustom_Duplicate(t *testing.T) {
	entries := []CustomQuery{
		{Table: "app.orders", Name: "q", Query: "select id from app.orders"},
		{Table: "app.orders", Name: "q", Query: "select id from app.orders"},
	}
	_, err := Custom(entries, &fakeResolver{}).Apply(context.Background(), shop())
	assert.True(t, errs.IsConfig(err))
}

func TestTransforms(t *testing.T) {
	excluded, err := Exclusion([]ColumnExclusion{{Table: "app.orders", Columns: []string{"note", "customer_id"}}}).
		Apply(context.Background(), shop())
	require.NoError(t, err)

	out, err := Transforms([]Transform{
		{Table: "app.orders", Stage: StageUpdate, Column: "note", Expr: "trim($note)"},
		{Table: "app.orders", Stage: StageUpdate, Column: "customer_id", Expr: "$customer_id"},
		{Table: "app.orders", Stage: StageInsert, Column: "note", Expr: "coalesce($note, '')"},
		{Table: "app.orders", Stage: StageSelect, Column: "status", Expr: "upper(status)"},
		{Table: "app.orders", Stage: StageSelect, Column: "label", DataType: "text", Expr: "status || '#' || id"},
	}).Apply(context.Background(), excluded)
	require.NoError(t, err)

	tbl := orders(t, out)
	assert.Equal(t, []string{"id", "status", "label"}, tbl.SelectList)
	assert.Equal(t, []string{"status", "note"}, tbl.InsertList)
	assert.Equal(t, []string{"status", "note"}, tbl.UpdateList)

	label, ok := tbl.Column("label")
	require.True(t, ok)
	assert.True(t, label.Virtual)
	assert.Equal(t, 5, label.Ordinal)
	assert.Equal(t, typemap.KindString, label.Kind)

	status, _ := tbl.Column("status")
	assert.Equal(t, "upper(status)", status.SelectXform)
	cust, _ := tbl.Column("customer_id")
	assert.Equal(t, "$customer_id", cust.UpdateXform)
}

func TestTransforms_Errors(t *testing.T) {
	tests := []struct {
		name string
		x    Transform
	}{
		{"unknown insert column", Transform{Table: "app.orders", Stage: StageInsert, Column: "nope", Expr: "1"}},
		{"update on key", Transform{Table: "app.orders", Stage: StageUpdate, Column: "id", Expr: "$id"}},
		{"unknown table", Transform{Table: "app.nope", Stage: StageSelect, Column: "x", Expr: "1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Transforms([]Transform{tt.x}).Apply(context.Background(), shop())
			require.Error(t, err)
			assert.True(t, errs.IsConfig(err))
		})
	}
}

func TestStandardPipeline(t *testing.T) {
	settings := Settings{
		ExcludedColumns: []ColumnExclusion{{Table: "app.orders", Columns: []string{"note"}}},
		Extensions:      []Extension{{Table: "app.orders", Extension: "ext"}},
		CustomQueries:   []CustomQuery{{Table: "app.orders", Name: "open", Query: "select * from app.orders where status = 'OPEN'"}},
		Transforms:      []Transform{{Table: "app.orders", Stage: StageInsert, Column: "note", Expr: "''"}},
	}
	in := shop()
	out, err := Standard(settings, &fakeResolver{}, nil).Run(context.Background(), in)
	require.NoError(t, err)

	tbl := orders(t, out)
	assert.Equal(t, "ext", tbl.Extension)
	assert.Contains(t, tbl.CustomQueries, "open")
	assert.Contains(t, tbl.InsertList, "note")
	assert.NotContains(t, tbl.SelectList, "note")

	assert.Empty(t, orders(t, in).CustomQueries)
	assert.Empty(t, orders(t, in).Extension)
}

func TestPipeline_StopsOnError(t *testing.T) {
	boom := errors.New("boom")
	settings := Settings{
		CustomQueries: []CustomQuery{{Table: "app.orders", Name: "q", Query: "select 1"}},
		Transforms:    []Transform{{Table: "app.orders", Stage: StageInsert, Column: "nope", Expr: "1"}},
	}
	_, err := Standard(settings, &fakeResolver{err: boom}, nil).Run(context.Background(), shop())
	require.ErrorIs(t, err, boom)
}

func TestPipeline_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Standard(Settings{}, nil, nil).Run(ctx, shop())
	assert.True(t, errs.IsTimeout(err))
}
