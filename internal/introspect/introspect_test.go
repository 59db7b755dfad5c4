package introspect

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/protodb/internal/errs"
	"github.com/koustreak/protodb/internal/logger"
	"github.com/koustreak/protodb/internal/schema"
	"github.com/koustreak/protodb/internal/typemap"
)

type fakeReader struct {
	tables  []schema.TableRecord
	columns map[string][]schema.ColumnRecord
	indexes map[string][]schema.IndexRecord
	fks     map[string][]schema.ForeignKeyRecord
	checks  map[string][]string

	alterErr error
	altered  []string
	failOn   string
}

func (f *fakeReader) ListTables(_ context.Context, _ string) ([]schema.TableRecord, error) {
	return f.tables, nil
}

func (f *fakeReader) ListColumns(_ context.Context, _, table string) ([]schema.ColumnRecord, error) {
	if table == f.failOn {
		return nil, errs.New(errs.ErrKindQueryFailed, "boom")
	}
	return f.columns[table], nil
}

func (f *fakeReader) ListIndexes(_ context.Context, _, table string) ([]schema.IndexRecord, error) {
	return f.indexes[table], nil
}

func (f *fakeReader) ListForeignKeys(_ context.Context, _, table string) ([]schema.ForeignKeyRecord, error) {
	return f.fks[table], nil
}

func (f *fakeReader) ListCheckConstraints(_ context.Context, _, table string) ([]string, error) {
	return f.checks[table], nil
}

func (f *fakeReader) AddVersionColumn(_ context.Context, schemaName, table, column string) error {
	if f.alterErr != nil {
		return f.alterErr
	}
	f.altered = append(f.altered, schemaName+"."+table+"."+column)
	return nil
}

type recorder struct {
	NopObserver
	events []string
}

func (r *recorder) TableDiscovered(t *schema.Table) { r.events = append(r.events, "table:"+t.Name) }
func (r *recorder) EnumDiscovered(t *schema.Table, c *schema.Column) {
	r.events = append(r.events, "enum:"+t.Name+"."+c.Name)
}
func (r *recorder) MigrationAttempted(t *schema.Table, column string) {
	r.events = append(r.events, "migrate:"+t.Name+"."+column)
}
func (r *recorder) MigrationFailed(t *schema.Table, column string, err error) {
	r.events = append(r.events, "failed:"+t.Name+"."+column)
}

func col(name string, ordinal int, typ string, pkey, seq bool) schema.ColumnRecord {
	return schema.ColumnRecord{
		Name:       name,
		Ordinal:    ordinal,
		DataType:   typ,
		TypeName:   typ,
		Nullable:   !pkey,
		PrimaryKey: pkey,
		Sequence:   seq,
	}
}

func shopReader() *fakeReader {
	return &fakeReader{
		tables: []schema.TableRecord{{Schema: "app", Name: "orders"}, {Schema: "app", Name: "customers"}},
		columns: map[string][]schema.ColumnRecord{
			"customers": {
				col("id", 1, "integer", true, true),
				col("name", 2, "text", false, false),
			},
			"orders": {
				col("id", 1, "integer", true, true),
				col("customer_id", 2, "integer", false, false),
				col("status", 3, "text", false, false),
				col("version", 4, "bigint", false, false),
			},
		},
		indexes: map[string][]schema.IndexRecord{
			"orders": {
				{Name: "list_orders_customer", Column: "customer_id"},
				{Name: "list_orders_customer", Column: "status"},
				{Name: "orders_pkey", Column: "id", Unique: true, Primary: true},
			},
		},
		fks: map[string][]schema.ForeignKeyRecord{
			"orders": {{
				Constraint: "orders_customer_fk", ForeignSchema: "app", ForeignTable: "customers",
				ForeignColumn: "id", LocalColumn: "customer_id", Ordinal: 1,
			}},
		},
		checks: map[string][]string{
			"orders": {
				"CHECK ((status = ANY (ARRAY['OPEN'::text, 'CLOSED'::text])))",
				"CHECK ((missing = ANY (ARRAY['X'::text])))",
				"CHECK ((customer_id > 0))",
			},
		},
	}
}

func TestInspect_OrdersScenario(t *testing.T) {
	rec := &recorder{}
	in := New(shopReader(), Options{VersionColumn: "version", Observer: rec})

	s, err := in.Inspect(context.Background(), "app")
	require.NoError(t, err)
	assert.Equal(t, []string{"customers", "orders"}, s.TableNames())

	orders, ok := s.Table("orders")
	require.True(t, ok)
	assert.Equal(t, []string{"id", "customer_id", "status", "version"}, orders.SelectList)
	assert.Equal(t, []string{"customer_id", "status", "version"}, orders.InsertList)
	assert.Equal(t, []string{"status", "version"}, orders.UpdateList)
	assert.Equal(t, []string{"id"}, orders.PkeyList)
	assert.Equal(t, "id", orders.SequenceColumn)
	assert.Equal(t, "version", orders.VersionColumn)

	status, _ := orders.Column("status")
	require.NotNil(t, status.Enum)
	assert.Equal(t, []string{"OPEN", "CLOSED"}, status.Enum.Values)

	cust, _ := orders.Column("customer_id")
	assert.Nil(t, cust.Enum)
	assert.Equal(t, typemap.KindInt32, cust.Kind)

	require.Len(t, orders.Relations, 1)
	assert.Equal(t, []string{"customer_id"}, orders.Relations[0].LocalColumns())

	list := orders.Indexes["list_orders_customer"]
	require.NotNil(t, list)
	assert.True(t, list.IsList)
	assert.Equal(t, schema.IndexNonUnique, list.Type)
	assert.Equal(t, []string{"customer_id", "status"}, list.Columns)
	assert.Equal(t, schema.IndexPrimaryKey, orders.Indexes["orders_pkey"].Type)
	assert.Contains(t, s.Indexes, "orders_pkey")

	assert.Equal(t, []string{"table:customers", "table:orders", "enum:orders.status"}, rec.events)
}

func TestInspect_ExcludedTables(t *testing.T) {
	for _, excluded := range []string{"customers", "app.customers"} {
		s, err := New(shopReader(), Options{ExcludedTables: []string{excluded}}).Inspect(context.Background(), "app")
		require.NoError(t, err)
		assert.Equal(t, []string{"orders"}, s.TableNames(), excluded)
	}

	s, err := New(shopReader(), Options{ExcludedTables: []string{"other.customers"}}).Inspect(context.Background(), "app")
	require.NoError(t, err)
	assert.Len(t, s.Tables, 2)
}

func TestInspect_InjectsVersionColumn(t *testing.T) {
	r := shopReader()
	rec := &recorder{}
	s, err := New(r, Options{VersionColumn: "version", InjectVersion: true, Observer: rec}).
		Inspect(context.Background(), "app")
	require.NoError(t, err)

	assert.Equal(t, []string{"app.customers.version"}, r.altered)
	customers, _ := s.Table("customers")
	assert.Equal(t, "version", customers.VersionColumn)
	assert.Equal(t, []string{"id", "name", "version"}, customers.SelectList)
	assert.Equal(t, []string{"name", "version"}, customers.InsertList)
	assert.Equal(t, []string{"name", "version"}, customers.UpdateList)

	v, ok := customers.Column("version")
	require.True(t, ok)
	assert.Equal(t, 3, v.Ordinal)
	assert.Equal(t, typemap.KindInt64, v.Kind)
	assert.Contains(t, rec.events, "migrate:customers.version")
}

func TestInspect_VersionInjectionFailureIsNotFatal(t *testing.T) {
	r := shopReader()
	r.alterErr = errors.New("permission denied for table customers")
	rec := &recorder{}

	var buf bytes.Buffer
	log := logger.New(&logger.Config{Level: "warn", Format: "json", Output: &buf})

	s, err := New(r, Options{VersionColumn: "version", InjectVersion: true, Observer: rec, Logger: log}).
		Inspect(context.Background(), "app")
	require.NoError(t, err)

	customers, _ := s.Table("customers")
	assert.False(t, customers.IsVersioned())
	assert.Equal(t, []string{"name"}, customers.InsertList)
	assert.Contains(t, rec.events, "failed:customers.version")
	assert.Contains(t, buf.String(), "version column injection failed")
}

func TestInspect_NoInjectionWithoutFlag(t *testing.T) {
	r := shopReader()
	s, err := New(r, Options{VersionColumn: "version"}).Inspect(context.Background(), "app")
	require.NoError(t, err)
	assert.Empty(t, r.altered)
	customers, _ := s.Table("customers")
	assert.False(t, customers.IsVersioned())
}

func TestInspect_ReaderErrorHaltsRun(t *testing.T) {
	r := shopReader()
	r.failOn = "orders"
	_, err := New(r, Options{}).Inspect(context.Background(), "app")
	require.Error(t, err)
	assert.True(t, errs.IsCatalogAccess(err))
	assert.Contains(t, err.Error(), "inspect table app.orders")
}

func TestInspect_MySQLEnumFromColumnType(t *testing.T) {
	r := &fakeReader{
		tables: []schema.TableRecord{{Schema: "shop", Name: "tickets"}},
		columns: map[string][]schema.ColumnRecord{
			"tickets": {
				col("id", 1, "int", true, true),
				{Name: "state", Ordinal: 2, DataType: "enum", TypeName: "enum('new','done')", EnumValues: []string{"new", "done"}},
			},
		},
	}
	s, err := New(r, Options{}).Inspect(context.Background(), "shop")
	require.NoError(t, err)
	tickets, _ := s.Table("tickets")
	state, _ := tickets.Column("state")
	require.NotNil(t, state.Enum)
	assert.Equal(t, []string{"new", "done"}, state.Enum.Values)
}

func TestLogObserver(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(&logger.Config{Level: "debug", Format: "json", Output: &buf})
	obs := NewLogObserver(log)

	tbl := schema.NewTable("app", "orders")
	obs.TableDiscovered(tbl)
	obs.MigrationFailed(tbl, "version", errors.New("denied"))

	out := buf.String()
	assert.Contains(t, out, `"table":"orders"`)
	assert.Contains(t, out, "table discovered")
	assert.Contains(t, out, `"level":"warn"`)
	assert.Contains(t, out, "denied")
}
