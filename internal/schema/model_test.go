package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/protodb/internal/typemap"
)

func ordersTable() *Table {
	t := NewTable("app", "order_items")
	for i, name := range []string{"id", "order_id", "sku", "qty"} {
		c := &Column{Schema: "app", Table: "order_items", Name: name, Ordinal: i + 1}
		c.SetType("integer", "integer")
		t.AddColumn(c)
		t.Include(ListSelect, name)
	}
	return t
}

func TestTable_Names(t *testing.T) {
	tbl := ordersTable()
	assert.Equal(t, "app.order_items", tbl.FQN())
	assert.Equal(t, "OrderItems", tbl.RecordName())

	c, ok := tbl.Column("order_id")
	require.True(t, ok)
	assert.Equal(t, "orderId", c.FieldName())
	assert.Equal(t, typemap.KindInt32, c.Kind)
}

func TestTable_IncludeKeepsColumnOrder(t *testing.T) {
	tbl := ordersTable()

	tbl.Include(ListInsert, "qty")
	tbl.Include(ListInsert, "order_id")
	tbl.Include(ListInsert, "sku")
	tbl.Include(ListInsert, "sku")
	assert.Equal(t, []string{"order_id", "sku", "qty"}, tbl.InsertList)

	tbl.Exclude(ListInsert, "sku")
	assert.Equal(t, []string{"order_id", "qty"}, tbl.InsertList)
	assert.False(t, tbl.Contains(ListInsert, "sku"))
}

func TestTable_AddColumnSortsByOrdinal(t *testing.T) {
	tbl := ordersTable()
	tbl.AddColumn(&Column{Name: "version", Ordinal: tbl.LastOrdinal() + 1})
	tbl.AddColumn(&Column{Name: "early", Ordinal: 0})

	assert.Equal(t, "early", tbl.Columns[0].Name)
	assert.Equal(t, "version", tbl.Columns[len(tbl.Columns)-1].Name)
	assert.Equal(t, 5, tbl.LastOrdinal())
}

func TestTable_CloneIsIndependent(t *testing.T) {
	tbl := ordersTable()
	tbl.Indexes["lookup_sku"] = &Index{Name: "lookup_sku", Columns: []string{"sku"}}
	tbl.Relations = []*ForeignRelation{{Constraint: "fk_order", Columns: []ForeignColumn{{Local: "order_id", Foreign: "id"}}}}
	col, _ := tbl.Column("sku")
	col.Enum = &EnumDomain{Values: []string{"A"}}

	cp := tbl.Clone()
	cp.Exclude(ListSelect, "sku")
	cpCol, _ := cp.Column("sku")
	cpCol.Excluded = true
	cpCol.Enum.Values[0] = "Z"
	cp.Indexes["lookup_sku"].Columns[0] = "qty"
	cp.Relations[0].Columns[0].Local = "sku"

	assert.True(t, tbl.Contains(ListSelect, "sku"))
	assert.False(t, col.Excluded)
	assert.Equal(t, "A", col.Enum.Values[0])
	assert.Equal(t, "sku", tbl.Indexes["lookup_sku"].Columns[0])
	assert.Equal(t, "order_id", tbl.Relations[0].Columns[0].Local)
}

func TestTable_Predicates(t *testing.T) {
	tbl := ordersTable()
	assert.False(t, tbl.HasPrimaryKey())
	assert.False(t, tbl.IsVersioned())
	assert.False(t, tbl.HasEnums())
	assert.True(t, tbl.HasKind(typemap.KindInt32))
	assert.False(t, tbl.HasArrays())

	tbl.Relations = []*ForeignRelation{{Constraint: "fk", Columns: []ForeignColumn{{Local: "order_id"}}}}
	assert.True(t, tbl.IsForeignKeyColumn("order_id"))
	assert.False(t, tbl.IsForeignKeyColumn("sku"))
}

func TestSchema_CloneRebuildsIndexes(t *testing.T) {
	s := New("app")
	tbl := ordersTable()
	tbl.Indexes["list_order"] = &Index{Name: "list_order", Columns: []string{"order_id"}}
	s.AddTable(tbl)

	cp := s.Clone()
	require.Contains(t, cp.Indexes, "list_order")
	assert.Same(t, cp.Tables["order_items"].Indexes["list_order"], cp.Indexes["list_order"])
	assert.NotSame(t, s.Indexes["list_order"], cp.Indexes["list_order"])
	assert.Equal(t, []string{"order_items"}, cp.TableNames())
}
