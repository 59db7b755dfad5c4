package schema

import (
	"slices"
	"sort"

	"github.com/go-openapi/inflect"

	"github.com/koustreak/protodb/internal/typemap"
)

// Column is one column of a Table. Catalog columns come from introspection;
// virtual columns are introduced by select transforms and have no backing
// catalog column.
type Column struct {
	Schema string
	Table  string
	Name   string

	// DataType is the information_schema data_type ("character varying",
	// "ARRAY", "int"). TypeName is the normalized catalog type (regtype text
	// on PostgreSQL, column_type on MySQL) and drives Kind.
	DataType string
	TypeName string
	Kind     typemap.Kind
	Array    bool

	Ordinal int
	Default *string

	Nullable   bool
	PrimaryKey bool
	Sequence   bool
	Virtual    bool
	Excluded   bool
	Version    bool

	Enum *EnumDomain

	SelectXform string
	InsertXform string
	UpdateXform string
}

// EnumDomain is the ordered set of literal values a column may hold.
type EnumDomain struct {
	Values []string
}

// FieldName is the lower camel case record field name for the column.
func (c *Column) FieldName() string {
	return inflect.CamelizeDownFirst(c.Name)
}

// SetType records a catalog type name and derives Kind and Array from it.
func (c *Column) SetType(dataType, typeName string) {
	c.DataType = dataType
	c.TypeName = typeName
	mapped := typemap.Map(typeName)
	c.Kind = mapped.Kind
	c.Array = mapped.Array
}

func (c *Column) clone() *Column {
	cp := *c
	if c.Enum != nil {
		cp.Enum = &EnumDomain{Values: slices.Clone(c.Enum.Values)}
	}
	return &cp
}

// IndexType classifies an index by its uniqueness.
type IndexType string

const (
	IndexPrimaryKey IndexType = "primary_key"
	IndexUnique     IndexType = "unique"
	IndexNonUnique  IndexType = "non_unique"
)

// Index prefixes that mark an index as backing a list or lookup accessor.
const (
	ListPrefix   = "list_"
	LookupPrefix = "lookup_"
)

// Index is a table index with its columns in index order.
type Index struct {
	Schema   string
	Table    string
	Name     string
	Type     IndexType
	Columns  []string
	IsList   bool
	IsLookup bool
	Comment  string
}

func (i *Index) clone() *Index {
	cp := *i
	cp.Columns = slices.Clone(i.Columns)
	return &cp
}

// ForeignColumn pairs a local column with the column it references.
type ForeignColumn struct {
	Local   string
	Foreign string
	Ordinal int
}

// ForeignRelation is one foreign key constraint of the referencing table.
type ForeignRelation struct {
	Constraint    string
	ForeignSchema string
	ForeignTable  string
	Columns       []ForeignColumn
}

// LocalColumns returns the referencing columns in constraint order.
func (r *ForeignRelation) LocalColumns() []string {
	out := make([]string, len(r.Columns))
	for i, fc := range r.Columns {
		out[i] = fc.Local
	}
	return out
}

func (r *ForeignRelation) clone() *ForeignRelation {
	cp := *r
	cp.Columns = slices.Clone(r.Columns)
	return &cp
}

// List names one of a table's derived column-name lists.
type List int

const (
	ListSelect List = iota
	ListInsert
	ListUpdate
	ListPkey
)

func (l List) String() string {
	switch l {
	case ListSelect:
		return "select"
	case ListInsert:
		return "insert"
	case ListUpdate:
		return "update"
	case ListPkey:
		return "pkey"
	default:
		return "unknown"
	}
}

// Table is one relational table and everything derived from it.
//
// Columns are kept in catalog ordinal order with virtual columns after the
// last catalog ordinal. The four lists are always kept in that same order.
type Table struct {
	Schema  string
	Name    string
	Columns []*Column

	SelectList []string
	InsertList []string
	UpdateList []string
	PkeyList   []string

	SequenceColumn string
	VersionColumn  string

	Indexes   map[string]*Index
	Relations []*ForeignRelation

	Extension     string
	CustomQueries map[string]*CompiledQuery
}

// NewTable returns an empty table ready for introspection.
func NewTable(schemaName, name string) *Table {
	return &Table{
		Schema:        schemaName,
		Name:          name,
		Indexes:       make(map[string]*Index),
		CustomQueries: make(map[string]*CompiledQuery),
	}
}

// FQN is the schema-qualified table name used in generated SQL.
func (t *Table) FQN() string {
	return t.Schema + "." + t.Name
}

// RecordName is the upper camel case record type name for the table.
func (t *Table) RecordName() string {
	return inflect.Camelize(t.Name)
}

// Column looks a column up by name.
func (t *Table) Column(name string) (*Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// LastOrdinal is the highest ordinal of any column, 0 for an empty table.
func (t *Table) LastOrdinal() int {
	last := 0
	for _, c := range t.Columns {
		last = max(last, c.Ordinal)
	}
	return last
}

// AddColumn appends c, keeping Columns in ordinal order.
func (t *Table) AddColumn(c *Column) {
	t.Columns = append(t.Columns, c)
	sort.SliceStable(t.Columns, func(i, j int) bool {
		return t.Columns[i].Ordinal < t.Columns[j].Ordinal
	})
}

// HasPrimaryKey reports whether the table has at least one key column.
func (t *Table) HasPrimaryKey() bool { return len(t.PkeyList) > 0 }

// IsVersioned reports whether the table carries an optimistic-concurrency
// version column.
func (t *Table) IsVersioned() bool { return t.VersionColumn != "" }

// HasEnums reports whether any column carries an EnumDomain.
func (t *Table) HasEnums() bool {
	return slices.ContainsFunc(t.Columns, func(c *Column) bool { return c.Enum != nil })
}

// HasKind reports whether any selected column maps to kind.
func (t *Table) HasKind(kind typemap.Kind) bool {
	return slices.ContainsFunc(t.Columns, func(c *Column) bool {
		return c.Kind == kind && t.Contains(ListSelect, c.Name)
	})
}

// HasArrays reports whether any selected column is an array.
func (t *Table) HasArrays() bool {
	return slices.ContainsFunc(t.Columns, func(c *Column) bool {
		return c.Array && t.Contains(ListSelect, c.Name)
	})
}

// IsForeignKeyColumn reports whether name is the local side of any relation.
func (t *Table) IsForeignKeyColumn(name string) bool {
	for _, r := range t.Relations {
		if slices.Contains(r.LocalColumns(), name) {
			return true
		}
	}
	return false
}

func (t *Table) list(l List) *[]string {
	switch l {
	case ListSelect:
		return &t.SelectList
	case ListInsert:
		return &t.InsertList
	case ListUpdate:
		return &t.UpdateList
	default:
		return &t.PkeyList
	}
}

// Contains reports whether name is on list l.
func (t *Table) Contains(l List, name string) bool {
	return slices.Contains(*t.list(l), name)
}

// Include adds name to list l at its column-order position. It is a no-op
// when name is already present.
func (t *Table) Include(l List, name string) {
	list := t.list(l)
	if slices.Contains(*list, name) {
		return
	}
	pos := t.position(name)
	at := len(*list)
	for i, n := range *list {
		if t.position(n) > pos {
			at = i
			break
		}
	}
	*list = slices.Insert(*list, at, name)
}

// Exclude removes name from list l.
func (t *Table) Exclude(l List, name string) {
	list := t.list(l)
	*list = slices.DeleteFunc(*list, func(n string) bool { return n == name })
}

// position is the index of name in Columns, or len(Columns) if absent.
func (t *Table) position(name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return len(t.Columns)
}

// Clone returns a deep copy of t. Compiled queries are shared since they are
// never mutated.
func (t *Table) Clone() *Table {
	cp := *t
	cp.Columns = make([]*Column, len(t.Columns))
	for i, c := range t.Columns {
		cp.Columns[i] = c.clone()
	}
	cp.SelectList = slices.Clone(t.SelectList)
	cp.InsertList = slices.Clone(t.InsertList)
	cp.UpdateList = slices.Clone(t.UpdateList)
	cp.PkeyList = slices.Clone(t.PkeyList)

	cp.Indexes = make(map[string]*Index, len(t.Indexes))
	for name, idx := range t.Indexes {
		cp.Indexes[name] = idx.clone()
	}
	cp.Relations = make([]*ForeignRelation, len(t.Relations))
	for i, r := range t.Relations {
		cp.Relations[i] = r.clone()
	}
	cp.CustomQueries = make(map[string]*CompiledQuery, len(t.CustomQueries))
	for name, q := range t.CustomQueries {
		cp.CustomQueries[name] = q
	}
	return &cp
}

// Schema is one introspected database schema.
type Schema struct {
	Name    string
	Tables  map[string]*Table
	Indexes map[string]*Index // schema-wide, keyed by index name
}

// New returns an empty schema.
func New(name string) *Schema {
	return &Schema{
		Name:    name,
		Tables:  make(map[string]*Table),
		Indexes: make(map[string]*Index),
	}
}

// AddTable registers t and its indexes.
func (s *Schema) AddTable(t *Table) {
	s.Tables[t.Name] = t
	for name, idx := range t.Indexes {
		s.Indexes[name] = idx
	}
}

// Table looks a table up by name.
func (s *Schema) Table(name string) (*Table, bool) {
	t, ok := s.Tables[name]
	return t, ok
}

// TableNames returns the table names in sorted order.
func (s *Schema) TableNames() []string {
	names := make([]string, 0, len(s.Tables))
	for name := range s.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep copy of s. The schema-wide index map points at the
// cloned tables' indexes.
func (s *Schema) Clone() *Schema {
	cp := New(s.Name)
	for _, name := range s.TableNames() {
		cp.AddTable(s.Tables[name].Clone())
	}
	return cp
}
