package schema

// Typed records decoded from catalog queries. Readers produce these at the
// boundary; nothing above a Reader sees a raw row.

// TableRecord is one base table.
type TableRecord struct {
	Schema string
	Name   string
}

// ColumnRecord is one table column.
type ColumnRecord struct {
	Name       string
	Ordinal    int
	DataType   string  // information_schema data_type
	TypeName   string  // format_type on PostgreSQL, column_type on MySQL
	Default    *string // nil if no default
	Nullable   bool
	PrimaryKey bool
	Sequence   bool     // serial / identity / auto_increment
	EnumValues []string // MySQL enum('a','b') members, nil otherwise
}

// IndexRecord is one (index, column) pair. Readers return them ordered by
// index name and then by position within the index.
type IndexRecord struct {
	Name    string
	Column  string
	Unique  bool
	Primary bool
	Comment *string
}

// ForeignKeyRecord is one column pair of a foreign key. Readers return them
// ordered by constraint name and then by ordinal.
type ForeignKeyRecord struct {
	Constraint    string
	ForeignSchema string
	ForeignTable  string
	ForeignColumn string
	LocalColumn   string
	Ordinal       int
}
