package schema

import "github.com/koustreak/protodb/internal/typemap"

// QueryKind says which canonical operation a compiled query implements.
type QueryKind string

const (
	KindCreate           QueryKind = "CREATE"
	KindRead             QueryKind = "READ"
	KindUpdate           QueryKind = "UPDATE"
	KindDelete           QueryKind = "DELETE"
	KindForeignKeyUpdate QueryKind = "FOREIGN_KEY_UPDATE"
	KindCustom           QueryKind = "CUSTOM"
)

// StatementType is the SQL statement class, taken from the leading keyword.
type StatementType string

const (
	StatementInsert StatementType = "INSERT"
	StatementUpdate StatementType = "UPDATE"
	StatementSelect StatementType = "SELECT"
	StatementDelete StatementType = "DELETE"
)

// ResultField is one described column of a custom query's result set.
type ResultField struct {
	Name     string
	TypeName string
	Kind     typemap.Kind
	Array    bool
}

// CompiledQuery is a statement ready to be bound and executed.
//
// BindParams lists placeholder names in occurrence order; the i-th native
// marker in SQL binds BindParams[i]. OutputParams lists the result columns
// the statement produces (SELECT projection or RETURNING list).
type CompiledQuery struct {
	Kind      QueryKind
	Name      string
	Statement StatementType

	SQL      string
	NamedSQL string

	BindParams   []string
	OutputParams []string

	Result []ResultField
}
