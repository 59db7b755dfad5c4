// Package typemap maps catalog type names to the abstract scalar kinds used
// by generated records.
//
// Names are accepted in every shape the catalogs report them: PostgreSQL
// regtype / format_type text ("character varying", "integer[]",
// "timestamp with time zone"), PostgreSQL udt names ("int4", "_int4"),
// information_schema array notation ("{array,int4}") and MySQL column types
// ("int(11) unsigned", "tinyint(1)", "enum('a','b')").
package typemap

import "strings"

// Kind is an abstract scalar kind.
type Kind string

const (
	KindInt32     Kind = "int32"
	KindInt64     Kind = "int64"
	KindFloat     Kind = "float"
	KindDouble    Kind = "double"
	KindBool      Kind = "bool"
	KindString    Kind = "string"
	KindBytes     Kind = "bytes"
	KindTimestamp Kind = "timestamp"
)

// Fallback is the kind used for names the mapper does not recognize.
const Fallback = KindBytes

// Type is the result of mapping one catalog type name.
type Type struct {
	Kind  Kind
	Array bool
	// Known is false when Kind is the Fallback for an unrecognized name.
	Known bool
}

var exact = map[string]Kind{
	// integers
	"bigint":      KindInt64,
	"int8":        KindInt64,
	"bigserial":   KindInt64,
	"serial8":     KindInt64,
	"integer":     KindInt32,
	"int":         KindInt32,
	"int4":        KindInt32,
	"serial":      KindInt32,
	"serial4":     KindInt32,
	"smallint":    KindInt32,
	"int2":        KindInt32,
	"smallserial": KindInt32,
	"serial2":     KindInt32,
	"tinyint":     KindInt32,
	"mediumint":   KindInt32,
	"year":        KindInt32,

	// floating point
	"real":             KindFloat,
	"float4":           KindFloat,
	"float":            KindFloat,
	"double precision": KindDouble,
	"float8":           KindDouble,
	"double":           KindDouble,
	"money":            KindDouble,

	"boolean": KindBool,
	"bool":    KindBool,

	// text
	"text":       KindString,
	"varchar":    KindString,
	"uuid":       KindString,
	"xml":        KindString,
	"json":       KindString,
	"citext":     KindString,
	"name":       KindString,
	"tinytext":   KindString,
	"mediumtext": KindString,
	"longtext":   KindString,
	"enum":       KindString,
	"set":        KindString,

	// binary
	"bytea":      KindBytes,
	"jsonb":      KindBytes,
	"blob":       KindBytes,
	"tinyblob":   KindBytes,
	"mediumblob": KindBytes,
	"longblob":   KindBytes,
	"binary":     KindBytes,
	"varbinary":  KindBytes,

	"date":     KindTimestamp,
	"datetime": KindTimestamp,
}

// prefixes are checked in order after an exact lookup fails.
var prefixes = []struct {
	prefix string
	kind   Kind
}{
	{"timestamp", KindTimestamp},
	{"time", KindInt64},
	{"bit", KindInt32},
	{"char", KindString},
	{"character", KindString},
	{"numeric", KindDouble},
	{"decimal", KindDouble},
}

// Map maps a catalog type name to its Type. Unknown names map to Fallback
// with Known set to false.
func Map(name string) Type {
	base, array := normalize(name)

	if base == "tinyint(1)" {
		return Type{Kind: KindBool, Array: array, Known: true}
	}

	unsigned := strings.HasSuffix(base, " unsigned")
	base = strings.TrimSuffix(base, " unsigned")
	base = strings.TrimSuffix(base, " zerofill")
	base = stripModifier(base)

	if k, ok := exact[base]; ok {
		if unsigned && k == KindInt32 && (base == "int" || base == "integer") {
			k = KindInt64
		}
		return Type{Kind: k, Array: array, Known: true}
	}

	for _, p := range prefixes {
		if strings.HasPrefix(base, p.prefix) {
			return Type{Kind: p.kind, Array: array, Known: true}
		}
	}
	return Type{Kind: Fallback, Array: array}
}

// KindOf is Map(name).Kind.
func KindOf(name string) Kind {
	return Map(name).Kind
}

// normalize lower-cases name and strips every array notation, reporting
// whether one was present.
func normalize(name string) (string, bool) {
	s := strings.ToLower(strings.TrimSpace(name))
	array := false

	if strings.HasPrefix(s, "{array,") && strings.HasSuffix(s, "}") {
		s = strings.TrimSuffix(strings.TrimPrefix(s, "{array,"), "}")
		array = true
	}
	for strings.HasSuffix(s, "[]") {
		s = strings.TrimSuffix(s, "[]")
		array = true
	}
	if strings.HasPrefix(s, "_") && len(s) > 1 {
		s = s[1:]
		array = true
	}
	return strings.TrimSpace(s), array
}

// stripModifier removes a parenthesized length/precision/value list, so
// "varchar(255)" becomes "varchar" and "numeric(10,2)" becomes "numeric".
// Text after the closing parenthesis is kept: "time(3) with time zone"
// becomes "time with time zone".
func stripModifier(s string) string {
	open := strings.IndexByte(s, '(')
	if open < 0 {
		return s
	}
	end := strings.LastIndexByte(s, ')')
	if end < open {
		return strings.TrimSpace(s[:open])
	}
	return strings.TrimSpace(strings.TrimSpace(s[:open]) + " " + strings.TrimSpace(s[end+1:]))
}
