package schema

import "strings"

// ParseCheckConstraint extracts the column and literal values from a value
// list check constraint as printed by pg_get_constraintdef, in either shape
// PostgreSQL produces:
//
//	CHECK (((status)::text = ANY ((ARRAY['OPEN'::character varying, 'CLOSED'::character varying])::text[])))
//	CHECK ((status = ANY (ARRAY['OPEN'::text, 'CLOSED'::text])))
//
// ok is false for any other shape.
func ParseCheckConstraint(def string) (column string, values []string, ok bool) {
	s := strings.TrimSpace(def)
	if len(s) < 5 || !strings.EqualFold(s[:5], "CHECK") {
		return "", nil, false
	}
	s = strings.TrimLeft(s[5:], " (")

	column, rest, ok := readConstraintColumn(s)
	if !ok {
		return "", nil, false
	}

	// only closing parens and a cast may sit between the column and = ANY
	rest = skipCasts(rest)
	if !strings.HasPrefix(rest, "= ANY") {
		return "", nil, false
	}
	rest = strings.TrimLeft(rest[len("= ANY"):], " (")
	if !strings.HasPrefix(rest, "ARRAY[") {
		return "", nil, false
	}

	values, rest, ok = parseLiteralList(rest[len("ARRAY["):], ']')
	if !ok || skipCasts(rest[1:]) != "" {
		return "", nil, false
	}
	return column, values, true
}

// skipCasts drops leading spaces, closing parens and ::type casts.
func skipCasts(s string) string {
	for {
		switch {
		case strings.HasPrefix(s, " "), strings.HasPrefix(s, ")"):
			s = s[1:]
		case strings.HasPrefix(s, "::"):
			s = s[2:]
			for s != "" && isCastChar(s[0]) {
				s = s[1:]
			}
			for strings.HasPrefix(s, "[]") {
				s = s[2:]
			}
		default:
			return s
		}
	}
}

func isCastChar(ch byte) bool {
	return ch == '_' || ch == ' ' || ch == '"' ||
		(ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9')
}

// readConstraintColumn reads the column name at the start of s. A bare name
// ends at ')', ' ' or ':'; a quoted name ends at its closing quote.
func readConstraintColumn(s string) (string, string, bool) {
	if s == "" {
		return "", "", false
	}
	if s[0] == '"' {
		for i := 1; i < len(s); i++ {
			if s[i] != '"' {
				continue
			}
			if i+1 < len(s) && s[i+1] == '"' {
				i++
				continue
			}
			return strings.ReplaceAll(s[1:i], `""`, `"`), s[i+1:], true
		}
		return "", "", false
	}

	end := strings.IndexAny(s, ") :")
	if end <= 0 {
		return "", "", false
	}
	return s[:end], s[end:], true
}

// ParseEnumType extracts the members of a MySQL enum column type such as
// enum('OPEN','CLOSED').
func ParseEnumType(columnType string) ([]string, bool) {
	s := strings.TrimSpace(columnType)
	if len(s) < 5 || !strings.EqualFold(s[:5], "enum(") {
		return nil, false
	}
	values, _, ok := parseLiteralList(s[5:], ')')
	return values, ok
}

// parseLiteralList parses 'a'[::type], 'b'[::type] ... up to terminator and
// returns the text from the terminator on. Every element must be a
// single-quoted literal; '' is an escaped quote.
func parseLiteralList(s string, terminator byte) ([]string, string, bool) {
	var values []string
	i := 0
	for {
		for i < len(s) && s[i] == ' ' {
			i++
		}
		if i >= len(s) || s[i] != '\'' {
			return nil, "", false
		}

		var b strings.Builder
		i++
		closed := false
		for i < len(s) {
			if s[i] == '\'' {
				if i+1 < len(s) && s[i+1] == '\'' {
					b.WriteByte('\'')
					i += 2
					continue
				}
				i++
				closed = true
				break
			}
			b.WriteByte(s[i])
			i++
		}
		if !closed {
			return nil, "", false
		}
		values = append(values, b.String())

		// skip a trailing cast up to the separator
		for i < len(s) && s[i] != ',' && s[i] != terminator {
			i++
		}
		if i >= len(s) {
			return nil, "", false
		}
		if s[i] == terminator {
			return values, s[i:], true
		}
		i++ // ','
	}
}
