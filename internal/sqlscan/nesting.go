package sqlscan

// Depths returns the parenthesis depth of every token. A parenthesis
// token has the depth of the clause it opens or closes, so in
// "f(a)" the tokens f ( ) sit at depth 0 and a at depth 1.
func Depths(toks []Token) ([]int, error) {
	depths := make([]int, len(toks))
	depth := 0
	for i, t := range toks {
		switch t.Type {
		case LParen:
			depths[i] = depth
			depth++
		case RParen:
			depth--
			if depth < 0 {
				return nil, &Error{Pos: t.Pos, Msg: "unbalanced ')'"}
			}
			depths[i] = depth
		default:
			depths[i] = depth
		}
	}
	if depth != 0 {
		return nil, &Error{Pos: toks[len(toks)-1].End, Msg: "unbalanced '('"}
	}
	return depths, nil
}

// SplitList splits toks on commas at depth base, the depth of the list
// itself. depths must be the result of Depths for the enclosing slice.
func SplitList(toks []Token, depths []int, base int) [][]Token {
	var (
		items [][]Token
		start int
	)
	for i, t := range toks {
		if t.Type == Comma && depths[i] == base {
			items = append(items, toks[start:i])
			start = i + 1
		}
	}
	if start < len(toks) {
		items = append(items, toks[start:])
	}
	return items
}

// Placeholders returns the names of every `$name` placeholder in sql, in
// source order with duplicates preserved.
func Placeholders(sql string) ([]string, error) {
	toks, err := Tokenize(sql)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, t := range toks {
		if t.Type == Placeholder {
			names = append(names, t.Name())
		}
	}
	return names, nil
}
