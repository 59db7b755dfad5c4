// Package sqlscan is a small SQL tokenizer. It knows just enough SQL to find
// statement keywords, `$name` placeholders, parenthesis nesting and list
// commas, and to skip everything a placeholder can never live in: string
// literals, quoted identifiers, comments and dollar-quoted bodies.
//
// Tokens keep their byte offsets into the original input so callers can
// rewrite the text by splicing instead of re-rendering it.
package sqlscan

import (
	"fmt"
	"strings"
)

// TokenType identifies the lexical class of a token.
type TokenType int

const (
	EOF         TokenType = iota
	Word                  // identifier or keyword
	QuotedIdent           // "name" or `name`
	String                // 'text', E'text' or a dollar-quoted body
	Number                // 42, 3.14, 1e9
	Placeholder           // $name
	Positional            // $1
	Comma                 // ,
	LParen                // (
	RParen                // )
	Dot                   // .
	Star                  // *
	Semicolon             // ;
	Operator              // any other punctuation, e.g. =, <>, ::
)

var tokenNames = map[TokenType]string{
	EOF:         "EOF",
	Word:        "WORD",
	QuotedIdent: "QUOTED_IDENT",
	String:      "STRING",
	Number:      "NUMBER",
	Placeholder: "PLACEHOLDER",
	Positional:  "POSITIONAL",
	Comma:       "COMMA",
	LParen:      "LPAREN",
	RParen:      "RPAREN",
	Dot:         "DOT",
	Star:        "STAR",
	Semicolon:   "SEMICOLON",
	Operator:    "OPERATOR",
}

func (t TokenType) String() string {
	if s, ok := tokenNames[t]; ok {
		return s
	}
	return fmt.Sprintf("TokenType(%d)", int(t))
}

// Token is one lexical unit. Text is input[Pos:End].
type Token struct {
	Type TokenType
	Text string
	Pos  int
	End  int
}

// Keyword returns the upper-cased text of a Word token and "" otherwise.
func (t Token) Keyword() string {
	if t.Type != Word {
		return ""
	}
	return strings.ToUpper(t.Text)
}

// Is reports whether t is the Word kw, compared case-insensitively.
func (t Token) Is(kw string) bool {
	return t.Type == Word && strings.EqualFold(t.Text, kw)
}

// Name returns the placeholder name without its `$`, or the identifier with
// quotes removed for QuotedIdent, or Text for anything else.
func (t Token) Name() string {
	switch t.Type {
	case Placeholder:
		return t.Text[1:]
	case QuotedIdent:
		return Unquote(t.Text)
	default:
		return t.Text
	}
}

// singleCharTokens maps single-byte punctuation to their token types.
var singleCharTokens = map[byte]TokenType{
	',': Comma,
	'(': LParen,
	')': RParen,
	'.': Dot,
	'*': Star,
	';': Semicolon,
}

// Scanner splits SQL text into tokens.
type Scanner struct {
	input  string
	pos    int
	length int
}

// New creates a Scanner over input. Unlike a keyword lexer it preserves case
// so that rewritten SQL keeps the author's text.
func New(input string) *Scanner {
	return &Scanner{input: input, length: len(input)}
}

// Tokenize scans the whole input. The returned slice never includes EOF.
func Tokenize(input string) ([]Token, error) {
	s := New(input)
	var toks []Token
	for {
		tok, err := s.Next()
		if err != nil {
			return nil, err
		}
		if tok.Type == EOF {
			return toks, nil
		}
		toks = append(toks, tok)
	}
}

// Next returns the next token, skipping whitespace and comments.
func (s *Scanner) Next() (Token, error) {
	if err := s.skipTrivia(); err != nil {
		return Token{}, err
	}
	if s.pos >= s.length {
		return Token{Type: EOF, Pos: s.pos, End: s.pos}, nil
	}

	start := s.pos
	ch := s.input[s.pos]

	if tt, ok := singleCharTokens[ch]; ok {
		s.pos++
		return s.token(tt, start), nil
	}

	switch {
	case ch == '\'':
		return s.readString(start, false)
	case (ch == 'E' || ch == 'e') && s.peek(1) == '\'':
		s.pos++
		return s.readString(start, true)
	case ch == '"' || ch == '`':
		return s.readQuotedIdent(start, ch)
	case ch == '$':
		return s.readDollar(start)
	case isDigit(ch):
		return s.readNumber(start), nil
	case isIdentStart(ch):
		return s.readWord(start), nil
	default:
		return s.readOperator(start), nil
	}
}

func (s *Scanner) token(tt TokenType, start int) Token {
	return Token{Type: tt, Text: s.input[start:s.pos], Pos: start, End: s.pos}
}

func (s *Scanner) peek(offset int) byte {
	if s.pos+offset < s.length {
		return s.input[s.pos+offset]
	}
	return 0
}

// skipTrivia advances past whitespace, -- line comments and /* */ block
// comments. Block comments nest, as they do in PostgreSQL.
func (s *Scanner) skipTrivia() error {
	for s.pos < s.length {
		ch := s.input[s.pos]
		switch {
		case isSpace(ch):
			s.pos++
		case ch == '-' && s.peek(1) == '-':
			for s.pos < s.length && s.input[s.pos] != '\n' {
				s.pos++
			}
		case ch == '/' && s.peek(1) == '*':
			start := s.pos
			depth := 0
			for s.pos < s.length {
				if s.input[s.pos] == '/' && s.peek(1) == '*' {
					depth++
					s.pos += 2
					continue
				}
				if s.input[s.pos] == '*' && s.peek(1) == '/' {
					depth--
					s.pos += 2
					if depth == 0 {
						break
					}
					continue
				}
				s.pos++
			}
			if depth != 0 {
				return &Error{Pos: start, Msg: "unterminated block comment"}
			}
		default:
			return nil
		}
	}
	return nil
}

// readString reads a single-quoted literal. '' is an escaped quote; with
// backslash set (E'...' strings) a backslash escapes the next byte.
func (s *Scanner) readString(start int, backslash bool) (Token, error) {
	s.pos++ // opening quote
	for s.pos < s.length {
		ch := s.input[s.pos]
		switch {
		case backslash && ch == '\\':
			s.pos += 2
		case ch == '\'' && s.peek(1) == '\'':
			s.pos += 2
		case ch == '\'':
			s.pos++
			return s.token(String, start), nil
		default:
			s.pos++
		}
	}
	return Token{}, &Error{Pos: start, Msg: "unterminated string literal"}
}

func (s *Scanner) readQuotedIdent(start int, quote byte) (Token, error) {
	s.pos++
	for s.pos < s.length {
		if s.input[s.pos] == quote {
			if s.peek(1) == quote {
				s.pos += 2
				continue
			}
			s.pos++
			return s.token(QuotedIdent, start), nil
		}
		s.pos++
	}
	return Token{}, &Error{Pos: start, Msg: "unterminated quoted identifier"}
}

// readDollar handles everything starting with `$`: positional markers ($1),
// named placeholders ($name) and dollar-quoted bodies ($$...$$, $tag$...$tag$).
func (s *Scanner) readDollar(start int) (Token, error) {
	next := s.peek(1)

	if isDigit(next) {
		s.pos++
		for s.pos < s.length && isDigit(s.input[s.pos]) {
			s.pos++
		}
		return s.token(Positional, start), nil
	}

	if next == '$' {
		return s.readDollarBody(start, "$$")
	}

	if !isIdentStart(next) {
		s.pos++
		return s.token(Operator, start), nil
	}

	s.pos++
	for s.pos < s.length && isIdentChar(s.input[s.pos]) {
		s.pos++
	}
	if s.pos < s.length && s.input[s.pos] == '$' {
		return s.readDollarBody(start, s.input[start:s.pos+1])
	}
	return s.token(Placeholder, start), nil
}

func (s *Scanner) readDollarBody(start int, tag string) (Token, error) {
	bodyStart := start + len(tag)
	end := strings.Index(s.input[bodyStart:], tag)
	if end < 0 {
		return Token{}, &Error{Pos: start, Msg: "unterminated dollar-quoted string " + tag}
	}
	s.pos = bodyStart + end + len(tag)
	return s.token(String, start), nil
}

func (s *Scanner) readNumber(start int) Token {
	for s.pos < s.length {
		ch := s.input[s.pos]
		switch {
		case isDigit(ch), ch == '.' && isDigit(s.peek(1)):
			s.pos++
		case (ch == 'e' || ch == 'E') && (isDigit(s.peek(1)) || (s.peek(1) == '-' || s.peek(1) == '+') && isDigit(s.peek(2))):
			s.pos += 2
		default:
			return s.token(Number, start)
		}
	}
	return s.token(Number, start)
}

func (s *Scanner) readWord(start int) Token {
	for s.pos < s.length && isIdentChar(s.input[s.pos]) {
		s.pos++
	}
	return s.token(Word, start)
}

// readOperator reads a run of operator characters. A run never swallows the
// start of a comment or a placeholder.
func (s *Scanner) readOperator(start int) Token {
	s.pos++
	for s.pos < s.length && isOperatorChar(s.input[s.pos]) {
		if (s.input[s.pos] == '-' && s.peek(1) == '-') || (s.input[s.pos] == '/' && s.peek(1) == '*') {
			break
		}
		s.pos++
	}
	return s.token(Operator, start)
}

// Unquote strips the surrounding quotes of a quoted identifier and collapses
// doubled quote characters. Other text is returned unchanged.
func Unquote(ident string) string {
	if len(ident) < 2 {
		return ident
	}
	q := ident[0]
	if (q != '"' && q != '`') || ident[len(ident)-1] != q {
		return ident
	}
	inner := ident[1 : len(ident)-1]
	return strings.ReplaceAll(inner, string([]byte{q, q}), string(q))
}

// Error is a lexical error at a byte offset.
type Error struct {
	Pos int
	Msg string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s at offset %d", e.Msg, e.Pos)
}

func isSpace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r' || ch == '\f' || ch == '\v'
}

func isDigit(ch byte) bool { return ch >= '0' && ch <= '9' }

func isIdentStart(ch byte) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch >= 0x80
}

func isIdentChar(ch byte) bool {
	return isIdentStart(ch) || isDigit(ch)
}

func isOperatorChar(ch byte) bool {
	return strings.IndexByte("+-/<>=~!@#%^&|?:", ch) >= 0
}
