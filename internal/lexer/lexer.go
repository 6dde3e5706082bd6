package lexer

import (
	"fmt"

	"github.com/ooze-lang/ooze/internal/diag"
	"github.com/ooze-lang/ooze/internal/src"
)

// Lexer walks one source buffer and produces tokens with refs into it.
type Lexer struct {
	input  string
	srcID  src.ID
	pos    int
	Errors diag.Errors
}

// New returns a lexer over the text of one source buffer.
func New(input string, id src.ID) *Lexer {
	return &Lexer{input: input, srcID: id}
}

// Lex tokenises an entire buffer.
func Lex(sm *src.Map, id src.ID, text string) ([]Token, diag.Errors) {
	l := New(text, id)
	var toks []Token
	for {
		t := l.Next()
		if t.Type == EOF {
			toks = append(toks, t)
			return toks, l.Errors
		}
		toks = append(toks, t)
	}
}

func (l *Lexer) ref(start int) src.Ref {
	return src.Ref{Src: l.srcID, Start: int32(start), End: int32(l.pos)}
}

func (l *Lexer) peek() byte {
	if l.pos >= len(l.input) {
		return 0
	}
	return l.input[l.pos]
}

func (l *Lexer) peekAt(n int) byte {
	if l.pos+n >= len(l.input) {
		return 0
	}
	return l.input[l.pos+n]
}

func isLetter(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_'
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func (l *Lexer) skipSpace() {
	for l.pos < len(l.input) {
		switch l.input[l.pos] {
		case ' ', '\t', '\r', '\n':
			l.pos++
		case '/':
			if l.peekAt(1) == '/' {
				for l.pos < len(l.input) && l.input[l.pos] != '\n' {
					l.pos++
				}
			} else {
				return
			}
		default:
			return
		}
	}
}

// Next returns the next token, emitting EOF at the end of input.
func (l *Lexer) Next() Token {
	l.skipSpace()
	start := l.pos
	if l.pos >= len(l.input) {
		return Token{Type: EOF, Ref: l.ref(start)}
	}

	c := l.input[l.pos]
	switch c {
	case '(', ')', '{', '}', ',', ':', ';', '&', '=':
		l.pos++
		return Token{Type: TokenType(string(c)), Ref: l.ref(start)}
	case '-':
		if l.peekAt(1) == '>' {
			l.pos += 2
			return Token{Type: ARROW, Ref: l.ref(start)}
		}
		if isDigit(l.peekAt(1)) {
			return l.number()
		}
	case '\'':
		return l.str()
	}

	switch {
	case isDigit(c):
		return l.number()
	case isLetter(c):
		for l.pos < len(l.input) && (isLetter(l.input[l.pos]) || isDigit(l.input[l.pos])) {
			l.pos++
		}
		text := l.input[start:l.pos]
		if text == "_" {
			return Token{Type: UNDERSCORE, Ref: l.ref(start)}
		}
		return Token{Type: LookupIdent(text), Ref: l.ref(start)}
	}

	l.pos++
	ref := l.ref(start)
	l.Errors = append(l.Errors, diag.Error{
		Kind: diag.KindParse,
		Ref:  ref,
		Msg:  fmt.Sprintf("illegal character %q", c),
	})
	return Token{Type: ILLEGAL, Ref: ref}
}

// number lexes an integer or float literal, including a trailing width
// suffix (i8..i64, u8..u64, f32, f64).
func (l *Lexer) number() Token {
	start := l.pos
	if l.peek() == '-' {
		l.pos++
	}
	for isDigit(l.peek()) {
		l.pos++
	}
	isFloat := false
	if l.peek() == '.' && isDigit(l.peekAt(1)) {
		isFloat = true
		l.pos++
		for isDigit(l.peek()) {
			l.pos++
		}
	}
	switch l.peek() {
	case 'i', 'u':
		for isLetter(l.peek()) || isDigit(l.peek()) {
			l.pos++
		}
	case 'f':
		isFloat = true
		for isLetter(l.peek()) || isDigit(l.peek()) {
			l.pos++
		}
	}
	if isFloat {
		return Token{Type: FLOAT, Ref: l.ref(start)}
	}
	return Token{Type: INT, Ref: l.ref(start)}
}

// str lexes a single-quoted string literal.
func (l *Lexer) str() Token {
	start := l.pos
	l.pos++
	for l.pos < len(l.input) && l.input[l.pos] != '\'' {
		if l.input[l.pos] == '\\' && l.pos+1 < len(l.input) {
			l.pos++
		}
		l.pos++
	}
	if l.pos >= len(l.input) {
		ref := l.ref(start)
		l.Errors = append(l.Errors, diag.Error{
			Kind: diag.KindParse,
			Ref:  ref,
			Msg:  "unterminated string literal",
		})
		return Token{Type: ILLEGAL, Ref: ref}
	}
	l.pos++
	return Token{Type: STRING, Ref: l.ref(start)}
}
