package parser

import (
	"strconv"
	"strings"

	"github.com/ooze-lang/ooze/internal/ast"
)

var intSuffixes = map[string]ast.LitKind{
	"":    ast.LitI32,
	"i8":  ast.LitI8,
	"i16": ast.LitI16,
	"i32": ast.LitI32,
	"i64": ast.LitI64,
	"u8":  ast.LitU8,
	"u16": ast.LitU16,
	"u32": ast.LitU32,
	"u64": ast.LitU64,
}

var intBits = map[ast.LitKind]int{
	ast.LitI8: 8, ast.LitI16: 16, ast.LitI32: 32, ast.LitI64: 64,
	ast.LitU8: 8, ast.LitU16: 16, ast.LitU32: 32, ast.LitU64: 64,
}

func splitSuffix(text string) (string, string) {
	i := 0
	if i < len(text) && text[i] == '-' {
		i++
	}
	for i < len(text) && (text[i] >= '0' && text[i] <= '9' || text[i] == '.') {
		i++
	}
	return text[:i], text[i:]
}

// decodeInt decodes an integer literal with an optional width suffix;
// unsuffixed literals are i32.
func decodeInt(text string) (ast.Literal, bool) {
	digits, suffix := splitSuffix(text)
	kind, ok := intSuffixes[suffix]
	if !ok {
		return ast.Literal{}, false
	}
	switch kind {
	case ast.LitU8, ast.LitU16, ast.LitU32, ast.LitU64:
		u, err := strconv.ParseUint(digits, 10, intBits[kind])
		if err != nil {
			return ast.Literal{}, false
		}
		return ast.Literal{Kind: kind, U: u}, true
	default:
		i, err := strconv.ParseInt(digits, 10, intBits[kind])
		if err != nil {
			return ast.Literal{}, false
		}
		return ast.Literal{Kind: kind, I: i}, true
	}
}

// decodeFloat decodes a float literal with an optional f32/f64 suffix;
// unsuffixed literals are f32.
func decodeFloat(text string) (ast.Literal, bool) {
	digits, suffix := splitSuffix(text)
	kind := ast.LitF32
	switch suffix {
	case "", "f32":
	case "f64":
		kind = ast.LitF64
	default:
		return ast.Literal{}, false
	}
	bits := 32
	if kind == ast.LitF64 {
		bits = 64
	}
	f, err := strconv.ParseFloat(digits, bits)
	if err != nil {
		return ast.Literal{}, false
	}
	return ast.Literal{Kind: kind, F: f}, true
}

// decodeString strips the quotes of a string literal and expands the small
// escape set the lexer admits.
func decodeString(text string) ast.Literal {
	body := text[1 : len(text)-1]
	if !strings.ContainsRune(body, '\\') {
		return ast.Literal{Kind: ast.LitStr, S: body}
	}
	var b strings.Builder
	for i := 0; i < len(body); i++ {
		if body[i] != '\\' || i+1 == len(body) {
			b.WriteByte(body[i])
			continue
		}
		i++
		switch body[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		default:
			b.WriteByte(body[i])
		}
	}
	return ast.Literal{Kind: ast.LitStr, S: b.String()}
}
