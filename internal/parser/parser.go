package parser

import (
	"strings"

	"github.com/ooze-lang/ooze/internal/ast"
	"github.com/ooze-lang/ooze/internal/diag"
	"github.com/ooze-lang/ooze/internal/lexer"
	"github.com/ooze-lang/ooze/internal/src"
	"github.com/ooze-lang/ooze/internal/types"
)

// Annotation is a type-annotation site the parser emitted: a leaf type node
// whose native id must be bound by name resolution.
type Annotation struct {
	T   types.Type
	Ref src.Ref
}

// grammar carries the builders the start symbols append into.
type grammar struct {
	s    *state
	a    *ast.AST
	tg   *types.Graph
	anns []Annotation
}

func span(a, b src.Ref) src.Ref {
	return src.Ref{Src: a.Src, Start: a.Start, End: b.End}
}

func (g *grammar) expect(pos int, tt lexer.TokenType) (lexer.Token, int, bool) {
	return Constant(tt, "'"+string(tt)+"'")(g.s, pos)
}

// ---- types ----

func (g *grammar) typeNode(pos int) (types.Type, int, bool) {
	switch g.s.peek(pos) {
	case lexer.UNDERSCORE:
		t := g.s.at(pos)
		return g.tg.Add(types.Floating, 0, t.Ref), pos + 1, true
	case lexer.IDENT:
		t := g.s.at(pos)
		n := g.tg.Add(types.Leaf, 0, t.Ref)
		g.anns = append(g.anns, Annotation{T: n, Ref: t.Ref})
		return n, pos + 1, true
	case lexer.AMPERSAND:
		amp := g.s.at(pos)
		inner, next, ok := g.typeNode(pos + 1)
		if !ok {
			return types.None, next, false
		}
		return g.tg.Add(types.Borrow, 0, span(amp.Ref, g.tg.Ref(inner)), inner), next, true
	case lexer.FN:
		fn := g.s.at(pos)
		arg, next, ok := g.typeTuple(pos + 1)
		if !ok {
			return types.None, next, false
		}
		if _, next, ok = g.expect(next, lexer.ARROW); !ok {
			return types.None, next, false
		}
		ret, next, ok := g.typeNode(next)
		if !ok {
			return types.None, next, false
		}
		return g.tg.Add(types.Fn, 0, span(fn.Ref, g.tg.Ref(ret)), arg, ret), next, true
	case lexer.LPAREN:
		return g.typeTuple(pos)
	}
	g.s.fail(pos, "a type")
	return types.None, pos, false
}

func (g *grammar) typeTuple(pos int) (types.Type, int, bool) {
	open, pos, ok := g.expect(pos, lexer.LPAREN)
	if !ok {
		return types.None, pos, false
	}
	var kids []types.Type
	if g.s.peek(pos) != lexer.RPAREN {
		for {
			k, next, ok := g.typeNode(pos)
			if !ok {
				return types.None, next, false
			}
			kids = append(kids, k)
			pos = next
			if g.s.peek(pos) != lexer.COMMA {
				break
			}
			pos++
		}
	}
	close, pos, ok := g.expect(pos, lexer.RPAREN)
	if !ok {
		return types.None, pos, false
	}
	return g.tg.Add(types.Tuple, 0, span(open.Ref, close.Ref), kids...), pos, true
}

// ---- patterns ----

func (g *grammar) pattern(pos int) (ast.ID, int, bool) {
	switch g.s.peek(pos) {
	case lexer.UNDERSCORE:
		t := g.s.at(pos)
		return g.a.Append(ast.PatternWildCard, t.Ref, types.None), pos + 1, true
	case lexer.IDENT:
		t := g.s.at(pos)
		return g.a.Append(ast.PatternIdent, t.Ref, types.None), pos + 1, true
	case lexer.LPAREN:
		open := g.s.at(pos)
		pos++
		var kids []ast.ID
		if g.s.peek(pos) != lexer.RPAREN {
			for {
				k, next, ok := g.pattern(pos)
				if !ok {
					return ast.None, next, false
				}
				kids = append(kids, k)
				pos = next
				if g.s.peek(pos) != lexer.COMMA {
					break
				}
				pos++
			}
		}
		close, pos, ok := g.expect(pos, lexer.RPAREN)
		if !ok {
			return ast.None, pos, false
		}
		return g.a.Append(ast.PatternTuple, span(open.Ref, close.Ref), types.None, kids...), pos, true
	}
	g.s.fail(pos, "a pattern")
	return ast.None, pos, false
}

// binding is a pattern with an optional type annotation attached to it.
func (g *grammar) binding(pos int) (ast.ID, int, bool) {
	pat, pos, ok := g.pattern(pos)
	if !ok {
		return ast.None, pos, false
	}
	if g.s.peek(pos) == lexer.COLON {
		t, next, ok := g.typeNode(pos + 1)
		if !ok {
			return ast.None, next, false
		}
		g.a.SetType(pat, t)
		pos = next
	}
	return pat, pos, true
}

// ---- expressions ----

var literalTokens = map[lexer.TokenType]bool{
	lexer.INT: true, lexer.FLOAT: true, lexer.STRING: true,
	lexer.TRUE: true, lexer.FALSE: true,
}

func (g *grammar) literal(pos int) (ast.ID, int, bool) {
	t := g.s.at(pos)
	var lit ast.Literal
	ok := true
	switch t.Type {
	case lexer.INT:
		lit, ok = decodeInt(g.s.text(t))
	case lexer.FLOAT:
		lit, ok = decodeFloat(g.s.text(t))
	case lexer.STRING:
		lit = decodeString(g.s.text(t))
	case lexer.TRUE:
		lit = ast.Literal{Kind: ast.LitBool, B: true}
	case lexer.FALSE:
		lit = ast.Literal{Kind: ast.LitBool, B: false}
	default:
		ok = false
	}
	if !ok {
		g.s.fail(pos, "a literal")
		return ast.None, pos, false
	}
	return g.a.AppendLiteral(t.Ref, lit), pos + 1, true
}

func (g *grammar) expr(pos int) (ast.ID, int, bool) {
	e, pos, ok := g.primary(pos)
	if !ok {
		return ast.None, pos, false
	}
	for g.s.peek(pos) == lexer.LPAREN {
		arg, next, ok := g.exprTuple(pos)
		if !ok {
			return ast.None, next, false
		}
		e = g.a.Append(ast.ExprCall, span(g.a.Ref(e), g.a.Ref(arg)), types.None, e, arg)
		pos = next
	}
	return e, pos, true
}

func (g *grammar) primary(pos int) (ast.ID, int, bool) {
	switch tt := g.s.peek(pos); {
	case literalTokens[tt]:
		return g.literal(pos)
	case tt == lexer.IDENT:
		t := g.s.at(pos)
		return g.a.Append(ast.ExprIdent, t.Ref, types.None), pos + 1, true
	case tt == lexer.AMPERSAND:
		amp := g.s.at(pos)
		e, next, ok := g.expr(pos + 1)
		if !ok {
			return ast.None, next, false
		}
		return g.a.Append(ast.ExprBorrow, span(amp.Ref, g.a.Ref(e)), types.None, e), next, true
	case tt == lexer.LPAREN:
		return g.exprTuple(pos)
	case tt == lexer.SELECT:
		return g.selectExpr(pos)
	case tt == lexer.LBRACE:
		return g.scope(pos)
	}
	g.s.fail(pos, "an expression")
	return ast.None, pos, false
}

func (g *grammar) exprTuple(pos int) (ast.ID, int, bool) {
	open, pos, ok := g.expect(pos, lexer.LPAREN)
	if !ok {
		return ast.None, pos, false
	}
	var kids []ast.ID
	if g.s.peek(pos) != lexer.RPAREN {
		for {
			e, next, ok := g.expr(pos)
			if !ok {
				return ast.None, next, false
			}
			kids = append(kids, e)
			pos = next
			if g.s.peek(pos) != lexer.COMMA {
				break
			}
			pos++
		}
	}
	close, pos, ok := g.expect(pos, lexer.RPAREN)
	if !ok {
		return ast.None, pos, false
	}
	return g.a.Append(ast.ExprTuple, span(open.Ref, close.Ref), types.None, kids...), pos, true
}

func (g *grammar) selectExpr(pos int) (ast.ID, int, bool) {
	sel, pos, ok := g.expect(pos, lexer.SELECT)
	if !ok {
		return ast.None, pos, false
	}
	cond, pos, ok := g.expr(pos)
	if !ok {
		return ast.None, pos, false
	}
	if _, pos, ok = g.expect(pos, lexer.LBRACE); !ok {
		return ast.None, pos, false
	}
	then, pos, ok := g.expr(pos)
	if !ok {
		return ast.None, pos, false
	}
	if _, pos, ok = g.expect(pos, lexer.RBRACE); !ok {
		return ast.None, pos, false
	}
	if _, pos, ok = g.expect(pos, lexer.ELSE); !ok {
		return ast.None, pos, false
	}
	if _, pos, ok = g.expect(pos, lexer.LBRACE); !ok {
		return ast.None, pos, false
	}
	alt, pos, ok := g.expr(pos)
	if !ok {
		return ast.None, pos, false
	}
	close, pos, ok := g.expect(pos, lexer.RBRACE)
	if !ok {
		return ast.None, pos, false
	}
	return g.a.Append(ast.ExprSelect, span(sel.Ref, close.Ref), types.None, cond, then, alt), pos, true
}

// scope parses `{ let ...; ...; result }` into a chain of ExprWith nodes.
func (g *grammar) scope(pos int) (ast.ID, int, bool) {
	open, pos, ok := g.expect(pos, lexer.LBRACE)
	if !ok {
		return ast.None, pos, false
	}
	var assigns []ast.ID
	for g.s.peek(pos) == lexer.LET {
		asn, next, ok := g.assignment(pos)
		if !ok {
			return ast.None, next, false
		}
		if _, next, ok = g.expect(next, lexer.SEMICOLON); !ok {
			return ast.None, next, false
		}
		assigns = append(assigns, asn)
		pos = next
	}
	result, pos, ok := g.expr(pos)
	if !ok {
		return ast.None, pos, false
	}
	close, pos, ok := g.expect(pos, lexer.RBRACE)
	if !ok {
		return ast.None, pos, false
	}
	ref := span(open.Ref, close.Ref)
	for i := len(assigns) - 1; i >= 0; i-- {
		result = g.a.Append(ast.ExprWith, ref, types.None, assigns[i], result)
	}
	return result, pos, true
}

// ---- assignments and functions ----

func (g *grammar) assignment(pos int) (ast.ID, int, bool) {
	let, pos, ok := g.expect(pos, lexer.LET)
	if !ok {
		return ast.None, pos, false
	}
	pat, pos, ok := g.binding(pos)
	if !ok {
		return ast.None, pos, false
	}
	if _, pos, ok = g.expect(pos, lexer.ASSIGN); !ok {
		return ast.None, pos, false
	}
	e, pos, ok := g.expr(pos)
	if !ok {
		return ast.None, pos, false
	}
	return g.a.Append(ast.Assignment, span(let.Ref, g.a.Ref(e)), types.None, pat, e), pos, true
}

func (g *grammar) function(pos int) (ast.ID, int, bool) {
	fnTok, pos, ok := g.expect(pos, lexer.FN)
	if !ok {
		return ast.None, pos, false
	}
	name, pos, ok := g.expect(pos, lexer.IDENT)
	if !ok {
		return ast.None, pos, false
	}
	open, pos, ok := g.expect(pos, lexer.LPAREN)
	if !ok {
		return ast.None, pos, false
	}
	var params []ast.ID
	if g.s.peek(pos) != lexer.RPAREN {
		for {
			pat, next, ok := g.pattern(pos)
			if !ok {
				return ast.None, next, false
			}
			if _, next, ok = g.expect(next, lexer.COLON); !ok {
				return ast.None, next, false
			}
			t, next, ok := g.typeNode(next)
			if !ok {
				return ast.None, next, false
			}
			g.a.SetType(pat, t)
			params = append(params, pat)
			pos = next
			if g.s.peek(pos) != lexer.COMMA {
				break
			}
			pos++
		}
	}
	closeParen, pos, ok := g.expect(pos, lexer.RPAREN)
	if !ok {
		return ast.None, pos, false
	}
	if _, pos, ok = g.expect(pos, lexer.ARROW); !ok {
		return ast.None, pos, false
	}
	ret, pos, ok := g.typeNode(pos)
	if !ok {
		return ast.None, pos, false
	}

	var body ast.ID
	switch g.s.peek(pos) {
	case lexer.ASSIGN:
		body, pos, ok = g.expr(pos + 1)
	case lexer.LBRACE:
		body, pos, ok = g.scope(pos)
	default:
		g.s.fail(pos, "a function body")
		ok = false
	}
	if !ok {
		return ast.None, pos, false
	}
	// The return annotation is carried as the body's type; parsing never
	// assigns expression types otherwise.
	g.a.SetType(body, ret)

	paramsPat := g.a.Append(ast.PatternTuple, span(open.Ref, closeParen.Ref), types.None, params...)
	fn := g.a.Append(ast.Fn, span(fnTok.Ref, g.a.Ref(body)), types.None, paramsPat, body)
	nameNode := g.a.Append(ast.PatternIdent, name.Ref, types.None)
	return g.a.Append(ast.RootFn, span(fnTok.Ref, g.a.Ref(body)), types.None, nameNode, fn), pos, true
}

// ---- start symbols ----

func run(a *ast.AST, tg *types.Graph, sm *src.Map, id src.ID, text string,
	parse func(*grammar) (int, bool)) ([]Annotation, diag.Errors) {

	toks, errs := lexer.Lex(sm, id, text)
	if len(errs) > 0 {
		return nil, errs
	}
	g := &grammar{s: &state{sm: sm, toks: toks}, a: a, tg: tg}
	pos, ok := parse(g)
	if ok {
		if g.s.peek(pos) == lexer.EOF {
			return g.anns, nil
		}
		g.s.fail(pos, "end of input")
	}
	far := g.s.at(g.s.far)
	return nil, diag.Errors{{
		Kind: diag.KindParse,
		Ref:  far.Ref,
		Msg:  "expected " + strings.Join(g.s.expected, " or "),
	}}
}

// ParseExpr parses a whole buffer as one expression root.
func ParseExpr(a *ast.AST, tg *types.Graph, sm *src.Map, id src.ID, text string) ([]Annotation, diag.Errors) {
	return run(a, tg, sm, id, text, func(g *grammar) (int, bool) {
		_, pos, ok := g.expr(0)
		return pos, ok
	})
}

// ParseRepl parses either a let-assignment or an expression.
func ParseRepl(a *ast.AST, tg *types.Graph, sm *src.Map, id src.ID, text string) ([]Annotation, diag.Errors) {
	return run(a, tg, sm, id, text, func(g *grammar) (int, bool) {
		if g.s.peek(0) == lexer.LET {
			_, pos, ok := g.assignment(0)
			return pos, ok
		}
		_, pos, ok := g.expr(0)
		return pos, ok
	})
}

// ParseFunction parses a single function definition.
func ParseFunction(a *ast.AST, tg *types.Graph, sm *src.Map, id src.ID, text string) ([]Annotation, diag.Errors) {
	return run(a, tg, sm, id, text, func(g *grammar) (int, bool) {
		_, pos, ok := g.function(0)
		return pos, ok
	})
}

// ParseAssignment parses a single let-assignment.
func ParseAssignment(a *ast.AST, tg *types.Graph, sm *src.Map, id src.ID, text string) ([]Annotation, diag.Errors) {
	return run(a, tg, sm, id, text, func(g *grammar) (int, bool) {
		_, pos, ok := g.assignment(0)
		return pos, ok
	})
}

// ParsePattern parses a single pattern.
func ParsePattern(a *ast.AST, tg *types.Graph, sm *src.Map, id src.ID, text string) ([]Annotation, diag.Errors) {
	return run(a, tg, sm, id, text, func(g *grammar) (int, bool) {
		_, pos, ok := g.pattern(0)
		return pos, ok
	})
}

// ParseBinding parses a pattern with an optional annotation.
func ParseBinding(a *ast.AST, tg *types.Graph, sm *src.Map, id src.ID, text string) ([]Annotation, diag.Errors) {
	return run(a, tg, sm, id, text, func(g *grammar) (int, bool) {
		_, pos, ok := g.binding(0)
		return pos, ok
	})
}

// ParseTopLevel parses a script file: a sequence of function definitions
// grouped under a Module root.
func ParseTopLevel(a *ast.AST, tg *types.Graph, sm *src.Map, id src.ID, text string) ([]Annotation, diag.Errors) {
	return run(a, tg, sm, id, text, func(g *grammar) (int, bool) {
		var fns []ast.ID
		pos := 0
		for g.s.peek(pos) == lexer.FN {
			fn, next, ok := g.function(pos)
			if !ok {
				return next, false
			}
			fns = append(fns, fn)
			pos = next
		}
		g.a.Append(ast.Module, src.Ref{Src: id}, g.tg.Add(types.Tuple, 0, src.Ref{Src: id}), fns...)
		return pos, true
	})
}

// ParseType parses a whole buffer as a type, returning its node.
func ParseType(tg *types.Graph, sm *src.Map, id src.ID, text string) (types.Type, []Annotation, diag.Errors) {
	a := ast.New()
	var result types.Type
	anns, errs := run(a, tg, sm, id, text, func(g *grammar) (int, bool) {
		t, pos, ok := g.typeNode(0)
		result = t
		return pos, ok
	})
	if len(errs) > 0 {
		return types.None, nil, errs
	}
	return result, anns, nil
}
