package ast

import (
	"github.com/ooze-lang/ooze/internal/src"
	"github.com/ooze-lang/ooze/internal/types"
)

// Tag discriminates forest nodes. Children are positional: ExprCall has
// (callee, arg), Assignment has (pattern, expr), Fn has (params, body),
// RootFn has (name, fn), ExprWith has (assignment, body), ExprSelect has
// (cond, then, else).
type Tag uint8

const (
	PatternWildCard Tag = iota
	PatternIdent
	PatternTuple
	ExprLiteral
	ExprIdent
	ExprCall
	ExprSelect
	ExprBorrow
	ExprWith
	ExprTuple
	Fn
	Assignment
	RootFn
	EnvValue
	Module
)

func (t Tag) String() string {
	switch t {
	case PatternWildCard:
		return "PatternWildCard"
	case PatternIdent:
		return "PatternIdent"
	case PatternTuple:
		return "PatternTuple"
	case ExprLiteral:
		return "ExprLiteral"
	case ExprIdent:
		return "ExprIdent"
	case ExprCall:
		return "ExprCall"
	case ExprSelect:
		return "ExprSelect"
	case ExprBorrow:
		return "ExprBorrow"
	case ExprWith:
		return "ExprWith"
	case ExprTuple:
		return "ExprTuple"
	case Fn:
		return "Fn"
	case Assignment:
		return "Assignment"
	case RootFn:
		return "RootFn"
	case EnvValue:
		return "EnvValue"
	case Module:
		return "Module"
	}
	return "invalid"
}

// IsExpr reports whether the tag is an expression.
func (t Tag) IsExpr() bool { return t >= ExprLiteral && t <= ExprTuple }

// IsPattern reports whether the tag is a pattern.
func (t Tag) IsPattern() bool { return t <= PatternTuple }

// LitKind discriminates literal payloads.
type LitKind uint8

const (
	LitBool LitKind = iota
	LitStr
	LitI8
	LitI16
	LitI32
	LitI64
	LitU8
	LitU16
	LitU32
	LitU64
	LitF32
	LitF64
)

// Literal is the decoded payload of an ExprLiteral node.
type Literal struct {
	Kind LitKind
	B    bool
	S    string
	I    int64
	U    uint64
	F    float64
}

// AST is the forest plus its side tables. It grows append-only within an
// environment; sema appends synthetic nodes but never reshapes existing
// structure.
type AST struct {
	Forest
	Tags  []Tag
	Srcs  []src.Ref
	Types []types.Type
	Lits  map[ID]Literal
}

// New returns an empty AST.
func New() *AST {
	return &AST{Lits: make(map[ID]Literal)}
}

// Append adds a node with the given tag, ref and type, adopting children.
func (a *AST) Append(tag Tag, ref src.Ref, typ types.Type, children ...ID) ID {
	id := a.append(children...)
	a.Tags = append(a.Tags, tag)
	a.Srcs = append(a.Srcs, ref)
	a.Types = append(a.Types, typ)
	return id
}

// AppendLiteral adds an ExprLiteral node carrying the decoded payload.
func (a *AST) AppendLiteral(ref src.Ref, lit Literal) ID {
	id := a.Append(ExprLiteral, ref, types.None)
	a.Lits[id] = lit
	return id
}

// Tag returns the node's tag.
func (a *AST) Tag(id ID) Tag { return a.Tags[id] }

// Ref returns the node's source ref.
func (a *AST) Ref(id ID) src.Ref { return a.Srcs[id] }

// Type returns the node's type handle.
func (a *AST) Type(id ID) types.Type { return a.Types[id] }

// SetType assigns the node's type handle.
func (a *AST) SetType(id ID, t types.Type) { a.Types[id] = t }

// Lit returns the literal payload of an ExprLiteral node.
func (a *AST) Lit(id ID) Literal { return a.Lits[id] }

// Truncate rolls the AST back to n nodes.
func (a *AST) Truncate(n int) {
	for id := range a.Lits {
		if int(id) >= n {
			delete(a.Lits, id)
		}
	}
	a.truncate(n)
	a.Tags = a.Tags[:n]
	a.Srcs = a.Srcs[:n]
	a.Types = a.Types[:n]
}
