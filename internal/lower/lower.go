// Package lower turns a type-checked AST subtree into a FunctionGraph. The
// lowering walks post-order, threading output terms through a scope of
// pattern bindings; identifiers that resolve outside the subtree become
// captured graph inputs supplied at invocation.
package lower

import (
	"fmt"

	set "github.com/hashicorp/go-set/v3"

	"github.com/ooze-lang/ooze/internal/ast"
	"github.com/ooze-lang/ooze/internal/exec"
	"github.com/ooze-lang/ooze/internal/graph"
	"github.com/ooze-lang/ooze/internal/types"
)

// Result is a lowered graph plus the outer-scope bindings that must be
// supplied at invocation: CapturedValues feed owned input slots appended
// after the parameters, CapturedBorrows feed borrowed slots after those.
type Result struct {
	Graph           *graph.FunctionGraph
	CapturedValues  []ast.ID
	CapturedBorrows []ast.ID
}

type builder struct {
	a         *ast.AST
	tg        *types.Graph
	copyable  *set.Set[exec.TypeID]
	bindingOf map[ast.ID]ast.ID

	cg       *graph.ConstructingGraph
	bindings map[ast.ID][]graph.Oterm
}

// Function lowers a Fn node (children: params, body).
func Function(a *ast.AST, tg *types.Graph, copyable *set.Set[exec.TypeID], bindingOf map[ast.ID]ast.ID, fn ast.ID) *Result {
	params, body := a.Child(fn, 0), a.Child(fn, 1)
	return build(a, tg, copyable, bindingOf, fn, params, body)
}

// Expr lowers a standalone expression root.
func Expr(a *ast.AST, tg *types.Graph, copyable *set.Set[exec.TypeID], bindingOf map[ast.ID]ast.ID, expr ast.ID) *Result {
	return build(a, tg, copyable, bindingOf, expr, ast.None, expr)
}

func build(a *ast.AST, tg *types.Graph, copyable *set.Set[exec.TypeID], bindingOf map[ast.ID]ast.ID, root, params, body ast.ID) *Result {
	capturedValues, capturedBorrows := captures(a, tg, bindingOf, root)

	var mask []bool
	if params != ast.None {
		mask = borrowsOf(tg, a.Type(params), nil)
	}
	for _, p := range capturedValues {
		mask = borrowsOf(tg, a.Type(p), mask)
	}
	for _, p := range capturedBorrows {
		for i := 0; i < tg.Size(a.Type(p)); i++ {
			mask = append(mask, true)
		}
	}

	cg, terms := graph.Make(mask)
	b := &builder{
		a: a, tg: tg, copyable: copyable, bindingOf: bindingOf,
		cg: cg, bindings: make(map[ast.ID][]graph.Oterm),
	}

	next := 0
	if params != ast.None {
		next = b.appendBindings(params, terms, 0)
	}
	for _, p := range capturedValues {
		n := tg.Size(a.Type(p))
		b.bindings[p] = terms[next : next+n]
		next += n
	}
	for _, p := range capturedBorrows {
		n := tg.Size(a.Type(p))
		b.bindings[p] = terms[next : next+n]
		next += n
	}

	out := b.expr(body)
	fg := cg.Finalize(out, passBysOf(tg, copyable, a.Type(body), nil))
	return &Result{Graph: fg, CapturedValues: capturedValues, CapturedBorrows: capturedBorrows}
}

// captures collects the outer-scope patterns referenced from the subtree, in
// first-use order. A capture whose every use is a borrow becomes a borrowed
// input; anything else is owned.
func captures(a *ast.AST, tg *types.Graph, bindingOf map[ast.ID]ast.ID, root ast.ID) (values, borrows []ast.ID) {
	seen := set.New[ast.ID](4)
	var ordered []ast.ID
	borrowOnly := make(map[ast.ID]bool)

	for id := range a.PreOrder(root) {
		if a.Tag(id) != ast.ExprIdent {
			continue
		}
		p, ok := bindingOf[id]
		if !ok || a.Dominates(root, p) {
			continue
		}
		if !seen.Contains(p) {
			seen.Insert(p)
			ordered = append(ordered, p)
			borrowOnly[p] = true
		}
		if !isBorrowUse(a, tg, id) {
			borrowOnly[p] = false
		}
	}

	for _, p := range ordered {
		if borrowOnly[p] {
			borrows = append(borrows, p)
		} else {
			values = append(values, p)
		}
	}
	return values, borrows
}

func isBorrowUse(a *ast.AST, tg *types.Graph, use ast.ID) bool {
	if parent := a.Parent(use); parent != ast.None && a.Tag(parent) == ast.ExprBorrow {
		return true
	}
	t := a.Type(use)
	return t != types.None && tg.TagOf(t) == types.Borrow
}

// appendBindings distributes terms over the leaves of a pattern following
// the size layout, starting at terms[at]; returns the next free index.
func (b *builder) appendBindings(pattern ast.ID, terms []graph.Oterm, at int) int {
	for leaf := range b.a.Leaves(pattern) {
		n := 0
		if b.a.Type(leaf) != types.None {
			n = b.tg.Size(b.a.Type(leaf))
		}
		if b.a.Tag(leaf) == ast.PatternIdent {
			b.bindings[leaf] = terms[at : at+n]
		}
		at += n
	}
	return at
}

func (b *builder) expr(id ast.ID) []graph.Oterm {
	a, tg := b.a, b.tg
	switch a.Tag(id) {
	case ast.ExprLiteral:
		return b.cg.Add(exec.ValueFn(literalValue(a.Lit(id), tg.NativeID(a.Type(id)))), nil, nil, 1)

	case ast.ExprIdent:
		p, ok := b.bindingOf[id]
		if !ok {
			panic(fmt.Sprintf("lower: unresolved identifier at node %d", id))
		}
		terms, ok := b.bindings[p]
		if !ok {
			panic(fmt.Sprintf("lower: unbound pattern at node %d", p))
		}
		return terms

	case ast.ExprTuple:
		var out []graph.Oterm
		for _, kid := range a.Children(id) {
			out = append(out, b.expr(kid)...)
		}
		return out

	case ast.ExprBorrow:
		return b.expr(a.Child(id, 0))

	case ast.ExprWith:
		assign, body := a.Child(id, 0), a.Child(id, 1)
		pattern, value := a.Child(assign, 0), a.Child(assign, 1)
		terms := b.expr(value)
		b.appendBindings(pattern, terms, 0)
		return b.expr(body)

	case ast.ExprSelect:
		cond, then, alt := a.Child(id, 0), a.Child(id, 1), a.Child(id, 2)
		inputs := b.expr(cond)
		inputs = append(inputs, b.expr(then)...)
		inputs = append(inputs, b.expr(alt)...)

		passBys := passBysOf(tg, b.copyable, a.Type(cond), nil)
		passBys = passBysOf(tg, b.copyable, a.Type(then), passBys)
		passBys = passBysOf(tg, b.copyable, a.Type(alt), passBys)

		return b.cg.Add(exec.Select(), inputs, passBys, tg.Size(a.Type(id)))

	case ast.ExprCall:
		callee, arg := a.Child(id, 0), a.Child(id, 1)
		inputs := b.expr(callee)
		inputs = append(inputs, b.expr(arg)...)

		passBys := passBysOf(tg, b.copyable, a.Type(callee), nil)
		passBys = passBysOf(tg, b.copyable, a.Type(arg), passBys)

		out := tg.Size(a.Type(id))
		return b.cg.Add(exec.Functional(out), inputs, passBys, out)
	}
	panic(fmt.Sprintf("lower: node %d is not an expression", id))
}

// passBysOf resolves the edge transport of a type: borrows pass by borrow,
// function values are cheap and copy, leaves copy when registered copyable
// and move otherwise.
func passBysOf(tg *types.Graph, copyable *set.Set[exec.TypeID], t types.Type, acc []graph.PassBy) []graph.PassBy {
	switch tg.TagOf(t) {
	case types.Leaf:
		if copyable.Contains(tg.NativeID(t)) {
			return append(acc, graph.Copy)
		}
		return append(acc, graph.Move)
	case types.Fn:
		return append(acc, graph.Copy)
	case types.Borrow:
		return append(acc, graph.Borrow)
	case types.Tuple:
		for _, k := range tg.Kids(t) {
			acc = passBysOf(tg, copyable, k, acc)
		}
		return acc
	}
	panic("lower: pass-by of floating type")
}

// borrowsOf flattens a type into the borrow mask of its input slots.
func borrowsOf(tg *types.Graph, t types.Type, acc []bool) []bool {
	switch tg.TagOf(t) {
	case types.Leaf, types.Fn:
		return append(acc, false)
	case types.Borrow:
		return append(acc, true)
	case types.Tuple:
		for _, k := range tg.Kids(t) {
			acc = borrowsOf(tg, k, acc)
		}
		return acc
	}
	panic("lower: borrows of floating type")
}

// literalValue boxes a decoded literal as a runtime value.
func literalValue(lit ast.Literal, id exec.TypeID) exec.Value {
	v := exec.Value{ID: id}
	switch lit.Kind {
	case ast.LitBool:
		v.V = lit.B
	case ast.LitStr:
		v.V = lit.S
	case ast.LitI8:
		v.V = int8(lit.I)
	case ast.LitI16:
		v.V = int16(lit.I)
	case ast.LitI32:
		v.V = int32(lit.I)
	case ast.LitI64:
		v.V = lit.I
	case ast.LitU8:
		v.V = uint8(lit.U)
	case ast.LitU16:
		v.V = uint16(lit.U)
	case ast.LitU32:
		v.V = uint32(lit.U)
	case ast.LitU64:
		v.V = lit.U
	case ast.LitF32:
		v.V = float32(lit.F)
	case ast.LitF64:
		v.V = lit.F
	}
	return v
}
