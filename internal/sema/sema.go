// Package sema elaborates freshly parsed roots: type-name resolution, the
// identifier fan-out graph, borrow lifting, bidirectional constraint
// propagation over the type graph, overload resolution and the final
// fully-resolved checks. Its output drives graph lowering.
package sema

import (
	"fmt"

	set "github.com/hashicorp/go-set/v3"

	"github.com/ooze-lang/ooze/internal/ast"
	"github.com/ooze-lang/ooze/internal/diag"
	"github.com/ooze-lang/ooze/internal/exec"
	"github.com/ooze-lang/ooze/internal/parser"
	"github.com/ooze-lang/ooze/internal/src"
	"github.com/ooze-lang/ooze/internal/types"
)

// Info is the native-type knowledge sema needs from the environment.
type Info struct {
	TypeNames map[string]exec.TypeID
	Names     map[exec.TypeID]string
	Copyable  *set.Set[exec.TypeID]
	LitIDs    map[ast.LitKind]exec.TypeID
	BoolID    exec.TypeID
}

// Data is the result of a successful elaboration.
type Data struct {
	// Overloads maps each ExprIdent resolved to a global onto the global's
	// defining pattern.
	Overloads map[ast.ID]ast.ID
	// BindingOf maps every resolved ExprIdent (local or global) onto its
	// defining pattern.
	BindingOf map[ast.ID]ast.ID
	// ResolvedRoots are the fully elaborated roots of this run.
	ResolvedRoots []ast.ID
	// GenericRoots are function roots still containing unknowns; they are
	// not lowered.
	GenericRoots []ast.ID
	// LeafFns are the new functions whose bodies call no script function.
	LeafFns []ast.ID
}

type semaCtx struct {
	sm   *src.Map
	info Info
	a    *ast.AST
	tg   *types.Graph
	u    *types.Unifier

	fanout map[ast.ID][]ast.ID
	lifted map[ast.ID]bool

	data *Data
	errs diag.Errors
}

// Run elaborates the given roots in place. The AST's type slots are
// rewritten to fully resolved types on success.
func Run(sm *src.Map, info Info, a *ast.AST, tg *types.Graph, newRoots []ast.ID, anns []parser.Annotation) (*Data, diag.Errors) {
	c := &semaCtx{
		sm:     sm,
		info:   info,
		a:      a,
		tg:     tg,
		u:      types.NewUnifier(tg),
		lifted: make(map[ast.ID]bool),
		data: &Data{
			Overloads: make(map[ast.ID]ast.ID),
			BindingOf: make(map[ast.ID]ast.ID),
		},
	}

	if errs := c.resolveTypeNames(anns); len(errs) > 0 {
		return nil, errs
	}

	c.fanout = identGraph(sm, a)
	c.liftBorrows(newRoots)
	c.ensureTypes(newRoots)
	c.seedConstraints(newRoots)
	c.resolveIdents(newRoots)
	if len(c.errs) > 0 {
		return nil, c.errs
	}

	c.writeBack(newRoots)
	c.checkResolved(newRoots)
	c.checkResultBorrows(newRoots)
	c.checkUsage(newRoots)
	if len(c.errs) > 0 {
		return nil, c.errs
	}

	c.classifyRoots(newRoots)
	return c.data, nil
}

func (c *semaCtx) resolveTypeNames(anns []parser.Annotation) diag.Errors {
	var errs diag.Errors
	for _, an := range anns {
		name := c.sm.Text(an.Ref)
		if id, ok := c.info.TypeNames[name]; ok {
			c.tg.SetNativeID(an.T, id)
		} else {
			errs = append(errs, diag.Error{Kind: diag.KindUndefinedType, Ref: an.Ref, Msg: "undefined type"})
		}
	}
	return errs
}

// liftBorrows rewrites each function parameter whose every use sits inside a
// borrow expression into a borrow-typed parameter, collapsing the enclosing
// borrow nodes into pass-throughs. This runs before constraint propagation
// so borrow-taking overloads can match.
func (c *semaCtx) liftBorrows(newRoots []ast.ID) {
	for _, root := range newRoots {
		for _, fn := range functionsOf(c.a, root) {
			params := c.a.Child(fn, 0)
			for p := range c.a.PreOrder(params) {
				if c.a.Tag(p) != ast.PatternIdent {
					continue
				}
				// Explicit annotations are authoritative: lifting only
				// rewrites parameters whose type is still inferred.
				if t := c.a.Type(p); t != types.None && c.tg.TagOf(t) != types.Floating {
					continue
				}
				uses := c.fanout[p]
				if len(uses) == 0 {
					continue
				}
				all := true
				for _, u := range uses {
					if parent := c.a.Parent(u); parent == ast.None || c.a.Tag(parent) != ast.ExprBorrow {
						all = false
						break
					}
				}
				if !all {
					continue
				}
				inner := c.a.Type(p)
				if inner == types.None {
					inner = c.tg.FloatingOf(c.a.Ref(p))
				}
				c.a.SetType(p, c.tg.Add(types.Borrow, 0, c.a.Ref(p), inner))
				for _, u := range uses {
					c.lifted[c.a.Parent(u)] = true
				}
			}
		}
	}
}

// functionsOf returns the Fn nodes defined by a root.
func functionsOf(a *ast.AST, root ast.ID) []ast.ID {
	switch a.Tag(root) {
	case ast.RootFn:
		return []ast.ID{a.Child(root, 1)}
	case ast.Module:
		var fns []ast.ID
		for _, kid := range a.Children(root) {
			if a.Tag(kid) == ast.RootFn {
				fns = append(fns, a.Child(kid, 1))
			}
		}
		return fns
	}
	return nil
}

func (c *semaCtx) ensureTypes(newRoots []ast.ID) {
	for _, root := range newRoots {
		for id := range c.a.PreOrder(root) {
			if c.a.Type(id) == types.None {
				c.a.SetType(id, c.tg.FloatingOf(c.a.Ref(id)))
			}
		}
	}
}

// unify merges two type vars, reporting a structural conflict at the ref of
// the offending pair when known, else at the fallback node.
func (c *semaCtx) unify(fallback ast.ID, x, y types.Type) {
	m := c.u.Union(x, y)
	if m == nil {
		return
	}
	ref := c.tg.Ref(m.A)
	if !ref.Valid() {
		ref = c.tg.Ref(m.B)
	}
	if !ref.Valid() {
		ref = c.a.Ref(fallback)
	}
	c.errs = append(c.errs, diag.Error{
		Kind: diag.KindTypeMismatch,
		Ref:  ref,
		Msg:  fmt.Sprintf("expected %s, given %s", c.pretty(m.A), c.pretty(m.B)),
	})
}

// unifyAt merges two type vars, anchoring any conflict at the given node and
// printing the whole pair. Used for pattern-against-expression constraints.
func (c *semaCtx) unifyAt(anchor ast.ID, kind diag.Kind, x, y types.Type) {
	if m := c.u.Union(x, y); m != nil {
		c.errs = append(c.errs, diag.Error{
			Kind: kind,
			Ref:  c.a.Ref(anchor),
			Msg:  fmt.Sprintf("expected %s, given %s", c.pretty(x), c.pretty(y)),
		})
	}
}

func (c *semaCtx) pretty(t types.Type) string {
	return c.tg.Pretty(c.info.Names, c.u.Resolve(t))
}

// seedConstraints walks post-order so leaves (literals, annotated patterns)
// are pinned before the structural constraints that combine them; mismatch
// anchors then land on the narrowest conflicting site.
func (c *semaCtx) seedConstraints(newRoots []ast.ID) {
	for _, root := range newRoots {
		for id := range c.a.PostOrder(root) {
			c.seed(id)
		}
	}
}

func (c *semaCtx) seed(id ast.ID) {
	a, tg := c.a, c.tg
	t := a.Type(id)
	ref := a.Ref(id)
	switch a.Tag(id) {
	case ast.ExprLiteral:
		c.unify(id, t, tg.Add(types.Leaf, c.info.LitIDs[a.Lit(id).Kind], ref))
	case ast.ExprBorrow:
		inner := a.Type(a.Child(id, 0))
		if c.lifted[id] {
			c.unify(id, t, inner)
		} else {
			c.unify(id, t, tg.Add(types.Borrow, 0, ref, inner))
		}
	case ast.ExprCall:
		callee, arg := a.Child(id, 0), a.Child(id, 1)
		c.unify(callee, a.Type(callee), tg.Add(types.Fn, 0, a.Ref(callee), a.Type(arg), t))
	case ast.ExprTuple, ast.PatternTuple:
		kids := a.Children(id)
		kt := make([]types.Type, len(kids))
		for i, k := range kids {
			kt[i] = a.Type(k)
		}
		c.unify(id, t, tg.Add(types.Tuple, 0, ref, kt...))
	case ast.ExprSelect:
		cond, then, alt := a.Child(id, 0), a.Child(id, 1), a.Child(id, 2)
		c.unify(cond, a.Type(cond), tg.Add(types.Leaf, c.info.BoolID, a.Ref(cond)))
		c.unify(id, t, a.Type(then))
		c.unify(alt, a.Type(alt), a.Type(then))
	case ast.ExprWith:
		c.unify(id, t, a.Type(a.Child(id, 1)))
	case ast.Assignment:
		pat, expr := a.Child(id, 0), a.Child(id, 1)
		c.unifyAt(pat, diag.KindBadPattern, a.Type(pat), a.Type(expr))
		c.unify(id, t, tg.Add(types.Tuple, 0, ref))
	case ast.Fn:
		params, body := a.Child(id, 0), a.Child(id, 1)
		c.unify(id, t, tg.Add(types.Fn, 0, ref, a.Type(params), a.Type(body)))
	case ast.RootFn:
		name, fn := a.Child(id, 0), a.Child(id, 1)
		c.unify(name, a.Type(name), a.Type(fn))
		c.unify(id, t, a.Type(fn))
	}
}

// resolveIdents unifies along the identifier graph and performs overload
// resolution for multi-candidate globals.
func (c *semaCtx) resolveIdents(newRoots []ast.ID) {
	type pending struct {
		ident ast.ID
		cands []ast.ID
	}
	var multi []pending

	for _, root := range newRoots {
		for id := range c.a.PreOrder(root) {
			if c.a.Tag(id) != ast.ExprIdent {
				continue
			}
			cands := c.fanout[id]
			switch len(cands) {
			case 0:
				c.errs = append(c.errs, diag.Error{
					Kind: diag.KindUndefinedBinding,
					Ref:  c.a.Ref(id),
					Msg:  fmt.Sprintf("use of undeclared binding '%s'", c.sm.Text(c.a.Ref(id))),
				})
			case 1:
				c.bind(id, cands[0])
			default:
				multi = append(multi, pending{ident: id, cands: cands})
			}
		}
	}

	resolved := make([]bool, len(multi))
	for progress := true; progress; {
		progress = false
		for i, p := range multi {
			if resolved[i] {
				continue
			}
			viable := c.viableCandidates(p.ident, p.cands)
			if len(viable) == 1 {
				c.bind(p.ident, viable[0])
				resolved[i] = true
				progress = true
			}
		}
	}

	for i, p := range multi {
		if resolved[i] {
			continue
		}
		viable := c.viableCandidates(p.ident, p.cands)
		deduced := c.pretty(c.a.Type(p.ident))
		if len(viable) == 0 {
			err := diag.Error{
				Kind: diag.KindNoMatchingOverload,
				Ref:  c.a.Ref(p.ident),
				Msg:  "no matching overload found",
				Notes: []string{
					fmt.Sprintf("deduced %s [%d candidate(s)]", deduced, len(p.cands)),
				},
			}
			for _, cand := range p.cands {
				err.Notes = append(err.Notes, "  "+c.pretty(c.a.Type(cand)))
			}
			c.errs = append(c.errs, err)
		} else {
			err := diag.Error{
				Kind: diag.KindAmbiguousOverload,
				Ref:  c.a.Ref(p.ident),
				Msg:  "function call is ambiguous",
				Notes: []string{
					fmt.Sprintf("deduced %s [%d candidate(s)]", deduced, len(viable)),
				},
			}
			for _, cand := range viable {
				err.Notes = append(err.Notes, "  "+c.pretty(c.a.Type(cand)))
			}
			c.errs = append(c.errs, err)
		}
	}
}

func (c *semaCtx) viableCandidates(ident ast.ID, cands []ast.ID) []ast.ID {
	var viable []ast.ID
	for _, cand := range cands {
		if c.u.Unifiable(c.a.Type(ident), c.a.Type(cand)) {
			viable = append(viable, cand)
		}
	}
	return viable
}

func (c *semaCtx) bind(ident, pattern ast.ID) {
	c.unify(ident, c.a.Type(ident), c.a.Type(pattern))
	c.data.BindingOf[ident] = pattern
	if isGlobalPattern(c.a, pattern) {
		c.data.Overloads[ident] = pattern
	}
}

// isGlobalPattern reports whether a pattern ident defines a module global
// (a function name or an environment value) rather than a local binding.
func isGlobalPattern(a *ast.AST, p ast.ID) bool {
	parent := a.Parent(p)
	if parent == ast.None {
		return false
	}
	switch a.Tag(parent) {
	case ast.EnvValue:
		return true
	case ast.RootFn:
		return a.Child(parent, 0) == p
	}
	return false
}

func (c *semaCtx) writeBack(newRoots []ast.ID) {
	for _, root := range newRoots {
		for id := range c.a.PreOrder(root) {
			c.a.SetType(id, c.u.Resolve(c.a.Type(id)))
		}
	}
}

// checkResolved rejects any node whose type still contains an unknown. Only
// the shallowest offending node per root is reported.
func (c *semaCtx) checkResolved(newRoots []ast.ID) {
	for _, root := range newRoots {
		fnRoot := c.a.Tag(root) == ast.RootFn || c.a.Tag(root) == ast.Module
		for id := range c.a.PreOrder(root) {
			if c.tg.HasFloating(c.a.Type(id)) {
				err := diag.Error{
					Kind:  diag.KindTypeMismatch,
					Ref:   c.a.Ref(id),
					Msg:   "unable to fully deduce type",
					Notes: []string{fmt.Sprintf("deduced %s", c.pretty(c.a.Type(id)))},
				}
				if fnRoot {
					err.Notes = append(err.Notes, "generic functions are not supported")
				}
				c.errs = append(c.errs, err)
				break
			}
		}
	}
}

// checkResultBorrows rejects borrowed values at result positions.
func (c *semaCtx) checkResultBorrows(newRoots []ast.ID) {
	check := func(id ast.ID) {
		if c.tg.HasTopBorrow(c.a.Type(id)) {
			c.errs = append(c.errs, diag.Error{
				Kind: diag.KindInvalidBorrow,
				Ref:  c.a.Ref(id),
				Msg:  "cannot return a borrowed value",
			})
		}
	}
	for _, root := range newRoots {
		switch {
		case c.a.Tag(root).IsExpr():
			check(root)
		case c.a.Tag(root) == ast.Assignment:
			check(c.a.Child(root, 1))
		default:
			for _, fn := range functionsOf(c.a, root) {
				check(c.a.Child(fn, 1))
			}
		}
	}
}

// checkUsage enforces the at-most-one-owner rule at elaboration time: a
// non-copyable binding may be consumed by value at most once; borrow uses
// are unconstrained.
func (c *semaCtx) checkUsage(newRoots []ast.ID) {
	for _, root := range newRoots {
		for p := range c.a.PreOrder(root) {
			if c.a.Tag(p) != ast.PatternIdent || isFnName(c.a, p) {
				continue
			}
			uses := c.fanout[p]
			valueUses := 0
			for _, u := range uses {
				if parent := c.a.Parent(u); parent != ast.None && c.a.Tag(parent) == ast.ExprBorrow {
					continue
				}
				if t := c.a.Type(u); t != types.None && c.tg.TagOf(t) == types.Borrow {
					continue
				}
				valueUses++
			}
			if valueUses > 1 && !c.copyable(c.a.Type(p)) {
				c.errs = append(c.errs, diag.Error{
					Kind: diag.KindUsedAfterMove,
					Ref:  c.a.Ref(p),
					Msg:  fmt.Sprintf("binding '%s' used %d times", c.sm.Text(c.a.Ref(p)), valueUses),
				})
			}
		}
	}
}

func isFnName(a *ast.AST, p ast.ID) bool {
	parent := a.Parent(p)
	return parent != ast.None && a.Tag(parent) == ast.RootFn && a.Child(parent, 0) == p
}

func (c *semaCtx) copyable(t types.Type) bool {
	switch c.tg.TagOf(t) {
	case types.Leaf:
		return c.info.Copyable.Contains(c.tg.NativeID(t))
	case types.Fn, types.Borrow:
		return true
	case types.Tuple:
		for _, k := range c.tg.Kids(t) {
			if !c.copyable(k) {
				return false
			}
		}
		return true
	}
	return false
}

// classifyRoots fills ResolvedRoots, GenericRoots and LeafFns.
func (c *semaCtx) classifyRoots(newRoots []ast.ID) {
	for _, root := range newRoots {
		generic := false
		for id := range c.a.PreOrder(root) {
			if c.tg.HasFloating(c.a.Type(id)) {
				generic = true
				break
			}
		}
		if generic {
			c.data.GenericRoots = append(c.data.GenericRoots, root)
			continue
		}
		c.data.ResolvedRoots = append(c.data.ResolvedRoots, root)

		for _, fn := range functionsOf(c.a, root) {
			callsScript := false
			for id := range c.a.PreOrder(fn) {
				if target, ok := c.data.Overloads[id]; ok && isFnName(c.a, target) {
					callsScript = true
					break
				}
			}
			if !callsScript {
				c.data.LeafFns = append(c.data.LeafFns, fn)
			}
		}
	}
}
