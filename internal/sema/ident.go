package sema

import (
	"github.com/ooze-lang/ooze/internal/ast"
	"github.com/ooze-lang/ooze/internal/src"
)

// scopeEntry is one in-scope pattern ident.
type scopeEntry struct {
	name    string
	pattern ast.ID
}

type identCtx struct {
	sm      *src.Map
	a       *ast.AST
	globals []scopeEntry
	stack   []scopeEntry
	fanout  map[ast.ID][]ast.ID
}

// identGraph builds the bipartite fan-out graph between identifier uses and
// their defining patterns. Locals resolve to the topmost matching scope
// entry; unmatched identifiers resolve against every module global of the
// same name, to be disambiguated by overload resolution.
func identGraph(sm *src.Map, a *ast.AST) map[ast.ID][]ast.ID {
	c := &identCtx{sm: sm, a: a, fanout: make(map[ast.ID][]ast.ID)}

	addGlobal := func(root ast.ID) {
		name := a.Child(root, 0)
		c.globals = append(c.globals, scopeEntry{name: sm.Text(a.Ref(name)), pattern: name})
	}
	for _, root := range a.Roots() {
		switch a.Tag(root) {
		case ast.RootFn, ast.EnvValue:
			addGlobal(root)
		case ast.Module:
			for _, kid := range a.Children(root) {
				if a.Tag(kid) == ast.RootFn {
					addGlobal(kid)
				}
			}
		}
	}

	for _, root := range a.Roots() {
		c.walk(root)
	}
	return c.fanout
}

func (c *identCtx) link(use, pattern ast.ID) {
	c.fanout[use] = append(c.fanout[use], pattern)
	c.fanout[pattern] = append(c.fanout[pattern], use)
}

func (c *identCtx) walk(id ast.ID) {
	a := c.a
	switch a.Tag(id) {
	case ast.PatternIdent:
		c.stack = append(c.stack, scopeEntry{name: c.sm.Text(a.Ref(id)), pattern: id})

	case ast.Fn, ast.ExprWith:
		mark := len(c.stack)
		for _, kid := range a.Children(id) {
			c.walk(kid)
		}
		c.stack = c.stack[:mark]

	case ast.ExprIdent:
		name := c.sm.Text(a.Ref(id))
		for i := len(c.stack) - 1; i >= 0; i-- {
			if c.stack[i].name == name {
				c.link(id, c.stack[i].pattern)
				return
			}
		}
		for _, g := range c.globals {
			if g.name == name {
				c.link(id, g.pattern)
			}
		}

	case ast.Assignment:
		// The expression resolves before the pattern enters scope:
		// let is non-recursive.
		c.walk(a.Child(id, 1))
		c.walk(a.Child(id, 0))

	case ast.RootFn, ast.EnvValue:
		// The defining name was registered as a global up front.
		for _, kid := range a.Children(id)[1:] {
			c.walk(kid)
		}

	default:
		for _, kid := range a.Children(id) {
			c.walk(kid)
		}
	}
}
