package types

import (
	"github.com/ooze-lang/ooze/internal/exec"
	"github.com/ooze-lang/ooze/internal/src"
)

// Desc is a detached structural description of a type, independent of any
// graph. The driver extracts descriptors for values that must outlive a REPL
// step (binding and global types), rolls the scratch portion of the graph
// back, and re-interns the descriptors into the persistent region.
type Desc struct {
	Tag  Tag
	ID   exec.TypeID
	Kids []*Desc
}

// Extract builds a detached description of t.
func (g *Graph) Extract(t Type) *Desc {
	d := &Desc{Tag: g.tags[t], ID: g.ids[t]}
	for _, k := range g.kids[t] {
		d.Kids = append(d.Kids, g.Extract(k))
	}
	return d
}

// Pretty renders a detached description the same way Graph.Pretty renders
// nodes.
func (d *Desc) Pretty(names map[exec.TypeID]string) string {
	g := NewGraph()
	return g.Pretty(names, g.Intern(d))
}

// Copyable reports whether every storage cell of the description is of a
// copy-registered type; function cells are always cheap to copy.
func (d *Desc) Copyable(contains func(exec.TypeID) bool) bool {
	switch d.Tag {
	case Leaf:
		return contains(d.ID)
	case Fn, Borrow:
		return true
	default:
		for _, k := range d.Kids {
			if !k.Copyable(contains) {
				return false
			}
		}
		return true
	}
}

// Size mirrors Graph.Size for detached descriptions.
func (d *Desc) Size() int {
	switch d.Tag {
	case Leaf, Fn:
		return 1
	default:
		n := 0
		for _, k := range d.Kids {
			n += k.Size()
		}
		return n
	}
}

// Intern materialises a description as graph nodes.
func (g *Graph) Intern(d *Desc) Type {
	kids := make([]Type, len(d.Kids))
	for i, k := range d.Kids {
		kids[i] = g.Intern(k)
	}
	return g.Add(d.Tag, d.ID, src.Ref{}, kids...)
}
