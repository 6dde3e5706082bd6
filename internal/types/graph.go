// Package types implements the type graph: a DAG of type nodes shared by the
// parser, sema and the graph lowerer. Floating nodes are the inference
// unknowns and may only appear while sema is running.
package types

import (
	"fmt"
	"strings"

	"github.com/ooze-lang/ooze/internal/exec"
	"github.com/ooze-lang/ooze/internal/src"
)

// Tag discriminates type nodes.
type Tag uint8

const (
	Leaf Tag = iota
	Tuple
	Borrow
	Fn
	Floating
)

// Type is a handle to one node in a Graph. None marks an unassigned slot.
type Type int32

// None is the invalid type handle.
const None Type = -1

// Graph is the append-only DAG of type nodes. Structural sharing is
// permitted but not required; equality is by structural compare.
type Graph struct {
	tags []Tag
	ids  []exec.TypeID
	srcs []src.Ref
	kids [][]Type
}

// NewGraph returns an empty type graph.
func NewGraph() *Graph {
	return &Graph{}
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.tags) }

// Truncate rolls the graph back to a previously observed length.
func (g *Graph) Truncate(n int) {
	g.tags = g.tags[:n]
	g.ids = g.ids[:n]
	g.srcs = g.srcs[:n]
	g.kids = g.kids[:n]
}

// Add appends a node.
func (g *Graph) Add(tag Tag, id exec.TypeID, ref src.Ref, kids ...Type) Type {
	g.tags = append(g.tags, tag)
	g.ids = append(g.ids, id)
	g.srcs = append(g.srcs, ref)
	g.kids = append(g.kids, kids)
	return Type(len(g.tags) - 1)
}

// LeafOf appends a leaf node for a native type.
func (g *Graph) LeafOf(id exec.TypeID) Type { return g.Add(Leaf, id, src.Ref{}) }

// NamedLeaf appends an unresolved leaf carrying the name's source ref; the
// native id is bound during type-name resolution.
func (g *Graph) NamedLeaf(ref src.Ref) Type { return g.Add(Leaf, 0, ref) }

// FloatingOf appends an inference unknown.
func (g *Graph) FloatingOf(ref src.Ref) Type { return g.Add(Floating, 0, ref) }

// BorrowOf appends a borrow wrapper.
func (g *Graph) BorrowOf(inner Type) Type { return g.Add(Borrow, 0, src.Ref{}, inner) }

// TupleOf appends a tuple node.
func (g *Graph) TupleOf(kids ...Type) Type { return g.Add(Tuple, 0, src.Ref{}, kids...) }

// FnOf appends a function node.
func (g *Graph) FnOf(arg, result Type) Type { return g.Add(Fn, 0, src.Ref{}, arg, result) }

// TagOf returns the node's tag.
func (g *Graph) TagOf(t Type) Tag { return g.tags[t] }

// NativeID returns the native id of a leaf node.
func (g *Graph) NativeID(t Type) exec.TypeID { return g.ids[t] }

// SetNativeID binds the native id of a leaf node.
func (g *Graph) SetNativeID(t Type, id exec.TypeID) { g.ids[t] = id }

// Ref returns the source ref the node was created from.
func (g *Graph) Ref(t Type) src.Ref { return g.srcs[t] }

// Kids returns the node's children.
func (g *Graph) Kids(t Type) []Type { return g.kids[t] }

// Size returns the storage cell count of a type: each Leaf and Fn is one
// cell, Borrow is transparent, Tuple sums its components.
func (g *Graph) Size(t Type) int {
	switch g.tags[t] {
	case Leaf, Fn:
		return 1
	case Tuple, Borrow:
		n := 0
		for _, k := range g.kids[t] {
			n += g.Size(k)
		}
		return n
	default:
		panic("types: size of floating type")
	}
}

// Equal reports structural DAG equality of two nodes.
func (g *Graph) Equal(a, b Type) bool {
	if a == b {
		return true
	}
	if a == None || b == None || g.tags[a] != g.tags[b] {
		return false
	}
	if g.tags[a] == Leaf {
		return g.ids[a] == g.ids[b]
	}
	ka, kb := g.kids[a], g.kids[b]
	if len(ka) != len(kb) {
		return false
	}
	for i := range ka {
		if !g.Equal(ka[i], kb[i]) {
			return false
		}
	}
	return true
}

// HasFloating reports whether any reachable node is an inference unknown.
func (g *Graph) HasFloating(t Type) bool {
	if g.tags[t] == Floating {
		return true
	}
	for _, k := range g.kids[t] {
		if g.HasFloating(k) {
			return true
		}
	}
	return false
}

// HasTopBorrow reports whether the type contains a borrow outside any
// function type, i.e. whether a value of this type holds lent-out cells.
func (g *Graph) HasTopBorrow(t Type) bool {
	switch g.tags[t] {
	case Borrow:
		return true
	case Tuple:
		for _, k := range g.kids[t] {
			if g.HasTopBorrow(k) {
				return true
			}
		}
	}
	return false
}

// Pretty renders a type using the registered native names; unnamed leaves
// render as their raw id.
func (g *Graph) Pretty(names map[exec.TypeID]string, t Type) string {
	var b strings.Builder
	g.pretty(&b, names, t)
	return b.String()
}

func (g *Graph) pretty(b *strings.Builder, names map[exec.TypeID]string, t Type) {
	if t == None {
		b.WriteString("_")
		return
	}
	switch g.tags[t] {
	case Leaf:
		if name, ok := names[g.ids[t]]; ok {
			b.WriteString(name)
		} else {
			fmt.Fprintf(b, "type 0x%x", uint64(g.ids[t]))
		}
	case Floating:
		b.WriteString("_")
	case Borrow:
		b.WriteString("&")
		g.pretty(b, names, g.kids[t][0])
	case Tuple:
		b.WriteString("(")
		for i, k := range g.kids[t] {
			if i > 0 {
				b.WriteString(", ")
			}
			g.pretty(b, names, k)
		}
		b.WriteString(")")
	case Fn:
		b.WriteString("fn")
		g.pretty(b, names, g.kids[t][0])
		b.WriteString(" -> ")
		g.pretty(b, names, g.kids[t][1])
	}
}
