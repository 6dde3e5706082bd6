// Package ast holds the ordered forest of tagged nodes the parser produces
// and sema elaborates. The forest is append-only: nodes are created leaf
// first, adopted by their parent on construction, and only removed by
// truncating the forest back to an earlier length (rollback). Side
// tables carry each node's tag, source ref and type handle.
package ast

import "iter"

// ID names one node. None marks an absent node.
type ID int32

// None is the invalid node id.
const None ID = -1

// Forest is an ordered forest: children are positional and ordered, roots
// appear in creation order.
type Forest struct {
	parent []ID
	kids   [][]ID
}

// Len returns the number of nodes.
func (f *Forest) Len() int { return len(f.parent) }

// append adds a node adopting the given children, which must currently be
// roots.
func (f *Forest) append(children ...ID) ID {
	id := ID(len(f.parent))
	f.parent = append(f.parent, None)
	f.kids = append(f.kids, children)
	for _, c := range children {
		f.parent[c] = id
	}
	return id
}

// Parent returns the node's parent, or None for roots.
func (f *Forest) Parent(id ID) ID { return f.parent[id] }

// Children returns the node's ordered children.
func (f *Forest) Children(id ID) []ID { return f.kids[id] }

// Child returns the n'th child.
func (f *Forest) Child(id ID, n int) ID { return f.kids[id][n] }

// IsRoot reports whether the node has no parent.
func (f *Forest) IsRoot(id ID) bool { return f.parent[id] == None }

// Root walks up to the root of the node's tree.
func (f *Forest) Root(id ID) ID {
	for f.parent[id] != None {
		id = f.parent[id]
	}
	return id
}

// Roots returns every root in creation order.
func (f *Forest) Roots() []ID {
	var roots []ID
	for i := range f.parent {
		if f.parent[i] == None {
			roots = append(roots, ID(i))
		}
	}
	return roots
}

// PreOrder yields the subtree rooted at id, parents before children, without
// allocation beyond the traversal stack.
func (f *Forest) PreOrder(id ID) iter.Seq[ID] {
	return func(yield func(ID) bool) {
		f.preOrder(id, yield)
	}
}

func (f *Forest) preOrder(id ID, yield func(ID) bool) bool {
	if !yield(id) {
		return false
	}
	for _, c := range f.kids[id] {
		if !f.preOrder(c, yield) {
			return false
		}
	}
	return true
}

// PostOrder yields the subtree rooted at id, children before parents.
func (f *Forest) PostOrder(id ID) iter.Seq[ID] {
	return func(yield func(ID) bool) {
		f.postOrder(id, yield)
	}
}

func (f *Forest) postOrder(id ID, yield func(ID) bool) bool {
	for _, c := range f.kids[id] {
		if !f.postOrder(c, yield) {
			return false
		}
	}
	return yield(id)
}

// Leaves yields only the leaf nodes of the subtree, left to right.
func (f *Forest) Leaves(id ID) iter.Seq[ID] {
	return func(yield func(ID) bool) {
		f.leaves(id, yield)
	}
}

func (f *Forest) leaves(id ID, yield func(ID) bool) bool {
	if len(f.kids[id]) == 0 {
		return yield(id)
	}
	for _, c := range f.kids[id] {
		if !f.leaves(c, yield) {
			return false
		}
	}
	return true
}

// Dominates reports whether a is an ancestor of b (or b itself).
func (f *Forest) Dominates(a, b ID) bool {
	for {
		if a == b {
			return true
		}
		if f.parent[b] == None {
			return false
		}
		b = f.parent[b]
	}
}

// truncate rolls the forest back to n nodes; any node below n that adopted a
// truncated child keeps no reference to it (adoption only ever links newer
// parents to newer children, so no fixup is needed).
func (f *Forest) truncate(n int) {
	f.parent = f.parent[:n]
	f.kids = f.kids[:n]
}
