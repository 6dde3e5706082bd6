// Package graph defines the dataflow graph model: nodes invoking async
// primitives, output terms, edge transport modes, the ConstructingGraph
// builder and the immutable FunctionGraph it finalizes into.
package graph

import (
	"fmt"

	"github.com/ooze-lang/ooze/internal/exec"
)

// PassBy is the transport mode of one edge.
type PassBy uint8

const (
	Copy PassBy = iota
	Move
	Borrow
)

func (p PassBy) String() string {
	switch p {
	case Copy:
		return "copy"
	case Move:
		return "move"
	case Borrow:
		return "borrow"
	}
	return "invalid"
}

// Oterm is an output terminal: (node, port) identifying one value edge.
// Node 0 is the synthetic input node.
type Oterm struct {
	Node int32
	Port int32
}

type edge struct {
	Term Oterm
	Pass PassBy
}

type node struct {
	fn      exec.AsyncFn
	inputs  []edge
	outputs int32
}

// termUse is the precomputed consumption profile of one term: how many
// shared (copy/borrow) uses it has and whether it is ultimately moved.
type termUse struct {
	shares int
	moved  bool
}

// FunctionGraph is an immutable finalized dataflow graph.
type FunctionGraph struct {
	inputBorrows []bool
	nodes        []node
	outputs      []edge
	usage        [][]termUse
}

// InputBorrows returns the borrow mask of the graph inputs.
func (g *FunctionGraph) InputBorrows() []bool { return g.inputBorrows }

// NumOutputs returns the number of graph outputs.
func (g *FunctionGraph) NumOutputs() int { return len(g.outputs) }

// ConstructingGraph accumulates nodes before finalization.
type ConstructingGraph struct {
	g FunctionGraph
}

// Make starts a graph whose inputs have the given borrow mask, returning the
// builder and the input terms.
func Make(inputBorrows []bool) (*ConstructingGraph, []Oterm) {
	cg := &ConstructingGraph{}
	cg.g.inputBorrows = append([]bool(nil), inputBorrows...)
	cg.g.nodes = []node{{outputs: int32(len(inputBorrows))}}
	terms := make([]Oterm, len(inputBorrows))
	for i := range terms {
		terms[i] = Oterm{Node: 0, Port: int32(i)}
	}
	return cg, terms
}

func (cg *ConstructingGraph) checkTerm(t Oterm) {
	if int(t.Node) >= len(cg.g.nodes) || t.Port >= cg.g.nodes[t.Node].outputs {
		panic(fmt.Sprintf("graph: invalid term (%d, %d)", t.Node, t.Port))
	}
}

// Add appends a node invoking fn on the given terms with the given pass
// modes, returning its output terms.
func (cg *ConstructingGraph) Add(fn exec.AsyncFn, inputs []Oterm, passBys []PassBy, outputs int) []Oterm {
	if len(inputs) != len(passBys) {
		panic(fmt.Sprintf("graph: %d inputs with %d pass modes", len(inputs), len(passBys)))
	}
	edges := make([]edge, len(inputs))
	for i, t := range inputs {
		cg.checkTerm(t)
		edges[i] = edge{Term: t, Pass: passBys[i]}
	}
	id := int32(len(cg.g.nodes))
	cg.g.nodes = append(cg.g.nodes, node{fn: fn, inputs: edges, outputs: int32(outputs)})
	terms := make([]Oterm, outputs)
	for i := range terms {
		terms[i] = Oterm{Node: id, Port: int32(i)}
	}
	return terms
}

// AddGraph inlines a finalized sub-graph: its nodes become first-class nodes
// of this graph, its input slots bind to the given terms, and its output
// terms (with boundary pass modes elided) are returned.
func (cg *ConstructingGraph) AddGraph(sub *FunctionGraph, inputs []Oterm) []Oterm {
	if len(inputs) != len(sub.inputBorrows) {
		panic(fmt.Sprintf("graph: sub-graph expects %d inputs, given %d", len(sub.inputBorrows), len(inputs)))
	}
	base := int32(len(cg.g.nodes))
	remap := func(t Oterm) Oterm {
		if t.Node == 0 {
			return inputs[t.Port]
		}
		return Oterm{Node: t.Node - 1 + base, Port: t.Port}
	}
	for _, n := range sub.nodes[1:] {
		edges := make([]edge, len(n.inputs))
		for i, e := range n.inputs {
			edges[i] = edge{Term: remap(e.Term), Pass: e.Pass}
		}
		cg.g.nodes = append(cg.g.nodes, node{fn: n.fn, inputs: edges, outputs: n.outputs})
	}
	terms := make([]Oterm, len(sub.outputs))
	for i, e := range sub.outputs {
		terms[i] = remap(e.Term)
	}
	return terms
}

// Finalize commits the graph outputs and returns the immutable graph with
// per-term usage profiles precomputed.
func (cg *ConstructingGraph) Finalize(outputs []Oterm, passBys []PassBy) *FunctionGraph {
	if len(outputs) != len(passBys) {
		panic(fmt.Sprintf("graph: %d outputs with %d pass modes", len(outputs), len(passBys)))
	}
	for i, t := range outputs {
		cg.checkTerm(t)
		cg.g.outputs = append(cg.g.outputs, edge{Term: t, Pass: passBys[i]})
	}

	g := cg.g
	g.usage = make([][]termUse, len(g.nodes))
	for i, n := range g.nodes {
		g.usage[i] = make([]termUse, n.outputs)
	}
	use := func(e edge) {
		u := &g.usage[e.Term.Node][e.Term.Port]
		switch e.Pass {
		case Move:
			if u.moved {
				panic(fmt.Sprintf("graph: term (%d, %d) moved twice", e.Term.Node, e.Term.Port))
			}
			u.moved = true
		default:
			u.shares++
		}
	}
	for _, n := range g.nodes {
		for _, e := range n.inputs {
			use(e)
		}
	}
	for _, e := range g.outputs {
		use(e)
	}
	cg.g = FunctionGraph{}
	return &g
}
