package graph

import "github.com/ooze-lang/ooze/internal/exec"

// termState tracks one in-flight term during execution: the owning future
// (post-borrow once a share exists) and the share feeding copy/borrow uses.
type termState struct {
	fut   exec.Future
	share exec.BorrowedFuture
}

// Async lifts a finalized graph into an AsyncFn. Value inputs arrive as
// futures for the non-borrowed slots in order; borrowed slots arrive as
// shares. Wiring is synchronous: every node registers its continuations
// before the call returns, and resolution order is governed purely by the
// graph's data-dependency edges.
func Async(g *FunctionGraph) exec.AsyncFn {
	return func(ex exec.ExecutorRef, inputs []exec.Future, borrows []exec.BorrowedFuture) []exec.Future {
		states := make([][]termState, len(g.nodes))
		for i, n := range g.nodes {
			states[i] = make([]termState, n.outputs)
		}

		// Shares created during wiring hold one extra ref each so that a
		// term's post-borrow future cannot fire mid-wiring; they are all
		// dropped once the full graph is connected.
		var held []exec.BorrowedFuture

		produce := func(t Oterm, owner exec.Future) {
			st := &states[t.Node][t.Port]
			if g.usage[t.Node][t.Port].shares > 0 {
				share, post := exec.Borrow(owner)
				st.share = share
				st.fut = post
				held = append(held, share)
			} else {
				st.fut = owner
			}
		}

		vi, bi := 0, 0
		for slot, borrowed := range g.inputBorrows {
			t := Oterm{Node: 0, Port: int32(slot)}
			if borrowed {
				states[0][slot].share = borrows[bi]
				held = append(held, borrows[bi])
				bi++
			} else {
				produce(t, inputs[vi])
				vi++
			}
		}

		consume := func(e edge) (exec.Future, exec.BorrowedFuture) {
			st := &states[e.Term.Node][e.Term.Port]
			switch e.Pass {
			case Move:
				return st.fut, exec.BorrowedFuture{}
			case Copy:
				return st.share.Then(func(p *exec.Value) exec.Value { return *p }), exec.BorrowedFuture{}
			default:
				return exec.Future{}, st.share.Clone()
			}
		}

		for i := 1; i < len(g.nodes); i++ {
			n := g.nodes[i]
			var vals []exec.Future
			var brs []exec.BorrowedFuture
			for _, e := range n.inputs {
				f, b := consume(e)
				if b.Valid() {
					brs = append(brs, b)
				} else {
					vals = append(vals, f)
				}
			}
			outs := n.fn(ex, vals, brs)
			for port, f := range outs {
				produce(Oterm{Node: int32(i), Port: int32(port)}, f)
			}
		}

		results := make([]exec.Future, len(g.outputs))
		for i, e := range g.outputs {
			f, _ := consume(e)
			results[i] = f
		}

		for _, s := range held {
			s.Drop()
		}
		return results
	}
}
