package ooze

import (
	"fmt"

	"github.com/ooze-lang/ooze/internal/exec"
	"github.com/ooze-lang/ooze/internal/graph"
)

// Inst names one invocable unit registered in the Program.
type Inst int32

type progEntry struct {
	filled   bool
	fn       exec.AsyncFn
	g        *graph.FunctionGraph
	captured []exec.Value
}

// Program maps Inst handles to finalized graphs or native functions.
// Placeholder slots are allocated for every function of a batch before any
// body is lowered, so mutually recursive references resolve through the
// Inst indirection. Entries are written only during elaboration and read
// during execution; a published Inst is immutable.
type Program struct {
	entries []progEntry
}

// Len returns the number of allocated slots.
func (p *Program) Len() int { return len(p.entries) }

// Truncate drops slots allocated after a snapshot.
func (p *Program) Truncate(n int) { p.entries = p.entries[:n] }

// AddNative registers a native async function.
func (p *Program) AddNative(fn exec.AsyncFn) Inst {
	p.entries = append(p.entries, progEntry{filled: true, fn: fn})
	return Inst(len(p.entries) - 1)
}

// Placeholder allocates an unfilled slot.
func (p *Program) Placeholder() Inst {
	p.entries = append(p.entries, progEntry{})
	return Inst(len(p.entries) - 1)
}

// Fill publishes a lowered graph (with its captured constant values) into a
// placeholder slot.
func (p *Program) Fill(i Inst, g *graph.FunctionGraph, captured []exec.Value) {
	entry := &p.entries[i]
	if entry.filled {
		panic(fmt.Sprintf("program: inst %d filled twice", i))
	}
	entry.filled = true
	entry.g = g
	entry.captured = captured
}

// Resolve returns the runnable form of an inst, memoizing graph lifting.
func (p *Program) Resolve(i Inst) exec.AsyncFn {
	entry := &p.entries[i]
	if !entry.filled {
		panic(fmt.Sprintf("program: inst %d resolved before being filled", i))
	}
	if entry.fn == nil {
		fn := graph.Async(entry.g)
		if len(entry.captured) > 0 {
			fn = exec.Curry(fn, entry.captured)
		}
		entry.fn = fn
	}
	return entry.fn
}

// Deferred returns an AsyncFn that resolves the inst at call time, allowing
// mutually recursive functions to reference slots filled later in the same
// batch.
func (p *Program) Deferred(i Inst) exec.AsyncFn {
	return func(ex exec.ExecutorRef, inputs []exec.Future, borrows []exec.BorrowedFuture) []exec.Future {
		return p.Resolve(i)(ex, inputs, borrows)
	}
}
