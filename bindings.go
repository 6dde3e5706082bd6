package ooze

import (
	"github.com/ooze-lang/ooze/internal/exec"
	"github.com/ooze-lang/ooze/internal/types"
)

// BindingState is the lifecycle of a REPL-level binding. Taken bindings are
// removed from the map rather than represented explicitly.
type BindingState int

const (
	// Ready: every value is resolved and owned.
	Ready BindingState = iota
	// Borrowed: at least one value has an outstanding borrow share.
	Borrowed
	// Pending: at least one value is still unresolved.
	Pending
)

// AsyncValue is one stored cell of a binding: an owned future, plus the
// live borrow share once the cell has been lent out.
type AsyncValue struct {
	fut      exec.Future
	share    exec.BorrowedFuture
	hasShare bool
}

func newAsyncValue(f exec.Future) AsyncValue {
	return AsyncValue{fut: f}
}

// borrow lends the cell out, caching the split so repeated borrows share
// one overlay. The returned share is owned by the caller.
func (v *AsyncValue) borrow() exec.BorrowedFuture {
	if !v.hasShare {
		v.share, v.fut = exec.Borrow(v.fut)
		v.hasShare = true
	}
	return v.share.Clone()
}

// take consumes the cell: the binding's own share is released, and the
// post-borrow future (which resumes once outside shares drop) is returned.
func (v *AsyncValue) take() exec.Future {
	if v.hasShare {
		v.share.Drop()
		v.hasShare = false
	}
	return v.fut
}

// await blocks until the cell is resolved and owned again.
func (v *AsyncValue) await() {
	f := v.take()
	val := f.Wait()
	*v = AsyncValue{fut: exec.Ready(f.Executor(), val)}
}

func (v *AsyncValue) state() BindingState {
	if v.hasShare {
		if v.share.RefCount() > 1 {
			return Borrowed
		}
		if v.share.Resolved() {
			return Ready
		}
		return Pending
	}
	if v.fut.Resolved() {
		return Ready
	}
	return Pending
}

// Binding is a typed vector of async cells; the cell count equals the size
// of the type.
type Binding struct {
	typ    *types.Desc
	values []AsyncValue
}

// Type returns the binding's detached type description.
func (b *Binding) Type() *Type { return b.typ }

// Len returns the number of stored cells.
func (b *Binding) Len() int { return len(b.values) }

// State folds the cell states: Pending dominates Borrowed dominates Ready.
func (b *Binding) State() BindingState {
	s := Ready
	for i := range b.values {
		if cs := b.values[i].state(); cs > s {
			s = cs
		}
	}
	return s
}

// Await blocks until every cell is resolved and owned.
func (b *Binding) Await() {
	for i := range b.values {
		b.values[i].await()
	}
}

// Wait awaits the binding and returns its resolved values without
// consuming it.
func (b *Binding) Wait() []Any {
	b.Await()
	out := make([]Any, len(b.values))
	for i := range b.values {
		share := b.values[i].borrow()
		f := share.Then(func(p *exec.Value) exec.Value { return *p })
		share.Drop()
		out[i] = f.Wait()
	}
	return out
}

// Bindings is the driver-owned map of named REPL bindings.
type Bindings map[string]*Binding
