package exec

import "sync/atomic"

// AsyncFn is the uniform shape of every graph node: invoked synchronously
// with the node's owned input futures and borrowed shares, it wires its
// continuations and immediately returns futures for its outputs. An AsyncFn
// owns the borrows it is given and must drop every share once done with it.
type AsyncFn func(ex ExecutorRef, inputs []Future, borrows []BorrowedFuture) []Future

func makeOutputs(ex ExecutorRef, n int) ([]Promise, []Future) {
	proms := make([]Promise, n)
	outs := make([]Future, n)
	for i := 0; i < n; i++ {
		proms[i], outs[i] = NewPromise(ex)
	}
	return proms, outs
}

// ValueFn is the 0-in 1-out primitive that emits a constant.
func ValueFn(v Value) AsyncFn {
	return func(ex ExecutorRef, _ []Future, _ []BorrowedFuture) []Future {
		return []Future{Ready(ex, v)}
	}
}

// WrapFunc lifts a synchronous call over resolved values into an AsyncFn.
// vals receives the owned inputs in order, brs the borrowed inputs in
// order; the call runs on the executor once every input is available.
func WrapFunc(outputs int, call func(vals []Value, brs []*Value) []Value) AsyncFn {
	return func(ex ExecutorRef, inputs []Future, borrows []BorrowedFuture) []Future {
		proms, outs := makeOutputs(ex, outputs)

		vals := make([]Value, len(inputs))
		brs := make([]*Value, len(borrows))

		run := func() {
			results := call(vals, brs)
			for _, b := range borrows {
				b.Drop()
			}
			for i := range proms {
				proms[i].Send(results[i])
			}
		}

		total := len(inputs) + len(borrows)
		if total == 0 {
			ex.Enqueue(run)
			return outs
		}

		pending := int32(total)
		arrived := func() {
			if atomic.AddInt32(&pending, -1) == 0 {
				run()
			}
		}
		for i := range inputs {
			i := i
			inputs[i].Listen(func(v Value) {
				vals[i] = v
				arrived()
			})
		}
		for j := range borrows {
			j := j
			borrows[j].Listen(func(p *Value) {
				brs[j] = p
				arrived()
			})
		}
		return outs
	}
}

// Functional invokes a function value on its remaining inputs. Input 0 is
// the function; n is the output count of its result.
func Functional(n int) AsyncFn {
	return func(ex ExecutorRef, inputs []Future, borrows []BorrowedFuture) []Future {
		proms, outs := makeOutputs(ex, n)
		inputs[0].Listen(func(v Value) {
			fn := MustAs[AsyncFn](v)
			res := fn(ex, inputs[1:], borrows)
			for i := range res {
				res[i].Forward(proms[i])
			}
		})
		return outs
	}
}

// Select takes a condition plus 2k inputs and emits the first k when true,
// the last k otherwise. The unchosen values are dropped the moment the
// condition is known, without executing their pending continuations.
func Select() AsyncFn {
	return func(ex ExecutorRef, inputs []Future, borrows []BorrowedFuture) []Future {
		kv := (len(inputs) - 1) / 2
		kb := len(borrows) / 2
		proms, outs := makeOutputs(ex, kv+kb)
		inputs[0].Listen(func(v Value) {
			cond := MustAs[bool](v)
			chosenV, chosenB := inputs[1:1+kv], borrows[:kb]
			droppedB := borrows[kb:]
			if !cond {
				chosenV, chosenB = inputs[1+kv:], borrows[kb:]
				droppedB = borrows[:kb]
			}
			for i := range chosenV {
				chosenV[i].Forward(proms[i])
			}
			for i := range chosenB {
				chosenB[i].Then(func(p *Value) Value { return *p }).Forward(proms[kv+i])
				chosenB[i].Drop()
			}
			for _, b := range droppedB {
				b.Drop()
			}
		})
		return outs
	}
}

// If dispatches a condition plus argument inputs to one of two branch
// functions, evaluating only the chosen branch. n is the output count.
func If(n int, thenFn, elseFn AsyncFn) AsyncFn {
	return func(ex ExecutorRef, inputs []Future, borrows []BorrowedFuture) []Future {
		proms, outs := makeOutputs(ex, n)
		inputs[0].Listen(func(v Value) {
			branch := elseFn
			if MustAs[bool](v) {
				branch = thenFn
			}
			res := branch(ex, inputs[1:], borrows)
			for i := range res {
				res[i].Forward(proms[i])
			}
		})
		return outs
	}
}

// Converge iterates a body function until it reports completion. Input 0 is
// the body, input 1 the initial done flag, the rest the loop state; borrows
// are loop-invariant and re-shared into every iteration. The body returns
// (done, state...).
func Converge() AsyncFn {
	return func(ex ExecutorRef, inputs []Future, borrows []BorrowedFuture) []Future {
		n := len(inputs) - 2
		proms, outs := makeOutputs(ex, n)
		inputs[0].Listen(func(fv Value) {
			body := MustAs[AsyncFn](fv)
			var step func(cond Future, state []Future)
			step = func(cond Future, state []Future) {
				cond.Listen(func(cv Value) {
					if MustAs[bool](cv) {
						for i := range state {
							state[i].Forward(proms[i])
						}
						for _, b := range borrows {
							b.Drop()
						}
						return
					}
					cloned := make([]BorrowedFuture, len(borrows))
					for i := range borrows {
						cloned[i] = borrows[i].Clone()
					}
					res := body(ex, state, cloned)
					step(res[0], res[1:])
				})
			}
			step(inputs[1], inputs[2:])
		})
		return outs
	}
}

// Curry binds constant values as trailing inputs of fn. Captured globals are
// lowered as extra graph inputs appended after the parameters, so currying
// appends at the end.
func Curry(fn AsyncFn, vals []Value) AsyncFn {
	return func(ex ExecutorRef, inputs []Future, borrows []BorrowedFuture) []Future {
		all := make([]Future, 0, len(inputs)+len(vals))
		all = append(all, inputs...)
		for _, v := range vals {
			all = append(all, Ready(ex, v))
		}
		return fn(ex, all, borrows)
	}
}
