package exec

import "sync"

// futureState is the single word of shared state behind one promise/future
// pair plus its FIFO wait-list of continuations. Resolution publishes the
// continuations to the executor in registration order.
type futureState struct {
	mu       sync.Mutex
	resolved bool
	val      Value
	conts    []func(Value)
	done     chan struct{} // lazily created for Wait
	ex       ExecutorRef
}

// Promise is the producing half of a single-producer single-consumer
// handoff. Send resolves the paired Future exactly once.
type Promise struct {
	st *futureState
}

// Future is the consuming half. A Future is the sole path to its value:
// taking the value (Wait) or chaining (Then/Listen) consumes it. Dropping an
// unconsumed Future abandons continuations that have not yet fired and
// releases the held value.
type Future struct {
	st *futureState
}

// NewPromise creates a linked promise/future pair scheduled on ex.
func NewPromise(ex ExecutorRef) (Promise, Future) {
	st := &futureState{ex: ex}
	return Promise{st: st}, Future{st: st}
}

// Ready returns a future already resolved with v.
func Ready(ex ExecutorRef, v Value) Future {
	return Future{st: &futureState{resolved: true, val: v, ex: ex}}
}

// Send resolves the paired future. Must be called at most once.
func (p Promise) Send(v Value) {
	p.st.mu.Lock()
	if p.st.resolved {
		p.st.mu.Unlock()
		panic("exec: promise resolved twice")
	}
	p.st.resolved = true
	p.st.val = v
	conts := p.st.conts
	p.st.conts = nil
	done := p.st.done
	p.st.mu.Unlock()

	if done != nil {
		close(done)
	}
	for _, c := range conts {
		c := c
		p.st.ex.Enqueue(func() { c(v) })
	}
}

// Valid reports whether the future is attached to a state (zero Futures are
// not).
func (f Future) Valid() bool { return f.st != nil }

// Resolved reports whether the value has arrived.
func (f Future) Resolved() bool {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	return f.st.resolved
}

// Executor returns the ref the future schedules continuations on.
func (f Future) Executor() ExecutorRef { return f.st.ex }

// Listen registers a raw continuation, consuming the future. The
// continuation runs on the executor once the value is available.
func (f Future) Listen(c func(Value)) {
	f.st.mu.Lock()
	if !f.st.resolved {
		f.st.conts = append(f.st.conts, c)
		f.st.mu.Unlock()
		return
	}
	v := f.st.val
	f.st.mu.Unlock()
	f.st.ex.Enqueue(func() { c(v) })
}

// Then chains a transformation, producing a new future for its result.
func (f Future) Then(fn func(Value) Value) Future {
	p, out := NewPromise(f.st.ex)
	f.Listen(func(v Value) { p.Send(fn(v)) })
	return out
}

// Forward resolves p with this future's value once available.
func (f Future) Forward(p Promise) {
	f.Listen(p.Send)
}

// Wait blocks the calling thread until the value arrives and takes it.
// Only non-worker threads may call Wait.
func (f Future) Wait() Value {
	f.st.mu.Lock()
	if f.st.resolved {
		v := f.st.val
		f.st.mu.Unlock()
		return v
	}
	if f.st.done == nil {
		f.st.done = make(chan struct{})
	}
	done := f.st.done
	f.st.mu.Unlock()
	<-done
	return f.st.val
}
