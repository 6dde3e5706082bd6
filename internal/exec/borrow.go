package exec

import "sync"

// borrowState is the refcounted overlay that grants shared read-only access
// to a value in flight. The post-borrow promise resolves with the original
// value once the value has arrived and every share has been dropped.
type borrowState struct {
	mu    sync.Mutex
	refs  int
	ready bool
	val   Value
	conts []func(*Value)
	post  Promise
	ex    ExecutorRef
}

// BorrowedFuture is one share of a borrowed value. Shares fan out via Clone
// and must be released via Drop; the last drop resumes the post-borrow
// Future with the original value. Then grants read access without
// consuming the value.
type BorrowedFuture struct {
	b *borrowState
}

// Borrow splits a future into a borrowed share and the post-borrow future.
// The returned share carries one reference.
func Borrow(f Future) (BorrowedFuture, Future) {
	post, out := NewPromise(f.st.ex)
	b := &borrowState{refs: 1, post: post, ex: f.st.ex}
	f.Listen(func(v Value) {
		b.mu.Lock()
		b.val = v
		b.ready = true
		conts := b.conts
		b.conts = nil
		b.mu.Unlock()
		for _, c := range conts {
			c := c
			b.ex.Enqueue(func() { c(&b.val) })
		}
		b.release(0)
	})
	return BorrowedFuture{b: b}, out
}

// release drops n references and resolves the post-borrow future when the
// value is present and no shares remain.
func (b *borrowState) release(n int) {
	b.mu.Lock()
	b.refs -= n
	fire := b.refs == 0 && b.ready
	b.mu.Unlock()
	if fire {
		b.post.Send(b.val)
	}
}

// Valid reports whether the share is attached to a borrow.
func (bf BorrowedFuture) Valid() bool { return bf.b != nil }

// Clone adds a share.
func (bf BorrowedFuture) Clone() BorrowedFuture {
	bf.b.mu.Lock()
	bf.b.refs++
	bf.b.mu.Unlock()
	return bf
}

// Drop releases this share.
func (bf BorrowedFuture) Drop() { bf.b.release(1) }

// RefCount reports the number of outstanding shares.
func (bf BorrowedFuture) RefCount() int {
	bf.b.mu.Lock()
	defer bf.b.mu.Unlock()
	return bf.b.refs
}

// Resolved reports whether the borrowed value has arrived.
func (bf BorrowedFuture) Resolved() bool {
	bf.b.mu.Lock()
	defer bf.b.mu.Unlock()
	return bf.b.ready
}

// Listen registers read access to the borrowed value. The pointer stays
// valid for as long as the registering share is held; callers must keep the
// share alive until the callback has completed.
func (bf BorrowedFuture) Listen(c func(*Value)) {
	bf.b.mu.Lock()
	if !bf.b.ready {
		bf.b.conts = append(bf.b.conts, c)
		bf.b.mu.Unlock()
		return
	}
	bf.b.mu.Unlock()
	bf.b.ex.Enqueue(func() { c(&bf.b.val) })
}

// Then invokes fn on the borrowed value without consuming it, holding a
// share for the duration of the call, and returns a future of the result.
func (bf BorrowedFuture) Then(fn func(*Value) Value) Future {
	p, out := NewPromise(bf.b.ex)
	share := bf.Clone()
	share.Listen(func(v *Value) {
		p.Send(fn(v))
		share.Drop()
	})
	return out
}
