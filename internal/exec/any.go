// Package exec implements the asynchronous runtime the dataflow graphs run
// on: the type-erased value container, the promise/future/borrow handoff
// protocol, the executor abstraction and the built-in async primitives.
package exec

import "fmt"

// TypeID tags a Value with its registered native type. ID 0 is reserved for
// function values, which are not user-registered.
type TypeID uint64

// FuncID is the tag carried by function-valued Values.
const FuncID TypeID = 0

// Value is the opaque dynamically-typed container moved through a graph. It
// is move-only by convention: once taken from a Future it has exactly one
// owner. Copy edges shallow-copy the boxed payload, which is only legal for
// copy-registered leaf types.
type Value struct {
	ID TypeID
	V  any
}

// As recovers the payload by exact type.
func As[T any](v Value) (T, bool) {
	t, ok := v.V.(T)
	return t, ok
}

// MustAs recovers the payload by exact type, panicking on mismatch. Graph
// nodes are type-checked before construction, so a mismatch here is an
// internal invariant violation rather than a user error.
func MustAs[T any](v Value) T {
	t, ok := v.V.(T)
	if !ok {
		panic(fmt.Sprintf("exec: value holds %T, not %T", v.V, t))
	}
	return t
}
