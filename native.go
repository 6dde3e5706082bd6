package ooze

import (
	"fmt"
	"reflect"

	"github.com/pkg/errors"

	"github.com/ooze-lang/ooze/internal/exec"
	"github.com/ooze-lang/ooze/internal/types"
)

// AddType registers a copyable native type under the given name, along with
// a clone(&T) -> T overload.
func AddType[T any](e *Env, name string) exec.TypeID {
	var zero T
	id := e.typeIDFor(reflect.TypeOf(zero))
	e.typeNames[name] = id
	e.names[id] = name
	e.copyable.Insert(id)
	// clone is the explicit deep-copy surface; the shallow copy used on
	// Copy edges is only registered for value types, so *x suffices.
	if err := e.AddFunction("clone", func(x *T) T { return *x }); err != nil {
		panic(err)
	}
	return id
}

// AddMoveOnlyType registers a native type whose values may only be moved or
// borrowed, never copied.
func AddMoveOnlyType[T any](e *Env, name string) exec.TypeID {
	var zero T
	id := e.typeIDFor(reflect.TypeOf(zero))
	e.typeNames[name] = id
	e.names[id] = name
	return id
}

// registerPrimitive names a builtin leaf type and registers its clone and
// to_string overloads.
func registerPrimitive[T any](e *Env, name string) {
	AddType[T](e, name)
	if err := e.AddFunction("to_string", func(x *T) string { return fmt.Sprint(*x) }); err != nil {
		panic(err)
	}
}

// AddFunction registers a native function as a global. Pointer parameters
// are borrowed, value parameters are moved (or copied when the type is
// copy-registered); multiple results register as a tuple.
func (e *Env) AddFunction(name string, fn any) error {
	fv := reflect.ValueOf(fn)
	rt := fv.Type()
	if rt.Kind() != reflect.Func || rt.IsVariadic() {
		return errors.Errorf("add function %s: expected a non-variadic function, got %T", name, fn)
	}

	borrowed := make([]bool, rt.NumIn())
	argKids := make([]types.Type, rt.NumIn())
	for i := 0; i < rt.NumIn(); i++ {
		pt := rt.In(i)
		if pt.Kind() == reflect.Ptr {
			borrowed[i] = true
			pt = pt.Elem()
		}
		leaf := e.tg.LeafOf(e.typeIDFor(pt))
		if borrowed[i] {
			leaf = e.tg.BorrowOf(leaf)
		}
		argKids[i] = leaf
	}
	argT := e.tg.TupleOf(argKids...)

	outIDs := make([]exec.TypeID, rt.NumOut())
	outKids := make([]types.Type, rt.NumOut())
	for i := 0; i < rt.NumOut(); i++ {
		outIDs[i] = e.typeIDFor(rt.Out(i))
		outKids[i] = e.tg.LeafOf(outIDs[i])
	}
	var resT types.Type
	if rt.NumOut() == 1 {
		resT = outKids[0]
	} else {
		resT = e.tg.TupleOf(outKids...)
	}
	fnT := e.tg.FnOf(argT, resT)

	call := func(vals []exec.Value, brs []*exec.Value) []exec.Value {
		args := make([]reflect.Value, rt.NumIn())
		vi, bi := 0, 0
		for i := range args {
			if borrowed[i] {
				ptr := reflect.New(rt.In(i).Elem())
				ptr.Elem().Set(reflect.ValueOf(brs[bi].V))
				args[i] = ptr
				bi++
			} else {
				args[i] = reflect.ValueOf(vals[vi].V)
				vi++
			}
		}
		rets := fv.Call(args)
		out := make([]exec.Value, len(rets))
		for i, r := range rets {
			out[i] = exec.Value{ID: outIDs[i], V: r.Interface()}
		}
		return out
	}

	inst := e.prog.AddNative(exec.WrapFunc(rt.NumOut(), call))
	pattern := e.addGlobal(name, fnT)
	e.instOf[pattern] = inst
	return nil
}

// NativeRegistry is a builder for defining primitives before constructing
// an Env.
type NativeRegistry struct {
	ops []func(*Env) error
}

// NewRegistry returns an empty registry.
func NewRegistry() *NativeRegistry {
	return &NativeRegistry{}
}

// RegisterType queues a copyable type registration.
func RegisterType[T any](r *NativeRegistry, name string) *NativeRegistry {
	r.ops = append(r.ops, func(e *Env) error {
		AddType[T](e, name)
		return nil
	})
	return r
}

// RegisterMoveOnlyType queues a move-only type registration.
func RegisterMoveOnlyType[T any](r *NativeRegistry, name string) *NativeRegistry {
	r.ops = append(r.ops, func(e *Env) error {
		AddMoveOnlyType[T](e, name)
		return nil
	})
	return r
}

// RegisterFunction queues a native function registration.
func (r *NativeRegistry) RegisterFunction(name string, fn any) *NativeRegistry {
	r.ops = append(r.ops, func(e *Env) error {
		return e.AddFunction(name, fn)
	})
	return r
}

// NewEnvFrom builds a primitive environment and applies the registry.
func NewEnvFrom(r *NativeRegistry) (*Env, error) {
	e := NewEnv()
	for _, op := range r.ops {
		if err := op(e); err != nil {
			return nil, err
		}
	}
	return e, nil
}
