// Package ooze is the embeddable interpreter driver: it owns the session
// state (source map, AST globals, type graph, native registry, program) and
// exposes the parse/run surface the REPL and embedders use.
package ooze

import (
	"reflect"
	"sort"
	"strings"

	set "github.com/hashicorp/go-set/v3"

	"github.com/ooze-lang/ooze/internal/ast"
	"github.com/ooze-lang/ooze/internal/diag"
	"github.com/ooze-lang/ooze/internal/exec"
	"github.com/ooze-lang/ooze/internal/sema"
	"github.com/ooze-lang/ooze/internal/src"
	"github.com/ooze-lang/ooze/internal/types"
)

// Executor is the scheduling handle graphs run on.
type Executor = exec.ExecutorRef

// NewSeqExecutor returns the single-threaded reference executor.
func NewSeqExecutor() Executor { return exec.NewSequential() }

// NewPoolExecutor returns a worker-pool executor with n workers (n <= 0
// picks one per CPU).
func NewPoolExecutor(n int) Executor { return exec.NewPool(n) }

// Any is a dynamically typed runtime value.
type Any = exec.Value

// As recovers an Any payload by exact type.
func As[T any](v Any) (T, bool) { return exec.As[T](v) }

// Type is a detached type description, stable across REPL steps.
type Type = types.Desc

// Errors is a rendered batch of elaboration diagnostics.
type Errors struct {
	Lines []string
}

func (e *Errors) Error() string { return strings.Join(e.Lines, "\n") }

// Env is the process-wide interpreter state. It is owned by a single
// driver thread; graphs derived from it run concurrently, but elaboration
// is sequential.
type Env struct {
	sm       *src.Map
	builtins src.ID
	a        *ast.AST
	tg       *types.Graph

	typeNames map[string]exec.TypeID
	names     map[exec.TypeID]string
	copyable  *set.Set[exec.TypeID]
	rtypes    map[reflect.Type]exec.TypeID
	nextID    exec.TypeID
	litIDs    map[ast.LitKind]exec.TypeID
	boolID    exec.TypeID
	strID     exec.TypeID

	prog   *Program
	instOf map[ast.ID]Inst
}

// NewEmptyEnv returns an environment with no named types or functions.
func NewEmptyEnv() *Env {
	e := &Env{
		sm:        src.NewMap(),
		a:         ast.New(),
		tg:        types.NewGraph(),
		typeNames: make(map[string]exec.TypeID),
		names:     make(map[exec.TypeID]string),
		copyable:  set.New[exec.TypeID](16),
		rtypes:    make(map[reflect.Type]exec.TypeID),
		nextID:    1,
		litIDs:    make(map[ast.LitKind]exec.TypeID),
		prog:      &Program{},
		instOf:    make(map[ast.ID]Inst),
	}
	e.builtins = e.sm.Add("#builtins", "")

	e.litIDs[ast.LitBool] = e.typeIDFor(reflect.TypeOf(false))
	e.litIDs[ast.LitStr] = e.typeIDFor(reflect.TypeOf(""))
	e.litIDs[ast.LitI8] = e.typeIDFor(reflect.TypeOf(int8(0)))
	e.litIDs[ast.LitI16] = e.typeIDFor(reflect.TypeOf(int16(0)))
	e.litIDs[ast.LitI32] = e.typeIDFor(reflect.TypeOf(int32(0)))
	e.litIDs[ast.LitI64] = e.typeIDFor(reflect.TypeOf(int64(0)))
	e.litIDs[ast.LitU8] = e.typeIDFor(reflect.TypeOf(uint8(0)))
	e.litIDs[ast.LitU16] = e.typeIDFor(reflect.TypeOf(uint16(0)))
	e.litIDs[ast.LitU32] = e.typeIDFor(reflect.TypeOf(uint32(0)))
	e.litIDs[ast.LitU64] = e.typeIDFor(reflect.TypeOf(uint64(0)))
	e.litIDs[ast.LitF32] = e.typeIDFor(reflect.TypeOf(float32(0)))
	e.litIDs[ast.LitF64] = e.typeIDFor(reflect.TypeOf(float64(0)))
	e.boolID = e.litIDs[ast.LitBool]
	e.strID = e.litIDs[ast.LitStr]
	return e
}

// NewEnv returns an environment with the primitive types registered along
// with their clone and to_string overloads.
func NewEnv() *Env {
	e := NewEmptyEnv()
	registerPrimitive[int8](e, "i8")
	registerPrimitive[int16](e, "i16")
	registerPrimitive[int32](e, "i32")
	registerPrimitive[int64](e, "i64")
	registerPrimitive[uint8](e, "u8")
	registerPrimitive[uint16](e, "u16")
	registerPrimitive[uint32](e, "u32")
	registerPrimitive[uint64](e, "u64")
	registerPrimitive[float32](e, "f32")
	registerPrimitive[float64](e, "f64")
	registerPrimitive[bool](e, "bool")
	registerPrimitive[string](e, "string")
	return e
}

func (e *Env) typeIDFor(rt reflect.Type) exec.TypeID {
	if id, ok := e.rtypes[rt]; ok {
		return id
	}
	id := e.nextID
	e.nextID++
	e.rtypes[rt] = id
	return id
}

func (e *Env) semaInfo() sema.Info {
	return sema.Info{
		TypeNames: e.typeNames,
		Names:     e.names,
		Copyable:  e.copyable,
		LitIDs:    e.litIDs,
		BoolID:    e.boolID,
	}
}

// snapshot captures the append-only high-water marks so a failed (or
// completed) elaboration can roll the environment back to its prior shape.
type snapshot struct {
	astLen   int
	tgLen    int
	progLen  int
	buffers  int
	builtins int
}

func (e *Env) snap() snapshot {
	return snapshot{
		astLen:   e.a.Len(),
		tgLen:    e.tg.Len(),
		progLen:  e.prog.Len(),
		buffers:  e.sm.Buffers(),
		builtins: e.sm.Len(e.builtins),
	}
}

func (e *Env) restore(s snapshot) {
	for id := range e.instOf {
		if int(id) >= s.astLen {
			delete(e.instOf, id)
		}
	}
	e.a.Truncate(s.astLen)
	e.tg.Truncate(s.tgLen)
	e.prog.Truncate(s.progLen)
	e.sm.TruncateBuffers(s.buffers)
	e.sm.Truncate(e.builtins, s.builtins)
}

func (e *Env) fail(errs diag.Errors) *Errors {
	return &Errors{Lines: diag.Render(e.sm, errs)}
}

// newRootsSince returns roots appended after the snapshot, in order.
func (e *Env) newRootsSince(s snapshot) []ast.ID {
	var roots []ast.ID
	for _, r := range e.a.Roots() {
		if int(r) >= s.astLen {
			roots = append(roots, r)
		}
	}
	return roots
}

// addGlobal appends a persistent global declaration (an EnvValue root).
func (e *Env) addGlobal(name string, t types.Type) ast.ID {
	ref := e.sm.Append(e.builtins, name)
	pattern := e.a.Append(ast.PatternIdent, ref, t)
	e.a.Append(ast.EnvValue, ref, t, pattern)
	return pattern
}

// Global is one (name, type) pair of the environment's visible globals.
type Global struct {
	Name string
	Type *Type
}

// Globals lists every visible global, functions and values alike.
func (e *Env) Globals() []Global {
	var out []Global
	for _, root := range e.a.Roots() {
		if e.a.Tag(root) == ast.EnvValue {
			p := e.a.Child(root, 0)
			out = append(out, Global{
				Name: e.sm.Text(e.a.Ref(p)),
				Type: e.tg.Extract(e.a.Type(p)),
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// PrettyPrint renders a type with the registered native names.
func (e *Env) PrettyPrint(t *Type) string {
	return t.Pretty(e.names)
}

// TypeName returns the registered name of a native type id.
func (e *Env) TypeName(id exec.TypeID) (string, bool) {
	name, ok := e.names[id]
	return name, ok
}
