package ooze

import (
	"reflect"
	"testing"

	"github.com/kr/pretty"
)

func values(b *Binding) []any {
	anys := b.Wait()
	out := make([]any, len(anys))
	for i, v := range anys {
		out[i] = v.V
	}
	return out
}

// checkRun parses an optional script, evaluates expr and compares the
// result binding's type and payloads.
func checkRun(t *testing.T, e *Env, script, expr, wantType string, want ...any) {
	t.Helper()
	ex := NewSeqExecutor()
	if script != "" {
		if err := e.ParseScripts(script); err != nil {
			t.Fatalf("ParseScripts:\n%s", err)
		}
	}
	b, _, err := e.Run(ex, Bindings{}, expr)
	if err != nil {
		t.Fatalf("Run(%q):\n%s", expr, err)
	}
	if got := e.PrettyPrint(b.Type()); got != wantType {
		t.Fatalf("Run(%q) type = %s, want %s", expr, got, wantType)
	}
	if got := values(b); !reflect.DeepEqual(got, want) {
		t.Fatalf("Run(%q) values diff: %v", expr, pretty.Diff(got, want))
	}
}

// checkError evaluates expr (after an optional script) and compares the
// rendered error lines.
func checkError(t *testing.T, e *Env, script, expr string, want ...string) {
	t.Helper()
	ex := NewSeqExecutor()
	if script != "" {
		if err := e.ParseScripts(script); err != nil {
			t.Fatalf("ParseScripts:\n%s", err)
		}
	}
	_, _, err := e.Run(ex, Bindings{}, expr)
	if err == nil {
		t.Fatalf("Run(%q): expected error", expr)
	}
	rendered, ok := err.(*Errors)
	if !ok {
		t.Fatalf("Run(%q): unexpected error type %T", expr, err)
	}
	if !reflect.DeepEqual(rendered.Lines, want) {
		t.Fatalf("Run(%q) error diff: %v", expr, pretty.Diff(rendered.Lines, want))
	}
}

func sumEnv() *Env {
	e := NewEmptyEnv()
	AddType[int32](e, "i32")
	if err := e.AddFunction("sum", func(x, y int32) int32 { return x + y }); err != nil {
		panic(err)
	}
	return e
}

func TestBasic(t *testing.T) {
	checkRun(t, sumEnv(),
		"fn f(x: i32, y: i32) -> i32 = sum(sum(x, y), y)",
		"f(5, 6)", "i32", int32(17))
}

func TestNoArgs(t *testing.T) {
	e := NewEmptyEnv()
	AddType[int32](e, "i32")
	checkRun(t, e, "fn f() -> i32 = 17", "f()", "i32", int32(17))
}

func TestIdentity(t *testing.T) {
	e := NewEmptyEnv()
	AddType[int32](e, "i32")
	checkRun(t, e, "fn f(x: i32) -> i32 = x", "f(5)", "i32", int32(5))
}

func TestBorrowParam(t *testing.T) {
	checkRun(t, NewEnv(),
		"fn f(x: &i32) -> string = to_string(x)",
		"f(&1)", "string", "1")
}

func TestBorrowAssign(t *testing.T) {
	checkRun(t, NewEnv(),
		"fn f(x: i32) -> string { let x = &x; to_string(x) }",
		"f(1)", "string", "1")
}

func TestTuple(t *testing.T) {
	checkRun(t, NewEnv(), "", "((1), 2)", "((i32), i32)", int32(1), int32(2))
}

func TestTupleFn(t *testing.T) {
	checkRun(t, NewEnv(),
		"fn f((w, x) : (i32, i32), (y, z): (i32, i32)) -> _ = ((z, x), (y, w))",
		"f((1, 2), (3, 4))", "((i32, i32), (i32, i32))",
		int32(4), int32(2), int32(3), int32(1))
}

func TestTupleParameter(t *testing.T) {
	checkRun(t, NewEnv(),
		"fn f(x : (i32, i32)) -> _ { let (y, z) = x; (z, y) }",
		"f((1, 2))", "(i32, i32)", int32(2), int32(1))
}

func TestTupleAssignment(t *testing.T) {
	checkRun(t, NewEnv(),
		"fn f() -> _ { let x = (1, 2); let (y, z) = x; (z, y) }",
		"f()", "(i32, i32)", int32(2), int32(1))
}

func TestFnParameter(t *testing.T) {
	checkRun(t, NewEnv(),
		"fn one() -> i32 = 1\nfn f(g: fn() -> i32) -> i32 = g()\n",
		"f(one)", "i32", int32(1))
}

func TestWildcardParameter(t *testing.T) {
	checkRun(t, NewEnv(), "fn f(_ : i32, x : i32) -> _ = x", "f(1, 2)", "i32", int32(2))
}

func TestWildcardAssignment(t *testing.T) {
	checkRun(t, NewEnv(), "fn f() -> _ { let (_, x) = (1, 2); x }", "f()", "i32", int32(2))
}

type point struct {
	X int32
	Y int32
}

func TestCustomType(t *testing.T) {
	e := NewEnv()
	AddType[point](e, "Point")
	if err := e.AddFunction("sum", func(a, b point) point {
		return point{X: a.X + b.X, Y: a.Y + b.Y}
	}); err != nil {
		t.Fatal(err)
	}
	if err := e.AddFunction("create_point", func(x, y *int32) point {
		return point{X: *x, Y: *y}
	}); err != nil {
		t.Fatal(err)
	}

	checkRun(t, e,
		"fn f(x: Point, y: Point) -> Point = sum(sum(x, y), y)",
		"f(create_point(&1, &2), create_point(&9, &7))",
		"Point", point{X: 19, Y: 16})
}

func TestAlreadyMoved(t *testing.T) {
	e := NewEnv()
	AddMoveOnlyType[*int](e, "unique_int")

	ex := NewSeqExecutor()
	err := e.ParseScripts("fn f(x: unique_int) -> (unique_int, unique_int) = (x, x)")
	if err == nil {
		t.Fatal("expected elaboration error")
	}
	want := []string{
		"1:5 error: binding 'x' used 2 times",
		" | fn f(x: unique_int) -> (unique_int, unique_int) = (x, x)",
		" |      ^",
	}
	rendered := err.(*Errors)
	if !reflect.DeepEqual(rendered.Lines, want) {
		t.Fatalf("error diff: %v", pretty.Diff(rendered.Lines, want))
	}
	_ = ex
}

func TestClone(t *testing.T) {
	e := NewEmptyEnv()
	AddType[string](e, "string")
	checkRun(t, e, "", "clone(&'abc')", "string", "abc")
}

func TestExprRebind(t *testing.T) {
	e := NewEmptyEnv()
	AddType[int32](e, "i32")
	if err := e.AddFunction("double", func(x int32) int32 { return x + x }); err != nil {
		t.Fatal(err)
	}
	checkRun(t, e,
		"fn f(x: i32) -> i32 { let x = double(x); let x = double(x); x }",
		"f(1)", "i32", int32(4))
}

func TestScope(t *testing.T) {
	script := "fn f(a: i32, b: i32) -> (i32, (string, i32, i32)) {" +
		"  let b = {" +
		"    let c : i32 = a;" +
		"    let a : string = 'abc';" +
		"    (a, b, c)" +
		"  };" +
		"  (a, b)" +
		"}"
	checkRun(t, NewEnv(), script, "f(1, 2)",
		"(i32, (string, i32, i32))", int32(1), "abc", int32(2), int32(1))
}

func TestSelect(t *testing.T) {
	script := "fn f(b: bool) -> i32  = select b { 1 } else { 2 }"
	checkRun(t, NewEnv(), script, "f(true)", "i32", int32(1))
	checkRun(t, NewEnv(), script, "f(false)", "i32", int32(2))
}

func TestOutOfOrder(t *testing.T) {
	checkRun(t, NewEnv(), "fn f() -> _ = g()\nfn g() -> i32 = 1\n", "f()", "i32", int32(1))
}

func TestMutualRecursionElaborates(t *testing.T) {
	// Mutually recursive functions lower against placeholder slots; both
	// globals are published with their full types. select is an eager
	// dataflow primitive, so recursive calls are only elaborated here, not
	// invoked.
	e := NewEnv()
	script := "fn f(b: bool, x: i32) -> i32 = select b { x } else { g(b, x) }\n" +
		"fn g(b: bool, x: i32) -> i32 = select b { f(b, x) } else { x }\n"
	if err := e.ParseScripts(script); err != nil {
		t.Fatalf("ParseScripts:\n%s", err)
	}

	found := 0
	for _, g := range e.Globals() {
		if (g.Name == "f" || g.Name == "g") && e.PrettyPrint(g.Type) == "fn(bool, i32) -> i32" {
			found++
		}
	}
	if found != 2 {
		t.Fatalf("found %d recursive globals, want 2", found)
	}
}

func assign(t *testing.T, e *Env, bindings Bindings, expr string) Bindings {
	t.Helper()
	ex := NewSeqExecutor()
	b, bindings, err := e.Run(ex, bindings, expr)
	if err != nil {
		t.Fatalf("Run(%q):\n%s", expr, err)
	}
	if got := e.PrettyPrint(b.Type()); got != "()" {
		t.Fatalf("Run(%q) result type = %s, want ()", expr, got)
	}
	return bindings
}

func checkBinding(t *testing.T, e *Env, bindings Bindings, name, wantType string, want ...any) {
	t.Helper()
	b, ok := bindings[name]
	if !ok {
		t.Fatalf("binding %s not found", name)
	}
	if got := e.PrettyPrint(b.Type()); got != wantType {
		t.Fatalf("binding %s type = %s, want %s", name, got, wantType)
	}
	if got := values(b); !reflect.DeepEqual(got, want) {
		t.Fatalf("binding %s diff: %v", name, pretty.Diff(got, want))
	}
}

func TestAssignEmpty(t *testing.T) {
	e := NewEnv()
	bindings := assign(t, e, Bindings{}, "let () = ()")
	if len(bindings) != 0 {
		t.Fatalf("bindings = %v, want none", bindings)
	}
}

func TestAssignBasic(t *testing.T) {
	e := NewEnv()
	bindings := assign(t, e, Bindings{}, "let x = 1")
	if len(bindings) != 1 {
		t.Fatalf("got %d bindings, want 1", len(bindings))
	}
	checkBinding(t, e, bindings, "x", "i32", int32(1))
}

func TestAssignTupleDestructure(t *testing.T) {
	e := NewEnv()
	bindings := assign(t, e, Bindings{}, "let (x, y) = (1, 2)")
	checkBinding(t, e, bindings, "x", "i32", int32(1))
	checkBinding(t, e, bindings, "y", "i32", int32(2))
}

func TestAssignTupleNestedDestructure(t *testing.T) {
	e := NewEnv()
	bindings := assign(t, e, Bindings{}, "let (x, (y, z)) = (1, (2, 3))")
	if len(bindings) != 3 {
		t.Fatalf("got %d bindings, want 3", len(bindings))
	}
	checkBinding(t, e, bindings, "x", "i32", int32(1))
	checkBinding(t, e, bindings, "y", "i32", int32(2))
	checkBinding(t, e, bindings, "z", "i32", int32(3))

	ex := NewSeqExecutor()
	b, _, err := e.Run(ex, bindings, "(x, y, z)")
	if err != nil {
		t.Fatalf("Run:\n%s", err)
	}
	if got := e.PrettyPrint(b.Type()); got != "(i32, i32, i32)" {
		t.Fatalf("type = %s", got)
	}
	if got := values(b); !reflect.DeepEqual(got, []any{int32(1), int32(2), int32(3)}) {
		t.Fatalf("values = %v", got)
	}
}

func TestAssignTupleWildcard(t *testing.T) {
	e := NewEnv()
	bindings := assign(t, e, Bindings{}, "let (_, x, _, y) = (1, 2, 3, 4)")
	if len(bindings) != 2 {
		t.Fatalf("got %d bindings, want 2", len(bindings))
	}
	checkBinding(t, e, bindings, "x", "i32", int32(2))
	checkBinding(t, e, bindings, "y", "i32", int32(4))
}

func TestAssignWholeTuple(t *testing.T) {
	e := NewEnv()
	bindings := assign(t, e, Bindings{}, "let x = (1, 2)")
	checkBinding(t, e, bindings, "x", "(i32, i32)", int32(1), int32(2))
}

type opaque struct{}

func TestUnnamedType(t *testing.T) {
	e := NewEnv()
	if err := e.AddFunction("create", func() opaque { return opaque{} }); err != nil {
		t.Fatal(err)
	}
	if err := e.AddFunction("identity", func(a opaque) opaque { return a }); err != nil {
		t.Fatal(err)
	}

	ex := NewSeqExecutor()
	b, _, err := e.Run(ex, Bindings{}, "identity(create())")
	if err != nil {
		t.Fatalf("Run:\n%s", err)
	}
	typeName := e.PrettyPrint(b.Type())
	if len(typeName) < 7 || typeName[:7] != "type 0x" {
		t.Fatalf("unnamed type rendered as %q", typeName)
	}
	if got := values(b); !reflect.DeepEqual(got, []any{opaque{}}) {
		t.Fatalf("values = %v", got)
	}
}

func TestAssignDeduceOverloads(t *testing.T) {
	e := NewEnv()
	if err := e.AddFunction("f", func() int32 { return 5 }); err != nil {
		t.Fatal(err)
	}
	if err := e.AddFunction("f", func() float32 { return 3.0 }); err != nil {
		t.Fatal(err)
	}
	bindings := assign(t, e, Bindings{}, "let (x, y) : (i32, f32) = (f(), f())")
	checkBinding(t, e, bindings, "x", "i32", int32(5))
	checkBinding(t, e, bindings, "y", "f32", float32(3.0))
}

func TestAssignWrongType(t *testing.T) {
	checkError(t, NewEnv(), "", "let x: f32 = 1",
		"1:4 error: expected f32, given i32",
		" | let x: f32 = 1",
		" |     ^")
}

func TestRunBorrow(t *testing.T) {
	checkError(t, NewEnv(), "", "&1",
		"1:0 error: cannot return a borrowed value",
		" | &1",
		" | ^~")
}

func TestAssignBorrow(t *testing.T) {
	checkError(t, NewEnv(), "", "let x = &1",
		"1:8 error: cannot return a borrowed value",
		" | let x = &1",
		" |         ^~")
}

func TestUndeclaredFunction(t *testing.T) {
	checkError(t, NewEnv(), "", "f()",
		"1:0 error: use of undeclared binding 'f'",
		" | f()",
		" | ^")
}

func TestUndeclaredBinding(t *testing.T) {
	checkError(t, NewEnv(), "", "x",
		"1:0 error: use of undeclared binding 'x'",
		" | x",
		" | ^")
}

func TestBadPattern(t *testing.T) {
	checkError(t, NewEnv(), "", "let (x) = ()",
		"1:4 error: expected (_), given ()",
		" | let (x) = ()",
		" |     ^~~")
}

func TestExprOrError(t *testing.T) {
	e := NewEnv()
	if err := e.AddFunction("f", func(int32) {}); err != nil {
		t.Fatal(err)
	}
	checkError(t, e, "", "f('abc')",
		"1:2 error: expected string, given i32",
		" | f('abc')",
		" |   ^~~~~")
}

func TestToString(t *testing.T) {
	ex := NewSeqExecutor()
	s, _, err := NewEnv().RunToString(ex, Bindings{}, "1")
	if err != nil {
		t.Fatalf("RunToString:\n%s", err)
	}
	if s != "1" {
		t.Fatalf("RunToString = %q, want 1", s)
	}
}

func TestToStringFn(t *testing.T) {
	e := NewEnv()
	if err := e.AddFunction("f", func() string { return "abc" }); err != nil {
		t.Fatal(err)
	}
	ex := NewSeqExecutor()
	s, _, err := e.RunToString(ex, Bindings{}, "f()")
	if err != nil {
		t.Fatalf("RunToString:\n%s", err)
	}
	if s != "abc" {
		t.Fatalf("RunToString = %q, want abc", s)
	}
}

func TestCopyBinding(t *testing.T) {
	e := NewEnv()
	ex := NewSeqExecutor()
	bindings := assign(t, e, Bindings{}, "let x = 3")

	for i := 0; i < 2; i++ {
		b, next, err := e.Run(ex, bindings, "x")
		if err != nil {
			t.Fatalf("Run #%d:\n%s", i, err)
		}
		bindings = next
		if got := values(b); !reflect.DeepEqual(got, []any{int32(3)}) {
			t.Fatalf("Run #%d values = %v", i, got)
		}
	}
	if _, ok := bindings["x"]; !ok {
		t.Fatal("copyable binding was consumed")
	}
}

func TestExtractBinding(t *testing.T) {
	e := NewEnv()
	AddMoveOnlyType[*int](e, "unique_int")
	if err := e.AddFunction("make_unique", func(x int32) *int {
		v := int(x)
		return &v
	}); err != nil {
		t.Fatal(err)
	}

	ex := NewSeqExecutor()
	bindings := assign(t, e, Bindings{}, "let x = make_unique(3)")

	b, bindings, err := e.Run(ex, bindings, "x")
	if err != nil {
		t.Fatalf("Run:\n%s", err)
	}
	if got := e.PrettyPrint(b.Type()); got != "unique_int" {
		t.Fatalf("type = %s", got)
	}
	if _, ok := bindings["x"]; ok {
		t.Fatal("move-only binding should have been consumed")
	}

	checkError(t, e, "", "x",
		"1:0 error: use of undeclared binding 'x'",
		" | x",
		" | ^")
}

func TestAssignEnvFn(t *testing.T) {
	e := NewEnv()
	if err := e.AddFunction("f", func() int32 { return 3 }); err != nil {
		t.Fatal(err)
	}
	ex := NewSeqExecutor()
	bindings := assign(t, e, Bindings{}, "let f2 = f")
	b, _, err := e.Run(ex, bindings, "f2()")
	if err != nil {
		t.Fatalf("Run:\n%s", err)
	}
	if got := values(b); !reflect.DeepEqual(got, []any{int32(3)}) {
		t.Fatalf("values = %v", got)
	}
}

func TestAssignScriptFn(t *testing.T) {
	e := NewEnv()
	if err := e.ParseScripts("fn f() -> i32 = 3"); err != nil {
		t.Fatalf("ParseScripts:\n%s", err)
	}
	ex := NewSeqExecutor()
	bindings := assign(t, e, Bindings{}, "let f2 = f")
	b, _, err := e.Run(ex, bindings, "f2()")
	if err != nil {
		t.Fatalf("Run:\n%s", err)
	}
	if got := values(b); !reflect.DeepEqual(got, []any{int32(3)}) {
		t.Fatalf("values = %v", got)
	}
}

func TestReuseBorrowedBinding(t *testing.T) {
	e := NewEnv()
	ex := NewSeqExecutor()
	bindings := assign(t, e, Bindings{}, "let x = 3")

	for i := 0; i < 2; i++ {
		b, next, err := e.Run(ex, bindings, "clone(&x)")
		if err != nil {
			t.Fatalf("clone #%d:\n%s", i, err)
		}
		bindings = next
		if got := values(b); !reflect.DeepEqual(got, []any{int32(3)}) {
			t.Fatalf("clone #%d = %v", i, got)
		}
	}
	if _, ok := bindings["x"]; !ok {
		t.Fatal("borrowed binding was consumed")
	}
}

func TestReuseToStringBinding(t *testing.T) {
	e := NewEnv()
	ex := NewSeqExecutor()

	s, bindings, err := e.RunToString(ex, Bindings{}, "let x = 1")
	if err != nil || s != "" {
		t.Fatalf("let: %q %v", s, err)
	}
	for i := 0; i < 2; i++ {
		s, bindings, err = e.RunToString(ex, bindings, "x")
		if err != nil {
			t.Fatalf("x #%d:\n%s", i, err)
		}
		if s != "1" {
			t.Fatalf("x #%d = %q, want 1", i, s)
		}
	}
}

func TestReuseAssignBindingIndirect(t *testing.T) {
	e := NewEnv()
	bindings := assign(t, e, Bindings{}, "let x = 1")
	bindings = assign(t, e, bindings, "let y = clone(&x)")
	bindings = assign(t, e, bindings, "let z = clone(&x)")

	ex := NewSeqExecutor()
	b, _, err := e.Run(ex, bindings, "(x, y, z)")
	if err != nil {
		t.Fatalf("Run:\n%s", err)
	}
	if got := values(b); !reflect.DeepEqual(got, []any{int32(1), int32(1), int32(1)}) {
		t.Fatalf("values = %v", got)
	}
}

func TestTupleUntuple(t *testing.T) {
	e := NewEnv()
	bindings := assign(t, e, Bindings{}, "let x = 3")
	bindings = assign(t, e, bindings, "let y = 'abc'")
	bindings = assign(t, e, bindings, "let z = (x, y)")
	bindings = assign(t, e, bindings, "let (a, b) = z")

	ex := NewSeqExecutor()
	b, _, err := e.Run(ex, bindings, "(a, b)")
	if err != nil {
		t.Fatalf("Run:\n%s", err)
	}
	if got := e.PrettyPrint(b.Type()); got != "(i32, string)" {
		t.Fatalf("type = %s", got)
	}
	if got := values(b); !reflect.DeepEqual(got, []any{int32(3), "abc"}) {
		t.Fatalf("values = %v", got)
	}
}

func TestOverloadFnBinding(t *testing.T) {
	e := NewEnv()
	if err := e.AddFunction("f", func() int32 { return 1 }); err != nil {
		t.Fatal(err)
	}
	ex := NewSeqExecutor()
	bindings := assign(t, e, Bindings{}, "let f = 1")

	_, _, err := e.Run(ex, bindings, "f")
	if err == nil {
		t.Fatal("expected ambiguity error")
	}
	want := []string{
		"1:0 error: function call is ambiguous",
		" | f",
		" | ^",
		"deduced _ [2 candidate(s)]",
		"  fn() -> i32",
		"  i32",
	}
	rendered := err.(*Errors)
	if !reflect.DeepEqual(rendered.Lines, want) {
		t.Fatalf("error diff: %v", pretty.Diff(rendered.Lines, want))
	}
}

func TestOverwriteBinding(t *testing.T) {
	e := NewEnv()
	bindings := assign(t, e, Bindings{}, "let x = 3")
	bindings = assign(t, e, bindings, "let x = 4")

	ex := NewSeqExecutor()
	b, _, err := e.Run(ex, bindings, "x")
	if err != nil {
		t.Fatalf("Run:\n%s", err)
	}
	if got := values(b); !reflect.DeepEqual(got, []any{int32(4)}) {
		t.Fatalf("values = %v", got)
	}
}

func TestPrintFnFails(t *testing.T) {
	e := NewEnv()
	if err := e.AddFunction("f", func() int32 { return 1 }); err != nil {
		t.Fatal(err)
	}
	ex := NewSeqExecutor()
	if _, _, err := e.RunToString(ex, Bindings{}, "f"); err == nil {
		t.Fatal("printing a function value should fail to resolve to_string")
	}
}

func TestScriptParseErrorLeavesEnvUnchanged(t *testing.T) {
	e := NewEnv()
	before := len(e.Globals())

	err := e.ParseScripts("fn f() -> i32 = ")
	if err == nil {
		t.Fatal("expected parse error")
	}
	if got := len(e.Globals()); got != before {
		t.Fatalf("globals changed: %d -> %d", before, got)
	}
	// The environment still works.
	checkRun(t, e, "fn f() -> i32 = 3", "f()", "i32", int32(3))
}

func TestParseScriptsIdempotent(t *testing.T) {
	e := NewEnv()
	script := "fn f(x: i32) -> i32 = x"
	if err := e.ParseScripts(script); err != nil {
		t.Fatalf("first parse:\n%s", err)
	}
	before := len(e.Globals())
	if err := e.ParseScripts(script); err != nil {
		t.Fatalf("second parse:\n%s", err)
	}
	if got := len(e.Globals()); got != before {
		t.Fatalf("globals grew on re-parse: %d -> %d", before, got)
	}
	checkRun(t, e, "", "f(5)", "i32", int32(5))
}

func TestSequentialAndParallelAgree(t *testing.T) {
	script := "fn f(x: i32, y: i32) -> i32 = sum(sum(x, y), sum(x, y))"

	runWith := func(ex Executor) []any {
		e := sumEnv()
		if err := e.ParseScripts(script); err != nil {
			t.Fatalf("ParseScripts:\n%s", err)
		}
		b, _, err := e.Run(ex, Bindings{}, "f(3, 4)")
		if err != nil {
			t.Fatalf("Run:\n%s", err)
		}
		return values(b)
	}

	seq := runWith(NewSeqExecutor())
	pool := NewPoolExecutor(4)
	defer pool.Drop()
	par := runWith(pool)

	if !reflect.DeepEqual(seq, par) {
		t.Fatalf("sequential %v != parallel %v", seq, par)
	}
	if !reflect.DeepEqual(seq, []any{int32(14)}) {
		t.Fatalf("result = %v, want [14]", seq)
	}
}

func TestBindingStates(t *testing.T) {
	e := NewEnv()
	gate := make(chan struct{})
	if err := e.AddFunction("gated_clone", func(x *int32) int32 {
		<-gate
		return *x
	}); err != nil {
		t.Fatal(err)
	}

	ex := NewPoolExecutor(2)
	defer ex.Drop()

	_, bindings, err := e.Run(ex, Bindings{}, "let x = 3")
	if err != nil {
		t.Fatalf("let x:\n%s", err)
	}
	if got := bindings["x"].State(); got != Ready {
		bindings["x"].Await()
	}

	_, bindings, err = e.Run(ex, bindings, "let y = gated_clone(&x)")
	if err != nil {
		t.Fatalf("let y:\n%s", err)
	}

	// The borrow is taken synchronously during Run, so x is observably
	// borrowed until the gated native completes.
	if got := bindings["x"].State(); got != Borrowed {
		t.Fatalf("x state = %v, want Borrowed", got)
	}
	if got := bindings["y"].State(); got != Pending {
		t.Fatalf("y state = %v, want Pending", got)
	}

	close(gate)
	bindings["y"].Await()
	if got := bindings["y"].State(); got != Ready {
		t.Fatalf("y state after await = %v, want Ready", got)
	}
	if got := bindings["x"].State(); got != Ready {
		t.Fatalf("x state after borrow ends = %v, want Ready", got)
	}
}

func TestBorrowLiftEquivalence(t *testing.T) {
	// A function whose inferred parameter is only ever borrowed behaves
	// identically to one declared with an explicit borrow.
	lifted := NewEnv()
	explicit := NewEnv()

	ex := NewSeqExecutor()
	if err := lifted.ParseScripts("fn f(x: _) -> string = to_string(&x)"); err != nil {
		t.Fatalf("lifted:\n%s", err)
	}
	if err := explicit.ParseScripts("fn f(x: &i32) -> string = to_string(x)"); err != nil {
		t.Fatalf("explicit:\n%s", err)
	}

	a, _, err := lifted.Run(ex, Bindings{}, "f(&7)")
	if err != nil {
		t.Fatalf("lifted run:\n%s", err)
	}
	b, _, err := explicit.Run(ex, Bindings{}, "f(&7)")
	if err != nil {
		t.Fatalf("explicit run:\n%s", err)
	}
	if !reflect.DeepEqual(values(a), values(b)) {
		t.Fatalf("lifted %v != explicit %v", values(a), values(b))
	}
}
