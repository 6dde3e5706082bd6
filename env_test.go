package ooze

import (
	"strings"
	"testing"
)

func TestParseType(t *testing.T) {
	e := NewEnv()
	cases := []struct {
		input string
		want  string
	}{
		{"i32", "i32"},
		{"&i32", "&i32"},
		{"(i32, string)", "(i32, string)"},
		{"()", "()"},
		{"fn(i32) -> string", "fn(i32) -> string"},
	}
	for _, tc := range cases {
		typ, err := e.ParseType(tc.input)
		if err != nil {
			t.Errorf("ParseType(%q):\n%s", tc.input, err)
			continue
		}
		if got := e.PrettyPrint(typ); got != tc.want {
			t.Errorf("ParseType(%q) = %s, want %s", tc.input, got, tc.want)
		}
	}

	if _, err := e.ParseType("wibble"); err == nil {
		t.Fatal("ParseType should reject unknown names")
	}
}

func TestTypeCheckSurface(t *testing.T) {
	e := NewEnv()
	if err := e.TypeCheckExpr("(1, 'abc')"); err != nil {
		t.Fatalf("TypeCheckExpr:\n%s", err)
	}
	if err := e.TypeCheckExpr("to_string(&1)"); err != nil {
		t.Fatalf("TypeCheckExpr overload:\n%s", err)
	}
	if err := e.TypeCheckExpr("f()"); err == nil {
		t.Fatal("TypeCheckExpr should reject undeclared bindings")
	}

	if err := e.TypeCheckFn("fn f(x: i32) -> i32 = x"); err != nil {
		t.Fatalf("TypeCheckFn:\n%s", err)
	}
	if err := e.TypeCheckFn("fn f(x: i32) -> string = x"); err == nil {
		t.Fatal("TypeCheckFn should reject a mismatched result")
	}

	if err := e.TypeCheckBinding("x: i32"); err != nil {
		t.Fatalf("TypeCheckBinding:\n%s", err)
	}
	if err := e.TypeCheckBinding("x: wibble"); err == nil {
		t.Fatal("TypeCheckBinding should reject unknown types")
	}
}

func TestTypeCheckLeavesEnvUnchanged(t *testing.T) {
	e := NewEnv()
	before := len(e.Globals())
	_ = e.TypeCheckExpr("1")
	_ = e.TypeCheckExpr("f()")
	if got := len(e.Globals()); got != before {
		t.Fatalf("globals changed: %d -> %d", before, got)
	}
}

func TestGlobalsListsFunctions(t *testing.T) {
	e := NewEnv()
	if err := e.AddFunction("sum", func(x, y int32) int32 { return x + y }); err != nil {
		t.Fatal(err)
	}
	if err := e.ParseScripts("fn twice(x: i32) -> i32 = sum(x, x)"); err != nil {
		t.Fatalf("ParseScripts:\n%s", err)
	}

	byName := map[string]string{}
	for _, g := range e.Globals() {
		byName[g.Name] = e.PrettyPrint(g.Type)
	}
	if byName["sum"] != "fn(i32, i32) -> i32" {
		t.Fatalf("sum type = %s", byName["sum"])
	}
	if byName["twice"] != "fn(i32) -> i32" {
		t.Fatalf("twice type = %s", byName["twice"])
	}
	if !strings.HasPrefix(byName["to_string"], "fn(&") {
		t.Fatalf("to_string type = %s", byName["to_string"])
	}
}

func TestNativeRegistryBuilder(t *testing.T) {
	r := NewRegistry()
	RegisterType[point](r, "Point")
	r.RegisterFunction("magnitude2", func(p *point) int32 { return p.X*p.X + p.Y*p.Y })
	r.RegisterFunction("origin", func() point { return point{} })

	e, err := NewEnvFrom(r)
	if err != nil {
		t.Fatalf("NewEnvFrom: %v", err)
	}
	checkRun(t, e, "fn m(p: &Point) -> i32 = magnitude2(p)", "m(&origin())", "i32", int32(0))
}

func TestAddFunctionRejectsNonFunctions(t *testing.T) {
	e := NewEnv()
	if err := e.AddFunction("x", 42); err == nil {
		t.Fatal("expected error registering a non-function")
	}
}

func TestTypeCheckFnGenericRejected(t *testing.T) {
	e := NewEnv()
	err := e.TypeCheckFn("fn f(x: _) -> _ = x")
	if err == nil {
		t.Fatal("a fully generic function should be rejected")
	}
	if !strings.Contains(err.Error(), "unable to fully deduce type") {
		t.Fatalf("unexpected message:\n%s", err)
	}
}
