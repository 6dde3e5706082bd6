package src

import "testing"

func TestAppendIsStable(t *testing.T) {
	m := NewMap()
	id := m.Add("#builtins", "")

	r1 := m.Append(id, "to_string")
	r2 := m.Append(id, "string")

	if got := m.Text(r1); got != "to_string" {
		t.Fatalf("Text(r1) = %q, want %q", got, "to_string")
	}
	if got := m.Text(r2); got != "string" {
		t.Fatalf("Text(r2) = %q, want %q", got, "string")
	}

	// Appending more text never shifts earlier refs.
	m.Append(id, "xxxxxxxx")
	if got := m.Text(r1); got != "to_string" {
		t.Fatalf("Text(r1) after append = %q, want %q", got, "to_string")
	}
}

func TestPos(t *testing.T) {
	m := NewMap()
	id := m.Add("#script0", "fn f() -> i32 = 1\nfn g() -> i32 = 2")

	cases := []struct {
		name string
		ref  Ref
		line int
		col  int
		text string
	}{
		{name: "first line start", ref: Ref{Src: id, Start: 0, End: 2}, line: 1, col: 0, text: "fn f() -> i32 = 1"},
		{name: "first line mid", ref: Ref{Src: id, Start: 3, End: 4}, line: 1, col: 3, text: "fn f() -> i32 = 1"},
		{name: "second line", ref: Ref{Src: id, Start: 21, End: 22}, line: 2, col: 3, text: "fn g() -> i32 = 2"},
	}
	for _, tc := range cases {
		pos := m.Pos(tc.ref)
		if pos.Line != tc.line || pos.Col != tc.col || pos.Text != tc.text {
			t.Errorf("%s: Pos() = %d:%d %q, want %d:%d %q",
				tc.name, pos.Line, pos.Col, pos.Text, tc.line, tc.col, tc.text)
		}
	}
}

func TestTruncateRollsBack(t *testing.T) {
	m := NewMap()
	id := m.Add("#builtins", "abc")
	n := m.Len(id)
	m.Append(id, "def")
	m.Truncate(id, n)
	if got := m.Len(id); got != 3 {
		t.Fatalf("Len after truncate = %d, want 3", got)
	}
	buffers := m.Buffers()
	m.Add("#extra", "x")
	m.TruncateBuffers(buffers)
	if got := m.Buffers(); got != buffers {
		t.Fatalf("Buffers after truncate = %d, want %d", got, buffers)
	}
}
