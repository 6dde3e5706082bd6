package ooze

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/ooze-lang/ooze/internal/ast"
	"github.com/ooze-lang/ooze/internal/exec"
	"github.com/ooze-lang/ooze/internal/types"
)

// collapsedFns are listed by :f as overload counts instead of one line per
// overload.
var collapsedFns = []string{"clone", "to_string", "serialize", "deserialize"}

var helpLines = []string{
	":h - This message",
	":b - List all bindings (* means they are not ready, & means they are borrowed)",
	":f - List all environment and script functions",
	":t - List all registered types and their capabilities",
	":r binding - Release the given binding",
	":a bindings... - Await the given bindings or everything if unspecified",
	":e file - Evaluate the given script file",
}

// StepRepl processes one REPL line: meta commands start with ':', anything
// else is evaluated via RunToString.
func (e *Env) StepRepl(ex Executor, bindings Bindings, line string) ([]string, Bindings) {
	if line == "" {
		return nil, bindings
	}
	if line[0] != ':' {
		out, bindings, err := e.RunToString(ex, bindings, line)
		if err != nil {
			return errorLines(err), bindings
		}
		if out == "" {
			return nil, bindings
		}
		return []string{out}, bindings
	}

	fields := strings.Fields(line[1:])
	if len(fields) == 0 {
		return []string{"Error parsing command"}, bindings
	}
	switch fields[0] {
	case "h":
		return helpLines, bindings
	case "b":
		return e.listBindings(bindings), bindings
	case "f":
		return e.listFunctions(), bindings
	case "t":
		return e.listTypes(), bindings
	case "r":
		if len(fields) != 2 {
			return []string{"Error parsing command"}, bindings
		}
		if _, ok := bindings[fields[1]]; !ok {
			return []string{fmt.Sprintf("Binding %s not found", fields[1])}, bindings
		}
		delete(bindings, fields[1])
		return nil, bindings
	case "a":
		var out []string
		if len(fields) == 1 {
			for _, b := range bindings {
				b.Await()
			}
		} else {
			for _, name := range fields[1:] {
				if b, ok := bindings[name]; ok {
					b.Await()
				} else {
					out = append(out, fmt.Sprintf("Binding %s not found", name))
				}
			}
		}
		return out, bindings
	case "e":
		if len(fields) != 2 {
			return []string{"Error parsing command"}, bindings
		}
		if err := e.ParseScriptFiles(fields[1]); err != nil {
			return errorLines(err), bindings
		}
		return nil, bindings
	}
	return []string{"Error parsing command"}, bindings
}

func errorLines(err error) []string {
	if rendered, ok := err.(*Errors); ok {
		return rendered.Lines
	}
	return []string{err.Error()}
}

func (e *Env) listBindings(bindings Bindings) []string {
	names := make([]string, 0, len(bindings))
	for name := range bindings {
		names = append(names, name)
	}
	sort.Strings(names)

	out := []string{fmt.Sprintf("%d binding(s)", len(bindings))}
	for _, name := range names {
		b := bindings[name]
		marker := ""
		switch b.State() {
		case Borrowed:
			marker = "&"
		case Pending:
			marker = "*"
		}
		out = append(out, fmt.Sprintf("  %s: %s%s", name, marker, e.PrettyPrint(b.typ)))
	}
	return out
}

func (e *Env) listFunctions() []string {
	collapsed := make(map[string]int)
	var lines []string
	for _, g := range e.Globals() {
		if g.Type.Tag != types.Fn {
			continue
		}
		isCollapsed := false
		for _, c := range collapsedFns {
			if g.Name == c {
				collapsed[c]++
				isCollapsed = true
				break
			}
		}
		if !isCollapsed {
			lines = append(lines, fmt.Sprintf("  %s%s -> %s",
				g.Name, g.Type.Kids[0].Pretty(e.names), g.Type.Kids[1].Pretty(e.names)))
		}
	}
	sort.Strings(lines)

	out := []string{fmt.Sprintf("%d function(s)", len(lines))}
	for _, c := range collapsedFns {
		if n := collapsed[c]; n > 0 {
			out = append(out, fmt.Sprintf("  %s [%d overloads]", c, n))
		}
	}
	return append(out, lines...)
}

func (e *Env) listTypes() []string {
	names := make([]string, 0, len(e.typeNames))
	for name := range e.typeNames {
		names = append(names, name)
	}
	sort.Strings(names)

	out := []string{fmt.Sprintf("%d type(s)", len(names))}
	for _, name := range names {
		mark := "N"
		if e.hasToString(e.typeNames[name]) {
			mark = "Y"
		}
		out = append(out, fmt.Sprintf("  %-20s [to_string: %s]", name, mark))
	}
	return out
}

// hasToString reports whether a to_string(&T) -> string overload resolves
// for the given native type.
func (e *Env) hasToString(id exec.TypeID) bool {
	for _, root := range e.a.Roots() {
		if e.a.Tag(root) != ast.EnvValue {
			continue
		}
		p := e.a.Child(root, 0)
		if e.sm.Text(e.a.Ref(p)) != "to_string" {
			continue
		}
		t := e.a.Type(p)
		if e.tg.TagOf(t) != types.Fn {
			continue
		}
		arg, res := e.tg.Kids(t)[0], e.tg.Kids(t)[1]
		if e.tg.TagOf(res) != types.Leaf || e.tg.NativeID(res) != e.strID {
			continue
		}
		if e.tg.TagOf(arg) != types.Tuple || len(e.tg.Kids(arg)) != 1 {
			continue
		}
		borrow := e.tg.Kids(arg)[0]
		if e.tg.TagOf(borrow) != types.Borrow {
			continue
		}
		leaf := e.tg.Kids(borrow)[0]
		if e.tg.TagOf(leaf) == types.Leaf && e.tg.NativeID(leaf) == id {
			return true
		}
	}
	return false
}

// RunRepl reads lines until EOF, echoing each step's output.
func (e *Env) RunRepl(ex Executor, bindings Bindings, in io.Reader, out io.Writer) Bindings {
	fmt.Fprintln(out, "Welcome to the ooze repl!")
	fmt.Fprintln(out, "Try :h for help. Use Ctrl^D to exit.")
	fmt.Fprint(out, "> ")

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		var lines []string
		lines, bindings = e.StepRepl(ex, bindings, scanner.Text())
		for _, line := range lines {
			fmt.Fprintln(out, line)
		}
		fmt.Fprint(out, "> ")
	}
	return bindings
}

// Main implements the CLI: `run [scripts...]` parses every script and
// prints the result of main(); `repl [scripts...]` drops into the REPL.
func Main(args []string, e *Env, in io.Reader, out, errOut io.Writer) int {
	usage := func() int {
		fmt.Fprint(errOut, "Usage:\n  run [scripts...]\n  repl [scripts...]\n")
		return 1
	}
	if len(args) < 1 {
		return usage()
	}

	ex := NewPoolExecutor(0)
	defer ex.Drop()

	switch args[0] {
	case "run":
		if err := e.ParseScriptFiles(args[1:]...); err != nil {
			fmt.Fprintln(errOut, err.Error())
			return 1
		}
		s, _, err := e.RunToString(ex, Bindings{}, "main()")
		if err != nil {
			fmt.Fprintln(errOut, err.Error())
			return 1
		}
		fmt.Fprintln(out, s)
		return 0
	case "repl":
		if err := e.ParseScriptFiles(args[1:]...); err != nil {
			fmt.Fprintln(errOut, err.Error())
			return 1
		}
		e.RunRepl(ex, Bindings{}, in, out)
		return 0
	}
	return usage()
}
