package ooze

import (
	"fmt"
	"os"
	"sort"

	"github.com/pkg/errors"

	"github.com/ooze-lang/ooze/internal/ast"
	"github.com/ooze-lang/ooze/internal/diag"
	"github.com/ooze-lang/ooze/internal/exec"
	"github.com/ooze-lang/ooze/internal/graph"
	"github.com/ooze-lang/ooze/internal/lower"
	"github.com/ooze-lang/ooze/internal/parser"
	"github.com/ooze-lang/ooze/internal/sema"
	"github.com/ooze-lang/ooze/internal/src"
	"github.com/ooze-lang/ooze/internal/types"
)

// ParseScripts parses and fully elaborates script sources (file contents,
// not paths). On success each script function is lowered, registered in the
// program and published as a global; on failure the environment is left
// structurally unchanged and the collected errors are returned.
func (e *Env) ParseScripts(scripts ...string) error {
	s := e.snap()

	var allAnns []parser.Annotation
	var parseErrs diag.Errors
	for i, text := range scripts {
		id := e.sm.Add(fmt.Sprintf("#script%d", i), text)
		anns, errs := parser.ParseTopLevel(e.a, e.tg, e.sm, id, text)
		allAnns = append(allAnns, anns...)
		parseErrs = append(parseErrs, errs...)
	}
	if len(parseErrs) > 0 {
		err := e.fail(parseErrs)
		e.restore(s)
		return err
	}

	newRoots := e.newRootsSince(s)
	data, semaErrs := sema.Run(e.sm, e.semaInfo(), e.a, e.tg, newRoots, allAnns)
	if len(semaErrs) > 0 {
		err := e.fail(semaErrs)
		e.restore(s)
		return err
	}

	type scriptFn struct {
		name string
		fn   ast.ID
		inst Inst
		typ  *types.Desc
	}
	var fns []scriptFn

	// Placeholders first so mutually recursive bodies lower against a
	// complete function table.
	for _, root := range newRoots {
		if e.a.Tag(root) != ast.Module {
			continue
		}
		for _, kid := range e.a.Children(root) {
			if e.a.Tag(kid) != ast.RootFn {
				continue
			}
			name := e.a.Child(kid, 0)
			inst := e.prog.Placeholder()
			e.instOf[name] = inst
			fns = append(fns, scriptFn{
				name: e.sm.Text(e.a.Ref(name)),
				fn:   e.a.Child(kid, 1),
				inst: inst,
				typ:  e.tg.Extract(e.a.Type(name)),
			})
		}
	}

	for _, sf := range fns {
		res := lower.Function(e.a, e.tg, e.copyable, data.BindingOf, sf.fn)
		if len(res.CapturedBorrows) > 0 {
			e.restore(s)
			return &Errors{Lines: []string{"error: script function captures a borrowed binding"}}
		}
		captured := make([]exec.Value, len(res.CapturedValues))
		for i, p := range res.CapturedValues {
			inst, ok := e.instOf[p]
			if !ok {
				e.restore(s)
				return &Errors{Lines: []string{"error: script function captures a non-function binding"}}
			}
			captured[i] = exec.Value{ID: exec.FuncID, V: e.prog.Deferred(inst)}
		}
		e.prog.Fill(sf.inst, res.Graph, captured)
	}

	// Roll the scratch AST back and publish the surviving declarations.
	// Re-parsing the same definition replaces the previous one, keeping
	// elaboration idempotent.
	progLen := e.prog.Len()
	e.restore(snapshot{
		astLen: s.astLen, tgLen: s.tgLen, progLen: progLen,
		buffers: s.buffers, builtins: s.builtins,
	})
	for _, sf := range fns {
		t := e.tg.Intern(sf.typ)
		if existing := e.findGlobal(sf.name, t); existing != ast.None {
			e.instOf[existing] = sf.inst
			continue
		}
		pattern := e.addGlobal(sf.name, t)
		e.instOf[pattern] = sf.inst
	}
	return nil
}

// findGlobal returns an existing global pattern with the given name and a
// structurally equal type, or None.
func (e *Env) findGlobal(name string, t types.Type) ast.ID {
	for _, root := range e.a.Roots() {
		if e.a.Tag(root) != ast.EnvValue {
			continue
		}
		p := e.a.Child(root, 0)
		if e.sm.Text(e.a.Ref(p)) == name && e.tg.Equal(e.a.Type(p), t) {
			return p
		}
	}
	return ast.None
}

// ParseScriptFiles reads and elaborates script files from disk.
func (e *Env) ParseScriptFiles(paths ...string) error {
	var texts []string
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrapf(err, "reading script %s", path)
		}
		texts = append(texts, string(data))
	}
	return e.ParseScripts(texts...)
}

// elaborated is the shared outcome of parsing and elaborating one REPL
// input against the current environment and bindings.
type elaborated struct {
	snap            snapshot
	data            *sema.Data
	root            ast.ID
	bindingPatterns map[ast.ID]string
}

// elaborate appends the current bindings as globals, parses the input with
// the repl start symbol and runs sema over the new roots.
func (e *Env) elaborate(bindings Bindings, expr string) (*elaborated, *Errors) {
	s := e.snap()

	names := make([]string, 0, len(bindings))
	for name := range bindings {
		names = append(names, name)
	}
	sort.Strings(names)

	bindingPatterns := make(map[ast.ID]string, len(bindings))
	for _, name := range names {
		pattern := e.addGlobal(name, e.tg.Intern(bindings[name].typ))
		bindingPatterns[pattern] = name
	}

	id := e.sm.Add("#repl", expr)
	anns, errs := parser.ParseRepl(e.a, e.tg, e.sm, id, expr)
	if len(errs) > 0 {
		err := e.fail(errs)
		e.restore(s)
		return nil, err
	}

	newRoots := e.newRootsSince(s)
	root := newRoots[len(newRoots)-1]

	data, semaErrs := sema.Run(e.sm, e.semaInfo(), e.a, e.tg, newRoots, anns)
	if len(semaErrs) > 0 {
		err := e.fail(semaErrs)
		e.restore(s)
		return nil, err
	}

	return &elaborated{snap: s, data: data, root: root, bindingPatterns: bindingPatterns}, nil
}

// execute lowers an expression node and runs it, supplying captured globals
// and bindings. Consumed bindings are removed from the map.
func (e *Env) execute(ex Executor, el *elaborated, bindings Bindings, expr ast.ID) []AsyncValue {
	res := lower.Expr(e.a, e.tg, e.copyable, el.data.BindingOf, expr)

	var futures []exec.Future
	var shares []exec.BorrowedFuture

	for _, p := range res.CapturedValues {
		if inst, ok := e.instOf[p]; ok {
			futures = append(futures, exec.Ready(ex, exec.Value{ID: exec.FuncID, V: e.prog.Deferred(inst)}))
			continue
		}
		name := el.bindingPatterns[p]
		b := bindings[name]
		if b.typ.Copyable(e.copyable.Contains) {
			for i := range b.values {
				share := b.values[i].borrow()
				futures = append(futures, share.Then(func(v *exec.Value) exec.Value { return *v }))
				share.Drop()
			}
		} else {
			for i := range b.values {
				futures = append(futures, b.values[i].take())
			}
			delete(bindings, name)
		}
	}
	for _, p := range res.CapturedBorrows {
		b := bindings[el.bindingPatterns[p]]
		for i := range b.values {
			shares = append(shares, b.values[i].borrow())
		}
	}

	outs := graph.Async(res.Graph)(ex, futures, shares)
	values := make([]AsyncValue, len(outs))
	for i, f := range outs {
		values[i] = newAsyncValue(f)
	}
	return values
}

// assign distributes result cells over an assignment pattern, updating the
// binding map following the type's size layout.
func (e *Env) assign(pattern ast.ID, values []AsyncValue, bindings Bindings) {
	offset := 0
	for leaf := range e.a.Leaves(pattern) {
		t := e.a.Type(leaf)
		n := 0
		if t != types.None {
			n = e.tg.Size(t)
		}
		if e.a.Tag(leaf) == ast.PatternIdent {
			name := e.sm.Text(e.a.Ref(leaf))
			bindings[name] = &Binding{
				typ:    e.tg.Extract(t),
				values: values[offset : offset+n],
			}
		}
		offset += n
	}
}

// Run evaluates a REPL input: either an expression, returning its binding,
// or a let-assignment, redistributing the results over the pattern and
// updating the binding map.
func (e *Env) Run(ex Executor, bindings Bindings, expr string) (*Binding, Bindings, error) {
	if bindings == nil {
		bindings = Bindings{}
	}
	el, errs := e.elaborate(bindings, expr)
	if errs != nil {
		return nil, bindings, errs
	}

	var result *Binding
	if e.a.Tag(el.root) == ast.Assignment {
		values := e.execute(ex, el, bindings, e.a.Child(el.root, 1))
		e.assign(e.a.Child(el.root, 0), values, bindings)
		result = &Binding{typ: &types.Desc{Tag: types.Tuple}}
	} else {
		values := e.execute(ex, el, bindings, el.root)
		result = &Binding{typ: e.tg.Extract(e.a.Type(el.root)), values: values}
	}

	e.restore(el.snap)
	return result, bindings, nil
}

// RunToString evaluates a REPL input; expression results are rendered by
// synthesizing a to_string call around a borrow of the root.
func (e *Env) RunToString(ex Executor, bindings Bindings, expr string) (string, Bindings, error) {
	if bindings == nil {
		bindings = Bindings{}
	}
	el, errs := e.elaborate(bindings, expr)
	if errs != nil {
		return "", bindings, errs
	}

	if e.a.Tag(el.root) == ast.Assignment {
		values := e.execute(ex, el, bindings, e.a.Child(el.root, 1))
		e.assign(e.a.Child(el.root, 0), values, bindings)
		e.restore(el.snap)
		return "", bindings, nil
	}

	// Wrap the root as to_string((&root)) and re-elaborate the synthetic
	// subtree so the right overload is chosen.
	rootT := e.a.Type(el.root)
	ref := e.a.Ref(el.root)
	borrowT := e.tg.BorrowOf(rootT)
	tupleT := e.tg.TupleOf(borrowT)
	strT := e.tg.LeafOf(e.strID)
	fnT := e.tg.FnOf(tupleT, strT)
	toStringRef := e.sm.Append(e.builtins, "to_string")

	borrowN := e.a.Append(ast.ExprBorrow, ref, borrowT, el.root)
	tupleN := e.a.Append(ast.ExprTuple, ref, tupleT, borrowN)
	calleeN := e.a.Append(ast.ExprIdent, toStringRef, fnT)
	callN := e.a.Append(ast.ExprCall, ref, strT, calleeN, tupleN)

	data, semaErrs := sema.Run(e.sm, e.semaInfo(), e.a, e.tg, []ast.ID{callN}, nil)
	if len(semaErrs) > 0 {
		err := e.fail(semaErrs)
		e.restore(el.snap)
		return "", bindings, err
	}
	el.data = data

	values := e.execute(ex, el, bindings, callN)
	e.restore(el.snap)

	if len(values) == 0 {
		return "", bindings, nil
	}
	v := values[0].take().Wait()
	out, _ := exec.As[string](v)
	return out, bindings, nil
}

// TypeCheckExpr runs the full pipeline through sema on an expression and
// discards the result.
func (e *Env) TypeCheckExpr(expr string) error {
	return e.typeCheck(parser.ParseExpr, expr)
}

// TypeCheckFn type-checks a function definition.
func (e *Env) TypeCheckFn(fn string) error {
	return e.typeCheck(parser.ParseFunction, fn)
}

// TypeCheckBinding type-checks an annotated binding pattern.
func (e *Env) TypeCheckBinding(binding string) error {
	return e.typeCheck(parser.ParseBinding, binding)
}

type parseFn func(*ast.AST, *types.Graph, *src.Map, src.ID, string) ([]parser.Annotation, diag.Errors)

func (e *Env) typeCheck(parse parseFn, text string) error {
	s := e.snap()
	defer e.restore(s)

	id := e.sm.Add("#check", text)
	anns, errs := parse(e.a, e.tg, e.sm, id, text)
	if len(errs) > 0 {
		return e.fail(errs)
	}
	if _, semaErrs := sema.Run(e.sm, e.semaInfo(), e.a, e.tg, e.newRootsSince(s), anns); len(semaErrs) > 0 {
		return e.fail(semaErrs)
	}
	return nil
}

// ParseType parses a type expression against the registered type names.
func (e *Env) ParseType(text string) (*Type, error) {
	s := e.snap()
	defer e.restore(s)

	id := e.sm.Add("#type", text)
	t, anns, errs := parser.ParseType(e.tg, e.sm, id, text)
	if len(errs) > 0 {
		return nil, e.fail(errs)
	}
	var nameErrs diag.Errors
	for _, an := range anns {
		name := e.sm.Text(an.Ref)
		if tid, ok := e.typeNames[name]; ok {
			e.tg.SetNativeID(an.T, tid)
		} else {
			nameErrs = append(nameErrs, diag.Error{Kind: diag.KindUndefinedType, Ref: an.Ref, Msg: "undefined type"})
		}
	}
	if len(nameErrs) > 0 {
		return nil, e.fail(nameErrs)
	}
	return e.tg.Extract(t), nil
}
