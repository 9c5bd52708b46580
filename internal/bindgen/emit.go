package bindgen

import (
	"cmp"
	"fmt"
	"go/token"
	"path/filepath"
	"slices"
	"strings"
)

// Skip is a declaration that was found but left out of the artifact.
type Skip struct {
	Name   string
	Reason string
}

type constant struct {
	cName   string
	goName  string
	literal string
	header  string
	line    int
}

// constants merges macros and enumerators. A name defined twice with the
// same value is emitted once; two values for one name is a conflict.
func constants(m *Module) ([]constant, []Skip, error) {
	var skipped []Skip
	byName := make(map[string]constant)
	goNames := make(map[string]string)

	add := func(c constant) error {
		if prev, ok := byName[c.cName]; ok {
			if prev.literal == c.literal {
				return nil
			}
			return &Error{
				Op: "generate", Path: c.header, Line: c.line,
				Err: fmt.Errorf("%w: %s is %s here but %s at %s:%d (suppress it with ignore_macros)",
					ErrConflict, c.cName, c.literal, prev.literal, prev.header, prev.line),
			}
		}
		if other, ok := goNames[c.goName]; ok {
			return &Error{
				Op: "generate", Path: c.header, Line: c.line,
				Err: fmt.Errorf("%w: %s and %s both become %s", ErrConflict, other, c.cName, c.goName),
			}
		}
		byName[c.cName] = c
		goNames[c.goName] = c.cName
		return nil
	}

	for _, mac := range m.Macros {
		err := add(constant{
			cName:   mac.Name,
			goName:  exportName(mac.Name),
			literal: mac.Literal(),
			header:  mac.Header,
			line:    mac.Line,
		})
		if err != nil {
			return nil, nil, err
		}
	}
	for _, e := range m.Enums {
		if e.Conditional {
			skipped = append(skipped, Skip{e.Name, "enumerator inside a preprocessor conditional"})
			continue
		}
		err := add(constant{
			cName:   e.Name,
			goName:  exportName(e.Name),
			literal: fmt.Sprint(e.Value),
			header:  e.Header,
			line:    e.Line,
		})
		if err != nil {
			return nil, nil, err
		}
	}

	out := make([]constant, 0, len(byName))
	for _, c := range byName {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b constant) int { return cmp.Compare(a.goName, b.goName) })
	return out, skipped, nil
}

type alias struct {
	goName string
	cName  string
}

type wrapper struct {
	goName string
	fn     Function
	result mapping
	params []mapping
}

// plan is everything the artifact will declare.
type plan struct {
	consts   []constant
	aliases  []alias
	wrappers []wrapper
	skipped  []Skip
}

func newPlan(m *Module) (*plan, error) {
	consts, skipped, err := constants(m)
	if err != nil {
		return nil, err
	}
	p := &plan{consts: consts, skipped: skipped}

	taken := make(map[string]string, len(consts))
	for _, c := range consts {
		taken[c.goName] = "constant " + c.cName
	}

	tds := slices.Clone(m.Typedefs)
	slices.SortStableFunc(tds, func(a, b Typedef) int { return cmp.Compare(a.Name, b.Name) })
	seen := make(map[string]bool)
	for _, td := range tds {
		if seen[td.Name] {
			continue
		}
		seen[td.Name] = true
		goName := exportName(td.Name)
		switch {
		case td.Conditional:
			p.skip(td.Name, "typedef inside a preprocessor conditional")
		case td.Target.Func:
			p.skip(td.Name, "function type")
		case taken[goName] != "":
			p.skip(td.Name, "name used by "+taken[goName])
		default:
			taken[goName] = "type " + td.Name
			p.aliases = append(p.aliases, alias{goName: goName, cName: td.Name})
		}
	}

	types := newTypeTable(m.Typedefs)
	fns := slices.Clone(m.Functions)
	slices.SortStableFunc(fns, func(a, b Function) int { return cmp.Compare(a.Name, b.Name) })
	seen = make(map[string]bool)
	for _, fn := range fns {
		if seen[fn.Name] {
			continue
		}
		seen[fn.Name] = true
		goName := funcName(fn.Name)
		if fn.Conditional {
			p.skip(fn.Name, "declared inside a preprocessor conditional")
			continue
		}
		if fn.Variadic {
			p.skip(fn.Name, "variadic")
			continue
		}
		if other := taken[goName]; other != "" {
			p.skip(fn.Name, goName+" is used by "+other)
			continue
		}
		w, reason := newWrapper(types, fn, goName)
		if reason != "" {
			p.skip(fn.Name, reason)
			continue
		}
		taken[goName] = "function " + fn.Name
		p.wrappers = append(p.wrappers, w)
	}
	return p, nil
}

func (p *plan) skip(name, reason string) {
	p.skipped = append(p.skipped, Skip{name, reason})
}

func newWrapper(types typeTable, fn Function, goName string) (wrapper, string) {
	w := wrapper{goName: goName, fn: fn}
	res, ok := types.mapResult(fn.Result)
	if !ok {
		return w, fmt.Sprintf("result type %s has no Go mapping", fn.Result)
	}
	w.result = res
	for i, param := range fn.Params {
		m := types.mapParam(param.Type)
		if m.kind == argUnsupported {
			name := param.Name
			if name == "" {
				name = fmt.Sprintf("#%d", i+1)
			}
			return w, fmt.Sprintf("parameter %s has type %s with no Go mapping", name, param.Type)
		}
		w.params = append(w.params, m)
	}
	return w, ""
}

// cgoType renders a declared C type as cgo spells it, pointers included.
func cgoType(t CType) string {
	return strings.Repeat("*", t.Pointer) + cgoName(t.Base)
}

func (w wrapper) usesUnsafe() bool {
	if w.result.kind == argString {
		return true
	}
	for _, p := range w.params {
		if p.kind == argString {
			return true
		}
	}
	return false
}

func (w wrapper) paramNames() []string {
	names := make([]string, len(w.fn.Params))
	used := make(map[string]bool, len(names))
	for i, p := range w.fn.Params {
		n := p.Name
		if n == "" || n == "_" {
			n = fmt.Sprintf("arg%d", i)
		}
		if goKeywords[n] {
			n += "_"
		}
		for used[n] {
			n += "_"
		}
		used[n] = true
		names[i] = n
	}
	return names
}

func (w wrapper) render(sb *strings.Builder) {
	names := w.paramNames()
	used := make(map[string]bool, len(names))
	for _, n := range names {
		used[n] = true
	}

	sig := make([]string, len(names))
	for i, n := range names {
		sig[i] = n + " " + w.params[i].goType
	}

	writeln(sb, "// ", w.goName, " calls ", w.fn.Name, " (", filepath.Base(w.fn.Header), ":", fmt.Sprint(w.fn.Line), ").")
	write(sb, "func ", w.goName, "(", strings.Join(sig, ", "), ")")
	if w.result.goType != "" {
		write(sb, " ", w.result.goType)
	}
	writeln(sb, " {")

	args := make([]string, len(names))
	for i, n := range names {
		declared := w.fn.Params[i].Type
		if w.params[i].kind != argString {
			args[i] = cgoName(declared.Base) + "(" + n + ")"
			continue
		}
		tmp := "c" + exportName(strings.TrimLeft(n, "_"))
		for used[tmp] {
			tmp += "_"
		}
		used[tmp] = true
		writeln(sb, "\t", tmp, " := C.CString(", n, ")")
		writeln(sb, "\tdefer C.free(unsafe.Pointer(", tmp, "))")
		args[i] = "(" + cgoType(declared) + ")(unsafe.Pointer(" + tmp + "))"
	}

	call := "C." + w.fn.Name + "(" + strings.Join(args, ", ") + ")"
	switch w.result.kind {
	case argScalar:
		writeln(sb, "\treturn ", w.result.goType, "(", call, ")")
	case argString:
		writeln(sb, "\treturn C.GoString((*C.char)(unsafe.Pointer(", call, ")))")
	default:
		writeln(sb, "\t", call)
	}
	writeln(sb, "}")
}

// srcdirPath makes path usable in a #cgo line of a file in dir.
func srcdirPath(dir, path string) string {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return "${SRCDIR}/" + filepath.ToSlash(rel)
}

// includeName is how the preamble names the root header: relative to the
// first include directory holding it, else relative to the artifact.
func includeName(opts Options) string {
	for _, dir := range opts.IncludeDirs {
		rel, err := filepath.Rel(dir, opts.Header)
		if err == nil && !strings.HasPrefix(rel, "..") {
			return filepath.ToSlash(rel)
		}
	}
	rel, err := filepath.Rel(filepath.Dir(opts.Output), opts.Header)
	if err != nil {
		return filepath.ToSlash(opts.Header)
	}
	return filepath.ToSlash(rel)
}

// Render lays out the artifact for m. The result is valid Go but not yet
// gofmt'd.
func Render(m *Module, opts Options) ([]byte, *Artifact, error) {
	if !token.IsIdentifier(opts.Package) {
		return nil, nil, &Error{Op: "generate", Err: fmt.Errorf("invalid package name %q", opts.Package)}
	}
	p, err := newPlan(m)
	if err != nil {
		return nil, nil, err
	}
	outDir := filepath.Dir(opts.Output)

	var sb strings.Builder
	writeln(&sb, "// Code generated by spicegen from ", filepath.Base(opts.Header), "; DO NOT EDIT.")
	writeln(&sb)
	if opts.BuildTags != "" {
		writeln(&sb, "//go:build ", opts.BuildTags)
		writeln(&sb)
	}
	writeln(&sb, "package ", opts.Package)
	writeln(&sb)

	writeln(&sb, "/*")
	if len(opts.IncludeDirs) > 0 {
		write(&sb, "#cgo CFLAGS:")
		for _, dir := range opts.IncludeDirs {
			write(&sb, " -I", srcdirPath(outDir, dir))
		}
		writeln(&sb)
	}
	if len(opts.LibDirs)+len(opts.Libs) > 0 {
		write(&sb, "#cgo LDFLAGS:")
		for _, dir := range opts.LibDirs {
			write(&sb, " -L", srcdirPath(outDir, dir))
		}
		for _, lib := range opts.Libs {
			write(&sb, " -l", lib)
		}
		writeln(&sb)
	}
	writeln(&sb, "#include <stdlib.h>")
	writeln(&sb, `#include "`, includeName(opts), `"`)
	writeln(&sb, "*/")
	writeln(&sb, `import "C"`)
	writeln(&sb)

	for _, w := range p.wrappers {
		if w.usesUnsafe() {
			writeln(&sb, `import "unsafe"`)
			writeln(&sb)
			break
		}
	}

	if len(p.consts) > 0 {
		writeln(&sb, "const (")
		for _, c := range p.consts {
			writeln(&sb, "\t", c.goName, " = ", c.literal)
		}
		writeln(&sb, ")")
		writeln(&sb)
	}
	if len(p.aliases) > 0 {
		writeln(&sb, "type (")
		for _, a := range p.aliases {
			writeln(&sb, "\t", a.goName, " = ", cgoName(a.cName))
		}
		writeln(&sb, ")")
		writeln(&sb)
	}
	for _, w := range p.wrappers {
		w.render(&sb)
		writeln(&sb)
	}

	art := &Artifact{
		Path:        opts.Output,
		Module:      m,
		Constants:   len(p.consts),
		Types:       len(p.aliases),
		Functions:   len(p.wrappers),
		Skipped:     p.skipped,
		Diagnostics: m.Diagnostics,
	}
	if names, ok := opts.Filter.(interface{ Names() []string }); ok {
		art.UnusedSuppressions = unusedSuppressions(names.Names(), m.Suppressed)
	}
	return []byte(sb.String()), art, nil
}

// unusedSuppressions lists the configured names no macro in the header
// closure carried, sorted.
func unusedSuppressions(configured, seen []string) []string {
	var unused []string
	for _, name := range configured {
		if !slices.Contains(seen, name) {
			unused = append(unused, name)
		}
	}
	slices.Sort(unused)
	return unused
}
