package bindgen

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
)

// ParseRequest names a root header and how to find what it includes.
type ParseRequest struct {
	Header      string
	IncludeDirs []string
	Filter      MacroFilter
}

// Parser reads a header closure into a Module. Implementations must call
// Filter.WillParseMacro for every macro name they meet and drop the macros
// it ignores.
type Parser interface {
	Parse(ctx context.Context, req ParseRequest) (*Module, error)
}

// TreeSitter parses headers with the tree-sitter C grammar. It does not run
// a preprocessor: quoted includes are followed, system includes are left to
// the host, and both sides of every conditional are read.
type TreeSitter struct{}

func NewTreeSitter() *TreeSitter { return &TreeSitter{} }

func (TreeSitter) Parse(ctx context.Context, req ParseRequest) (*Module, error) {
	if req.Filter == nil {
		return nil, errors.New("no macro filter")
	}
	root, err := filepath.Abs(req.Header)
	if err != nil {
		return nil, err
	}

	p := sitter.NewParser()
	p.SetLanguage(c.GetLanguage())

	s := &session{
		ctx:        ctx,
		req:        req,
		parser:     p,
		visited:    make(map[string]bool),
		suppressed: make(map[string]bool),
		env:        make(map[string]any),
		mod:        &Module{Root: root},
	}
	if err := s.file(root, ""); err != nil {
		return nil, err
	}
	return s.mod, nil
}

type session struct {
	ctx        context.Context
	req        ParseRequest
	parser     *sitter.Parser
	visited    map[string]bool
	suppressed map[string]bool
	env        map[string]any
	mod        *Module
}

// cplusplusGuard matches the split `extern "C" {` wrapper, which the
// grammar cannot pair up across two conditionals.
var cplusplusGuard = regexp.MustCompile(`(?m)^[ \t]*#[ \t]*ifdef[ \t]+__cplusplus[ \t]*\r?\n[ \t]*(?:extern[ \t]+"C"[ \t]*\{|\})[^\n]*\n[ \t]*#[ \t]*endif[^\n]*$`)

func blankLines(b []byte) []byte {
	out := make([]byte, 0, len(b))
	for _, c := range b {
		if c == '\n' {
			out = append(out, c)
		}
	}
	return out
}

// file parses one header. includedFrom is empty for the root header.
func (s *session) file(path, includedFrom string) error {
	if err := s.ctx.Err(); err != nil {
		return err
	}
	if s.visited[path] {
		return nil
	}
	s.visited[path] = true

	src, err := os.ReadFile(path)
	if err != nil {
		return &Error{Op: "parse", Path: path, Err: err}
	}
	src = cplusplusGuard.ReplaceAllFunc(src, blankLines)

	tree, err := s.parser.ParseCtx(s.ctx, nil, src)
	if err != nil {
		return &Error{Op: "parse", Path: path, Err: err}
	}
	s.mod.Headers = append(s.mod.Headers, path)

	return s.walk(tree.RootNode(), path, src, 0)
}

func line(n *sitter.Node) int { return int(n.StartPoint().Row) + 1 }

func sameNode(a, b *sitter.Node) bool {
	return a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte() && a.Type() == b.Type()
}

// walk visits the items of a translation unit or block. depth counts the
// enclosing conditionals, not counting include guards.
func (s *session) walk(n *sitter.Node, path string, src []byte, depth int) error {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		switch child.Type() {
		case "preproc_include":
			if err := s.include(child, path, src, depth); err != nil {
				return err
			}
		case "preproc_def":
			name := child.ChildByFieldName("name").Content(src)
			body := ""
			if v := child.ChildByFieldName("value"); v != nil {
				body = v.Content(src)
			}
			s.macro(name, body, path, line(child))
		case "preproc_function_def":
			// consulted like every other macro, but never exported
			s.consult(child.ChildByFieldName("name").Content(src))
		case "preproc_ifdef":
			d := depth + 1
			if isIncludeGuard(child, src) {
				d = depth
			}
			if err := s.walk(child, path, src, d); err != nil {
				return err
			}
		case "preproc_if", "preproc_else", "preproc_elif", "preproc_elifdef":
			if err := s.walk(child, path, src, depth+1); err != nil {
				return err
			}
		case "linkage_specification":
			if body := child.ChildByFieldName("body"); body != nil {
				if body.Type() == "declaration_list" {
					if err := s.walk(body, path, src, depth); err != nil {
						return err
					}
				} else if body.Type() == "declaration" {
					s.declaration(body, path, src, depth)
				}
			}
		case "declaration_list":
			if err := s.walk(child, path, src, depth); err != nil {
				return err
			}
		case "declaration":
			s.declaration(child, path, src, depth)
		case "type_definition":
			s.typedef(child, path, src, depth)
		case "enum_specifier":
			// `enum x { ... };` with no declarator
			s.enum(child, path, src, depth)
		case "ERROR":
			s.mod.Diagnostics = append(s.mod.Diagnostics,
				fmt.Sprintf("%s:%d: syntax the C grammar could not parse", path, line(child)))
			if err := s.walk(child, path, src, depth); err != nil {
				return err
			}
		}
	}
	return nil
}

// isIncludeGuard reports whether n is `#ifndef X` immediately followed by
// `#define X`.
func isIncludeGuard(n *sitter.Node, src []byte) bool {
	if n.ChildCount() == 0 || n.Child(0).Type() != "#ifndef" {
		return false
	}
	name := n.ChildByFieldName("name")
	if name == nil || n.NamedChildCount() < 2 {
		return false
	}
	first := n.NamedChild(1)
	if first.Type() != "preproc_def" {
		return false
	}
	def := first.ChildByFieldName("name")
	return def != nil && def.Content(src) == name.Content(src)
}

func (s *session) include(n *sitter.Node, path string, src []byte, depth int) error {
	p := n.ChildByFieldName("path")
	if p == nil || p.Type() != "string_literal" {
		return nil // <system> headers belong to the host
	}
	name := strings.Trim(p.Content(src), `"`)

	candidates := []string{filepath.Join(filepath.Dir(path), name)}
	for _, dir := range s.req.IncludeDirs {
		candidates = append(candidates, filepath.Join(dir, name))
	}
	for _, cand := range candidates {
		if st, err := os.Stat(cand); err == nil && !st.IsDir() {
			abs, err := filepath.Abs(cand)
			if err != nil {
				return err
			}
			return s.file(abs, path)
		}
	}

	if depth > 0 {
		s.mod.Diagnostics = append(s.mod.Diagnostics,
			fmt.Sprintf("%s:%d: conditional include %q not found", path, line(n), name))
		return nil
	}
	return &Error{Op: "parse", Path: path, Line: line(n), Err: fmt.Errorf("included header %q not found", name)}
}

// consult asks the filter about a macro name and records suppressions.
func (s *session) consult(name string) MacroBehavior {
	b := s.req.Filter.WillParseMacro(name)
	if b == Ignore && !s.suppressed[name] {
		s.suppressed[name] = true
		s.mod.Suppressed = append(s.mod.Suppressed, name)
	}
	return b
}

func (s *session) macro(name, body, path string, ln int) {
	if s.consult(name) == Ignore {
		return
	}
	m, ok := evalMacro(body, s.env)
	if !ok {
		return
	}
	m.Name, m.Header, m.Line = name, path, ln
	s.mod.Macros = append(s.mod.Macros, m)
	s.env[name] = m.value()
}

// baseType returns the written type of a declaration's type node along with
// its const qualifier.
func baseType(decl *sitter.Node, src []byte) (CType, *sitter.Node) {
	typ := decl.ChildByFieldName("type")
	if typ == nil {
		return CType{}, nil
	}
	t := CType{}
	for i := 0; i < int(decl.ChildCount()); i++ {
		ch := decl.Child(i)
		if ch.Type() == "type_qualifier" && ch.Content(src) == "const" {
			t.Const = true
		}
	}
	switch typ.Type() {
	case "struct_specifier", "union_specifier", "enum_specifier":
		kind := strings.TrimSuffix(typ.Type(), "_specifier")
		if name := typ.ChildByFieldName("name"); name != nil {
			t.Base = kind + " " + name.Content(src)
		} else {
			t.Base = kind
		}
	default:
		t.Base = strings.Join(strings.Fields(typ.Content(src)), " ")
	}
	return t, typ
}

var declaratorTypes = map[string]bool{
	"identifier":               true,
	"type_identifier":          true,
	"pointer_declarator":       true,
	"function_declarator":      true,
	"array_declarator":         true,
	"init_declarator":          true,
	"parenthesized_declarator": true,
}

// unwrapDeclarator peels pointer, array, function and parenthesized
// declarators down to the declared name.
func unwrapDeclarator(d *sitter.Node, src []byte) (name string, ptr int, fn bool) {
	for d != nil {
		switch d.Type() {
		case "identifier", "type_identifier", "field_identifier", "primitive_type":
			return d.Content(src), ptr, fn
		case "pointer_declarator", "abstract_pointer_declarator",
			"array_declarator", "abstract_array_declarator":
			ptr++
			d = d.ChildByFieldName("declarator")
		case "function_declarator", "abstract_function_declarator":
			fn = true
			d = d.ChildByFieldName("declarator")
		case "parenthesized_declarator", "abstract_parenthesized_declarator":
			if d.NamedChildCount() == 0 {
				return "", ptr, fn
			}
			d = d.NamedChild(0)
		case "init_declarator":
			d = d.ChildByFieldName("declarator")
		default:
			return "", ptr, fn
		}
	}
	return "", ptr, fn
}

func (s *session) declaration(n *sitter.Node, path string, src []byte, depth int) {
	base, typ := baseType(n, src)
	if typ == nil {
		return
	}
	if typ.Type() == "enum_specifier" {
		s.enum(typ, path, src, depth)
	}

	for i := 0; i < int(n.ChildCount()); i++ {
		ch := n.Child(i)
		if ch.Type() == "storage_class_specifier" && ch.Content(src) == "static" {
			return // not part of the archive's symbol table
		}
	}

	for i := 0; i < int(n.NamedChildCount()); i++ {
		d := n.NamedChild(i)
		if !declaratorTypes[d.Type()] {
			continue
		}
		if fn, ok := s.function(d, base, src); ok {
			fn.Header, fn.Line, fn.Conditional = path, line(n), depth > 0
			s.mod.Functions = append(s.mod.Functions, fn)
		}
	}
}

// function reads a function prototype. Variables and function pointers
// report false.
func (s *session) function(d *sitter.Node, result CType, src []byte) (Function, bool) {
	for d != nil && d.Type() == "pointer_declarator" {
		result.Pointer++
		d = d.ChildByFieldName("declarator")
	}
	if d == nil || d.Type() != "function_declarator" {
		return Function{}, false
	}
	name := d.ChildByFieldName("declarator")
	if name == nil || name.Type() != "identifier" {
		return Function{}, false
	}

	fn := Function{Name: name.Content(src), Result: result}
	params := d.ChildByFieldName("parameters")
	if params == nil {
		return fn, true
	}
	for i := 0; i < int(params.NamedChildCount()); i++ {
		p := params.NamedChild(i)
		switch p.Type() {
		case "variadic_parameter":
			fn.Variadic = true
		case "parameter_declaration":
			t, typ := baseType(p, src)
			if typ == nil {
				continue
			}
			pname, ptr, isFn := unwrapDeclarator(p.ChildByFieldName("declarator"), src)
			t.Pointer += ptr
			t.Func = isFn
			if t.IsVoid() && pname == "" && params.NamedChildCount() == 1 {
				continue // f(void)
			}
			fn.Params = append(fn.Params, Param{Name: pname, Type: t})
		}
	}
	return fn, true
}

func (s *session) typedef(n *sitter.Node, path string, src []byte, depth int) {
	base, typ := baseType(n, src)
	if typ == nil {
		return
	}
	if typ.Type() == "enum_specifier" {
		s.enum(typ, path, src, depth)
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		d := n.NamedChild(i)
		if sameNode(d, typ) || !declaratorTypes[d.Type()] {
			continue
		}
		name, ptr, fn := unwrapDeclarator(d, src)
		if name == "" {
			continue
		}
		target := base
		target.Pointer += ptr
		target.Func = fn
		s.mod.Typedefs = append(s.mod.Typedefs, Typedef{
			Name:        name,
			Target:      target,
			Header:      path,
			Line:        line(n),
			Conditional: depth > 0,
		})
	}
}

func (s *session) enum(spec *sitter.Node, path string, src []byte, depth int) {
	body := spec.ChildByFieldName("body")
	if body == nil {
		return
	}
	enumName := ""
	if name := spec.ChildByFieldName("name"); name != nil {
		enumName = name.Content(src)
	}

	var next int64
	for i := 0; i < int(body.NamedChildCount()); i++ {
		e := body.NamedChild(i)
		if e.Type() != "enumerator" {
			continue
		}
		name := e.ChildByFieldName("name").Content(src)
		if v := e.ChildByFieldName("value"); v != nil {
			m, ok := evalMacro(v.Content(src), s.env)
			if !ok || m.Kind != MacroInt {
				s.mod.Diagnostics = append(s.mod.Diagnostics,
					fmt.Sprintf("%s:%d: cannot evaluate enumerator %s", path, line(e), name))
				return // later implicit values would be wrong too
			}
			next = m.Int
		}
		s.mod.Enums = append(s.mod.Enums, EnumConst{
			Name:        name,
			Value:       next,
			Enum:        enumName,
			Header:      path,
			Line:        line(e),
			Conditional: depth > 0,
		})
		s.env[name] = int(next)
		next++
	}
}
