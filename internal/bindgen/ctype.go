package bindgen

import (
	"strings"
	"unicode"
)

type scalar struct {
	goType string
	cgo    string // name after "C."
}

var scalars = map[string]scalar{
	"char":                   {"byte", "char"},
	"signed char":            {"int8", "schar"},
	"unsigned char":          {"uint8", "uchar"},
	"short":                  {"int16", "short"},
	"short int":              {"int16", "short"},
	"signed short":           {"int16", "short"},
	"unsigned short":         {"uint16", "ushort"},
	"unsigned short int":     {"uint16", "ushort"},
	"int":                    {"int32", "int"},
	"signed":                 {"int32", "int"},
	"signed int":             {"int32", "int"},
	"unsigned":               {"uint32", "uint"},
	"unsigned int":           {"uint32", "uint"},
	"long":                   {"int64", "long"},
	"long int":               {"int64", "long"},
	"signed long":            {"int64", "long"},
	"unsigned long":          {"uint64", "ulong"},
	"unsigned long int":      {"uint64", "ulong"},
	"long long":              {"int64", "longlong"},
	"long long int":          {"int64", "longlong"},
	"unsigned long long":     {"uint64", "ulonglong"},
	"unsigned long long int": {"uint64", "ulonglong"},
	"float":                  {"float32", "float"},
	"double":                 {"float64", "double"},
	"size_t":                 {"uint64", "size_t"},
	"int8_t":                 {"int8", "int8_t"},
	"int16_t":                {"int16", "int16_t"},
	"int32_t":                {"int32", "int32_t"},
	"int64_t":                {"int64", "int64_t"},
	"uint8_t":                {"uint8", "uint8_t"},
	"uint16_t":               {"uint16", "uint16_t"},
	"uint32_t":               {"uint32", "uint32_t"},
	"uint64_t":               {"uint64", "uint64_t"},
}

// cgoName is how Go code in a cgo package refers to a C type name.
func cgoName(base string) string {
	if s, ok := scalars[base]; ok {
		return "C." + s.cgo
	}
	for _, kind := range []string{"struct ", "union ", "enum "} {
		if name, ok := strings.CutPrefix(base, kind); ok {
			return "C." + strings.TrimSpace(kind) + "_" + name
		}
	}
	return "C." + base
}

// typeTable resolves typedef chains. Typedefs under a preprocessor
// conditional are left out: which branch the C compiler takes is unknown,
// so types built on them have no Go mapping.
type typeTable map[string]Typedef

func newTypeTable(tds []Typedef) typeTable {
	t := make(typeTable, len(tds))
	for _, td := range tds {
		if td.Conditional {
			continue
		}
		if _, dup := t[td.Name]; !dup {
			t[td.Name] = td
		}
	}
	return t
}

// resolve follows typedefs down to a builtin, struct, enum or union type,
// accumulating pointer levels and const along the way.
func (tt typeTable) resolve(t CType) CType {
	for range 32 {
		td, ok := tt[t.Base]
		if !ok || td.Name == td.Target.Base {
			break
		}
		t = CType{
			Base:    td.Target.Base,
			Const:   t.Const || td.Target.Const,
			Pointer: t.Pointer + td.Target.Pointer,
			Func:    t.Func || td.Target.Func,
		}
	}
	return t
}

// argKind is how one C parameter or result crosses into Go.
type argKind int

const (
	argUnsupported argKind = iota
	argScalar
	argString
)

type mapping struct {
	kind   argKind
	goType string
}

func (tt typeTable) mapParam(declared CType) mapping {
	r := tt.resolve(declared)
	switch {
	case r.Func:
		return mapping{}
	case r.Pointer == 0:
		if s, ok := scalars[r.Base]; ok {
			return mapping{kind: argScalar, goType: s.goType}
		}
	case r.Pointer == 1 && r.Base == "char":
		return mapping{kind: argString, goType: "string"}
	}
	return mapping{}
}

func (tt typeTable) mapResult(declared CType) (mapping, bool) {
	r := tt.resolve(declared)
	if r.IsVoid() {
		return mapping{}, true
	}
	m := tt.mapParam(declared)
	return m, m.kind != argUnsupported
}

var goKeywords = map[string]bool{
	"break": true, "case": true, "chan": true, "const": true, "continue": true,
	"default": true, "defer": true, "else": true, "fallthrough": true, "for": true,
	"func": true, "go": true, "goto": true, "if": true, "import": true,
	"interface": true, "map": true, "package": true, "range": true, "return": true,
	"select": true, "struct": true, "switch": true, "type": true, "var": true,
	// would shadow what the wrapper body needs
	"C": true, "unsafe": true, "string": true,
}

// exportName makes a C identifier usable as an exported Go identifier
// without otherwise changing it: FP_NAN stays FP_NAN, doublereal becomes
// Doublereal.
func exportName(name string) string {
	if name == "" {
		return name
	}
	r := []rune(name)
	if unicode.IsLower(r[0]) {
		r[0] = unicode.ToUpper(r[0])
	}
	return string(r)
}

// funcName turns a snake_case C function name into a Go name:
// furnsh_c becomes FurnshC.
func funcName(name string) string {
	var sb strings.Builder
	for part := range strings.SplitSeq(name, "_") {
		if part == "" {
			continue
		}
		r := []rune(part)
		r[0] = unicode.ToUpper(r[0])
		sb.WriteString(string(r))
	}
	out := sb.String()
	if out == "" || unicode.IsDigit([]rune(out)[0]) {
		out = "X" + out
	}
	return out
}
