package bindgen

import (
	"strconv"
	"strings"
)

// Module is what a Parser found in one root header and the headers it
// includes.
type Module struct {
	Root string
	// Headers lists every header parsed, in visit order.
	Headers   []string
	Functions []Function
	Macros    []Macro
	Enums     []EnumConst
	Typedefs  []Typedef
	// Suppressed lists each macro name the filter ignored, once, in the
	// order first seen.
	Suppressed []string
	// Diagnostics are parser complaints that did not stop the parse.
	Diagnostics []string
}

// CType is a C type as written in a declaration.
type CType struct {
	// Base is the type name without qualifiers or declarator parts, e.g.
	// "double", "unsigned int", "SpiceChar", "struct _SpiceCell".
	Base  string
	Const bool
	// Pointer counts pointer and array levels.
	Pointer int
	// Func is set for function types and function pointers.
	Func bool
}

func (t CType) String() string {
	var sb strings.Builder
	if t.Const {
		sb.WriteString("const ")
	}
	sb.WriteString(t.Base)
	if t.Pointer > 0 {
		sb.WriteByte(' ')
		sb.WriteString(strings.Repeat("*", t.Pointer))
	}
	if t.Func {
		sb.WriteString("(*)(...)")
	}
	return sb.String()
}

func (t CType) IsVoid() bool { return t.Base == "void" && t.Pointer == 0 && !t.Func }

type Param struct {
	Name string
	Type CType
}

type Function struct {
	Name     string
	Result   CType
	Params   []Param
	Variadic bool
	Header   string
	Line     int
	// Conditional is set when the declaration sits inside a preprocessor
	// conditional other than an include guard.
	Conditional bool
}

type MacroKind int

const (
	MacroInt MacroKind = iota
	MacroFloat
	MacroString
)

// Macro is an object-like macro whose body evaluated to a constant.
type Macro struct {
	Name   string
	Kind   MacroKind
	Int    int64
	Float  float64
	Str    string
	Header string
	Line   int
}

// Literal renders the value as a Go constant expression.
func (m Macro) Literal() string {
	switch m.Kind {
	case MacroFloat:
		s := strconv.FormatFloat(m.Float, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eE") {
			s += ".0"
		}
		return s
	case MacroString:
		return strconv.Quote(m.Str)
	default:
		return strconv.FormatInt(m.Int, 10)
	}
}

func (m Macro) value() any {
	switch m.Kind {
	case MacroFloat:
		return m.Float
	case MacroString:
		return m.Str
	default:
		return int(m.Int)
	}
}

// EnumConst is one enumerator with its resolved value.
type EnumConst struct {
	Name        string
	Value       int64
	Enum        string
	Header      string
	Line        int
	Conditional bool
}

type Typedef struct {
	Name        string
	Target      CType
	Header      string
	Line        int
	Conditional bool
}
