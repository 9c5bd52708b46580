package bindgen

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
)

var (
	blockComment = regexp.MustCompile(`(?s)/\*.*?\*/`)
	// a C number followed by an optional integer or float suffix
	cNumber = regexp.MustCompile(`\b(0[xX][0-9a-fA-F]+|[0-9]+(?:\.[0-9]*)?(?:[eE][+-]?[0-9]+)?)([uUlLfF]*)\b`)
	octal   = regexp.MustCompile(`^0[0-7]+$`)
)

// operators the evaluator either lacks or gives other semantics than C
const unsupportedOps = "<>|&^~?:!=,;#{}[]"

func stripComments(body string) string {
	body = strings.ReplaceAll(body, "\\\r\n", " ")
	body = strings.ReplaceAll(body, "\\\n", " ")
	body = blockComment.ReplaceAllString(body, " ")
	if i := strings.Index(body, "//"); i >= 0 {
		body = body[:i]
	}
	return strings.TrimSpace(body)
}

// evalMacro turns a macro body into a constant. env holds the values of the
// macros and enumerators defined so far. Bodies that are not a constant
// expression, or that C would evaluate differently, report false.
func evalMacro(body string, env map[string]any) (Macro, bool) {
	if strings.HasPrefix(strings.TrimSpace(body), `"`) {
		s, err := strconv.Unquote(strings.TrimSpace(body))
		if err != nil {
			// comment after the literal, or adjacent literals
			s, err = strconv.Unquote(stripComments(body))
			if err != nil {
				return Macro{}, false
			}
		}
		return Macro{Kind: MacroString, Str: s}, true
	}

	body = stripComments(body)
	if body == "" {
		return Macro{}, false
	}

	if strings.HasPrefix(body, "'") {
		r, err := strconv.Unquote(body)
		if err != nil || len([]rune(r)) != 1 {
			return Macro{}, false
		}
		return Macro{Kind: MacroInt, Int: int64([]rune(r)[0])}, true
	}

	if strings.ContainsAny(body, unsupportedOps+`"'`) {
		return Macro{}, false
	}

	sawFloat := false
	bad := false
	text := cNumber.ReplaceAllStringFunc(body, func(lit string) string {
		m := cNumber.FindStringSubmatch(lit)
		num, suffix := m[1], strings.ToLower(m[2])

		isHex := strings.HasPrefix(num, "0x") || strings.HasPrefix(num, "0X")
		isFloat := !isHex && (strings.ContainsAny(num, ".eE") || strings.Contains(suffix, "f"))
		if isFloat {
			sawFloat = true
			return num
		}
		if strings.Contains(suffix, "f") {
			bad = true
			return lit
		}
		base := 10
		digits := num
		switch {
		case isHex:
			base, digits = 16, num[2:]
		case octal.MatchString(num):
			base, digits = 8, num[1:]
		}
		v, err := strconv.ParseInt(digits, base, 64)
		if err != nil {
			bad = true
			return lit
		}
		return strconv.FormatInt(v, 10)
	})
	if bad {
		return Macro{}, false
	}
	// expr divides integers into floats; C truncates
	if !sawFloat && strings.Contains(text, "/") {
		return Macro{}, false
	}

	out, err := expr.Eval(text, env)
	if err != nil {
		return Macro{}, false
	}

	switch v := out.(type) {
	case int:
		return Macro{Kind: MacroInt, Int: int64(v)}, true
	case int64:
		return Macro{Kind: MacroInt, Int: v}, true
	case float64:
		if math.IsInf(v, 0) || math.IsNaN(v) {
			return Macro{}, false
		}
		return Macro{Kind: MacroFloat, Float: v}, true
	case string:
		return Macro{Kind: MacroString, Str: v}, true
	default:
		return Macro{}, false
	}
}
