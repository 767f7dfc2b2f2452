package mathexpr

import (
	"regexp"
	"strings"
	"unicode"
)

// trigFunctions get implicit parentheses and have their powers moved behind
// the argument during cleaning.
var trigFunctions = longestFirstSlice([]string{
	"sin", "cos", "tan", "csc", "sec", "cot",
	"arcsin", "arccos", "arctan",
	"sinh", "cosh", "tanh",
})

var inverseTrigRenames = []struct{ from, to string }{
	{"asin", "arcsin"},
	{"acos", "arccos"},
	{"atan", "arctan"},
}

var decimalComma = regexp.MustCompile(`(\d),(\d)`)

// CleanMathExpression rewrites a plain-text expression (typically the output
// of LatexToText) into the form the validators accept:
//
//   - whitespace is removed;
//   - trig powers move behind the argument: sin^2(x) -> sin(x)^2;
//   - bare trig arguments get parentheses: cosA -> cos(A);
//   - unicode operators, √ and greek symbols become their text names;
//   - asin/acos/atan become arcsin/arccos/arctan;
//   - a comma between digits becomes a decimal point.
func CleanMathExpression(expr string) string {
	expr = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, expr)

	expr = normalizeTrig(expr)

	var b strings.Builder
	for _, r := range expr {
		switch r {
		case '√':
			b.WriteString("sqrt")
		case '·', '×':
			b.WriteByte('*')
		case '÷':
			b.WriteByte('/')
		case '−':
			b.WriteByte('-')
		default:
			if name, ok := greekSymbolsToNames[string(r)]; ok {
				b.WriteString(name)
			} else {
				b.WriteRune(r)
			}
		}
	}
	expr = b.String()

	for _, rn := range inverseTrigRenames {
		expr = strings.ReplaceAll(expr, rn.from, rn.to)
	}

	return decimalComma.ReplaceAllString(expr, "$1.$2")
}

func normalizeTrig(expr string) string {
	runes := []rune(expr)
	var b strings.Builder

	for i := 0; i < len(runes); {
		name := ""
		for _, fn := range trigFunctions {
			if hasRunePrefix(runes[i:], fn) {
				name = fn
				break
			}
		}
		if name == "" {
			b.WriteRune(runes[i])
			i++
			continue
		}

		b.WriteString(name)
		i += len(name)
		rest := runes[i:]

		switch {
		// name^d(c) -> name(c)^d
		case len(rest) >= 5 && rest[0] == '^' && unicode.IsDigit(rest[1]) &&
			rest[2] == '(' && rest[4] == ')':
			b.WriteRune('(')
			b.WriteRune(rest[3])
			b.WriteRune(')')
			b.WriteRune('^')
			b.WriteRune(rest[1])
			i += 5

		// nameC -> name(C)
		case len(rest) >= 1 && rest[0] != '(' && rest[0] != '^':
			b.WriteRune('(')
			b.WriteRune(rest[0])
			b.WriteRune(')')
			i++
		}
	}
	return b.String()
}

func hasRunePrefix(runes []rune, prefix string) bool {
	p := []rune(prefix)
	if len(runes) < len(p) {
		return false
	}
	for i := range p {
		if runes[i] != p[i] {
			return false
		}
	}
	return true
}

func longestFirstSlice(names []string) []string {
	m := make(map[string]string, len(names))
	for _, n := range names {
		m[n] = n
	}
	return longestFirst(m)
}
