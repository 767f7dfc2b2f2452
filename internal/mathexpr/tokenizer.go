package mathexpr

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokNumber tokenKind = iota
	tokVariable
	tokFunction
	tokOperator
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// functionNames are the function identifiers the grammar accepts. Each must be
// followed by a parenthesised argument.
var functionNames = []string{
	"sqrt", "abs",
	"sin", "cos", "tan", "csc", "sec", "cot",
	"arcsin", "arccos", "arctan",
	"sinh", "cosh", "tanh",
	"log", "ln", "exp",
}

var functionsLongestFirst = func() []string {
	out := append([]string(nil), functionNames...)
	sort.Slice(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) > len(out[j])
		}
		return out[i] < out[j]
	})
	return out
}()

// SyntaxError reports where an expression failed to tokenize or parse.
type SyntaxError struct {
	Expr   string
	Pos    int
	Reason string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("invalid expression %q at offset %d: %s", e.Expr, e.Pos, e.Reason)
}

func tokenize(expr string) ([]token, error) {
	runes := []rune(expr)
	var tokens []token

	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++

		case unicode.IsDigit(r) || (r == '.' && i+1 < len(runes) && unicode.IsDigit(runes[i+1])):
			start := i
			seenDot := false
			for i < len(runes) && (unicode.IsDigit(runes[i]) || runes[i] == '.') {
				if runes[i] == '.' {
					if seenDot {
						return nil, &SyntaxError{Expr: expr, Pos: i, Reason: "number has more than one decimal point"}
					}
					seenDot = true
				}
				i++
			}
			if runes[i-1] == '.' {
				return nil, &SyntaxError{Expr: expr, Pos: i - 1, Reason: "number ends with a decimal point"}
			}
			tokens = append(tokens, token{kind: tokNumber, text: string(runes[start:i]), pos: start})

		case isLatinLetter(r):
			start := i
			for i < len(runes) && isLatinLetter(runes[i]) {
				i++
			}
			tokens = append(tokens, splitLetters(string(runes[start:i]), start)...)

		case greekSymbolsToNames[string(r)] != "":
			tokens = append(tokens, token{kind: tokVariable, text: string(r), pos: i})
			i++

		case r == '√':
			tokens = append(tokens, token{kind: tokFunction, text: "sqrt", pos: i})
			i++

		case strings.ContainsRune("+-*/^", r):
			tokens = append(tokens, token{kind: tokOperator, text: string(r), pos: i})
			i++

		case r == '×' || r == '·':
			tokens = append(tokens, token{kind: tokOperator, text: "*", pos: i})
			i++

		case r == '÷':
			tokens = append(tokens, token{kind: tokOperator, text: "/", pos: i})
			i++

		case r == '−':
			tokens = append(tokens, token{kind: tokOperator, text: "-", pos: i})
			i++

		case r == '(':
			tokens = append(tokens, token{kind: tokLParen, text: "(", pos: i})
			i++

		case r == ')':
			tokens = append(tokens, token{kind: tokRParen, text: ")", pos: i})
			i++

		default:
			return nil, &SyntaxError{Expr: expr, Pos: i, Reason: fmt.Sprintf("unexpected character %q", r)}
		}
	}

	return tokens, nil
}

// splitLetters breaks a run of latin letters into function names, greek
// letter names and single-letter variables, preferring the longest match at
// each position.
func splitLetters(run string, offset int) []token {
	var out []token
	for i := 0; i < len(run); {
		if name := matchPrefix(run[i:], functionsLongestFirst); name != "" {
			out = append(out, token{kind: tokFunction, text: name, pos: offset + i})
			i += len(name)
			continue
		}
		if name := matchPrefix(run[i:], greekNamesLongestFirst); name != "" {
			out = append(out, token{kind: tokVariable, text: name, pos: offset + i})
			i += len(name)
			continue
		}
		out = append(out, token{kind: tokVariable, text: run[i : i+1], pos: offset + i})
		i++
	}
	return out
}

func matchPrefix(s string, candidates []string) string {
	for _, c := range candidates {
		if strings.HasPrefix(s, c) {
			return c
		}
	}
	return ""
}

func isLatinLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}
