// Package mathexpr validates and normalizes the plain-text math expressions
// used as answers by the math interactions.
//
// Expressions use + - * / ^, parentheses, unary signs, implicit
// multiplication, decimal numbers, single-letter variables, greek letter
// variables (spelled out or as symbols) and the functions sqrt, abs, the
// trig, inverse trig and hyperbolic functions, log, ln and exp.
package mathexpr

import (
	"sort"
	"strings"
)

// Kind classifies a cleaned rule input.
type Kind int

const (
	KindInvalid Kind = iota
	KindAlgebraic
	KindNumeric
	KindEquation
)

func (k Kind) String() string {
	switch k {
	case KindAlgebraic:
		return "algebraic"
	case KindNumeric:
		return "numeric"
	case KindEquation:
		return "equation"
	default:
		return "invalid"
	}
}

// Validate returns nil if expr is a well-formed expression.
func Validate(expr string) error {
	_, err := parse(expr)
	return err
}

// IsValidExpression reports whether expr is a well-formed expression.
func IsValidExpression(expr string) bool {
	return Validate(expr) == nil
}

// IsValidAlgebraicExpression reports whether expr is a valid expression
// containing at least one variable.
func IsValidAlgebraicExpression(expr string) bool {
	vars, err := parse(expr)
	return err == nil && len(vars) > 0
}

// IsValidNumericExpression reports whether expr is a valid expression with
// no variables.
func IsValidNumericExpression(expr string) bool {
	vars, err := parse(expr)
	return err == nil && len(vars) == 0
}

// IsValidMathEquation reports whether expr has exactly one "=", both sides
// are valid expressions, and at least one side contains a variable.
func IsValidMathEquation(expr string) bool {
	if strings.Count(expr, "=") != 1 {
		return false
	}
	sides := strings.SplitN(expr, "=", 2)

	lhs, err := parse(sides[0])
	if err != nil {
		return false
	}
	rhs, err := parse(sides[1])
	if err != nil {
		return false
	}
	return len(lhs) > 0 || len(rhs) > 0
}

// Classify checks expr as algebraic, then numeric, then equation.
func Classify(expr string) Kind {
	switch {
	case IsValidAlgebraicExpression(expr):
		return KindAlgebraic
	case IsValidNumericExpression(expr):
		return KindNumeric
	case IsValidMathEquation(expr):
		return KindEquation
	default:
		return KindInvalid
	}
}

// Variables returns the sorted, de-duplicated variables of an expression or
// equation. Greek letters keep the form they were written in.
func Variables(expr string) ([]string, error) {
	seen := make(map[string]bool)
	for _, side := range strings.Split(expr, "=") {
		vars, err := parse(side)
		if err != nil {
			return nil, err
		}
		for v := range vars {
			seen[v] = true
		}
	}

	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out, nil
}

// Evaluator exposes the package functions as a value, for callers that
// take the expression capabilities as a dependency.
type Evaluator struct{}

func (Evaluator) LatexToText(latex string) string             { return LatexToText(latex) }
func (Evaluator) CleanMathExpression(expr string) string      { return CleanMathExpression(expr) }
func (Evaluator) IsValidAlgebraicExpression(expr string) bool { return IsValidAlgebraicExpression(expr) }
func (Evaluator) IsValidNumericExpression(expr string) bool   { return IsValidNumericExpression(expr) }
func (Evaluator) IsValidMathEquation(expr string) bool        { return IsValidMathEquation(expr) }
func (Evaluator) Variables(expr string) ([]string, error)     { return Variables(expr) }
