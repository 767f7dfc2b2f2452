package mathexpr

import (
	"strings"
	"unicode"
)

// latexSymbols maps symbol macros to their plain-text rendering.
var latexSymbols = map[string]string{
	"cdot":  "·",
	"times": "×",
	"div":   "÷",
	"pm":    "±",
	"infty": "∞",
	"le":    "≤",
	"ge":    "≥",
	"neq":   "≠",
}

// latexDropped are macros that only affect layout.
var latexDropped = map[string]bool{
	"left":         true,
	"right":        true,
	"displaystyle": true,
	"mathrm":       true,
	"text":         true,
}

// LatexToText renders a LaTeX math fragment as plain text: \frac{a}{b}
// becomes a/b (parenthesising compound parts), \sqrt{x} becomes √(x), greek
// macros become their symbols, operator macros become unicode operators and
// grouping braces are removed. Malformed input is rendered best-effort; the
// result is checked by the expression validators afterwards.
func LatexToText(latex string) string {
	c := &latexConverter{src: []rune(latex)}
	return c.convertUntil(0)
}

type latexConverter struct {
	src []rune
	pos int
}

// convertUntil renders until the matching closing brace (stop == '}') or
// end of input (stop == 0).
func (c *latexConverter) convertUntil(stop rune) string {
	var b strings.Builder
	for c.pos < len(c.src) {
		r := c.src[c.pos]
		switch {
		case stop != 0 && r == stop:
			c.pos++
			return b.String()

		case r == '{':
			c.pos++
			b.WriteString(c.convertUntil('}'))

		case r == '^' || r == '_':
			c.pos++
			b.WriteRune(r)
			c.skipSpace()
			if c.pos < len(c.src) && c.src[c.pos] == '{' {
				c.pos++
				b.WriteString(wrapCompound(c.convertUntil('}')))
			}

		case r == '\\':
			c.pos++
			b.WriteString(c.convertMacro())

		case r == '~':
			c.pos++
			b.WriteRune(' ')

		default:
			c.pos++
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (c *latexConverter) convertMacro() string {
	if c.pos >= len(c.src) {
		return ""
	}

	// Single-character macros: spacing and escaped punctuation.
	if r := c.src[c.pos]; !unicode.IsLetter(r) {
		c.pos++
		switch r {
		case ',', ';', ':', '!', ' ':
			return " "
		default:
			return string(r)
		}
	}

	start := c.pos
	for c.pos < len(c.src) && unicode.IsLetter(c.src[c.pos]) {
		c.pos++
	}
	name := string(c.src[start:c.pos])

	switch {
	case name == "frac" || name == "dfrac" || name == "tfrac":
		num := c.readArgument()
		den := c.readArgument()
		return wrapCompound(num) + "/" + wrapCompound(den)

	case name == "sqrt":
		var index string
		c.skipSpace()
		if c.pos < len(c.src) && c.src[c.pos] == '[' {
			c.pos++
			start := c.pos
			for c.pos < len(c.src) && c.src[c.pos] != ']' {
				c.pos++
			}
			index = string(c.src[start:c.pos])
			if c.pos < len(c.src) {
				c.pos++
			}
		}
		arg := c.readArgument()
		if index != "" {
			return "(" + arg + ")^(1/" + index + ")"
		}
		return "√(" + arg + ")"

	case latexDropped[name]:
		return ""
	}

	if sym, ok := latexSymbols[name]; ok {
		return sym
	}
	if sym, ok := greekLetterNamesToSymbols[name]; ok {
		return sym
	}
	for _, fn := range functionNames {
		if fn == name {
			return name
		}
	}
	if name == "operatorname" {
		return c.readArgument()
	}
	return name
}

// readArgument returns the next macro argument: a braced group or a single
// character.
func (c *latexConverter) readArgument() string {
	c.skipSpace()
	if c.pos >= len(c.src) {
		return ""
	}
	if c.src[c.pos] == '{' {
		c.pos++
		return c.convertUntil('}')
	}
	if c.src[c.pos] == '\\' {
		c.pos++
		return c.convertMacro()
	}
	r := c.src[c.pos]
	c.pos++
	return string(r)
}

func (c *latexConverter) skipSpace() {
	for c.pos < len(c.src) && unicode.IsSpace(c.src[c.pos]) {
		c.pos++
	}
}

// wrapCompound parenthesises s unless it is a single number or identifier.
func wrapCompound(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '.' {
			return "(" + s + ")"
		}
	}
	return s
}
