package mathexpr

import "fmt"

// parser is a recursive-descent recogniser for
//
//	expr    := term (("+" | "-") term)*
//	term    := unary (("*" | "/") unary | implicit)*
//	unary   := ("+" | "-") unary | power
//	power   := primary ("^" unary)?
//	primary := number | variable | function "(" expr ")" | "(" expr ")"
//
// where implicit multiplication applies when a term is directly followed by
// a variable, a function or "(". A number never multiplies implicitly from
// the right ("x2" and "2 3" are rejected).
type parser struct {
	expr      string
	tokens    []token
	pos       int
	variables map[string]bool
}

func parse(expr string) (map[string]bool, error) {
	tokens, err := tokenize(expr)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, &SyntaxError{Expr: expr, Pos: 0, Reason: "empty expression"}
	}

	p := &parser{expr: expr, tokens: tokens, variables: make(map[string]bool)}
	if err := p.parseExpr(); err != nil {
		return nil, err
	}
	if p.pos < len(p.tokens) {
		return nil, p.errorf("unexpected %q", p.tokens[p.pos].text)
	}
	return p.variables, nil
}

func (p *parser) peek() (token, bool) {
	if p.pos >= len(p.tokens) {
		return token{}, false
	}
	return p.tokens[p.pos], true
}

func (p *parser) errorf(reason string, a ...any) error {
	pos := len([]rune(p.expr))
	if t, ok := p.peek(); ok {
		pos = t.pos
	}
	return &SyntaxError{Expr: p.expr, Pos: pos, Reason: fmt.Sprintf(reason, a...)}
}

func (p *parser) parseExpr() error {
	if err := p.parseTerm(); err != nil {
		return err
	}
	for {
		t, ok := p.peek()
		if !ok || t.kind != tokOperator || (t.text != "+" && t.text != "-") {
			return nil
		}
		p.pos++
		if err := p.parseTerm(); err != nil {
			return err
		}
	}
}

func (p *parser) parseTerm() error {
	if err := p.parseUnary(); err != nil {
		return err
	}
	for {
		t, ok := p.peek()
		if !ok {
			return nil
		}
		switch {
		case t.kind == tokOperator && (t.text == "*" || t.text == "/"):
			p.pos++
			if err := p.parseUnary(); err != nil {
				return err
			}
		case t.kind == tokVariable || t.kind == tokFunction || t.kind == tokLParen:
			if err := p.parsePower(); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func (p *parser) parseUnary() error {
	t, ok := p.peek()
	if ok && t.kind == tokOperator && (t.text == "+" || t.text == "-") {
		p.pos++
		return p.parseUnary()
	}
	return p.parsePower()
}

func (p *parser) parsePower() error {
	if err := p.parsePrimary(); err != nil {
		return err
	}
	t, ok := p.peek()
	if ok && t.kind == tokOperator && t.text == "^" {
		p.pos++
		return p.parseUnary()
	}
	return nil
}

func (p *parser) parsePrimary() error {
	t, ok := p.peek()
	if !ok {
		return p.errorf("unexpected end of expression")
	}

	switch t.kind {
	case tokNumber:
		p.pos++
		return nil

	case tokVariable:
		p.variables[t.text] = true
		p.pos++
		return nil

	case tokFunction:
		p.pos++
		open, ok := p.peek()
		if !ok || open.kind != tokLParen {
			return p.errorf("function %s requires a parenthesised argument", t.text)
		}
		return p.parseGroup()

	case tokLParen:
		return p.parseGroup()

	default:
		return p.errorf("unexpected %q", t.text)
	}
}

func (p *parser) parseGroup() error {
	p.pos++ // "("
	if err := p.parseExpr(); err != nil {
		return err
	}
	t, ok := p.peek()
	if !ok || t.kind != tokRParen {
		return p.errorf("missing closing parenthesis")
	}
	p.pos++
	return nil
}
