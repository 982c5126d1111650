package expr

import (
	"fmt"
)

// node is a parsed expression.
type node interface {
	eval(env Env) (interface{}, error)
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tEOF {
		p.pos++
	}
	return t
}

// binding powers
var precedence = map[string]int{
	"||": 1, "or": 1,
	"&&": 2, "and": 2,
	"==": 3, "!=": 3, "<": 3, "<=": 3, ">": 3, ">=": 3,
	"+": 4, "-": 4,
	"*": 5, "/": 5, "//": 5, "%": 5,
	"**": 7,
}

func opText(t token) (string, bool) {
	switch t.kind {
	case tOp:
		return t.text, true
	case tIdent:
		if t.text == "and" || t.text == "or" {
			return t.text, true
		}
	}
	return "", false
}

func parse(src string) (node, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	n, err := p.expr(0)
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tEOF {
		return nil, fmt.Errorf("unexpected %q at %d", t.text, t.pos)
	}
	return n, nil
}

func (p *parser) expr(minPrec int) (node, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := opText(p.peek())
		prec, known := precedence[op]
		if !ok || !known || prec <= minPrec {
			return left, nil
		}
		p.next()
		// ** is right associative
		next := prec
		if op == "**" {
			next = prec - 1
		}
		right, err := p.expr(next)
		if err != nil {
			return nil, err
		}
		left = &binary{op: op, left: left, right: right}
	}
}

func (p *parser) unary() (node, error) {
	t := p.peek()
	if op, ok := opText(t); ok && (op == "-" || op == "!") || t.kind == tIdent && t.text == "not" {
		p.next()
		operand, err := p.expr(6)
		if err != nil {
			return nil, err
		}
		if t.text == "-" {
			return &negate{operand}, nil
		}
		return &not{operand}, nil
	}
	return p.primary()
}

func (p *parser) primary() (node, error) {
	t := p.next()
	switch t.kind {
	case tNumber:
		return literal{t.num}, nil
	case tString:
		return literal{t.text}, nil
	case tLParen:
		n, err := p.expr(0)
		if err != nil {
			return nil, err
		}
		if c := p.next(); c.kind != tRParen {
			return nil, fmt.Errorf("expected ) at %d", c.pos)
		}
		return n, nil
	case tIdent:
		switch t.text {
		case "true", "True":
			return literal{true}, nil
		case "false", "False":
			return literal{false}, nil
		}
		if p.peek().kind == tLParen {
			return p.call(t)
		}
		return variable(t.text), nil
	}
	if t.kind == tEOF {
		return nil, fmt.Errorf("unexpected end of expression")
	}
	return nil, fmt.Errorf("unexpected %q at %d", t.text, t.pos)
}

func (p *parser) call(name token) (node, error) {
	fn, ok := functions[name.text]
	if !ok {
		return nil, fmt.Errorf("unknown function %q", name.text)
	}
	p.next() // (
	var args []node
	if p.peek().kind != tRParen {
		for {
			a, err := p.expr(0)
			if err != nil {
				return nil, err
			}
			args = append(args, a)
			if p.peek().kind != tComma {
				break
			}
			p.next()
		}
	}
	if c := p.next(); c.kind != tRParen {
		return nil, fmt.Errorf("expected ) at %d", c.pos)
	}
	return &call{name: name.text, fn: fn, args: args}, nil
}
