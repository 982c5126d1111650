package expr

import (
	"fmt"
	"math"
)

type literal struct{ v interface{} }

func (l literal) eval(Env) (interface{}, error) { return l.v, nil }

type variable string

func (v variable) eval(env Env) (interface{}, error) {
	val, ok := env[string(v)]
	if !ok {
		return nil, fmt.Errorf("unknown variable %q", string(v))
	}
	return normalize(val), nil
}

type negate struct{ x node }

func (n *negate) eval(env Env) (interface{}, error) {
	v, err := n.x.eval(env)
	if err != nil {
		return nil, err
	}
	f, ok := v.(float64)
	if !ok {
		return nil, fmt.Errorf("cannot negate %T", v)
	}
	return -f, nil
}

type not struct{ x node }

func (n *not) eval(env Env) (interface{}, error) {
	v, err := n.x.eval(env)
	if err != nil {
		return nil, err
	}
	return !truthy(v), nil
}

type binary struct {
	op          string
	left, right node
}

func (b *binary) eval(env Env) (interface{}, error) {
	l, err := b.left.eval(env)
	if err != nil {
		return nil, err
	}

	// short circuit
	switch b.op {
	case "&&", "and":
		if !truthy(l) {
			return false, nil
		}
		r, err := b.right.eval(env)
		return truthy(r), err
	case "||", "or":
		if truthy(l) {
			return true, nil
		}
		r, err := b.right.eval(env)
		return truthy(r), err
	}

	r, err := b.right.eval(env)
	if err != nil {
		return nil, err
	}

	switch b.op {
	case "==":
		return l == r, nil
	case "!=":
		return l != r, nil
	}

	if ls, ok := l.(string); ok {
		rs, ok := r.(string)
		if !ok {
			return nil, fmt.Errorf("cannot apply %s to string and %T", b.op, r)
		}
		switch b.op {
		case "+":
			return ls + rs, nil
		case "<":
			return ls < rs, nil
		case "<=":
			return ls <= rs, nil
		case ">":
			return ls > rs, nil
		case ">=":
			return ls >= rs, nil
		}
		return nil, fmt.Errorf("cannot apply %s to strings", b.op)
	}

	lf, lok := l.(float64)
	rf, rok := r.(float64)
	if !lok || !rok {
		return nil, fmt.Errorf("cannot apply %s to %T and %T", b.op, l, r)
	}
	switch b.op {
	case "+":
		return lf + rf, nil
	case "-":
		return lf - rf, nil
	case "*":
		return lf * rf, nil
	case "/":
		if rf == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return lf / rf, nil
	case "//":
		if rf == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return math.Floor(lf / rf), nil
	case "%":
		if rf == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		m := math.Mod(lf, rf)
		if m != 0 && (m < 0) != (rf < 0) {
			m += rf
		}
		return m, nil
	case "**":
		return math.Pow(lf, rf), nil
	case "<":
		return lf < rf, nil
	case "<=":
		return lf <= rf, nil
	case ">":
		return lf > rf, nil
	case ">=":
		return lf >= rf, nil
	}
	return nil, fmt.Errorf("unknown operator %s", b.op)
}

type call struct {
	name string
	fn   func([]interface{}) (interface{}, error)
	args []node
}

func (c *call) eval(env Env) (interface{}, error) {
	args := make([]interface{}, len(c.args))
	for i, a := range c.args {
		v, err := a.eval(env)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	out, err := c.fn(args)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", c.name, err)
	}
	return out, nil
}

func truthy(v interface{}) bool {
	switch x := v.(type) {
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		return x != ""
	}
	return v != nil
}
