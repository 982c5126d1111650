// Package expr evaluates the small expressions embedded in dataset config
// templates. Only the variables of the supplied environment and a fixed
// set of arithmetic functions are reachable.
//
// A template string may contain variable references, $(name), and
// evaluated expressions, $eval(expression). Expressions support numbers,
// quoted strings, booleans, + - * / // % **, comparisons, and/or/not and
// the functions min, max, ceil, floor, abs, round, int, float and str.
package expr

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Env holds the variables visible to an expression.
type Env map[string]interface{}

// Eval parses and evaluates a single expression.
func Eval(src string, env Env) (interface{}, error) {
	n, err := parse(src)
	if err != nil {
		return nil, fmt.Errorf("parsing %q: %v", src, err)
	}
	v, err := n.eval(env)
	if err != nil {
		return nil, fmt.Errorf("evaluating %q: %v", src, err)
	}
	return v, nil
}

// Expand substitutes the placeholders of a template string. When the
// whole template is a single placeholder the typed result is returned,
// otherwise the results are formatted into the surrounding text.
func Expand(tmpl string, env Env) (interface{}, error) {
	type part struct {
		lit   string
		value interface{}
		isVal bool
	}
	var parts []part

	rest := tmpl
	for {
		i := strings.Index(rest, "$")
		if i < 0 || i+1 >= len(rest) {
			parts = append(parts, part{lit: rest})
			break
		}
		var body string
		var isEval bool
		switch {
		case strings.HasPrefix(rest[i:], "$eval("):
			isEval = true
			body = rest[i+len("$eval("):]
		case strings.HasPrefix(rest[i:], "$("):
			body = rest[i+len("$("):]
		default:
			parts = append(parts, part{lit: rest[:i+1]})
			rest = rest[i+1:]
			continue
		}
		end := closing(body)
		if end < 0 {
			return nil, fmt.Errorf("unbalanced parentheses in %q", tmpl)
		}
		parts = append(parts, part{lit: rest[:i]})

		inner := body[:end]
		var v interface{}
		var err error
		if isEval {
			// variable references inside an expression are substituted textually
			var sub interface{}
			if sub, err = Expand(inner, env); err == nil {
				v, err = Eval(format(sub), env)
			}
		} else {
			name := strings.TrimSpace(inner)
			var ok bool
			v, ok = env[name]
			if !ok {
				err = fmt.Errorf("unknown variable %q", name)
			}
			v = normalize(v)
		}
		if err != nil {
			return nil, err
		}
		parts = append(parts, part{value: v, isVal: true})
		rest = body[end+1:]
	}

	// Drop empty literals so a lone placeholder keeps its type.
	var kept []part
	for _, p := range parts {
		if p.isVal || p.lit != "" {
			kept = append(kept, p)
		}
	}
	if len(kept) == 1 && kept[0].isVal {
		return kept[0].value, nil
	}

	var sb strings.Builder
	for _, p := range kept {
		if p.isVal {
			sb.WriteString(format(p.value))
		} else {
			sb.WriteString(p.lit)
		}
	}
	return sb.String(), nil
}

// ExpandValue expands strings, recursing into lists and maps. Other
// values are returned unchanged.
func ExpandValue(v interface{}, env Env) (interface{}, error) {
	switch x := v.(type) {
	case string:
		return Expand(x, env)
	case []interface{}:
		out := make([]interface{}, len(x))
		for i, e := range x {
			r, err := ExpandValue(e, env)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	case map[string]interface{}:
		out := make(map[string]interface{}, len(x))
		for k, e := range x {
			r, err := ExpandValue(e, env)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	}
	return v, nil
}

// closing returns the index of the parenthesis closing an already opened
// one, skipping quoted strings.
func closing(s string) int {
	depth := 1
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func normalize(v interface{}) interface{} {
	switch x := v.(type) {
	case nil, string, bool, float64:
		return x
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint())
	case reflect.Float32:
		return rv.Float()
	case reflect.String:
		return rv.String()
	}
	return v
}

func format(v interface{}) string {
	switch x := v.(type) {
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case string:
		return x
	case nil:
		return ""
	}
	return fmt.Sprintf("%v", v)
}
