// Package resources defines the requirement vector shared by tasks and
// pilots: what a task needs and what a pilot offers.
package resources

import (
	"fmt"
	"math"
	"reflect"
	"sort"

	"github.com/ohsu-comp-bio/cascade/model"
)

// Kind is the value type of a resource.
type Kind int

// Resource kinds.
const (
	Int Kind = iota
	Float
	List
	String
)

// Resource names.
const (
	CPU    = "cpu"
	GPU    = "gpu"
	Memory = "memory"
	Disk   = "disk"
	Time   = "time"
	OS     = "os"
	Site   = "site"
)

type keyDef struct {
	kind  Kind
	deflt interface{}
}

// memory and disk are in GB, time is in hours.
var keyDefs = map[string]keyDef{
	CPU:    {Int, 1.0},
	GPU:    {Int, 0.0},
	Memory: {Float, 1.0},
	Disk:   {Float, 1.0},
	Time:   {Float, 1.0},
	OS:     {List, []interface{}{}},
	Site:   {String, ""},
}

// Requirements is a sparse resource vector. Numeric values are float64,
// os is a []interface{} of strings and site is a string.
type Requirements map[string]interface{}

// Keys returns the known resource names, sorted.
func Keys() []string {
	keys := make([]string, 0, len(keyDefs))
	for k := range keyDefs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Known reports whether key is a resource name.
func Known(key string) bool {
	_, ok := keyDefs[key]
	return ok
}

// IsNumeric reports whether key holds a number.
func IsNumeric(key string) bool {
	s, ok := keyDefs[key]
	return ok && (s.kind == Int || s.kind == Float)
}

// IsInteger reports whether key holds a whole number.
func IsInteger(key string) bool {
	s, ok := keyDefs[key]
	return ok && s.kind == Int
}

// Default returns the default value of key.
func Default(key string) interface{} {
	return keyDefs[key].deflt
}

// Get returns the value of key, or its default when unset.
func (r Requirements) Get(key string) interface{} {
	if v, ok := r[key]; ok {
		return v
	}
	return Default(key)
}

// Float returns a numeric value of key, or its default when unset.
func (r Requirements) Float(key string) float64 {
	f, _ := toFloat(r.Get(key))
	return f
}

// Normalize validates a raw resource map and returns a sparse vector:
// unknown keys and mistyped values are rejected, numbers are coerced to
// the key's kind and values equal to the default are dropped.
func Normalize(raw map[string]interface{}) (Requirements, error) {
	out := Requirements{}
	var errs model.ValidationError

	for k, v := range raw {
		s, ok := keyDefs[k]
		if !ok {
			errs = append(errs, fmt.Sprintf("unknown resource %q", k))
			continue
		}
		val, err := coerce(s.kind, v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("resource %q: %s", k, err))
			continue
		}
		if !isDefault(k, val) {
			out[k] = val
		}
	}
	if len(errs) > 0 {
		sort.Strings(errs)
		return nil, errs
	}
	return out, nil
}

func coerce(kind Kind, v interface{}) (interface{}, error) {
	switch kind {
	case Int, Float:
		f, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("expected a number, got %T", v)
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("must be finite")
		}
		if f < 0 {
			return nil, fmt.Errorf("must not be negative")
		}
		if kind == Int {
			f = math.Ceil(f)
		}
		return f, nil
	case List:
		switch x := v.(type) {
		case string:
			return []interface{}{x}, nil
		}
		rv := reflect.ValueOf(v)
		if v == nil || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
			return nil, fmt.Errorf("expected a list, got %T", v)
		}
		out := make([]interface{}, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			s, ok := rv.Index(i).Interface().(string)
			if !ok {
				return nil, fmt.Errorf("expected a list of strings")
			}
			out = append(out, s)
		}
		return out, nil
	default:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected a string, got %T", v)
		}
		return s, nil
	}
}

func isDefault(key string, v interface{}) bool {
	switch x := v.(type) {
	case float64:
		return x == keyDefs[key].deflt.(float64)
	case []interface{}:
		return len(x) == 0
	case string:
		return x == ""
	}
	return false
}

func toFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case bool:
		return 0, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}
