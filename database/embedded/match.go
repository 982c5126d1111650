package embedded

import (
	"fmt"
	"sort"

	"github.com/ohsu-comp-bio/cascade/database"
)

// Match reports whether doc satisfies every condition of the filter.
func Match(doc database.Doc, filter database.Filter) bool {
	for _, c := range filter {
		if !matchCond(doc, c) {
			return false
		}
	}
	return true
}

func matchCond(doc database.Doc, c database.Cond) bool {
	v, exists := database.Lookup(doc, c.Field)
	if !exists && c.OrMissing {
		return true
	}
	want := database.Normalize(c.Value)

	switch c.Op {
	case database.OpExists:
		b, _ := want.(bool)
		return exists == b
	case database.OpEq:
		return exists && eq(v, want) || !exists && want == nil
	case database.OpNe:
		return !(exists && eq(v, want) || !exists && want == nil)
	case database.OpIn:
		return exists && in(v, want)
	case database.OpNin:
		return !(exists && in(v, want))
	case database.OpLt, database.OpLte, database.OpGt, database.OpGte:
		if !exists {
			return false
		}
		return anyElem(v, func(e interface{}) bool { return cmp(e, want, c.Op) })
	}
	panic(fmt.Sprintf("unknown filter operator %q", c.Op))
}

// eq compares a stored value with a wanted value. Arrays match when they
// are equal or when any element equals the wanted value.
func eq(v, want interface{}) bool {
	if database.Equal(v, want) {
		return true
	}
	if arr, ok := v.([]interface{}); ok {
		for _, e := range arr {
			if database.Equal(e, want) {
				return true
			}
		}
	}
	return false
}

func in(v, want interface{}) bool {
	list, ok := want.([]interface{})
	if !ok {
		return eq(v, want)
	}
	for _, w := range list {
		if eq(v, w) {
			return true
		}
	}
	return false
}

func anyElem(v interface{}, fn func(interface{}) bool) bool {
	if arr, ok := v.([]interface{}); ok {
		for _, e := range arr {
			if fn(e) {
				return true
			}
		}
		return false
	}
	return fn(v)
}

func cmp(v, want interface{}, op database.Op) bool {
	c, ok := database.Compare(v, want)
	if !ok {
		return false
	}
	switch op {
	case database.OpLt:
		return c < 0
	case database.OpLte:
		return c <= 0
	case database.OpGt:
		return c > 0
	default:
		return c >= 0
	}
}

// sortDocs orders docs in place. The sort is stable so that documents with
// equal sort keys keep key order.
func sortDocs(docs []database.Doc, fields []database.SortField) {
	if len(fields) == 0 {
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		for _, f := range fields {
			a, aok := database.Lookup(docs[i], f.Field)
			b, bok := database.Lookup(docs[j], f.Field)
			c := compareMissing(a, aok, b, bok)
			if c == 0 {
				continue
			}
			if f.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

// compareMissing orders absent values before present ones.
func compareMissing(a interface{}, aok bool, b interface{}, bok bool) int {
	switch {
	case !aok && !bok:
		return 0
	case !aok:
		return -1
	case !bok:
		return 1
	}
	c, _ := database.Compare(a, b)
	return c
}

// project returns a copy of doc holding only the given fields plus key.
func project(doc database.Doc, key string, fields []string) database.Doc {
	if len(fields) == 0 {
		return doc
	}
	out := database.Doc{key: doc[key]}
	for _, f := range fields {
		if v, ok := database.Lookup(doc, f); ok {
			database.SetPath(out, f, v)
		}
	}
	return out
}

// apply applies an update to doc in place.
func apply(doc database.Doc, u database.Update) {
	for k, v := range u.Set {
		database.SetPath(doc, k, database.Normalize(v))
	}
	for _, k := range u.Unset {
		database.UnsetPath(doc, k)
	}
	for k, v := range u.Inc {
		cur, _ := database.Lookup(doc, k)
		f, _ := cur.(float64)
		database.SetPath(doc, k, f+v)
	}
	for k, v := range u.Max {
		cur, ok := database.Lookup(doc, k)
		f, isNum := cur.(float64)
		if !ok || !isNum || v > f {
			database.SetPath(doc, k, v)
		}
	}
}

// seed builds the document inserted by an upsert from the filter's
// equality conditions.
func seed(filter database.Filter) database.Doc {
	doc := database.Doc{}
	for _, c := range filter {
		if c.Op == database.OpEq && !c.OrMissing {
			database.SetPath(doc, c.Field, database.Normalize(c.Value))
		}
	}
	return doc
}
