package database

// Op is a comparison operator of a filter condition.
type Op string

// Filter operators.
const (
	OpEq     Op = "eq"
	OpNe     Op = "ne"
	OpIn     Op = "in"
	OpNin    Op = "nin"
	OpLt     Op = "lt"
	OpLte    Op = "lte"
	OpGt     Op = "gt"
	OpGte    Op = "gte"
	OpExists Op = "exists"
)

// Cond is one condition on a (possibly dotted) field path.
// Eq and In match an array field when any element matches.
type Cond struct {
	Field string
	Op    Op
	Value interface{}
	// OrMissing also matches documents where the field is absent.
	OrMissing bool
}

// Filter is a conjunction of conditions. An empty Filter matches everything.
type Filter []Cond

// And returns a new filter containing the conditions of f followed by c.
func (f Filter) And(c ...Cond) Filter {
	out := make(Filter, 0, len(f)+len(c))
	out = append(out, f...)
	return append(out, c...)
}

// Has reports whether the filter constrains field.
func (f Filter) Has(field string) bool {
	for _, c := range f {
		if c.Field == field {
			return true
		}
	}
	return false
}

// Eq matches documents where field equals v.
func Eq(field string, v interface{}) Cond { return Cond{Field: field, Op: OpEq, Value: v} }

// Ne matches documents where field does not equal v, including when it is absent.
func Ne(field string, v interface{}) Cond { return Cond{Field: field, Op: OpNe, Value: v} }

// In matches documents where field equals any element of vs.
func In(field string, vs interface{}) Cond { return Cond{Field: field, Op: OpIn, Value: vs} }

// Nin matches documents where field equals no element of vs.
func Nin(field string, vs interface{}) Cond { return Cond{Field: field, Op: OpNin, Value: vs} }

// Lt matches documents where field < v.
func Lt(field string, v interface{}) Cond { return Cond{Field: field, Op: OpLt, Value: v} }

// Lte matches documents where field <= v.
func Lte(field string, v interface{}) Cond { return Cond{Field: field, Op: OpLte, Value: v} }

// Gt matches documents where field > v.
func Gt(field string, v interface{}) Cond { return Cond{Field: field, Op: OpGt, Value: v} }

// Gte matches documents where field >= v.
func Gte(field string, v interface{}) Cond { return Cond{Field: field, Op: OpGte, Value: v} }

// Exists matches documents where the presence of field equals ok.
func Exists(field string, ok bool) Cond { return Cond{Field: field, Op: OpExists, Value: ok} }

// OrMissing returns a copy of c which also matches when the field is absent.
func OrMissing(c Cond) Cond {
	c.OrMissing = true
	return c
}

// Update describes modifications applied to a document.
type Update struct {
	Set   Doc
	Unset []string
	// Inc adds to numeric fields, treating absent fields as zero.
	Inc map[string]float64
	// Max raises numeric fields to the given value, never lowering them.
	Max map[string]float64
	// SetOnInsert is applied only when an Upsert inserts a new document.
	SetOnInsert Doc
}

// IsEmpty reports whether the update changes nothing.
func (u Update) IsEmpty() bool {
	return len(u.Set) == 0 && len(u.Unset) == 0 && len(u.Inc) == 0 && len(u.Max) == 0 && len(u.SetOnInsert) == 0
}

// SortField orders query results by one field.
type SortField struct {
	Field string
	Desc  bool
}

// FindOptions controls query ordering, size and shape.
type FindOptions struct {
	Sort  []SortField
	Limit int
	// Projection lists the fields to return. The key field is always
	// returned. Empty returns whole documents.
	Projection []string
}

// Sorted returns options sorting by the given fields, descending when
// the name is prefixed with "-".
func Sorted(fields ...string) *FindOptions {
	opts := &FindOptions{}
	for _, f := range fields {
		if len(f) > 0 && f[0] == '-' {
			opts.Sort = append(opts.Sort, SortField{Field: f[1:], Desc: true})
		} else {
			opts.Sort = append(opts.Sort, SortField{Field: f})
		}
	}
	return opts
}

// Project returns options limiting results to the given fields.
func Project(fields ...string) *FindOptions {
	return &FindOptions{Projection: fields}
}
