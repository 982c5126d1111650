package database

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsoncodec"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// decodeRegistry decodes untyped arrays and documents into plain Go
// slices and maps instead of primitive.A and primitive.D.
var decodeRegistry = func() *bsoncodec.Registry {
	r := bson.NewRegistry()
	r.RegisterTypeMapEntry(bsontype.EmbeddedDocument, reflect.TypeOf(map[string]interface{}{}))
	r.RegisterTypeMapEntry(bsontype.Array, reflect.TypeOf([]interface{}{}))
	return r
}()

// Encode converts a struct (or map) to a normalized Doc using its bson tags.
func Encode(v interface{}) (Doc, error) {
	if d, ok := v.(Doc); ok {
		return Normalize(d).(Doc), nil
	}
	b, err := bson.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding document: %w", err)
	}
	return Unmarshal(b)
}

// Decode converts a Doc into the struct pointed to by v.
func Decode(doc Doc, v interface{}) error {
	b, err := bson.Marshal(doc)
	if err != nil {
		return fmt.Errorf("decoding document: %w", err)
	}
	if err := bson.UnmarshalWithRegistry(decodeRegistry, b, v); err != nil {
		return fmt.Errorf("decoding document: %w", err)
	}
	return nil
}

// Marshal serializes a Doc to BSON bytes.
func Marshal(doc Doc) ([]byte, error) {
	return bson.Marshal(doc)
}

// Unmarshal parses BSON bytes into a normalized Doc.
func Unmarshal(b []byte) (Doc, error) {
	var m bson.M
	if err := bson.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("decoding document: %w", err)
	}
	return Normalize(m).(Doc), nil
}

// Normalize converts a value into the normalized document value space.
func Normalize(v interface{}) interface{} {
	switch x := v.(type) {
	case nil:
		return nil
	case Doc:
		out := make(Doc, len(x))
		for k, e := range x {
			out[k] = Normalize(e)
		}
		return out
	case bson.M:
		return Normalize(Doc(x))
	case map[string]interface{}:
		return Normalize(Doc(x))
	case bson.D:
		out := make(Doc, len(x))
		for _, e := range x {
			out[e.Key] = Normalize(e.Value)
		}
		return out
	case bson.A:
		return Normalize([]interface{}(x))
	case []interface{}:
		out := make([]interface{}, len(x))
		for i, e := range x {
			out[i] = Normalize(e)
		}
		return out
	case primitive.DateTime:
		return x.Time().UTC()
	case time.Time:
		return x.UTC().Truncate(time.Millisecond)
	case primitive.ObjectID:
		return x.Hex()
	case string, bool, float64:
		return x
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.Slice, reflect.Array:
		out := make([]interface{}, rv.Len())
		for i := range out {
			out[i] = Normalize(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return v
		}
		out := make(Doc, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = Normalize(iter.Value().Interface())
		}
		return out
	case reflect.Ptr:
		if rv.IsNil() {
			return nil
		}
		return Normalize(rv.Elem().Interface())
	case reflect.Struct:
		d, err := Encode(v)
		if err != nil {
			return v
		}
		return d
	}
	return v
}

// Lookup returns the value at a dotted field path.
func Lookup(doc Doc, path string) (interface{}, bool) {
	var cur interface{} = doc
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(Doc)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// SetPath sets the value at a dotted field path, creating nested documents
// as needed.
func SetPath(doc Doc, path string, v interface{}) {
	parts := strings.Split(path, ".")
	cur := doc
	for _, part := range parts[:len(parts)-1] {
		next, ok := cur[part].(Doc)
		if !ok {
			next = Doc{}
			cur[part] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = v
}

// UnsetPath removes the value at a dotted field path.
func UnsetPath(doc Doc, path string) {
	parts := strings.Split(path, ".")
	cur := doc
	for _, part := range parts[:len(parts)-1] {
		next, ok := cur[part].(Doc)
		if !ok {
			return
		}
		cur = next
	}
	delete(cur, parts[len(parts)-1])
}

// Copy returns a deep copy of doc.
func Copy(doc Doc) Doc {
	return Normalize(doc).(Doc)
}

// Compare orders two normalized values of the same kind. ok is false when
// the values are not comparable.
func Compare(a, b interface{}) (c int, ok bool) {
	switch x := a.(type) {
	case float64:
		y, ok := b.(float64)
		if !ok {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	case string:
		y, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(x, y), true
	case time.Time:
		y, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		switch {
		case x.Before(y):
			return -1, true
		case x.After(y):
			return 1, true
		}
		return 0, true
	case bool:
		y, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case x == y:
			return 0, true
		case !x:
			return -1, true
		}
		return 1, true
	}
	return 0, false
}

// Equal reports whether two normalized values are equal.
func Equal(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if c, ok := Compare(a, b); ok {
		return c == 0
	}
	return reflect.DeepEqual(a, b)
}

// String returns a string field, or "" when absent or not a string.
func (d Doc) String(field string) string {
	v, _ := Lookup(d, field)
	s, _ := v.(string)
	return s
}

// Int returns a numeric field as an int, or 0 when absent.
func (d Doc) Int(field string) int {
	return int(d.Float(field))
}

// Float returns a numeric field, or 0 when absent.
func (d Doc) Float(field string) float64 {
	v, _ := Lookup(d, field)
	f, _ := v.(float64)
	return f
}

// Strings returns an array field of strings.
func (d Doc) Strings(field string) []string {
	v, _ := Lookup(d, field)
	arr, _ := v.([]interface{})
	out := make([]string, 0, len(arr))
	for _, e := range arr {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
