package mongodb

import (
	"github.com/ohsu-comp-bio/cascade/database"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var operators = map[database.Op]string{
	database.OpEq:     "$eq",
	database.OpNe:     "$ne",
	database.OpIn:     "$in",
	database.OpNin:    "$nin",
	database.OpLt:     "$lt",
	database.OpLte:    "$lte",
	database.OpGt:     "$gt",
	database.OpGte:    "$gte",
	database.OpExists: "$exists",
}

// filterDoc converts a database.Filter to a MongoDB query document.
func filterDoc(f database.Filter) bson.D {
	var and bson.A
	for _, c := range f {
		expr := bson.M{c.Field: bson.M{operators[c.Op]: database.Normalize(c.Value)}}
		if c.OrMissing {
			expr = bson.M{"$or": bson.A{
				bson.M{c.Field: bson.M{"$exists": false}},
				expr,
			}}
		}
		and = append(and, expr)
	}
	if len(and) == 0 {
		return bson.D{}
	}
	return bson.D{{Key: "$and", Value: and}}
}

// updateDoc converts a database.Update to a MongoDB update document.
func updateDoc(u database.Update) bson.D {
	out := bson.D{}
	if len(u.Set) > 0 {
		set := bson.M{}
		for k, v := range u.Set {
			set[k] = database.Normalize(v)
		}
		out = append(out, bson.E{Key: "$set", Value: set})
	}
	if len(u.Unset) > 0 {
		unset := bson.M{}
		for _, k := range u.Unset {
			unset[k] = ""
		}
		out = append(out, bson.E{Key: "$unset", Value: unset})
	}
	if len(u.Inc) > 0 {
		out = append(out, bson.E{Key: "$inc", Value: toM(u.Inc)})
	}
	if len(u.Max) > 0 {
		out = append(out, bson.E{Key: "$max", Value: toM(u.Max)})
	}
	if len(u.SetOnInsert) > 0 {
		ins := bson.M{}
		for k, v := range u.SetOnInsert {
			ins[k] = database.Normalize(v)
		}
		out = append(out, bson.E{Key: "$setOnInsert", Value: ins})
	}
	return out
}

func toM(m map[string]float64) bson.M {
	out := bson.M{}
	for k, v := range m {
		out[k] = v
	}
	return out
}

func sortDoc(fields []database.SortField) bson.D {
	out := bson.D{}
	for _, f := range fields {
		dir := 1
		if f.Desc {
			dir = -1
		}
		out = append(out, bson.E{Key: f.Field, Value: dir})
	}
	return out
}

func projectionDoc(key string, fields []string) bson.M {
	if len(fields) == 0 {
		return nil
	}
	out := bson.M{"_id": 0, key: 1}
	for _, f := range fields {
		out[f] = 1
	}
	return out
}

func findOptions(key string, opts *database.FindOptions) *options.FindOptions {
	o := options.Find()
	if opts == nil {
		return o.SetProjection(bson.M{"_id": 0})
	}
	if len(opts.Sort) > 0 {
		o.SetSort(sortDoc(opts.Sort))
	}
	if opts.Limit > 0 {
		o.SetLimit(int64(opts.Limit))
	}
	if p := projectionDoc(key, opts.Projection); p != nil {
		o.SetProjection(p)
	} else {
		o.SetProjection(bson.M{"_id": 0})
	}
	return o
}
