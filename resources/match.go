package resources

import (
	"github.com/ohsu-comp-bio/cascade/database"
	"github.com/ohsu-comp-bio/cascade/model"
)

// Field returns the task document field holding requirement key.
func Field(key string) string {
	return "requirements." + key
}

// MatchFilter builds the conditions a task's requirements must satisfy to
// run on a pilot offering the given resources.
//
// A pilot offering gpus only takes tasks requiring between one and the
// offered number of gpus. Other numeric requirements must be at most the
// offered value or unset. Non-numeric requirements must equal the offered
// value (or contain it, for lists) or be unset.
func MatchFilter(offered map[string]interface{}) (database.Filter, error) {
	var f database.Filter
	var errs model.ValidationError

	for k, v := range offered {
		if !Known(k) {
			errs = append(errs, "unknown resource "+k)
			continue
		}
		if IsNumeric(k) {
			n, ok := toFloat(v)
			if !ok {
				errs = append(errs, "resource "+k+": expected a number")
				continue
			}
			if k == GPU && n > 0 {
				f = append(f, database.Gte(Field(k), 1.0), database.Lte(Field(k), n))
				continue
			}
			f = append(f, database.OrMissing(database.Lte(Field(k), n)))
			continue
		}
		if list, ok := v.([]interface{}); ok {
			f = append(f, database.OrMissing(database.In(Field(k), list)))
			continue
		}
		if list, ok := v.([]string); ok {
			f = append(f, database.OrMissing(database.In(Field(k), list)))
			continue
		}
		f = append(f, database.OrMissing(database.Eq(Field(k), v)))
	}
	if len(errs) > 0 {
		return nil, errs
	}
	return f, nil
}
