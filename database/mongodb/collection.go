package mongodb

import (
	"context"
	"errors"
	"fmt"

	"github.com/ohsu-comp-bio/cascade/database"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type collection struct {
	db     *MongoDB
	coll   *mongo.Collection
	schema database.Schema
}

func convertErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return database.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%v: %w", err, database.ErrDuplicateKey)
	}
	return err
}

func (c *collection) Insert(ctx context.Context, docs ...database.Doc) error {
	if len(docs) == 0 {
		return nil
	}
	ctx, cancel := c.db.wrap(ctx)
	defer cancel()

	in := make([]interface{}, len(docs))
	for i, d := range docs {
		in[i] = database.Copy(d)
	}
	_, err := c.coll.InsertMany(ctx, in)
	return convertErr(err)
}

func (c *collection) FindOne(ctx context.Context, filter database.Filter, opts *database.FindOptions) (database.Doc, error) {
	o := database.FindOptions{}
	if opts != nil {
		o = *opts
	}
	o.Limit = 1
	docs, err := c.Find(ctx, filter, &o)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, database.ErrNotFound
	}
	return docs[0], nil
}

func (c *collection) Find(ctx context.Context, filter database.Filter, opts *database.FindOptions) ([]database.Doc, error) {
	ctx, cancel := c.db.wrap(ctx)
	defer cancel()

	cursor, err := c.coll.Find(ctx, filterDoc(filter), findOptions(c.schema.Key, opts))
	if err != nil {
		return nil, err
	}
	var raw []bson.M
	if err := cursor.All(ctx, &raw); err != nil {
		return nil, err
	}
	out := make([]database.Doc, len(raw))
	for i, r := range raw {
		out[i] = database.Normalize(r).(database.Doc)
	}
	return out, nil
}

// Transition maps directly onto findOneAndUpdate, which MongoDB executes
// atomically on a single document.
func (c *collection) Transition(ctx context.Context, filter database.Filter, update database.Update, opts *database.FindOptions) (database.Doc, error) {
	ctx, cancel := c.db.wrap(ctx)
	defer cancel()

	o := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(bson.M{"_id": 0})
	if opts != nil && len(opts.Sort) > 0 {
		o.SetSort(sortDoc(opts.Sort))
	}
	return c.findOneAndUpdate(ctx, filter, update, o)
}

func (c *collection) Upsert(ctx context.Context, filter database.Filter, update database.Update) (database.Doc, error) {
	ctx, cancel := c.db.wrap(ctx)
	defer cancel()

	o := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(bson.M{"_id": 0}).
		SetUpsert(true)
	return c.findOneAndUpdate(ctx, filter, update, o)
}

func (c *collection) findOneAndUpdate(ctx context.Context, filter database.Filter, update database.Update, o *options.FindOneAndUpdateOptions) (database.Doc, error) {
	if update.IsEmpty() {
		// MongoDB rejects empty update documents.
		return c.FindOne(ctx, filter, nil)
	}
	var out bson.M
	err := c.coll.FindOneAndUpdate(ctx, filterDoc(filter), updateDoc(update), o).Decode(&out)
	if err != nil {
		return nil, convertErr(err)
	}
	return database.Normalize(out).(database.Doc), nil
}

func (c *collection) UpdateMany(ctx context.Context, filter database.Filter, update database.Update) (int, error) {
	if update.IsEmpty() {
		return 0, nil
	}
	ctx, cancel := c.db.wrap(ctx)
	defer cancel()

	res, err := c.coll.UpdateMany(ctx, filterDoc(filter), updateDoc(update))
	if err != nil {
		return 0, convertErr(err)
	}
	return int(res.MatchedCount), nil
}

func (c *collection) DeleteMany(ctx context.Context, filter database.Filter) (int, error) {
	ctx, cancel := c.db.wrap(ctx)
	defer cancel()

	res, err := c.coll.DeleteMany(ctx, filterDoc(filter))
	if err != nil {
		return 0, err
	}
	return int(res.DeletedCount), nil
}

func (c *collection) Count(ctx context.Context, filter database.Filter) (int, error) {
	ctx, cancel := c.db.wrap(ctx)
	defer cancel()

	n, err := c.coll.CountDocuments(ctx, filterDoc(filter))
	return int(n), err
}

type groupCount struct {
	Key   interface{} `bson:"_id"`
	Count int         `bson:"count"`
}

// CountBy runs a $match + $group aggregation.
func (c *collection) CountBy(ctx context.Context, filter database.Filter, field string) (map[string]int, error) {
	ctx, cancel := c.db.wrap(ctx)
	defer cancel()

	matchStage := bson.D{{Key: "$match", Value: filterDoc(filter)}}
	groupStage := bson.D{
		{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$" + field},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}},
	}

	cursor, err := c.coll.Aggregate(ctx, mongo.Pipeline{matchStage, groupStage})
	if err != nil {
		return nil, err
	}

	recs := []groupCount{}
	if err := cursor.All(ctx, &recs); err != nil {
		return nil, err
	}

	counts := map[string]int{}
	for _, rec := range recs {
		counts[fmt.Sprintf("%v", database.Normalize(rec.Key))] = rec.Count
	}
	return counts, nil
}
