// Package mongodb stores cascade collections in MongoDB.
package mongodb

import (
	"context"
	"fmt"
	"time"

	"github.com/ohsu-comp-bio/cascade/config"
	"github.com/ohsu-comp-bio/cascade/database"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDB provides a MongoDB database server backend.
type MongoDB struct {
	client   *mongo.Client
	database *mongo.Database
	conf     config.MongoDB
	active   bool
}

// NewMongoDB connects to the configured MongoDB servers.
func NewMongoDB(conf config.MongoDB) (*MongoDB, error) {
	opts := options.Client().
		SetHosts(conf.Addrs).
		SetAppName("cascade")

	if conf.Timeout > 0 {
		opts = opts.SetConnectTimeout(time.Duration(conf.Timeout))
	}
	if len(conf.Username) > 0 && len(conf.Password) > 0 {
		opts = opts.SetAuth(options.Credential{
			Username: conf.Username,
			Password: conf.Password,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout(conf))
	defer cancel()
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}

	db := &MongoDB{
		client:   client,
		database: client.Database(conf.Database),
		conf:     conf,
		active:   true,
	}
	return db, nil
}

func timeout(conf config.MongoDB) time.Duration {
	if conf.Timeout <= 0 {
		return time.Minute
	}
	return time.Duration(conf.Timeout)
}

func (db *MongoDB) wrap(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, timeout(db.conf))
}

// Collection returns the named collection.
func (db *MongoDB) Collection(name string) database.Collection {
	schema, ok := database.SchemaFor(name)
	if !ok {
		schema = database.Schema{Name: name, Key: "id"}
	}
	return &collection{db: db, coll: db.database.Collection(name), schema: schema}
}

func (db *MongoDB) findCollections(ctx context.Context) (map[string]bool, error) {
	names, err := db.database.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	result := make(map[string]bool)
	for _, name := range names {
		result[name] = true
	}
	return result, nil
}

// Init creates collections and their indexes in MongoDB.
func (db *MongoDB) Init(ctx context.Context) error {
	ctx, cancel := db.wrap(ctx)
	defer cancel()

	found, err := db.findCollections(ctx)
	if err != nil {
		return err
	}

	for _, s := range database.Schemas {
		if !found[s.Name] {
			if err := db.database.CreateCollection(ctx, s.Name); err != nil {
				return fmt.Errorf(
					"error creating collection [%s] in database [%s]: %v",
					s.Name, db.conf.Database, err)
			}
		}

		models := []mongo.IndexModel{{
			Keys:    bson.D{{Key: s.Key, Value: 1}},
			Options: options.Index().SetUnique(true),
		}}
		for _, idx := range s.Indexes {
			keys := bson.D{}
			exists := bson.M{}
			for _, f := range idx.Fields {
				keys = append(keys, bson.E{Key: f, Value: 1})
				exists[f] = bson.M{"$exists": true}
			}
			opts := options.Index().SetUnique(idx.Unique)
			if idx.Partial {
				opts.SetPartialFilterExpression(exists)
			}
			models = append(models, mongo.IndexModel{Keys: keys, Options: opts})
		}
		if _, err := db.database.Collection(s.Name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("error creating indexes on [%s]: %v", s.Name, err)
		}
	}
	return nil
}

// Close closes the database session.
func (db *MongoDB) Close() error {
	if !db.active {
		return nil
	}
	db.active = false
	ctx, cancel := db.wrap(context.Background())
	defer cancel()
	return db.client.Disconnect(ctx)
}

var _ database.Database = (*MongoDB)(nil)
