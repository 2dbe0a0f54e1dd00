package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Options configures Open.
type Options struct {
	URI      string // mongodb:// or mongodb+srv:// connection string
	Database string // database holding the entity set collections
	AppName  string // reported to the server, optional

	// Timeout bounds every operation issued through the client. Zero leaves
	// timeouts to the caller's context.
	Timeout time.Duration
}

// Mongo is a connected MongoDB client bound to one database.
// It implements both Resolver and Handle.
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
}

// Open connects to MongoDB and verifies the connection with a ping.
func Open(ctx context.Context, opts Options) (*Mongo, error) {
	if opts.URI == "" {
		return nil, errors.New("mongo URI is required")
	}
	if opts.Database == "" {
		return nil, errors.New("database name is required")
	}

	clientOpts := options.Client().ApplyURI(opts.URI)
	if opts.AppName != "" {
		clientOpts.SetAppName(opts.AppName)
	}
	if opts.Timeout > 0 {
		clientOpts.SetTimeout(opts.Timeout)
	}

	client, err := mongo.Connect(clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	return &Mongo{client: client, db: client.Database(opts.Database)}, nil
}

// Close disconnects the client.
func (m *Mongo) Close(ctx context.Context) error {
	if m.client == nil {
		return nil
	}
	return m.client.Disconnect(ctx)
}

// Client returns the underlying client, e.g. to start sessions.
func (m *Mongo) Client() *mongo.Client {
	return m.client
}

// Database returns the underlying database.
func (m *Mongo) Database() *mongo.Database {
	return m.db
}

// Resolve returns m itself; the client is shared by every call.
func (m *Mongo) Resolve(context.Context) (Handle, error) {
	return m, nil
}

// Collection implements Handle.
func (m *Mongo) Collection(name string) Collection {
	return FromDatabase(m.db).Collection(name)
}

// FromDatabase wraps an existing database as a Handle, e.g. one obtained
// with a different read concern, for use with a per-call override.
func FromDatabase(db *mongo.Database) Handle {
	return databaseHandle{db: db}
}

type databaseHandle struct {
	db *mongo.Database
}

func (h databaseHandle) Collection(name string) Collection {
	return &mongoCollection{coll: h.db.Collection(name)}
}

// mongoCollection adapts *mongo.Collection to Collection.
type mongoCollection struct {
	coll *mongo.Collection
}

func (c *mongoCollection) Find(ctx context.Context, filter bson.M, opts FindOptions) ([]bson.M, error) {
	findOpts := options.Find()
	if len(opts.Projection) > 0 {
		findOpts.SetProjection(opts.Projection)
	}
	if len(opts.Sort) > 0 {
		findOpts.SetSort(opts.Sort)
	}
	if opts.Skip > 0 {
		findOpts.SetSkip(opts.Skip)
	}
	if opts.Limit > 0 {
		findOpts.SetLimit(opts.Limit)
	}
	if opts.Collation != nil {
		findOpts.SetCollation(&options.Collation{Locale: opts.Collation.Locale})
	}

	cursor, err := c.coll.Find(ctx, nonNil(filter), findOpts)
	if err != nil {
		return nil, err
	}
	return drain(ctx, cursor)
}

func (c *mongoCollection) Aggregate(ctx context.Context, pipeline []bson.D, opts AggregateOptions) ([]bson.M, error) {
	aggOpts := options.Aggregate()
	if opts.Collation != nil {
		aggOpts.SetCollation(&options.Collation{Locale: opts.Collation.Locale})
	}

	cursor, err := c.coll.Aggregate(ctx, mongo.Pipeline(pipeline), aggOpts)
	if err != nil {
		return nil, err
	}
	return drain(ctx, cursor)
}

func (c *mongoCollection) CountDocuments(ctx context.Context, filter bson.M, limit int64) (int64, error) {
	countOpts := options.Count()
	if limit > 0 {
		countOpts.SetLimit(limit)
	}
	return c.coll.CountDocuments(ctx, nonNil(filter), countOpts)
}

func (c *mongoCollection) Insert(ctx context.Context, docs []bson.M) (*InsertResult, error) {
	res, err := c.coll.InsertMany(ctx, docs)
	if err != nil {
		return nil, err
	}
	return &InsertResult{InsertedIDs: res.InsertedIDs, Acknowledged: res.Acknowledged}, nil
}

func (c *mongoCollection) UpdateOne(ctx context.Context, filter, update bson.M) (*UpdateResult, error) {
	res, err := c.coll.UpdateOne(ctx, nonNil(filter), update)
	if err != nil {
		return nil, err
	}
	return &UpdateResult{
		MatchedCount:  res.MatchedCount,
		ModifiedCount: res.ModifiedCount,
		Acknowledged:  res.Acknowledged,
	}, nil
}

func (c *mongoCollection) DeleteMany(ctx context.Context, filter bson.M) (*DeleteResult, error) {
	res, err := c.coll.DeleteMany(ctx, nonNil(filter))
	if err != nil {
		return nil, err
	}
	return &DeleteResult{DeletedCount: res.DeletedCount, Acknowledged: res.Acknowledged}, nil
}

// drain reads every document from cursor and closes it.
// Returns an empty slice (not nil) when the cursor yields nothing.
func drain(ctx context.Context, cursor *mongo.Cursor) ([]bson.M, error) {
	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []bson.M{}
	}
	return docs, nil
}
