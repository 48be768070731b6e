package docstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const collectionNameDocuments = "documents"

type MongoConfig struct {
	URI             string
	Database        string
	Timeout         time.Duration
	IdleConnTimeout time.Duration
	MaxPoolSize     uint64
}

// MongoStore keeps every document in one collection keyed by path.
// Subscriptions use change streams and therefore need a replica set.
type MongoStore struct {
	client  *mongo.Client
	coll    *mongo.Collection
	timeout time.Duration
}

type mongoDocument struct {
	Path      string    `bson:"_id"`
	Parent    string    `bson:"parent"`
	Data      bson.M    `bson:"data"`
	CreatedAt time.Time `bson:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

func NewMongoStore(cfg MongoConfig) (*MongoStore, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	clientOpts := options.Client().ApplyURI(cfg.URI)
	if cfg.IdleConnTimeout > 0 {
		clientOpts.SetMaxConnIdleTime(cfg.IdleConnTimeout)
	}
	if cfg.MaxPoolSize > 0 {
		clientOpts.SetMaxPoolSize(cfg.MaxPoolSize)
	}
	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer pingCancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	s := &MongoStore{
		client:  client,
		coll:    client.Database(cfg.Database).Collection(collectionNameDocuments),
		timeout: cfg.Timeout,
	}
	if err := s.ensureIndexes(); err != nil {
		slog.Error("Error ensuring indexes for document store", slog.String("error", err.Error()))
	}
	return s, nil
}

func (s *MongoStore) getContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, s.timeout)
}

func (s *MongoStore) ensureIndexes() error {
	ctx, cancel := s.getContext(context.Background())
	defer cancel()
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "parent", Value: 1}, {Key: "createdAt", Value: 1}},
	})
	return err
}

func (d mongoDocument) snapshot() Snapshot {
	return Snapshot{
		Path:       d.Path,
		ID:         baseID(d.Path),
		Exists:     true,
		Data:       Document(d.Data),
		CreateTime: d.CreatedAt.UTC(),
		UpdateTime: d.UpdatedAt.UTC(),
	}
}

func (s *MongoStore) Read(ctx context.Context, path string) (Snapshot, error) {
	p, err := cleanDocPath(path)
	if err != nil {
		return Snapshot{}, err
	}
	ctx, cancel := s.getContext(ctx)
	defer cancel()
	var doc mongoDocument
	err = s.coll.FindOne(ctx, bson.M{"_id": p}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Snapshot{Path: p, ID: baseID(p)}, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("read %s: %w", p, err)
	}
	return doc.snapshot(), nil
}

func (s *MongoStore) Write(ctx context.Context, path string, doc Document, opts WriteOptions) error {
	p, err := cleanDocPath(path)
	if err != nil {
		return err
	}
	return s.upsert(ctx, p, doc, opts)
}

func (s *MongoStore) upsert(ctx context.Context, p string, doc Document, opts WriteOptions) error {
	ctx, cancel := s.getContext(ctx)
	defer cancel()

	now := time.Now().UTC()
	set := bson.M{"updatedAt": now}
	if opts.Merge {
		for k, v := range doc {
			set["data."+k] = v
		}
	} else {
		data := bson.M{}
		for k, v := range doc {
			data[k] = v
		}
		set["data"] = data
	}
	update := bson.M{
		"$set":         set,
		"$setOnInsert": bson.M{"parent": Parent(p), "createdAt": now},
	}
	if _, err := s.coll.UpdateOne(ctx, bson.M{"_id": p}, update, options.Update().SetUpsert(true)); err != nil {
		return fmt.Errorf("write %s: %w", p, err)
	}
	return nil
}

func (s *MongoStore) Append(ctx context.Context, collection string, doc Document) (string, error) {
	c, err := cleanCollectionPath(collection)
	if err != nil {
		return "", err
	}
	id := newDocID()
	if err := s.upsert(ctx, c+"/"+id, doc, WriteOptions{}); err != nil {
		return "", err
	}
	return id, nil
}

func (s *MongoStore) List(ctx context.Context, collection string, q Query) ([]Snapshot, error) {
	c, err := cleanCollectionPath(collection)
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.getContext(ctx)
	defer cancel()
	cur, err := s.coll.Find(ctx, bson.M{"parent": c},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", c, err)
	}
	var docs []mongoDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("list %s: %w", c, err)
	}
	out := make([]Snapshot, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.snapshot())
	}
	sortSnapshots(out, q)
	return out, nil
}

type changeEvent struct {
	DocumentKey struct {
		ID string `bson:"_id"`
	} `bson:"documentKey"`
	FullDocument *mongoDocument `bson:"fullDocument"`
}

// Subscribe opens the change stream before reading the initial state, so a
// write racing the subscription is delivered at least once.
func (s *MongoStore) Subscribe(ctx context.Context, path string) (<-chan Snapshot, func(), error) {
	p, err := Clean(path)
	if err != nil {
		return nil, nil, err
	}
	var match bson.M
	if IsCollection(p) {
		match = bson.M{"fullDocument.parent": p}
	} else {
		match = bson.M{"documentKey._id": p}
	}
	pipeline := mongo.Pipeline{{{Key: "$match", Value: match}}}

	ctx, cancel := context.WithCancel(ctx)
	stream, err := s.coll.Watch(ctx, pipeline, options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("watch %s: %w", p, err)
	}

	var initial []Snapshot
	if IsCollection(p) {
		initial, err = s.List(ctx, p, Query{})
	} else {
		var snap Snapshot
		snap, err = s.Read(ctx, p)
		initial = []Snapshot{snap}
	}
	if err != nil {
		_ = stream.Close(context.Background())
		cancel()
		return nil, nil, err
	}

	sub := newSubscription()
	sub.push(initial...)
	go sub.run()
	go func() {
		defer func() { _ = stream.Close(context.Background()) }()
		for stream.Next(ctx) {
			var ev changeEvent
			if err := stream.Decode(&ev); err != nil {
				slog.Error("decode change event", slog.String("path", p), slog.String("error", err.Error()))
				continue
			}
			if ev.FullDocument == nil {
				sub.push(Snapshot{Path: ev.DocumentKey.ID, ID: baseID(ev.DocumentKey.ID)})
				continue
			}
			sub.push(ev.FullDocument.snapshot())
		}
		if err := stream.Err(); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("change stream closed", slog.String("path", p), slog.String("error", err.Error()))
		}
		sub.stop()
	}()

	stop := func() {
		cancel()
		sub.stop()
	}
	return sub.out, stop, nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := s.getContext(context.Background())
	defer cancel()
	return s.client.Disconnect(ctx)
}
