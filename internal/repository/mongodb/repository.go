package mongodb

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/mamadbah2/herdbook/internal/config"
	"github.com/mamadbah2/herdbook/internal/repository/store"
)

// envelope is the stored shape of every document: the full path is the _id
// and the caller's document lives under data.
type envelope struct {
	ID        string    `bson:"_id"`
	Parent    string    `bson:"parent"`
	Key       string    `bson:"key"`
	Data      bson.Raw  `bson:"data"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

// Store implements store.Store on a single MongoDB collection.
type Store struct {
	client *mongo.Client
	coll   *mongo.Collection
	logger *zap.Logger
}

var _ store.Store = (*Store)(nil)

// NewStore connects to MongoDB, verifies the connection and ensures indexes.
func NewStore(ctx context.Context, cfg config.MongoDBConfig, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	// Ping the database to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	s := &Store{
		client: client,
		coll:   client.Database(cfg.DBName).Collection(cfg.Collection),
		logger: logger,
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	logger.Info("mongodb store ready", zap.String("db", cfg.DBName), zap.String("collection", cfg.Collection))
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "parent", Value: 1}, {Key: "key", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create parent index: %w", err)
	}
	return nil
}

// Get decodes the document at path into out.
func (s *Store) Get(ctx context.Context, path string, out interface{}) error {
	path, err := store.Join(path)
	if err != nil {
		return err
	}

	var env envelope
	err = s.coll.FindOne(ctx, bson.M{"_id": path}).Decode(&env)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("get %s: %w", path, store.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return store.Document{Key: env.Key, Data: env.Data}.Decode(out)
}

// List returns the direct children of path ordered by key.
func (s *Store) List(ctx context.Context, path string) (store.Snapshot, error) {
	path, err := store.Join(path)
	if err != nil {
		return store.Snapshot{}, err
	}

	cursor, err := s.coll.Find(ctx, bson.M{"parent": path}, options.Find().SetSort(bson.D{{Key: "key", Value: 1}}))
	if err != nil {
		return store.Snapshot{}, fmt.Errorf("failed to list %s: %w", path, err)
	}
	defer cursor.Close(ctx)

	snap := store.Snapshot{Path: path}
	for cursor.Next(ctx) {
		var env envelope
		if err := cursor.Decode(&env); err != nil {
			return store.Snapshot{}, fmt.Errorf("failed to decode %s child: %w", path, err)
		}
		snap.Documents = append(snap.Documents, store.Document{Key: env.Key, Data: env.Data})
	}
	if err := cursor.Err(); err != nil {
		return store.Snapshot{}, fmt.Errorf("failed to iterate %s: %w", path, err)
	}
	return snap, nil
}

// Set replaces (upserts) the document at path.
func (s *Store) Set(ctx context.Context, path string, doc interface{}) error {
	path, err := store.Join(path)
	if err != nil {
		return err
	}
	raw, err := store.Encode(doc)
	if err != nil {
		return err
	}

	parent, key := store.Split(path)
	env := envelope{ID: path, Parent: parent, Key: key, Data: raw, UpdatedAt: time.Now().UTC()}
	if _, err := s.coll.ReplaceOne(ctx, bson.M{"_id": path}, env, options.Replace().SetUpsert(true)); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// Push stores doc under a generated UUIDv7 key below path.
func (s *Store) Push(ctx context.Context, path string, doc interface{}) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	full, err := store.Join(path, id.String())
	if err != nil {
		return "", err
	}
	if err := s.Set(ctx, full, doc); err != nil {
		return "", err
	}
	return id.String(), nil
}

// Remove deletes path and all of its descendants.
func (s *Store) Remove(ctx context.Context, path string) error {
	path, err := store.Join(path)
	if err != nil {
		return err
	}

	filter := bson.M{"$or": bson.A{
		bson.M{"_id": path},
		bson.M{"_id": bson.M{"$regex": "^" + regexp.QuoteMeta(path+"/")}},
	}}
	if _, err := s.coll.DeleteMany(ctx, filter); err != nil {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return nil
}

// Subscribe opens a change stream on everything below path and reloads the
// full snapshot on each event. Change streams require a replica set.
func (s *Store) Subscribe(ctx context.Context, path string, fn store.Listener) (store.Subscription, error) {
	path, err := store.Join(path)
	if err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, fmt.Errorf("subscribe %s: nil listener", path)
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"documentKey._id": bson.M{"$regex": "^" + regexp.QuoteMeta(path+"/")}}}},
	}

	watchCtx, cancel := context.WithCancel(ctx)
	stream, err := s.coll.Watch(watchCtx, pipeline)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to watch %s: %w", path, err)
	}

	initial, err := s.List(watchCtx, path)
	if err != nil {
		cancel()
		_ = stream.Close(context.Background())
		return nil, err
	}
	fn(initial)

	sub := &subscription{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(sub.done)
		defer stream.Close(context.Background())

		for stream.Next(watchCtx) {
			snap, err := s.List(watchCtx, path)
			if err != nil {
				s.logger.Warn("subscription reload failed", zap.String("path", path), zap.Error(err))
				continue
			}
			fn(snap)
		}
		if err := stream.Err(); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("change stream stopped", zap.String("path", path), zap.Error(err))
		}
	}()

	return sub, nil
}

// Close closes the MongoDB connection.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

type subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (sub *subscription) Unsubscribe() {
	sub.once.Do(func() {
		sub.cancel()
		<-sub.done
	})
}
