package storage

import (
	"cleancycle/internal/config"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoEntry struct {
	Key       string    `bson:"_id"`
	Value     string    `bson:"value"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// mongoStorage 将每个键存为集合中的一条文档
type mongoStorage struct {
	client     *mongo.Client
	collection *mongo.Collection
}

func NewMongoStorage(ctx context.Context, cfg config.Config) (Storage, error) {
	uri := strings.TrimSpace(cfg.MongoURI)
	if uri == "" {
		return nil, errors.New("storage: missing MONGO_URI")
	}
	database := strings.TrimSpace(cfg.MongoDatabase)
	if database == "" {
		database = "cleancycle"
	}
	collection := strings.TrimSpace(cfg.MongoCollection)
	if collection == "" {
		collection = "kv_entries"
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("storage: connect MongoDB: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("storage: ping MongoDB: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"database":   database,
		"collection": collection,
	}).Info("connected to MongoDB")

	return &mongoStorage{
		client:     client,
		collection: client.Database(database).Collection(collection),
	}, nil
}

func (s *mongoStorage) Get(ctx context.Context, key string) (string, error) {
	if err := checkKey(key); err != nil {
		return "", err
	}
	var entry mongoEntry
	err := s.collection.FindOne(ctx, bson.M{"_id": key}).Decode(&entry)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("find entry: %w", err)
	}
	return entry.Value, nil
}

func (s *mongoStorage) Set(ctx context.Context, key, value string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	update := bson.M{"$set": bson.M{"value": value, "updated_at": time.Now().UTC()}}
	_, err := s.collection.UpdateOne(ctx, bson.M{"_id": key}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert entry: %w", err)
	}
	return nil
}

func (s *mongoStorage) Delete(ctx context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if _, err := s.collection.DeleteOne(ctx, bson.M{"_id": key}); err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	return nil
}

func (s *mongoStorage) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

var _ Storage = (*mongoStorage)(nil)
var _ Closer = (*mongoStorage)(nil)
