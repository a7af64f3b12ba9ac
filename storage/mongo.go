package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/srgchrksv/docpodcaster/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoCache stores podcast metadata in a MongoDB collection, one document per source document.
type MongoCache struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// NewMongoCache connects, pings and makes sure documentId is uniquely indexed.
func NewMongoCache(ctx context.Context, uri, database, collection string) (*MongoCache, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	coll := client.Database(database).Collection(collection)
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "documentId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("create documentId index: %w", err)
	}

	return &MongoCache{client: client, collection: coll}, nil
}

// Get returns the cached podcast for documentID. Records without an audio URL
// are treated as missing.
func (c *MongoCache) Get(ctx context.Context, documentID string) (*models.PodcastMetadata, error) {
	filter := bson.M{
		"documentId": documentID,
		"audioUrl":   bson.M{"$nin": bson.A{nil, ""}},
	}

	var meta models.PodcastMetadata
	err := c.collection.FindOne(ctx, filter).Decode(&meta)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find podcast metadata for %s: %w", documentID, err)
	}
	return &meta, nil
}

// Put upserts the record for meta.DocumentID.
func (c *MongoCache) Put(ctx context.Context, meta models.PodcastMetadata) error {
	filter := bson.M{"documentId": meta.DocumentID}
	update := bson.M{"$set": meta}
	opts := options.Update().SetUpsert(true)

	if _, err := c.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("save podcast metadata for %s: %w", meta.DocumentID, err)
	}
	return nil
}

// Close disconnects from MongoDB.
func (c *MongoCache) Close(ctx context.Context) error {
	if c.client == nil {
		return nil
	}
	return c.client.Disconnect(ctx)
}
