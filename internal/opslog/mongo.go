package opslog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const mongoConnectTimeout = 10 * time.Second

// MongoLog writes ops-log documents to a MongoDB collection, using the
// document id as _id.
type MongoLog struct {
	client *mongo.Client
	col    *mongo.Collection
}

// NewMongo connects to MongoDB and verifies the connection.
func NewMongo(ctx context.Context, uri, database, collection string) (*MongoLog, error) {
	connectCtx, cancel := context.WithTimeout(ctx, mongoConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	err = client.Ping(connectCtx, readpref.Primary())
	if err != nil {
		_ = client.Disconnect(ctx)

		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	return NewMongoWithCollection(client, client.Database(database).Collection(collection)), nil
}

// NewMongoWithCollection wraps an existing collection.
func NewMongoWithCollection(client *mongo.Client, col *mongo.Collection) *MongoLog {
	return &MongoLog{client: client, col: col}
}

// Merge upserts the document and sets only the given fields.
func (m *MongoLog) Merge(ctx context.Context, id string, fields map[string]any) error {
	filter := bson.M{"_id": id}
	update := bson.M{"$set": bson.M(fields)}

	_, err := m.col.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to merge %s/%s: %w", m.col.Name(), id, err)
	}

	return nil
}

// Get returns the document fields without _id.
func (m *MongoLog) Get(ctx context.Context, id string) (map[string]any, error) {
	var doc bson.M

	err := m.col.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, m.col.Name(), id)
		}

		return nil, fmt.Errorf("failed to get %s/%s: %w", m.col.Name(), id, err)
	}

	delete(doc, "_id")

	return map[string]any(doc), nil
}

// Close disconnects the client.
func (m *MongoLog) Close(ctx context.Context) error {
	if m.client == nil {
		return nil
	}

	err := m.client.Disconnect(ctx)
	if err != nil {
		return fmt.Errorf("failed to disconnect from mongo: %w", err)
	}

	return nil
}
