// Package mongo provides the MongoDB implementation of the document
// store port.
package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/google/uuid"

	"github.com/linkside/gateway/ports"
)

// DocStore implements ports.DocumentStore over a MongoDB database.
// Each logical collection maps to a Mongo collection; the document "id"
// field doubles as the Mongo _id.
type DocStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// Open connects to MongoDB and returns a document store bound to the
// named database.
func Open(ctx context.Context, uri, database string) (*DocStore, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}
	return &DocStore{client: client, db: client.Database(database)}, nil
}

// Migrate creates the lookup indexes the gateway queries by.
func (s *DocStore) Migrate(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		ports.CollectionAPIKeys: {
			{
				Keys:    bson.D{{Key: "api_key", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		ports.CollectionUsageRecords: {
			{Keys: bson.D{{Key: "credential", Value: 1}, {Key: "timestamp", Value: -1}}},
		},
	}
	for col, models := range indexes {
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// Find returns documents matching the filter by field equality.
func (s *DocStore) Find(ctx context.Context, collection string, filter ports.Filter) ([]ports.Document, error) {
	query := bson.M{}
	for k, v := range filter {
		query[k] = v
	}

	cursor, err := s.db.Collection(collection).Find(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("find documents: %w", err)
	}
	defer cursor.Close(ctx)

	var result []ports.Document
	for cursor.Next(ctx) {
		var raw bson.M
		if err := cursor.Decode(&raw); err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}
		delete(raw, "_id")
		result = append(result, ports.Document(raw))
	}
	return result, cursor.Err()
}

// Create stores a document, assigning an "id" if absent.
func (s *DocStore) Create(ctx context.Context, collection string, doc ports.Document) (ports.Document, error) {
	stored := make(bson.M, len(doc)+2)
	for k, v := range doc {
		stored[k] = v
	}
	id, _ := stored["id"].(string)
	if id == "" {
		id = uuid.New().String()
		stored["id"] = id
	}
	stored["_id"] = id

	if _, err := s.db.Collection(collection).InsertOne(ctx, stored); err != nil {
		return nil, fmt.Errorf("insert document: %w", err)
	}

	delete(stored, "_id")
	return ports.Document(stored), nil
}

// Update applies a partial patch to a document by id. Missing documents
// are a no-op, matching the memory store.
func (s *DocStore) Update(ctx context.Context, collection, id string, patch ports.Document) error {
	set := bson.M{}
	for k, v := range patch {
		set[k] = v
	}

	_, err := s.db.Collection(collection).UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (s *DocStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Ensure interface compliance.
var _ ports.DocumentStore = (*DocStore)(nil)
