package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CreateDocument stores a record produced by a flow's Create Document
// completion action and returns its id.
func (m *MongoDB) CreateDocument(ctx context.Context, docType string, fields map[string]any) (string, error) {
	connection, err := m.connect()
	if err != nil {
		return "", err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(documentsCollection)
	doc := bson.D{
		{Key: "type", Value: docType},
		{Key: "fields", Value: fields},
		{Key: "created_at", Value: time.Now()},
	}

	result, err := collection.InsertOne(ctx, doc)
	if err != nil {
		return "", fmt.Errorf("mongodb insert error: %w", err)
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		return oid.Hex(), nil
	}
	return fmt.Sprint(result.InsertedID), nil
}
