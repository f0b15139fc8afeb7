package repository

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"WhatsFlow/entity"
)

// ListContexts returns enabled AI knowledge snippets, highest priority
// first.
func (m *MongoDB) ListContexts(ctx context.Context) ([]entity.AIContext, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(aiContextsCollection)
	filter := bson.D{{Key: "enabled", Value: true}}
	opts := options.Find().SetSort(bson.D{{Key: "priority", Value: -1}})

	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("mongodb find error: %w", err)
	}
	defer cursor.Close(ctx)

	var contexts []entity.AIContext
	if err := cursor.All(ctx, &contexts); err != nil {
		return nil, fmt.Errorf("mongodb decode error: %w", err)
	}
	return contexts, nil
}
