package repository

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"WhatsFlow/entity"
)

// ListRules returns enabled keyword rules, highest priority first.
func (m *MongoDB) ListRules(ctx context.Context) ([]entity.KeywordRule, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(rulesCollection)
	filter := bson.D{{Key: "enabled", Value: true}}
	opts := options.Find().SetSort(bson.D{{Key: "priority", Value: -1}})

	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("mongodb find error: %w", err)
	}
	defer cursor.Close(ctx)

	var rules []entity.KeywordRule
	if err := cursor.All(ctx, &rules); err != nil {
		return nil, fmt.Errorf("mongodb decode error: %w", err)
	}
	return rules, nil
}

// ListAllRules returns every rule for the admin API.
func (m *MongoDB) ListAllRules(ctx context.Context) ([]entity.KeywordRule, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(rulesCollection)
	opts := options.Find().SetSort(bson.D{{Key: "priority", Value: -1}})

	cursor, err := collection.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongodb find error: %w", err)
	}
	defer cursor.Close(ctx)

	var rules []entity.KeywordRule
	if err := cursor.All(ctx, &rules); err != nil {
		return nil, fmt.Errorf("mongodb decode error: %w", err)
	}
	return rules, nil
}

// SaveRule upserts a keyword rule keyed by name.
func (m *MongoDB) SaveRule(ctx context.Context, rule *entity.KeywordRule) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(rulesCollection)
	filter := bson.D{{Key: "name", Value: rule.Name}}
	opts := options.Replace().SetUpsert(true)

	_, err = collection.ReplaceOne(ctx, filter, rule, opts)
	if err != nil {
		return fmt.Errorf("mongodb replace error: %w", err)
	}
	return nil
}

// DeleteRule removes a keyword rule by id.
func (m *MongoDB) DeleteRule(ctx context.Context, id primitive.ObjectID) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(rulesCollection)
	result, err := collection.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return fmt.Errorf("mongodb delete error: %w", err)
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("rule not found")
	}
	return nil
}
