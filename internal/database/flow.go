package repository

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"WhatsFlow/bot/flow"
)

// Get returns the named flow definition, or nil when absent.
func (m *MongoDB) Get(ctx context.Context, name string) (*flow.Definition, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(flowsCollection)
	filter := bson.D{{Key: "name", Value: name}}

	var def flow.Definition
	err = collection.FindOne(ctx, filter).Decode(&def)
	if err != nil {
		return nil, m.findError(err)
	}
	return &def, nil
}

// ListEnabled returns enabled flows visible to the account. Flows with
// an empty account are visible everywhere.
func (m *MongoDB) ListEnabled(ctx context.Context, account string) ([]flow.Definition, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(flowsCollection)
	filter := bson.D{
		{Key: "enabled", Value: true},
		{Key: "$or", Value: bson.A{
			bson.D{{Key: "account", Value: ""}},
			bson.D{{Key: "account", Value: account}},
		}},
	}

	cursor, err := collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("mongodb find error: %w", err)
	}
	defer cursor.Close(ctx)

	var defs []flow.Definition
	if err := cursor.All(ctx, &defs); err != nil {
		return nil, fmt.Errorf("mongodb decode error: %w", err)
	}
	return defs, nil
}

// ListFlows returns every flow definition for the admin API.
func (m *MongoDB) ListFlows(ctx context.Context) ([]flow.Definition, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(flowsCollection)
	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}})

	cursor, err := collection.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongodb find error: %w", err)
	}
	defer cursor.Close(ctx)

	var defs []flow.Definition
	if err := cursor.All(ctx, &defs); err != nil {
		return nil, fmt.Errorf("mongodb decode error: %w", err)
	}
	return defs, nil
}

// SaveFlow upserts a flow definition keyed by name.
func (m *MongoDB) SaveFlow(ctx context.Context, def *flow.Definition) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(flowsCollection)
	filter := bson.D{{Key: "name", Value: def.Name}}
	opts := options.Replace().SetUpsert(true)

	_, err = collection.ReplaceOne(ctx, filter, def, opts)
	if err != nil {
		return fmt.Errorf("mongodb replace error: %w", err)
	}
	return nil
}

// DeleteFlow removes a flow definition by name.
func (m *MongoDB) DeleteFlow(ctx context.Context, name string) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(flowsCollection)
	result, err := collection.DeleteOne(ctx, bson.D{{Key: "name", Value: name}})
	if err != nil {
		return fmt.Errorf("mongodb delete error: %w", err)
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("flow not found")
	}
	return nil
}
