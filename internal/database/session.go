package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"WhatsFlow/bot/flow"
)

// Create inserts a new Active session. Any session still Active for the
// same contact is cancelled first, keeping at most one Active session
// per (phone, account) pair.
func (m *MongoDB) Create(ctx context.Context, s *flow.Session) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(sessionsCollection)

	now := time.Now()
	supersede := bson.D{
		{Key: "phone_number", Value: s.PhoneNumber},
		{Key: "account", Value: s.Account},
		{Key: "status", Value: flow.StatusActive},
	}
	_, err = collection.UpdateMany(ctx, supersede, bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "status", Value: flow.StatusCancelled},
			{Key: "completed_at", Value: now},
		}},
	})
	if err != nil {
		return fmt.Errorf("mongodb update error: %w", err)
	}

	result, err := collection.InsertOne(ctx, s)
	if err != nil {
		return fmt.Errorf("mongodb insert error: %w", err)
	}
	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		s.ID = oid
	}
	return nil
}

// Save persists the session's current state by id.
func (m *MongoDB) Save(ctx context.Context, s *flow.Session) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(sessionsCollection)
	filter := bson.D{{Key: "_id", Value: s.ID}}
	opts := options.Replace().SetUpsert(true)

	_, err = collection.ReplaceOne(ctx, filter, s, opts)
	if err != nil {
		return fmt.Errorf("mongodb replace error: %w", err)
	}
	return nil
}

// Active returns the Active session for the contact, or nil.
func (m *MongoDB) Active(ctx context.Context, phone, account string) (*flow.Session, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(sessionsCollection)
	filter := bson.D{
		{Key: "phone_number", Value: phone},
		{Key: "account", Value: account},
		{Key: "status", Value: flow.StatusActive},
	}

	var session flow.Session
	err = collection.FindOne(ctx, filter).Decode(&session)
	if err != nil {
		return nil, m.findError(err)
	}
	return &session, nil
}

// Terminate conditionally moves an Active session to a terminal status.
// Returns false when the session was already terminal, meaning another
// writer finished it first.
func (m *MongoDB) Terminate(ctx context.Context, s *flow.Session, status flow.SessionStatus) (bool, error) {
	connection, err := m.connect()
	if err != nil {
		return false, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(sessionsCollection)
	filter := bson.D{
		{Key: "_id", Value: s.ID},
		{Key: "status", Value: flow.StatusActive},
	}

	now := time.Now()
	result, err := collection.UpdateOne(ctx, filter, bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "status", Value: status},
			{Key: "completed_at", Value: now},
		}},
	})
	if err != nil {
		return false, fmt.Errorf("mongodb update error: %w", err)
	}
	if result.ModifiedCount == 0 {
		return false, nil
	}

	s.Status = status
	s.CompletedAt = &now
	return true, nil
}

// Stale returns Active sessions idle since before the cutoff.
func (m *MongoDB) Stale(ctx context.Context, cutoff time.Time) ([]flow.Session, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(sessionsCollection)
	filter := bson.D{
		{Key: "status", Value: flow.StatusActive},
		{Key: "last_active", Value: bson.D{{Key: "$lt", Value: cutoff}}},
	}

	cursor, err := collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("mongodb find error: %w", err)
	}
	defer cursor.Close(ctx)

	var sessions []flow.Session
	if err := cursor.All(ctx, &sessions); err != nil {
		return nil, fmt.Errorf("mongodb decode error: %w", err)
	}
	return sessions, nil
}

// ListSessions returns recent sessions for the admin API, newest first.
func (m *MongoDB) ListSessions(ctx context.Context, limit int64) ([]flow.Session, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(sessionsCollection)
	opts := options.Find().
		SetSort(bson.D{{Key: "last_active", Value: -1}}).
		SetLimit(limit)

	cursor, err := collection.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongodb find error: %w", err)
	}
	defer cursor.Close(ctx)

	var sessions []flow.Session
	if err := cursor.All(ctx, &sessions); err != nil {
		return nil, fmt.Errorf("mongodb decode error: %w", err)
	}
	return sessions, nil
}
