// Package db is the MongoDB persistence layer. MongoDB implements the
// narrow store interfaces the engine, matchmaker, session service and
// notification queue consume.
package db

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoDB struct {
	Client   *mongo.Client
	Database *mongo.Database
}

func NewMongoDB(uri, database string) (*MongoDB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(500).
		SetMinPoolSize(10).
		SetMaxConnIdleTime(5 * time.Minute)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	db := &MongoDB{
		Client:   client,
		Database: client.Database(database),
	}

	// Create indexes in the background (non-blocking)
	go db.ensureIndexes()

	return db, nil
}

// ensureIndexes creates all required indexes. Called once on startup.
func (m *MongoDB) ensureIndexes() {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	indexes := []struct {
		collection string
		models     []mongo.IndexModel
	}{
		{
			"users",
			[]mongo.IndexModel{
				{Keys: bson.D{{Key: "username", Value: 1}},
					Options: options.Index().SetUnique(true).
						SetPartialFilterExpression(bson.M{"deleted": bson.M{"$exists": false}})},
				{Keys: bson.D{{Key: "email", Value: 1}},
					Options: options.Index().SetUnique(true).
						SetPartialFilterExpression(bson.M{"deleted": bson.M{"$exists": false}})},
				{Keys: bson.D{{Key: "elo", Value: -1}, {Key: "_id", Value: 1}}},
			},
		},
		{
			"sessions",
			[]mongo.IndexModel{
				{Keys: bson.D{{Key: "userId", Value: 1}}},
				{Keys: bson.D{{Key: "expiresAt", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(0)},
			},
		},
		{
			"games",
			[]mongo.IndexModel{
				{Keys: bson.D{{Key: "hostId", Value: 1}, {Key: "endedAt", Value: -1}}},
				{Keys: bson.D{{Key: "awayId", Value: 1}, {Key: "endedAt", Value: -1}}},
				{Keys: bson.D{{Key: "invitedId", Value: 1}}},
				{Keys: bson.D{{Key: "startedAt", Value: 1}, {Key: "endedAt", Value: 1}}},
			},
		},
		{
			"notifications",
			[]mongo.IndexModel{
				{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "_id", Value: -1}}},
			},
		},
		{
			"avatars",
			[]mongo.IndexModel{
				{Keys: bson.D{{Key: "userId", Value: 1}}},
			},
		},
		{
			"audit_log",
			[]mongo.IndexModel{
				{Keys: bson.D{{Key: "createdAt", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(90 * 24 * 3600)}, // 90-day retention
				{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}}},
			},
		},
	}

	for _, idx := range indexes {
		coll := m.Database.Collection(idx.collection)
		_, err := coll.Indexes().CreateMany(ctx, idx.models)
		if err != nil {
			log.Printf("Warning: failed to create indexes on %s: %v", idx.collection, err)
		}
	}

	log.Println("Database indexes ensured")
}

func (m *MongoDB) Close(ctx context.Context) error {
	return m.Client.Disconnect(ctx)
}

func (m *MongoDB) Users() *mongo.Collection {
	return m.Database.Collection("users")
}

func (m *MongoDB) Sessions() *mongo.Collection {
	return m.Database.Collection("sessions")
}

func (m *MongoDB) Games() *mongo.Collection {
	return m.Database.Collection("games")
}

func (m *MongoDB) Notifications() *mongo.Collection {
	return m.Database.Collection("notifications")
}

func (m *MongoDB) Avatars() *mongo.Collection {
	return m.Database.Collection("avatars")
}

func (m *MongoDB) Counters() *mongo.Collection {
	return m.Database.Collection("counters")
}

func (m *MongoDB) AuditLog() *mongo.Collection {
	return m.Database.Collection("audit_log")
}

// nextID atomically allocates the next integer id for a sequence name.
func (m *MongoDB) nextID(ctx context.Context, name string) (int64, error) {
	var doc struct {
		Value int64 `bson:"value"`
	}
	err := m.Counters().FindOneAndUpdate(ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"value": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return 0, fmt.Errorf("allocating %s id: %w", name, err)
	}
	return doc.Value, nil
}

func (m *MongoDB) NextUserID(ctx context.Context) (int64, error) {
	return m.nextID(ctx, "users")
}

func (m *MongoDB) NextSessionID(ctx context.Context) (int64, error) {
	return m.nextID(ctx, "sessions")
}

func (m *MongoDB) NextGameID(ctx context.Context) (int64, error) {
	return m.nextID(ctx, "games")
}

func (m *MongoDB) NextNotificationID(ctx context.Context) (int64, error) {
	return m.nextID(ctx, "notifications")
}

func (m *MongoDB) NextAvatarID(ctx context.Context) (int64, error) {
	return m.nextID(ctx, "avatars")
}
