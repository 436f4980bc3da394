package db

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"kasupel-server/internal/kerrors"
	"kasupel-server/internal/models"
)

func (m *MongoDB) InsertSession(ctx context.Context, s *models.Session) error {
	_, err := m.Sessions().InsertOne(ctx, s)
	if err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}
	return nil
}

func (m *MongoDB) SessionByID(ctx context.Context, id int64) (*models.Session, error) {
	var sess models.Session
	err := m.Sessions().FindOne(ctx, bson.M{"_id": id}).Decode(&sess)
	if err == mongo.ErrNoDocuments {
		return nil, kerrors.New(kerrors.SessionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading session %d: %w", id, err)
	}
	return &sess, nil
}

func (m *MongoDB) DeleteSession(ctx context.Context, id int64) error {
	_, err := m.Sessions().DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("deleting session %d: %w", id, err)
	}
	return nil
}

func (m *MongoDB) DeleteUserSessions(ctx context.Context, userID int64) error {
	_, err := m.Sessions().DeleteMany(ctx, bson.M{"userId": userID})
	if err != nil {
		return fmt.Errorf("deleting sessions for user %d: %w", userID, err)
	}
	return nil
}
