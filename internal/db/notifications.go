package db

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"kasupel-server/internal/kerrors"
	"kasupel-server/internal/models"
)

func (m *MongoDB) InsertNotification(ctx context.Context, n *models.Notification) error {
	_, err := m.Notifications().InsertOne(ctx, n)
	if err != nil {
		return fmt.Errorf("inserting notification: %w", err)
	}
	return nil
}

func (m *MongoDB) NotificationByID(ctx context.Context, id int64) (*models.Notification, error) {
	var n models.Notification
	err := m.Notifications().FindOne(ctx, bson.M{"_id": id}).Decode(&n)
	if err == mongo.ErrNoDocuments {
		return nil, kerrors.New(kerrors.NotificationNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading notification %d: %w", id, err)
	}
	return &n, nil
}

func (m *MongoDB) MarkNotificationRead(ctx context.Context, id int64) error {
	_, err := m.Notifications().UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"read": true}})
	if err != nil {
		return fmt.Errorf("marking notification %d read: %w", id, err)
	}
	return nil
}

// NotificationsForUser returns one page, newest first, plus the user's
// total notification count.
func (m *MongoDB) NotificationsForUser(ctx context.Context, userID int64, offset, limit int) ([]*models.Notification, int64, error) {
	filter := bson.M{"userId": userID}
	total, err := m.Notifications().CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("counting notifications: %w", err)
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))
	cursor, err := m.Notifications().Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("listing notifications: %w", err)
	}
	defer cursor.Close(ctx)
	var items []*models.Notification
	for cursor.Next(ctx) {
		var n models.Notification
		if err := cursor.Decode(&n); err != nil {
			return nil, 0, err
		}
		item := n
		items = append(items, &item)
	}
	return items, total, cursor.Err()
}

func (m *MongoDB) InsertAvatar(ctx context.Context, a *models.Avatar) error {
	_, err := m.Avatars().InsertOne(ctx, a)
	if err != nil {
		return fmt.Errorf("inserting avatar: %w", err)
	}
	return nil
}

func (m *MongoDB) AvatarByID(ctx context.Context, id int64) (*models.Avatar, error) {
	var a models.Avatar
	err := m.Avatars().FindOne(ctx, bson.M{"_id": id}).Decode(&a)
	if err == mongo.ErrNoDocuments {
		return nil, kerrors.New(kerrors.MediaNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading avatar %d: %w", id, err)
	}
	return &a, nil
}

func (m *MongoDB) DeleteUserAvatars(ctx context.Context, userID int64) error {
	_, err := m.Avatars().DeleteMany(ctx, bson.M{"userId": userID})
	if err != nil {
		return fmt.Errorf("deleting avatars for user %d: %w", userID, err)
	}
	return nil
}
