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

func (m *MongoDB) UserByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	err := m.Users().FindOne(ctx, bson.M{"_id": id, "deleted": bson.M{"$exists": false}}).Decode(&user)
	if err == mongo.ErrNoDocuments {
		return nil, kerrors.New(kerrors.AccountNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading user %d: %w", id, err)
	}
	return &user, nil
}

func (m *MongoDB) UserByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	err := m.Users().FindOne(ctx, bson.M{"username": username, "deleted": bson.M{"$exists": false}}).Decode(&user)
	if err == mongo.ErrNoDocuments {
		return nil, kerrors.New(kerrors.AccountNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading user %q: %w", username, err)
	}
	return &user, nil
}

func (m *MongoDB) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := m.Users().FindOne(ctx, bson.M{"email": email, "deleted": bson.M{"$exists": false}}).Decode(&user)
	if err == mongo.ErrNoDocuments {
		return nil, kerrors.New(kerrors.AccountNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading user by email: %w", err)
	}
	return &user, nil
}

// UsersByIDs loads a batch of users keyed by id, for resolving referenced
// game wire objects. Tombstoned users are included so finished games can
// still name their players.
func (m *MongoDB) UsersByIDs(ctx context.Context, ids []int64) (map[int64]*models.User, error) {
	out := make(map[int64]*models.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	cursor, err := m.Users().Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("loading users: %w", err)
	}
	defer cursor.Close(ctx)
	for cursor.Next(ctx) {
		var user models.User
		if err := cursor.Decode(&user); err != nil {
			return nil, err
		}
		u := user
		out[u.ID] = &u
	}
	return out, cursor.Err()
}

func (m *MongoDB) InsertUser(ctx context.Context, u *models.User) error {
	_, err := m.Users().InsertOne(ctx, u)
	if mongo.IsDuplicateKeyError(err) {
		return kerrors.New(kerrors.UsernameTaken)
	}
	if err != nil {
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

func (m *MongoDB) SaveUser(ctx context.Context, u *models.User) error {
	_, err := m.Users().ReplaceOne(ctx, bson.M{"_id": u.ID}, u)
	if mongo.IsDuplicateKeyError(err) {
		return kerrors.New(kerrors.EmailTaken)
	}
	if err != nil {
		return fmt.Errorf("saving user %d: %w", u.ID, err)
	}
	return nil
}

func (m *MongoDB) UpdateElo(ctx context.Context, id int64, elo int) error {
	_, err := m.Users().UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"elo": elo}})
	if err != nil {
		return fmt.Errorf("updating rating for user %d: %w", id, err)
	}
	return nil
}

// TombstoneUser marks an account deleted, freeing its username and email
// for reuse while games keep referencing the id.
func (m *MongoDB) TombstoneUser(ctx context.Context, id int64) error {
	_, err := m.Users().UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set":   bson.M{"deleted": true},
		"$unset": bson.M{"avatarId": "", "verificationToken": ""},
	})
	if err != nil {
		return fmt.Errorf("tombstoning user %d: %w", id, err)
	}
	return nil
}

// Leaderboard returns one page of users ordered by rating, with the total
// account count.
func (m *MongoDB) Leaderboard(ctx context.Context, offset, limit int) ([]*models.User, int64, error) {
	filter := bson.M{"deleted": bson.M{"$exists": false}}
	total, err := m.Users().CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("counting users: %w", err)
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "elo", Value: -1}, {Key: "_id", Value: 1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))
	cursor, err := m.Users().Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("listing users: %w", err)
	}
	defer cursor.Close(ctx)
	var users []*models.User
	for cursor.Next(ctx) {
		var user models.User
		if err := cursor.Decode(&user); err != nil {
			return nil, 0, err
		}
		u := user
		users = append(users, &u)
	}
	return users, total, cursor.Err()
}

func (m *MongoDB) AdjustUnread(ctx context.Context, userID int64, delta int64) error {
	_, err := m.Users().UpdateOne(ctx, bson.M{"_id": userID}, bson.M{"$inc": bson.M{"unreadCount": delta}})
	if err != nil {
		return fmt.Errorf("adjusting unread count for user %d: %w", userID, err)
	}
	return nil
}

func (m *MongoDB) UnreadCount(ctx context.Context, userID int64) (int64, error) {
	user, err := m.UserByID(ctx, userID)
	if err != nil {
		return 0, err
	}
	return user.UnreadCount, nil
}
