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

func (m *MongoDB) InsertGame(ctx context.Context, g *models.Game) error {
	_, err := m.Games().InsertOne(ctx, g)
	if err != nil {
		return fmt.Errorf("inserting game: %w", err)
	}
	return nil
}

func (m *MongoDB) SaveGame(ctx context.Context, g *models.Game) error {
	_, err := m.Games().ReplaceOne(ctx, bson.M{"_id": g.ID}, g)
	if err != nil {
		return fmt.Errorf("saving game %d: %w", g.ID, err)
	}
	return nil
}

func (m *MongoDB) DeleteGame(ctx context.Context, id int64) error {
	_, err := m.Games().DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("deleting game %d: %w", id, err)
	}
	return nil
}

func (m *MongoDB) GameByID(ctx context.Context, id int64) (*models.Game, error) {
	var g models.Game
	err := m.Games().FindOne(ctx, bson.M{"_id": id}).Decode(&g)
	if err == mongo.ErrNoDocuments {
		return nil, kerrors.New(kerrors.GameNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading game %d: %w", id, err)
	}
	return &g, nil
}

// SearchingGames lists open find games, for rebuilding the matchmaker index
// at startup.
func (m *MongoDB) SearchingGames(ctx context.Context) ([]*models.Game, error) {
	filter := bson.M{
		"awayId":    bson.M{"$exists": false},
		"invitedId": bson.M{"$exists": false},
		"endedAt":   bson.M{"$exists": false},
	}
	return m.findGames(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
}

// StartedGames lists every game in progress, for the timeout sweep.
func (m *MongoDB) StartedGames(ctx context.Context) ([]*models.Game, error) {
	filter := bson.M{
		"startedAt": bson.M{"$exists": true},
		"endedAt":   bson.M{"$exists": false},
	}
	return m.findGames(ctx, filter, nil)
}

func (m *MongoDB) findGames(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*models.Game, error) {
	var cursor *mongo.Cursor
	var err error
	if opts != nil {
		cursor, err = m.Games().Find(ctx, filter, opts)
	} else {
		cursor, err = m.Games().Find(ctx, filter)
	}
	if err != nil {
		return nil, fmt.Errorf("listing games: %w", err)
	}
	defer cursor.Close(ctx)
	var games []*models.Game
	for cursor.Next(ctx) {
		var g models.Game
		if err := cursor.Decode(&g); err != nil {
			return nil, err
		}
		game := g
		games = append(games, &game)
	}
	return games, cursor.Err()
}

// pageGames runs a paginated game query sorted newest first.
func (m *MongoDB) pageGames(ctx context.Context, filter bson.M, offset, limit int) ([]*models.Game, int64, error) {
	total, err := m.Games().CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("counting games: %w", err)
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))
	games, err := m.findGames(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	return games, total, nil
}

// InvitesFor lists games a user has been invited to.
func (m *MongoDB) InvitesFor(ctx context.Context, userID int64, offset, limit int) ([]*models.Game, int64, error) {
	return m.pageGames(ctx, bson.M{
		"invitedId": userID,
		"endedAt":   bson.M{"$exists": false},
	}, offset, limit)
}

// SearchesFor lists a user's own open find games.
func (m *MongoDB) SearchesFor(ctx context.Context, userID int64, offset, limit int) ([]*models.Game, int64, error) {
	return m.pageGames(ctx, bson.M{
		"hostId":    userID,
		"awayId":    bson.M{"$exists": false},
		"invitedId": bson.M{"$exists": false},
		"endedAt":   bson.M{"$exists": false},
	}, offset, limit)
}

// OngoingFor lists a user's games in progress.
func (m *MongoDB) OngoingFor(ctx context.Context, userID int64, offset, limit int) ([]*models.Game, int64, error) {
	return m.pageGames(ctx, bson.M{
		"startedAt": bson.M{"$exists": true},
		"endedAt":   bson.M{"$exists": false},
		"$or": []bson.M{
			{"hostId": userID},
			{"awayId": userID},
		},
	}, offset, limit)
}

// CompletedFor lists a user's finished games.
func (m *MongoDB) CompletedFor(ctx context.Context, userID int64, offset, limit int) ([]*models.Game, int64, error) {
	return m.pageGames(ctx, bson.M{
		"endedAt": bson.M{"$exists": true},
		"$or": []bson.M{
			{"hostId": userID},
			{"awayId": userID},
		},
	}, offset, limit)
}

// CommonCompletedFor lists finished games both users played in.
func (m *MongoDB) CommonCompletedFor(ctx context.Context, userA, userB int64, offset, limit int) ([]*models.Game, int64, error) {
	return m.pageGames(ctx, bson.M{
		"endedAt": bson.M{"$exists": true},
		"$or": []bson.M{
			{"hostId": userA, "awayId": userB},
			{"hostId": userB, "awayId": userA},
		},
	}, offset, limit)
}
