package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"kasupel-server/internal/config"
	"kasupel-server/internal/db"
)

func main() {
	// Load config
	cfg, err := config.Load("dev")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Connect to MongoDB
	mongodb, err := db.NewMongoDB(cfg.MongoDB.URI, cfg.MongoDB.Database)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		mongodb.Close(ctx)
	}()

	ctx := context.Background()

	// Delete all games
	gamesResult, err := mongodb.Games().DeleteMany(ctx, bson.M{})
	if err != nil {
		log.Fatalf("Failed to delete games: %v", err)
	}
	fmt.Printf("Deleted %d games\n", gamesResult.DeletedCount)

	// Delete all sessions
	sessionsResult, err := mongodb.Sessions().DeleteMany(ctx, bson.M{})
	if err != nil {
		log.Fatalf("Failed to delete sessions: %v", err)
	}
	fmt.Printf("Deleted %d sessions\n", sessionsResult.DeletedCount)

	// Delete all notifications
	notificationsResult, err := mongodb.Notifications().DeleteMany(ctx, bson.M{})
	if err != nil {
		log.Fatalf("Failed to delete notifications: %v", err)
	}
	fmt.Printf("Deleted %d notifications\n", notificationsResult.DeletedCount)

	fmt.Println("Database cleared successfully")
}
