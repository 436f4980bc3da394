package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"kasupel-server/internal/auth"
	"kasupel-server/internal/config"
	"kasupel-server/internal/db"
	"kasupel-server/internal/email"
	"kasupel-server/internal/encryption"
	"kasupel-server/internal/handlers"
	"kasupel-server/internal/hub"
	"kasupel-server/internal/matchmaking"
	"kasupel-server/internal/middleware"
	"kasupel-server/internal/notifications"
	"kasupel-server/internal/session"
	"kasupel-server/internal/timing"
)

func main() {
	// Load configuration
	env := config.GetEnv()
	cfg, err := config.Load(env)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	log.Printf("Starting kasupel server in %s mode", cfg.Environment)

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

	log.Printf("Connected to MongoDB database: %s", cfg.MongoDB.Database)

	// Request encryption keys
	crypto, err := encryption.Load(cfg.Encryption.KeyPath)
	if err != nil {
		log.Fatalf("Failed to load encryption key: %v", err)
	}

	// Core services
	var breach auth.BreachChecker
	if cfg.HIBP.Enabled {
		breach = auth.NewHIBPClient()
	}
	passwordService := auth.NewPasswordService(breach)
	sessionService := session.NewService(mongodb)
	sessionAuth := middleware.NewSessionAuth(sessionService, mongodb)
	mailer := email.NewResendService(cfg.Email.ResendAPIKey, cfg.Email.FromAddress)
	notifyQueue := notifications.NewQueue(mongodb)

	// Socket layer and matchmaking
	hubManager := hub.NewManager(mongodb, mongodb, notifyQueue)
	notifyQueue.SetLiveDeliverer(hubManager)
	matchmaker := matchmaking.New(mongodb, mongodb, notifyQueue, hubManager)
	{
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := matchmaker.Rebuild(ctx); err != nil {
			log.Fatalf("Failed to rebuild matchmaking index: %v", err)
		}
		cancel()
	}

	// Clock sweep, so abandoned games still end on time
	sweeper := timing.NewSweeper(mongodb, hubManager, time.Duration(cfg.Matchmaking.SweepIntervalMs)*time.Millisecond)
	sweeper.Start()
	defer sweeper.Stop()

	// Rate limiting
	limiter := middleware.NewRateLimiter()
	defer limiter.Stop()

	// Handlers
	accountsHandler := handlers.NewAccountsHandler(mongodb, sessionService, sessionAuth, passwordService, crypto, mailer, notifyQueue)
	gamesHandler := handlers.NewGamesHandler(mongodb, sessionAuth)
	matchmakingHandler := handlers.NewMatchmakingHandler(mongodb, sessionAuth, crypto, matchmaker)
	socketHandler := handlers.NewSocketHandler(mongodb, sessionService, sessionAuth, hubManager)
	mediaHandler := handlers.NewMediaHandler(mongodb)

	// Set up router
	router := mux.NewRouter()
	router.Use(middleware.SecurityHeaders())
	router.NotFoundHandler = http.HandlerFunc(handlers.NotFound)

	router.HandleFunc("/rsa_key", handlers.RSAKeyHandler(crypto)).Methods("GET")
	router.HandleFunc("/game_socket",
		limiter.IPRateLimitHandler(middleware.WebSocketUpgradeLimit, socketHandler.Connect)).Methods("GET")

	// Account routes
	accounts := router.PathPrefix("/accounts").Subrouter()
	accounts.HandleFunc("/login",
		limiter.IPRateLimitHandler(middleware.LoginAttemptLimit, accountsHandler.Login)).Methods("POST")
	accounts.HandleFunc("/logout", sessionAuth.RequireQuery(accountsHandler.Logout)).Methods("GET")
	accounts.HandleFunc("/create",
		limiter.IPRateLimitHandler(middleware.AccountCreationLimit, accountsHandler.Create)).Methods("POST")
	accounts.HandleFunc("/resend_verification_email",
		limiter.IPRateLimitHandler(middleware.ResendVerificationLimit,
			sessionAuth.RequireQuery(accountsHandler.ResendVerification))).Methods("GET")
	accounts.HandleFunc("/verify_email",
		limiter.IPRateLimitHandler(middleware.EmailVerificationLimit, accountsHandler.VerifyEmail)).Methods("GET")
	accounts.HandleFunc("/me", sessionAuth.RequireQuery(accountsHandler.Me)).Methods("GET")
	accounts.HandleFunc("/me", accountsHandler.UpdateMe).Methods("PATCH")
	accounts.HandleFunc("/me", sessionAuth.RequireQuery(accountsHandler.DeleteMe)).Methods("DELETE")
	accounts.HandleFunc("/me/avatar", sessionAuth.RequireQuery(accountsHandler.UploadAvatar)).Methods("PATCH")
	accounts.HandleFunc("/account", accountsHandler.AccountByID).Methods("GET")
	accounts.HandleFunc("/accounts", accountsHandler.Leaderboard).Methods("GET")
	accounts.HandleFunc("/notifications", sessionAuth.RequireQuery(accountsHandler.Notifications)).Methods("GET")
	accounts.HandleFunc("/notifications/unread_count", sessionAuth.RequireQuery(accountsHandler.UnreadCount)).Methods("GET")
	accounts.HandleFunc("/notifications/ack", accountsHandler.AckNotification).Methods("POST")

	router.HandleFunc("/users/{username}", accountsHandler.AccountByUsername).Methods("GET")

	// Game routes
	games := router.PathPrefix("/games").Subrouter()
	games.HandleFunc("/invites", sessionAuth.RequireQuery(gamesHandler.Invites)).Methods("GET")
	games.HandleFunc("/searches", sessionAuth.RequireQuery(gamesHandler.Searches)).Methods("GET")
	games.HandleFunc("/ongoing", sessionAuth.RequireQuery(gamesHandler.Ongoing)).Methods("GET")
	games.HandleFunc("/completed", gamesHandler.Completed).Methods("GET")
	games.HandleFunc("/common_completed", sessionAuth.RequireQuery(gamesHandler.CommonCompleted)).Methods("GET")
	games.HandleFunc("/find", matchmakingHandler.Find).Methods("POST")
	games.HandleFunc("/send_invitation", matchmakingHandler.SendInvitation).Methods("POST")
	games.HandleFunc("/invites/{id:[0-9]+}", matchmakingHandler.AcceptInvitation).Methods("POST")
	games.HandleFunc("/invites/{id:[0-9]+}", sessionAuth.RequireQuery(matchmakingHandler.DeclineInvitation)).Methods("DELETE")
	games.HandleFunc("/{id:[0-9]+}", gamesHandler.ByID).Methods("GET")

	router.HandleFunc("/media/avatar/{id:[0-9]+}", mediaHandler.Avatar).Methods("GET")

	// Health check
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	// CORS middleware
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "Game-ID"},
		AllowCredentials: false,
	})

	// Create server. No global read/write timeouts: game sockets are
	// long-lived connections.
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           corsHandler.Handler(router),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}
