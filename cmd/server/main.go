package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"groupchat/internal/auth"
	"groupchat/internal/config"
	"groupchat/internal/database"
	"groupchat/internal/handlers"
	"groupchat/internal/services"
	"groupchat/internal/websocket"
	"groupchat/pkg/logger"

	gorillahandlers "github.com/gorilla/handlers"
	"github.com/jackc/pgx/v5/tracelog"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config: %v", err)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		logger.Fatal("Failed to build logger: %v", err)
	}
	logger.SetGlobal(log)
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := openDatabase(ctx, cfg, log)
	if err != nil {
		logger.Fatal("Failed to open database: %v", err)
	}
	defer db.Close()

	// Initialize services
	tokens := auth.NewTokenService(db, []byte(cfg.JWT.Secret), auth.WithTTL(cfg.JWT.ExpiresIn))
	authService := auth.NewService(db, tokens)
	rooms := services.NewMembershipRegistry(db)
	invites := services.NewInviteWorkflow(db)

	hub := websocket.NewHub(log.Sugar().Named("hub"))
	messages := services.NewMessageService(db, hub)

	// Initialize handlers
	h := &handlers.Handlers{
		Tokens:    tokens,
		Auth:      handlers.NewAuthHandlers(authService),
		Rooms:     handlers.NewRoomHandlers(rooms, messages, hub),
		Invites:   handlers.NewInviteHandlers(invites),
		WebSocket: handlers.NewWebSocketHandlers(tokens, rooms, messages, hub, cfg.Server.AllowedOrigins),
	}

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      withMiddleware(h.Routes(), cfg.Server.AllowedOrigins),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("Server started on %s (storage=%s)", cfg.Server.Port, cfg.Storage)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server error: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Server shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error: %v", err)
	}
	hub.Close()
}

func openDatabase(ctx context.Context, cfg *config.Config, log *logger.Logger) (database.Database, error) {
	if cfg.Storage == "memory" {
		logger.Warn("Using in-memory storage; data is lost on restart")
		return database.NewMemoryDB(), nil
	}

	opts := []database.Option{database.MaxConns(cfg.Database.MaxConns)}
	if cfg.Log.Level == "debug" {
		opts = append(opts, database.WithQueryLog(log.Sugar().Desugar(), tracelog.LogLevelDebug))
	}

	db, err := database.NewPostgresDB(ctx, cfg.Database.URL, opts...)
	if err != nil {
		return nil, err
	}

	if cfg.Database.AutoMigrate {
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
		logger.Info("Database schema applied")
	}
	return db, nil
}

func withMiddleware(next http.Handler, allowedOrigins []string) http.Handler {
	origins := allowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	cors := gorillahandlers.CORS(
		gorillahandlers.AllowedOrigins(origins),
		gorillahandlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		gorillahandlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)

	return gorillahandlers.RecoveryHandler(gorillahandlers.PrintRecoveryStack(true))(cors(next))
}
