// File: cmd/server/main.go
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/iyunix/go-chatkeep/internal/config"
	"github.com/iyunix/go-chatkeep/internal/domain"
	"github.com/iyunix/go-chatkeep/internal/handlers"
	"github.com/iyunix/go-chatkeep/internal/middleware"
	"github.com/iyunix/go-chatkeep/internal/ratelimit"
	chatrepo "github.com/iyunix/go-chatkeep/internal/repository/chat"
	messagerepo "github.com/iyunix/go-chatkeep/internal/repository/message"
	userrepo "github.com/iyunix/go-chatkeep/internal/repository/user"
	"github.com/iyunix/go-chatkeep/internal/services"
	"github.com/iyunix/go-chatkeep/internal/services/chat"
	"github.com/iyunix/go-chatkeep/internal/services/responder"
	"github.com/iyunix/go-chatkeep/internal/services/user_services"
	"github.com/iyunix/go-chatkeep/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	logger := services.NewLogger("chatkeep", cfg.Environment, cfg.LogLevel)

	db, err := gorm.Open(sqlite.Open(cfg.DatabasePath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		log.Fatalf("DB Error: %v", err)
	}

	if err := db.AutoMigrate(&domain.User{}, &domain.Chat{}, &domain.Message{}); err != nil {
		log.Fatalf("DB Migration Error: %v", err)
	}

	// --- Repositories ---
	userRepo := userrepo.NewGormUserRepository(db)
	chatRepo := chatrepo.NewChatRepository(db)
	messageRepo := messagerepo.NewMessageRepository(db)

	// --- Blob store ---
	blobs, err := storage.NewDiskStore(cfg.BlobDir, cfg.BlobPublicBaseURL, logger)
	if err != nil {
		log.Fatalf("Blob store error: %v", err)
	}

	// --- Services ---
	resp, err := newResponder(cfg, logger)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize AI responder: %v", err)
	}

	chatConfig := chat.DefaultConfig()
	chatConfig.MaxChatHistories = cfg.MaxChatHistories
	chatConfig.LoadChatMessageLimit = cfg.LoadChatMessageLimit
	chatConfig.MaxTotalChatsPerUser = cfg.MaxTotalChatsPerUser
	chatConfig.MaxMessagesPerChat = cfg.MaxMessagesPerChat
	chatConfig.MessageContextLimit = cfg.MessageContextLimit
	chatConfig.ResponderTimeout = cfg.ResponderTimeout()
	chatConfig.MaxUploadBytes = cfg.MaxUploadBytes

	chatManager, err := chat.NewManager(chatConfig, chatRepo, messageRepo, blobs, resp, logger)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize Chat Manager: %v", err)
	}

	closeGate, err := attachSweepGate(cfg, chatManager, logger)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize sweep throttle: %v", err)
	}
	defer closeGate()

	authService := user_services.NewAuthService(userRepo, cfg.JWTSecretKey, logger)

	// --- Handlers ---
	authHandler := handlers.NewAuthHandler(authService, cfg.Environment == "production", logger)
	chatHandler := handlers.NewChatHandler(chatManager, cfg.MaxUploadBytes, logger)
	healthHandler := handlers.NewHealthHandler(chatManager)

	// --- Router Setup ---
	r := mux.NewRouter()
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger))

	// --- Public Routes ---
	r.HandleFunc("/health", healthHandler.Health).Methods("GET")
	r.HandleFunc("/register", authHandler.Register).Methods("POST")
	r.HandleFunc("/login", authHandler.Login).Methods("POST")
	r.HandleFunc("/logout", authHandler.Logout).Methods("GET")
	if strings.HasPrefix(cfg.BlobPublicBaseURL, "/") {
		prefix := strings.TrimRight(cfg.BlobPublicBaseURL, "/") + "/"
		r.PathPrefix(prefix).Handler(http.StripPrefix(prefix, handlers.NewBlobHandler(blobs.Dir()))).Methods("GET")
	}

	// --- Protected Routes ---
	api := r.PathPrefix("/api").Subrouter()
	api.Use(middleware.NewJWTMiddleware(authService, logger))
	api.HandleFunc("/chats", chatHandler.ListChats).Methods("GET")
	api.HandleFunc("/chats", chatHandler.NewChat).Methods("POST")
	api.HandleFunc("/chats/active", chatHandler.ActiveChat).Methods("GET")
	api.HandleFunc("/chats/{id:[0-9]+}", chatHandler.GetChat).Methods("GET")
	api.HandleFunc("/chats/{id:[0-9]+}", chatHandler.DeleteChat).Methods("DELETE")
	api.HandleFunc("/chats/{id:[0-9]+}/messages", chatHandler.SendMessage).Methods("POST")

	// --- Server Configuration ---
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		// Sends wait on the responder, so the write timeout sits above its timeout.
		WriteTimeout: cfg.ResponderTimeout() + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	logger.Info("server starting",
		"port", cfg.ServerPort,
		"environment", cfg.Environment,
		"responder_mode", cfg.ResponderMode,
		"max_chat_histories", cfg.MaxChatHistories,
		"max_total_chats_per_user", cfg.MaxTotalChatsPerUser,
		"max_messages_per_chat", cfg.MaxMessagesPerChat)

	// --- Start Server in Goroutine ---
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server startup failed: %v", err)
		}
	}()

	// --- Graceful Shutdown ---
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
	logger.Info("server exited")
}

func newResponder(cfg *config.Config, logger services.Logger) (responder.Responder, error) {
	if cfg.ResponderMode == "openai" {
		return responder.NewOpenAIResponder(&responder.OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIModel,
		}, logger)
	}
	return responder.NewWebhookResponder(&responder.WebhookConfig{
		URL:     cfg.WebhookURL,
		Timeout: cfg.ResponderTimeout(),
	}, logger)
}

// attachSweepGate throttles sweeps when SWEEP_MIN_INTERVAL is set, in Redis if
// REDIS_ADDR is given and in memory otherwise. The returned func releases it.
func attachSweepGate(cfg *config.Config, manager *chat.Manager, logger services.Logger) (func(), error) {
	if cfg.SweepInterval() <= 0 {
		return func() {}, nil
	}
	gateConfig := ratelimit.DefaultSweepConfig(cfg.SweepInterval())

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, err
		}
		gate, err := ratelimit.NewRedisThrottle(client, gateConfig)
		if err != nil {
			client.Close()
			return nil, err
		}
		manager.WithSweepGate(gate)
		logger.Info("sweep throttle enabled", "backend", "redis", "interval", cfg.SweepInterval().String())
		return func() { client.Close() }, nil
	}

	gate, err := ratelimit.NewMemoryThrottle(gateConfig)
	if err != nil {
		return nil, err
	}
	manager.WithSweepGate(gate)
	logger.Info("sweep throttle enabled", "backend", "memory", "interval", cfg.SweepInterval().String())
	return gate.Close, nil
}
