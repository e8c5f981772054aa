package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/steemit/commentd/internal/api"
	"github.com/steemit/commentd/internal/cache"
	"github.com/steemit/commentd/internal/comments"
	"github.com/steemit/commentd/internal/db"
	"github.com/steemit/commentd/internal/guard"
	"github.com/steemit/commentd/internal/turnstile"
	"github.com/steemit/commentd/pkg/config"
	"github.com/steemit/commentd/pkg/logging"
	"github.com/steemit/commentd/pkg/telemetry"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logging.InitLogger(&cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logging.GetLogger().Sync()

	logger := logging.GetLogger()
	logger.Info("Starting commentd API server")

	// Initialize telemetry
	telemetryShutdown, err := telemetry.Init(&cfg.Telemetry)
	if err != nil {
		logger.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer telemetryShutdown()

	// Database
	database, err := db.New(&cfg.Database, cfg.Logging.Level)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close()

	if err := database.Migrate(context.Background()); err != nil {
		logger.Fatal("Failed to migrate database", zap.Error(err))
	}

	// Guard store: Redis when configured, otherwise in-process
	redisCache, err := cache.New(&cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	var store guard.Store
	if redisCache != nil {
		defer redisCache.Close()
		store = redisCache
	} else {
		mem := guard.NewMemoryStore(time.Minute)
		defer mem.Close()
		store = mem
		logger.Warn("Using in-memory guard store; rate limits are per process")
	}

	verifier, err := turnstile.New(&cfg.Turnstile)
	if err != nil {
		logger.Fatal("Failed to create verifier", zap.Error(err))
	}

	service := comments.NewService(
		db.NewCommentRepository(db.NewRepository(database.DB, cfg.Database.QueryTimeout)),
		guard.New(store, guard.WithStoreTimeout(cfg.Guard.StoreTimeout)),
		verifier,
		comments.Config{
			PreviewInterval: cfg.Guard.PreviewInterval,
			CommentInterval: cfg.Guard.CommentInterval,
			ThreadMax:       cfg.Comments.ThreadMax,
		},
	)

	cors := api.NewCORS(cfg.CORS.AllowedOrigins, cfg.CORS.FallbackOrigin)
	if config.ConfigFileUsed() != "" {
		config.Watch(func(next *config.Config) {
			cors.Update(next.CORS.AllowedOrigins, next.CORS.FallbackOrigin)
			logger.Info("Origin allowlist reloaded", zap.Strings("origins", next.CORS.AllowedOrigins))
		}, func(err error) {
			logger.Error("Ignoring invalid configuration change", zap.Error(err))
		})
	}

	// Create Gin router
	if cfg.Logging.Level == "DEBUG" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine, err := api.NewEngine(&cfg.Server)
	if err != nil {
		logger.Fatal("Failed to create router", zap.Error(err))
	}
	api.NewRouter(service, database, redisCache, cors).SetupRoutes(engine)

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Server starting", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
