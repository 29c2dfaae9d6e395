package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"recipeapi/internal/config"
	"recipeapi/internal/handlers"
	"recipeapi/internal/repository"
	"recipeapi/internal/services"
	"recipeapi/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger(cfg config.Config) *slog.Logger {
	var handler slog.Handler
	if cfg.AppEnv == "production" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	return slog.New(handler)
}

func newImageStore(ctx context.Context, cfg config.Config) (storage.ImageStore, error) {
	switch cfg.ImageStorage {
	case "", "local":
		return storage.NewLocalStore(cfg.MediaRoot, cfg.MediaURL)
	case "s3":
		// A relative MEDIA_URL only makes sense for local storage.
		baseURL := ""
		if strings.HasPrefix(cfg.MediaURL, "http") {
			baseURL = cfg.MediaURL
		}
		return storage.NewS3Store(ctx, storage.S3Options{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			BaseURL:   baseURL,
		})
	default:
		return nil, fmt.Errorf("unsupported image storage %q", cfg.ImageStorage)
	}
}

func Run(ctx context.Context) error {
	// 1. Load Config
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// 2. Setup Logger
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	// 3. Initialize Database
	db, err := repository.InitDB(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	// 4. Prepare Schema
	if err := repository.PrepareSchema(db, cfg, logger); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	// 5. Initialize Redis. Token lookups fall back to the database without it.
	var rdb *redis.Client
	if client, err := repository.InitRedis(cfg.RedisURL, cfg.RedisPassword, 0); err != nil {
		logger.Warn("Failed to connect to Redis, token cache disabled", "error", err)
	} else {
		rdb = client
		defer rdb.Close()
	}

	// 6. Initialize Image Store
	images, err := newImageStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize image storage: %w", err)
	}

	// 7. Initialize Services
	auditService := services.NewAuditService(db, logger)
	userService := services.NewUserService(db, rdb, cfg.TokenCacheTTL, logger)
	tagService := services.NewTagService(db)
	ingredientService := services.NewIngredientService(db)
	recipeService := services.NewRecipeService(db, tagService, ingredientService, images, logger)
	rateLimiter := services.NewIPRateLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst, logger)

	// 8. Initialize Handler
	h := handlers.NewHandler(cfg, logger, userService, tagService, ingredientService, recipeService, auditService)

	// 9. Setup Router
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := h.SetupRouter(rateLimiter)

	// 10. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Background Context for workers
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	auditDone := make(chan struct{})
	go func() {
		defer close(auditDone)
		auditService.Start(workerCtx)
	}()
	rateLimiter.StartCleanup(workerCtx, 10*time.Minute)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting server", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for context cancellation or server error
	select {
	case err := <-serverErr:
		workerCancel()
		<-auditDone
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info("Shutting down server...")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	// Flush queued audit entries before the database closes.
	workerCancel()
	<-auditDone

	logger.Info("Server exiting")
	return nil
}
