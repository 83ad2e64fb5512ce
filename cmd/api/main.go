package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"idcard/internal/api"
	"idcard/internal/auth"
	"idcard/internal/config"
	"idcard/internal/database"
	"idcard/internal/engine"
	"idcard/internal/seed"
	"idcard/internal/storage"
)

func main() {
	cfg := config.MustLoad()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)
	gin.SetMode(gin.ReleaseMode)

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("migrate database: %v", err)
	}
	logger.Info("database ready",
		slog.String("host", cfg.Database.Host),
		slog.String("db", cfg.Database.Name),
	)

	seedCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	templates, err := seed.SeedTemplates(seedCtx, db, false)
	if err != nil {
		log.Fatalf("seed templates: %v", err)
	}
	settings, err := seed.InitializeSettings(seedCtx, db, time.Now())
	cancel()
	if err != nil {
		log.Fatalf("initialize settings: %v", err)
	}
	logger.Info("seed data ready", slog.Int("templates_created", templates), slog.Int("settings_created", settings))

	storageClient, err := storage.NewClient(cfg.MinIO)
	if err != nil {
		log.Fatalf("init storage client: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr()})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("close redis client failed", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("ping redis: %v", err)
	}

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.Redis.Addr()})
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Error("close asynq client failed", slog.Any("error", err))
		}
	}()

	engines, err := engine.Build(cfg.Render, storageClient, logger)
	if err != nil {
		log.Fatalf("build renderers: %v", err)
	}

	deps := api.Dependencies{
		DB:                db,
		Enqueuer:          asynqClient,
		Storage:           storageClient,
		Redis:             redisClient,
		InternalSecret:    cfg.API.InternalSecret,
		Logger:            logger,
		Canvas:            engines.Canvas,
		Preview:           engines.Preview,
		Printer:           engines.Printer,
		Thumbnailer:       engines.Thumbnailer,
		ThumbnailWidth:    cfg.Render.ThumbnailWidthPx,
		MaxThumbnailWidth: cfg.Render.MaxThumbnailPx,
		MaxRetry:          cfg.Worker.MaxRetry,
		RateLimit:         cfg.API.RenderRateLimit,
	}
	if cfg.Auth.Disabled {
		logger.Warn("authentication disabled")
	} else {
		verifier, err := auth.LoadVerifier(cfg.Auth.PublicKeyPath)
		if err != nil {
			log.Fatalf("load token verifier: %v", err)
		}
		deps.Validator = verifier
	}

	router := api.NewRouter(logger)
	api.RegisterRoutes(router, deps)

	address := fmt.Sprintf(":%d", cfg.API.Port)
	logger.Info("api listening",
		slog.String("addr", address),
		slog.String("engine", cfg.Render.Engine),
	)
	if err := router.Run(address); err != nil {
		log.Fatalf("failed to start api server: %v", err)
	}
}
