package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"idcard/internal/config"
	"idcard/internal/database"
	"idcard/internal/engine"
	"idcard/internal/metrics"
	"idcard/internal/storage"
	"idcard/internal/tasks"
	"idcard/internal/worker"
)

func main() {
	cfg := config.MustLoad()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	logger.Info("database connection ready for worker")

	storageClient, err := storage.NewClient(cfg.MinIO)
	if err != nil {
		log.Fatalf("init storage client: %v", err)
	}
	logger.Info("storage client ready", slog.String("bucket", cfg.MinIO.Bucket))

	redisAddr := cfg.Redis.Addr()
	redisClient := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("close redis client failed", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("ping redis: %v", err)
	}

	engines, err := engine.Build(cfg.Render, storageClient, logger)
	if err != nil {
		log.Fatalf("build renderers: %v", err)
	}

	if cfg.Worker.MetricsPort > 0 {
		go serveMetrics(cfg.Worker.MetricsPort, logger)
	}

	server := asynq.NewServer(asynq.RedisClientOpt{Addr: redisAddr}, asynq.Config{
		Concurrency: cfg.Worker.Concurrency,
		Queues:      map[string]int{"default": 1},
	})

	notifier := worker.NewRedisNotifier(redisClient)
	printHandler := worker.NewPrintTaskHandler(db, storageClient, engines.Printer, notifier, logger)
	previewHandler := worker.NewTemplatePreviewHandler(db, storageClient, engines.Thumbnailer, cfg.Render.ThumbnailWidthPx, logger)

	mux := asynq.NewServeMux()
	mux.Use(metrics.AsynqMetricsMiddleware())
	mux.Handle(tasks.TypeCardRender, printHandler)
	mux.Handle(tasks.TypeCardRenderBatch, printHandler)
	mux.Handle(tasks.TypeTemplatePreview, previewHandler)

	logger.Info("worker service started",
		slog.String("redis_addr", redisAddr),
		slog.String("engine", cfg.Render.Engine),
		slog.Int("concurrency", cfg.Worker.Concurrency),
	)
	if err := server.Run(mux); err != nil {
		logger.Error("worker server stopped", slog.Any("error", err))
	}
}

func serveMetrics(port int, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Info("worker metrics listening", slog.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("worker metrics server stopped", slog.Any("error", err))
	}
}
