package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"docflow/internal/config"
	"docflow/internal/database"
	"docflow/internal/fields"
	"docflow/internal/geometry"
	"docflow/internal/metrics"
	"docflow/internal/migration"
	"docflow/internal/service"
	"docflow/internal/storage"
	"docflow/internal/tasks"
	"docflow/internal/worker"
)

func main() {
	cfg := config.MustLoad()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	log.Println("database connection ready for worker")

	opts := []migration.Option{
		migration.WithCanvas(geometry.Canvas{Width: cfg.Migration.CanvasWidth, Height: cfg.Migration.CanvasHeight}),
		migration.WithWorkers(cfg.Migration.Workers),
		migration.WithLogger(logger),
	}
	if cfg.MinIO.ArchiveLegacy {
		storageClient, err := storage.NewClient(context.Background(), cfg.MinIO)
		if err != nil {
			log.Fatalf("init storage client: %v", err)
		}
		opts = append(opts, migration.WithArchiver(storage.NewLegacyArchiver(storageClient)))
		log.Printf("storage client ready, bucket=%s", cfg.MinIO.Bucket)
	}

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

	redisOpt := asynq.RedisClientOpt{Addr: redisAddr}
	server := asynq.NewServer(redisOpt, asynq.Config{
		// 批量迁移内部已有并发，任务级别保持较低并发。
		Concurrency: 2,
	})

	store := fields.NewStore(db)
	svc := service.NewFieldService(store, migration.NewEngine(store, opts...), logger)
	handler := worker.NewMigrationTaskHandler(svc, worker.NewRedisNotifier(redisClient), logger)

	mux := asynq.NewServeMux()
	mux.Use(metrics.AsynqMetricsMiddleware())
	mux.Handle(tasks.TypeLegacyMigrate, handler)

	logger.Info("worker service started", slog.String("redis_addr", redisAddr))
	if err := server.Run(mux); err != nil {
		logger.Error("worker server stopped", slog.Any("error", err))
	}
}
