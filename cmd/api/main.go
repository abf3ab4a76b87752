package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"docflow/internal/api"
	"docflow/internal/config"
	"docflow/internal/database"
	"docflow/internal/fields"
	"docflow/internal/geometry"
	"docflow/internal/migration"
	"docflow/internal/service"
	"docflow/internal/storage"
)

func main() {
	cfg := config.MustLoad()
	log.Printf("api bootstrapped with db host=%s port=%d db=%s sslmode=%s",
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.Name,
		cfg.Database.SSLMode,
	)

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	log.Printf("database connection ready")

	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("auto migrate: %v", err)
	}
	log.Printf("database migrated")

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
		log.Printf("legacy archive enabled, bucket=%s", cfg.MinIO.Bucket)
	}

	store := fields.NewStore(db)
	svc := service.NewFieldService(store, migration.NewEngine(store, opts...), logger)
	svc.EnableAutosave(cfg.Autosave.Debounce)

	if cfg.Migration.RunOnStart {
		result, err := svc.MigrateAll(context.Background())
		if err != nil {
			log.Fatalf("migrate legacy fields: %v", err)
		}
		log.Printf("legacy migration on start: total=%d migrated=%d skipped=%d errors=%d",
			result.TotalTemplates, result.MigratedCount, result.SkippedCount, result.ErrorCount)
	}

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.Redis.Addr()})
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Error("close asynq client failed", slog.Any("error", err))
		}
	}()

	router := api.NewRouter(logger)
	api.RegisterRoutes(router, svc, asynqClient, cfg.API.InternalSecret)

	address := fmt.Sprintf(":%d", cfg.API.Port)
	server := &http.Server{Addr: address, Handler: router}
	go func() {
		log.Printf("api listening on %s", address)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("failed to start api server: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	// 请求已全部结束，写出自动保存队列中剩余的草稿。
	if err := svc.Close(shutdownCtx); err != nil {
		log.Printf("flush autosave queue: %v", err)
	}
}
