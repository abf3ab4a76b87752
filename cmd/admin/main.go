package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	"docflow/internal/config"
	"docflow/internal/database"
	"docflow/internal/fields"
	"docflow/internal/geometry"
	"docflow/internal/migration"
	"docflow/internal/service"
	"docflow/internal/storage"
)

func main() {
	var (
		all        = flag.Bool("all", false, "迁移全部模板的旧版 coordinateFields")
		templateID = flag.Uint("template", 0, "只迁移指定模板")
		documentID = flag.Uint("document", 0, "迁移指定文档的旧字段值（模板需已迁移）")
		archived   = flag.Uint("archived", 0, "打印指定模板已归档的旧版原文")
		dbHost     = flag.String("db-host", "", "数据库 Host（可选，默认读 DATABASE_HOST）")
		dbPort     = flag.Int("db-port", 0, "数据库 Port（可选，默认读 DATABASE_PORT）")
		dbName     = flag.String("db-name", "", "数据库名（可选，默认读 POSTGRES_DB）")
		dbUser     = flag.String("db-user", "", "数据库用户（可选，默认读 POSTGRES_USER）")
		dbPass     = flag.String("db-password", "", "数据库密码（可选，默认读 POSTGRES_PASSWORD）")
		sslMode    = flag.String("db-sslmode", "", "数据库 SSLMODE（可选，默认读 DATABASE_SSLMODE）")
	)
	flag.Parse()

	if !*all && *templateID == 0 && *documentID == 0 && *archived == 0 {
		flag.Usage()
		log.Fatal("one of --all, --template, --document or --archived is required")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	applyDatabaseFlags(&cfg.Database, *dbHost, *dbPort, *dbName, *dbUser, *dbPass, *sslMode)

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)
	ctx := context.Background()

	var archiver *storage.LegacyArchiver
	if cfg.MinIO.ArchiveLegacy || *archived != 0 {
		storageClient, err := storage.NewClient(ctx, cfg.MinIO)
		if err != nil {
			log.Fatalf("init storage client: %v", err)
		}
		archiver = storage.NewLegacyArchiver(storageClient)
	}

	if *archived != 0 {
		data, err := archiver.LoadLegacy(ctx, uint(*archived))
		if err != nil {
			if errors.Is(err, storage.ErrNotArchived) {
				log.Fatalf("template %d has no archived legacy fields", *archived)
			}
			log.Fatalf("load archived fields: %v", err)
		}
		_, _ = os.Stdout.Write(data)
		fmt.Println()
		return
	}

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("auto migrate: %v", err)
	}

	opts := []migration.Option{
		migration.WithCanvas(geometry.Canvas{Width: cfg.Migration.CanvasWidth, Height: cfg.Migration.CanvasHeight}),
		migration.WithWorkers(cfg.Migration.Workers),
		migration.WithLogger(logger),
	}
	if archiver != nil && cfg.MinIO.ArchiveLegacy {
		opts = append(opts, migration.WithArchiver(archiver))
	}
	store := fields.NewStore(db)
	svc := service.NewFieldService(store, migration.NewEngine(store, opts...), logger)

	var out any
	exitCode := 0
	switch {
	case *all:
		result, err := svc.MigrateAll(ctx)
		if err != nil {
			log.Fatalf("migrate all: %v", err)
		}
		if !result.Successful() {
			exitCode = 1
		}
		out = struct {
			migration.Result
			SuccessRate float64 `json:"successRate"`
		}{result, result.SuccessRate()}
	case *templateID != 0:
		st := svc.MigrateTemplate(ctx, uint(*templateID))
		if !st.Success {
			exitCode = 1
		}
		out = st
	default:
		n, err := svc.MigrateDocumentValues(ctx, uint(*documentID))
		if err != nil {
			log.Fatalf("migrate document %d: %v", *documentID, err)
		}
		out = map[string]any{"documentId": *documentID, "migratedValues": n}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.Fatalf("encode result: %v", err)
	}
	os.Exit(exitCode)
}

// applyDatabaseFlags 用命令行参数覆盖环境变量中的数据库配置。
func applyDatabaseFlags(cfg *config.DatabaseConfig, host string, port int, name, user, password, sslmode string) {
	if strings.TrimSpace(host) != "" {
		cfg.Host = host
	}
	if port > 0 {
		cfg.Port = port
	}
	if strings.TrimSpace(name) != "" {
		cfg.Name = name
	}
	if strings.TrimSpace(user) != "" {
		cfg.User = user
	}
	if strings.TrimSpace(password) != "" {
		cfg.Password = password
	}
	if strings.TrimSpace(sslmode) != "" {
		cfg.SSLMode = sslmode
	}
}
