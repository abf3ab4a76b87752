package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"

	"docflow/internal/errcode"
	"docflow/internal/migration"
	"docflow/internal/tasks"
)

// Migrator 是迁移任务依赖的服务能力，*service.FieldService 实现了它。
type Migrator interface {
	MigrateAll(ctx context.Context) (migration.Result, error)
	MigrateTemplate(ctx context.Context, templateID uint) migration.Status
	MigrateDocumentValues(ctx context.Context, documentID uint) (int, error)
}

// MigrationTaskHandler 消费 migration:templates 任务。
type MigrationTaskHandler struct {
	migrator  Migrator
	publisher Publisher
	logger    *slog.Logger
}

// NewMigrationTaskHandler 创建任务处理器，publisher 可为 nil。
func NewMigrationTaskHandler(migrator Migrator, publisher Publisher, logger *slog.Logger) *MigrationTaskHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &MigrationTaskHandler{migrator: migrator, publisher: publisher, logger: logger}
}

// ProcessTask 实现 asynq.Handler。
// 单个模板失败记录在结果中并通知，不触发重试；只有读取模板列表等系统错误会返回 error。
func (h *MigrationTaskHandler) ProcessTask(ctx context.Context, t *asynq.Task) (retErr error) {
	log := h.logger

	var payload tasks.LegacyMigratePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		log.Error("unmarshal task payload failed", slog.Any("error", err))
		return fmt.Errorf("unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}

	log = log.With(
		slog.String("correlation_id", payload.CorrelationID),
		slog.String("scope", payload.Scope()),
	)
	log.Info("starting legacy migration task")

	notify := MigrationNotifyMessage{
		Status:        "completed",
		Scope:         payload.Scope(),
		TemplateID:    payload.TemplateID,
		DocumentID:    payload.DocumentID,
		CorrelationID: payload.CorrelationID,
		ErrorCode:     errcode.OK,
	}

	defer func() {
		if retErr != nil {
			if !isFinalAsynqAttempt(ctx) {
				return
			}
			notify.Status = "error"
			notify.ErrorCode = errcode.FromError(retErr)
			notify.ErrorMessage = strings.TrimSpace(retErr.Error())
		}
		h.publish(ctx, log, notify)
	}()

	switch payload.Scope() {
	case "document":
		n, err := h.migrator.MigrateDocumentValues(ctx, payload.DocumentID)
		if err != nil {
			notify.Status = "error"
			notify.ErrorCode = errcode.FromError(err)
			notify.ErrorMessage = err.Error()
			notify.Failed = 1
			log.Warn("document value migration failed", slog.Any("error", err))
			return nil
		}
		notify.Migrated = n
	case "template":
		st := h.migrator.MigrateTemplate(ctx, payload.TemplateID)
		switch {
		case !st.Success:
			notify.Status = "error"
			notify.ErrorCode = st.ErrorCode
			notify.ErrorMessage = st.Message
			notify.Failed = 1
		case st.Migrated:
			notify.Migrated = 1
		default:
			notify.Skipped = 1
		}
	default:
		result, err := h.migrator.MigrateAll(ctx)
		if err != nil {
			log.Error("legacy migration failed", slog.Any("error", err))
			return err
		}
		notify.Migrated = result.MigratedCount
		notify.Skipped = result.SkippedCount
		notify.Failed = result.ErrorCount
		notify.Errors = result.Errors
		if !result.Successful() {
			notify.Status = "partial"
			notify.ErrorCode = result.ErrorCode
			notify.ErrorMessage = fmt.Sprintf("%d of %d templates failed", result.ErrorCount, result.TotalTemplates)
		}
	}

	log.Info("legacy migration task finished",
		slog.Int("migrated", notify.Migrated),
		slog.Int("skipped", notify.Skipped),
		slog.Int("failed", notify.Failed),
	)
	return nil
}

func (h *MigrationTaskHandler) publish(ctx context.Context, log *slog.Logger, msg MigrationNotifyMessage) {
	if h.publisher == nil {
		return
	}
	if err := h.publisher.Publish(ctx, msg); err != nil {
		log.Error("publish migration notification failed", slog.Any("error", err))
	}
}

func isFinalAsynqAttempt(ctx context.Context) bool {
	retryCount, ok1 := asynq.GetRetryCount(ctx)
	maxRetry, ok2 := asynq.GetMaxRetry(ctx)
	if !ok1 || !ok2 {
		return false
	}
	return retryCount >= maxRetry
}
