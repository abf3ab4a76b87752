package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"docflow/internal/api/middleware"
	"docflow/internal/service"
	"docflow/internal/tasks"
)

// TaskEnqueuer 是 *asynq.Client 的子集，便于测试替换。
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// MigrationHandler 提供旧数据迁移的内部接口，全部操作可重复触发。
type MigrationHandler struct {
	svc      *service.FieldService
	enqueuer TaskEnqueuer
}

func NewMigrationHandler(svc *service.FieldService, enqueuer TaskEnqueuer) *MigrationHandler {
	return &MigrationHandler{svc: svc, enqueuer: enqueuer}
}

type migrationResultResponse struct {
	TotalTemplates int      `json:"totalTemplates"`
	MigratedCount  int      `json:"migratedCount"`
	SkippedCount   int      `json:"skippedCount"`
	ErrorCount     int      `json:"errorCount"`
	Errors         []string `json:"errors"`
	ErrorCode      int      `json:"errorCode"`
	Successful     bool     `json:"successful"`
	SuccessRate    float64  `json:"successRate"`
}

// POST /v1/admin/migration/templates
func (h *MigrationHandler) MigrateAll(c *gin.Context) {
	result, err := h.svc.MigrateAll(c.Request.Context())
	if err != nil {
		Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, migrationResultResponse{
		TotalTemplates: result.TotalTemplates,
		MigratedCount:  result.MigratedCount,
		SkippedCount:   result.SkippedCount,
		ErrorCount:     result.ErrorCount,
		Errors:         result.Errors,
		ErrorCode:      result.ErrorCode,
		Successful:     result.Successful(),
		SuccessRate:    result.SuccessRate(),
	})
}

// POST /v1/admin/migration/templates/:templateId
// 单模板迁移失败时仍返回 200，结果体中 success=false。
func (h *MigrationHandler) MigrateTemplate(c *gin.Context) {
	templateID, ok := uintParam(c, "templateId")
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.svc.MigrateTemplate(c.Request.Context(), templateID))
}

// POST /v1/admin/migration/documents/:documentId
func (h *MigrationHandler) MigrateDocumentValues(c *gin.Context) {
	documentID, ok := uintParam(c, "documentId")
	if !ok {
		return
	}
	n, err := h.svc.MigrateDocumentValues(c.Request.Context(), documentID)
	if err != nil {
		Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"documentId": documentID, "migratedValues": n})
}

type enqueueMigrationRequest struct {
	TemplateID uint `json:"templateId"`
	DocumentID uint `json:"documentId"`
}

// POST /v1/admin/migration/jobs
// 交给 worker 异步执行，结果通过 Redis 通知。
func (h *MigrationHandler) EnqueueMigration(c *gin.Context) {
	if h.enqueuer == nil {
		Error(c, http.StatusServiceUnavailable, "task queue is not configured")
		return
	}

	var req enqueueMigrationRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			BadRequest(c, err.Error())
			return
		}
	}

	correlationID := middleware.GetCorrelationID(c)
	task, err := tasks.NewLegacyMigrateTask(tasks.LegacyMigratePayload{
		TemplateID:    req.TemplateID,
		DocumentID:    req.DocumentID,
		CorrelationID: correlationID,
	})
	if err != nil {
		Fail(c, err)
		return
	}
	info, err := h.enqueuer.EnqueueContext(c.Request.Context(), task)
	if err != nil {
		middleware.LoggerFromContext(c).Error("enqueue migration task failed", "error", err)
		Internal(c, "failed to enqueue migration task")
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"taskId": info.ID, "queue": info.Queue, "correlationId": correlationID})
}
