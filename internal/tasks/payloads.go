package tasks

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// 任务类型常量，确保队列生产者与消费者一致。
const (
	TypeLegacyMigrate = "migration:templates"
)

// LegacyMigratePayload 描述一次迁移任务。
// TemplateID 与 DocumentID 都为 0 时迁移全部模板；DocumentID 非 0 时迁移该文档的旧字段值。
type LegacyMigratePayload struct {
	TemplateID    uint   `json:"template_id,omitempty"`
	DocumentID    uint   `json:"document_id,omitempty"`
	CorrelationID string `json:"correlation_id"`
}

// Scope 返回任务作用范围：all、template 或 document。
func (p LegacyMigratePayload) Scope() string {
	switch {
	case p.DocumentID != 0:
		return "document"
	case p.TemplateID != 0:
		return "template"
	default:
		return "all"
	}
}

// NewLegacyMigrateTask 构造迁移任务。迁移本身幂等，失败后可安全重试。
func NewLegacyMigrateTask(payload LegacyMigratePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeLegacyMigrate, data, asynq.MaxRetry(3)), nil
}
