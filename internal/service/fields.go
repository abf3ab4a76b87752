// Package service exposes template field, document value, completion and
// migration operations to the HTTP layer, the worker and the admin CLI.
package service

import (
	"context"
	"log/slog"
	"time"

	"docflow/internal/completion"
	"docflow/internal/database"
	"docflow/internal/fields"
	"docflow/internal/metrics"
	"docflow/internal/migration"
)

// FieldService 组合字段存储、完成度计算与迁移引擎。
type FieldService struct {
	store    *fields.Store
	calc     *completion.Calculator
	engine   *migration.Engine
	autosave *AutosaveQueue
	logger   *slog.Logger
}

// NewFieldService 构造 FieldService，logger 为 nil 时使用 slog.Default()。
func NewFieldService(store *fields.Store, engine *migration.Engine, logger *slog.Logger) *FieldService {
	if logger == nil {
		logger = slog.Default()
	}
	return &FieldService{
		store:  store,
		calc:   completion.NewCalculator(store),
		engine: engine,
		logger: logger,
	}
}

// EnableAutosave 为草稿写入启用合并队列，debounce 为同一字段两次写入间的静默窗口。
func (s *FieldService) EnableAutosave(debounce time.Duration) *AutosaveQueue {
	s.autosave = NewAutosaveQueue(s.writeDraft, debounce, s.logger)
	return s.autosave
}

func (s *FieldService) CreateField(ctx context.Context, in fields.NewField) (*database.TemplateField, error) {
	field, err := s.store.CreateField(ctx, in)
	metrics.RecordFieldMutation("create_field", err)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "template field created",
		"template_id", field.TemplateID, "field_id", field.ID, "field_key", field.FieldKey)
	return field, nil
}

func (s *FieldService) UpdateField(ctx context.Context, id uint, in fields.FieldUpdate) (*database.TemplateField, error) {
	field, err := s.store.UpdateField(ctx, id, in)
	metrics.RecordFieldMutation("update_field", err)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "template field updated", "field_id", field.ID, "version", field.Version)
	return field, nil
}

func (s *FieldService) DeleteField(ctx context.Context, id uint) error {
	field, err := s.store.DeleteField(ctx, id)
	metrics.RecordFieldMutation("delete_field", err)
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "template field deleted",
		"template_id", field.TemplateID, "field_id", field.ID, "field_key", field.FieldKey)
	return nil
}

// DeleteAllFields 删除模板的全部字段及其值，模板不存在时返回 ErrNotFound。
func (s *FieldService) DeleteAllFields(ctx context.Context, templateID uint) (int64, error) {
	if _, err := s.store.GetTemplate(ctx, templateID); err != nil {
		return 0, err
	}
	n, err := s.store.DeleteAllFieldsForTemplate(ctx, templateID)
	metrics.RecordFieldMutation("delete_all_fields", err)
	if err != nil {
		return 0, err
	}
	s.logger.InfoContext(ctx, "template fields reset", "template_id", templateID, "deleted", n)
	return n, nil
}

func (s *FieldService) GetField(ctx context.Context, id uint) (*database.TemplateField, error) {
	return s.store.GetField(ctx, id)
}

func (s *FieldService) GetFieldByKey(ctx context.Context, templateID uint, key string) (*database.TemplateField, error) {
	return s.store.GetFieldByKey(ctx, templateID, key)
}

// ListFields 列出模板字段；模板不存在时返回 ErrNotFound 而不是空列表。
func (s *FieldService) ListFields(ctx context.Context, templateID uint) ([]database.TemplateField, error) {
	if _, err := s.store.GetTemplate(ctx, templateID); err != nil {
		return nil, err
	}
	return s.store.ListFields(ctx, templateID)
}

func (s *FieldService) ListRequiredFields(ctx context.Context, templateID uint) ([]database.TemplateField, error) {
	if _, err := s.store.GetTemplate(ctx, templateID); err != nil {
		return nil, err
	}
	return s.store.ListRequiredFields(ctx, templateID)
}

// UpsertValue 写入字段值，重复调用只会更新同一行。
func (s *FieldService) UpsertValue(ctx context.Context, documentID, fieldID uint, in fields.ValueInput) (*fields.FieldValue, error) {
	value, err := s.store.UpsertValue(ctx, documentID, fieldID, in)
	metrics.RecordFieldMutation("upsert_value", err)
	if err != nil {
		return nil, err
	}
	s.logger.DebugContext(ctx, "field value saved", "document_id", documentID, "field_id", fieldID)
	return value, nil
}

// SaveDraft 校验归属后把值放入自动保存队列，实际写入在静默窗口结束后进行。
// 未启用自动保存时直接写入。
func (s *FieldService) SaveDraft(ctx context.Context, documentID, fieldID uint, in fields.ValueInput) error {
	if s.autosave == nil {
		_, err := s.UpsertValue(ctx, documentID, fieldID, in)
		return err
	}
	if err := s.store.CheckOwnership(ctx, documentID, fieldID); err != nil {
		return err
	}
	return s.autosave.Submit(ctx, documentID, fieldID, in)
}

func (s *FieldService) writeDraft(ctx context.Context, documentID, fieldID uint, in fields.ValueInput) error {
	_, err := s.UpsertValue(ctx, documentID, fieldID, in)
	return err
}

func (s *FieldService) ListValues(ctx context.Context, documentID uint) ([]fields.FieldValue, error) {
	if _, err := s.store.GetDocument(ctx, documentID); err != nil {
		return nil, err
	}
	return s.store.ListFieldValues(ctx, documentID)
}

func (s *FieldService) ValueMap(ctx context.Context, documentID uint) (map[string]string, error) {
	if _, err := s.store.GetDocument(ctx, documentID); err != nil {
		return nil, err
	}
	return s.store.ValueMap(ctx, documentID)
}

func (s *FieldService) GetValue(ctx context.Context, documentID, fieldID uint) (*fields.FieldValue, error) {
	return s.store.GetValue(ctx, documentID, fieldID)
}

func (s *FieldService) DeleteValue(ctx context.Context, documentID, fieldID uint) error {
	err := s.store.DeleteValue(ctx, documentID, fieldID)
	metrics.RecordFieldMutation("delete_value", err)
	return err
}

func (s *FieldService) DeleteAllValues(ctx context.Context, documentID uint) (int64, error) {
	if _, err := s.store.GetDocument(ctx, documentID); err != nil {
		return 0, err
	}
	n, err := s.store.DeleteAllValuesForDocument(ctx, documentID)
	metrics.RecordFieldMutation("delete_all_values", err)
	if err != nil {
		return 0, err
	}
	s.logger.InfoContext(ctx, "document values cleared", "document_id", documentID, "deleted", n)
	return n, nil
}

func (s *FieldService) Completion(ctx context.Context, documentID uint) (completion.Info, error) {
	return s.calc.GetCompletion(ctx, documentID)
}

func (s *FieldService) MigrateAll(ctx context.Context) (migration.Result, error) {
	return s.engine.MigrateAll(ctx)
}

func (s *FieldService) MigrateTemplate(ctx context.Context, templateID uint) migration.Status {
	return s.engine.MigrateTemplateStatus(ctx, templateID)
}

func (s *FieldService) MigrateDocumentValues(ctx context.Context, documentID uint) (int, error) {
	return s.engine.MigrateDocumentValues(ctx, documentID)
}

// Close 写出自动保存队列中尚未落库的值。
func (s *FieldService) Close(ctx context.Context) error {
	if s.autosave == nil {
		return nil
	}
	return s.autosave.Flush(ctx)
}
