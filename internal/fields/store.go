// Package fields persists normalized template fields and per-document field values.
package fields

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"docflow/internal/database"
	"docflow/internal/geometry"
)

// Store 是 TemplateField 与 DocumentFieldValue 的唯一写入入口。
type Store struct {
	db *gorm.DB
}

// NewStore 构造 Store。
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// WithTx 返回绑定到事务 tx 的 Store。
func (s *Store) WithTx(tx *gorm.DB) *Store {
	return &Store{db: tx}
}

// DB 返回底层连接（可能是事务）。
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Transaction 在单个事务内执行 fn；嵌套调用会使用 savepoint。
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(s.WithTx(tx))
	})
}

// NewField 描述待创建字段，Rect 为页面比例坐标。
type NewField struct {
	TemplateID uint
	FieldKey   string
	Label      string
	Required   bool
	Page       int
	Rect       geometry.Rect
}

// FieldUpdate 描述可修改的字段属性；FieldKey 与 Page 创建后不可变。
// ExpectedVersion 为 0 时使用读取到的当前版本。
type FieldUpdate struct {
	Label           string
	Required        bool
	Rect            geometry.Rect
	ExpectedVersion int
}

// GetTemplate 按 ID 读取模板。
func (s *Store) GetTemplate(ctx context.Context, id uint) (*database.Template, error) {
	var tpl database.Template
	if err := s.db.WithContext(ctx).First(&tpl, id).Error; err != nil {
		if notFound(err) {
			return nil, fmt.Errorf("template %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("query template %d: %w", id, err)
	}
	return &tpl, nil
}

// GetDocument 按 ID 读取文档。
func (s *Store) GetDocument(ctx context.Context, id uint) (*database.Document, error) {
	var doc database.Document
	if err := s.db.WithContext(ctx).First(&doc, id).Error; err != nil {
		if notFound(err) {
			return nil, fmt.Errorf("document %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("query document %d: %w", id, err)
	}
	return &doc, nil
}

// ListTemplateIDs 返回全部模板 ID（升序）。
func (s *Store) ListTemplateIDs(ctx context.Context) ([]uint, error) {
	var ids []uint
	if err := s.db.WithContext(ctx).
		Model(&database.Template{}).
		Order("id").
		Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("list template ids: %w", err)
	}
	return ids, nil
}

// CreateField 校验并插入一个字段。
// 校验顺序：模板存在 -> fieldKey 唯一 -> 坐标合法；任一失败都不会写入。
func (s *Store) CreateField(ctx context.Context, in NewField) (*database.TemplateField, error) {
	key := strings.TrimSpace(in.FieldKey)
	if key == "" {
		return nil, fmt.Errorf("field key is required: %w", ErrInvalidInput)
	}

	if _, err := s.GetTemplate(ctx, in.TemplateID); err != nil {
		return nil, err
	}

	var existing int64
	if err := s.db.WithContext(ctx).
		Model(&database.TemplateField{}).
		Where("template_id = ? AND field_key = ?", in.TemplateID, key).
		Count(&existing).Error; err != nil {
		return nil, fmt.Errorf("check field key %q: %w", key, err)
	}
	if existing > 0 {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateKey, key)
	}

	if err := geometry.ValidatePage(in.Page); err != nil {
		return nil, err
	}
	rect := geometry.Quantize(in.Rect)
	if err := geometry.ValidateRect(rect); err != nil {
		return nil, err
	}

	field := database.TemplateField{
		TemplateID: in.TemplateID,
		FieldKey:   key,
		Label:      in.Label,
		Required:   in.Required,
		Page:       in.Page,
		X:          rect.X,
		Y:          rect.Y,
		Width:      rect.Width,
		Height:     rect.Height,
		Version:    1,
	}
	if err := s.db.WithContext(ctx).Create(&field).Error; err != nil {
		// 并发创建时由唯一索引兜底。
		if isDuplicate(err) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateKey, key)
		}
		return nil, fmt.Errorf("create template field %q: %w", key, err)
	}
	return &field, nil
}

// GetField 按 ID 读取字段。
func (s *Store) GetField(ctx context.Context, id uint) (*database.TemplateField, error) {
	var field database.TemplateField
	if err := s.db.WithContext(ctx).First(&field, id).Error; err != nil {
		if notFound(err) {
			return nil, fmt.Errorf("template field %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("query template field %d: %w", id, err)
	}
	return &field, nil
}

// GetFieldByKey 按 (templateID, fieldKey) 读取字段。
func (s *Store) GetFieldByKey(ctx context.Context, templateID uint, key string) (*database.TemplateField, error) {
	var field database.TemplateField
	err := s.db.WithContext(ctx).
		Where("template_id = ? AND field_key = ?", templateID, key).
		First(&field).Error
	if err != nil {
		if notFound(err) {
			return nil, fmt.Errorf("template %d field %q: %w", templateID, key, ErrNotFound)
		}
		return nil, fmt.Errorf("query template %d field %q: %w", templateID, key, err)
	}
	return &field, nil
}

// ListFields 按创建顺序返回模板的全部字段。
func (s *Store) ListFields(ctx context.Context, templateID uint) ([]database.TemplateField, error) {
	var fields []database.TemplateField
	if err := s.db.WithContext(ctx).
		Where("template_id = ?", templateID).
		Order("created_at, id").
		Find(&fields).Error; err != nil {
		return nil, fmt.Errorf("list fields of template %d: %w", templateID, err)
	}
	return fields, nil
}

// ListRequiredFields 按创建顺序返回模板的必填字段。
func (s *Store) ListRequiredFields(ctx context.Context, templateID uint) ([]database.TemplateField, error) {
	var fields []database.TemplateField
	if err := s.db.WithContext(ctx).
		Where("template_id = ? AND required = ?", templateID, true).
		Order("created_at, id").
		Find(&fields).Error; err != nil {
		return nil, fmt.Errorf("list required fields of template %d: %w", templateID, err)
	}
	return fields, nil
}

// CountFields 返回模板已有的规范化字段数量。
func (s *Store) CountFields(ctx context.Context, templateID uint) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&database.TemplateField{}).
		Where("template_id = ?", templateID).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count fields of template %d: %w", templateID, err)
	}
	return count, nil
}

// UpdateField 原地修改字段。ExpectedVersion > 0 时按 version 比较并交换，
// 否则后写者生效。
func (s *Store) UpdateField(ctx context.Context, id uint, in FieldUpdate) (*database.TemplateField, error) {
	if _, err := s.GetField(ctx, id); err != nil {
		return nil, err
	}
	rect := geometry.Quantize(in.Rect)
	if err := geometry.ValidateRect(rect); err != nil {
		return nil, err
	}

	query := s.db.WithContext(ctx).Model(&database.TemplateField{}).Where("id = ?", id)
	if in.ExpectedVersion > 0 {
		query = query.Where("version = ?", in.ExpectedVersion)
	}
	res := query.Updates(map[string]any{
		"label":      in.Label,
		"required":   in.Required,
		"x":          rect.X,
		"y":          rect.Y,
		"width":      rect.Width,
		"height":     rect.Height,
		"version":    gorm.Expr("version + 1"),
		"updated_at": time.Now(),
	})
	if res.Error != nil {
		return nil, fmt.Errorf("update template field %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		if in.ExpectedVersion > 0 {
			return nil, fmt.Errorf("template field %d version %d: %w", id, in.ExpectedVersion, ErrConcurrentUpdate)
		}
		// 读取之后被并发删除。
		return nil, fmt.Errorf("template field %d: %w", id, ErrNotFound)
	}

	return s.GetField(ctx, id)
}

// DeleteField 删除字段及其全部字段值。
func (s *Store) DeleteField(ctx context.Context, id uint) (*database.TemplateField, error) {
	var deleted *database.TemplateField
	err := s.Transaction(ctx, func(tx *Store) error {
		field, err := tx.GetField(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.db.WithContext(ctx).
			Where("template_field_id = ?", id).
			Delete(&database.DocumentFieldValue{}).Error; err != nil {
			return fmt.Errorf("delete values of field %d: %w", id, err)
		}
		if err := tx.db.WithContext(ctx).Delete(&database.TemplateField{}, id).Error; err != nil {
			return fmt.Errorf("delete template field %d: %w", id, err)
		}
		deleted = field
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

// DeleteAllFieldsForTemplate 删除模板的全部字段及其字段值，返回删除的字段数。
func (s *Store) DeleteAllFieldsForTemplate(ctx context.Context, templateID uint) (int64, error) {
	var removed int64
	err := s.Transaction(ctx, func(tx *Store) error {
		fieldIDs := tx.db.Model(&database.TemplateField{}).
			Select("id").
			Where("template_id = ?", templateID)
		if err := tx.db.WithContext(ctx).
			Where("template_field_id IN (?)", fieldIDs).
			Delete(&database.DocumentFieldValue{}).Error; err != nil {
			return fmt.Errorf("delete values of template %d: %w", templateID, err)
		}
		res := tx.db.WithContext(ctx).
			Where("template_id = ?", templateID).
			Delete(&database.TemplateField{})
		if res.Error != nil {
			return fmt.Errorf("delete fields of template %d: %w", templateID, res.Error)
		}
		removed = res.RowsAffected
		return nil
	})
	return removed, err
}
