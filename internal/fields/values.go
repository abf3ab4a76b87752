package fields

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm/clause"

	"docflow/internal/database"
)

// ValueInput 是一次字段值写入。Value 为 nil 表示显式写入空值；
// Raw 保存表格类字段的行列结构。
type ValueInput struct {
	Value *string
	Raw   datatypes.JSON
}

// FieldValue 是字段值及其所属字段。
type FieldValue struct {
	Value database.DocumentFieldValue
	Field database.TemplateField
}

// Text 返回值文本，null 视为空串。
func (v FieldValue) Text() string {
	if v.Value.Value == nil {
		return ""
	}
	return *v.Value.Value
}

// Filled 判断值去除空白后是否非空。
func Filled(value *string) bool {
	return value != nil && strings.TrimSpace(*value) != ""
}

// UpsertValue 写入 (documentID, fieldID) 的值：存在则更新，不存在则插入。
// 依赖唯一索引与 ON CONFLICT 在一条语句内完成，并发写同一键只会留下一行。
func (s *Store) UpsertValue(ctx context.Context, documentID, fieldID uint, in ValueInput) (*FieldValue, error) {
	if err := s.CheckOwnership(ctx, documentID, fieldID); err != nil {
		return nil, err
	}

	row := database.DocumentFieldValue{
		DocumentID:      documentID,
		TemplateFieldID: fieldID,
		Value:           in.Value,
		ValueRaw:        in.Raw,
		UpdatedAt:       time.Now(),
	}
	if err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "document_id"}, {Name: "template_field_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "value_raw", "updated_at"}),
		}).
		Create(&row).Error; err != nil {
		return nil, fmt.Errorf("upsert value of field %d on document %d: %w", fieldID, documentID, err)
	}

	return s.GetValue(ctx, documentID, fieldID)
}

// SeedValue 仅在 (documentID, fieldID) 尚无值时插入，已有值保持不变。
// 用于旧数据导入，重复执行不会覆盖之后的编辑。
func (s *Store) SeedValue(ctx context.Context, documentID, fieldID uint, in ValueInput) (bool, error) {
	if err := s.CheckOwnership(ctx, documentID, fieldID); err != nil {
		return false, err
	}

	row := database.DocumentFieldValue{
		DocumentID:      documentID,
		TemplateFieldID: fieldID,
		Value:           in.Value,
		ValueRaw:        in.Raw,
		UpdatedAt:       time.Now(),
	}
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "document_id"}, {Name: "template_field_id"}},
			DoNothing: true,
		}).
		Create(&row)
	if res.Error != nil {
		return false, fmt.Errorf("seed value of field %d on document %d: %w", fieldID, documentID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// CheckOwnership 确认文档与字段都存在，且字段属于文档所用的模板。
func (s *Store) CheckOwnership(ctx context.Context, documentID, fieldID uint) error {
	doc, err := s.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}
	field, err := s.GetField(ctx, fieldID)
	if err != nil {
		return err
	}
	if field.TemplateID != doc.TemplateID {
		return fmt.Errorf("field %d (template %d) on document %d (template %d): %w",
			field.ID, field.TemplateID, doc.ID, doc.TemplateID, ErrFieldTemplateMismatch)
	}
	return nil
}

// GetValue 读取单个字段值。
func (s *Store) GetValue(ctx context.Context, documentID, fieldID uint) (*FieldValue, error) {
	var value database.DocumentFieldValue
	err := s.db.WithContext(ctx).
		Where("document_id = ? AND template_field_id = ?", documentID, fieldID).
		First(&value).Error
	if err != nil {
		if notFound(err) {
			return nil, fmt.Errorf("value of field %d on document %d: %w", fieldID, documentID, ErrNotFound)
		}
		return nil, fmt.Errorf("query value of field %d on document %d: %w", fieldID, documentID, err)
	}
	field, err := s.GetField(ctx, fieldID)
	if err != nil {
		return nil, err
	}
	return &FieldValue{Value: value, Field: *field}, nil
}

// ListFieldValues 按字段创建顺序返回文档的全部字段值。
func (s *Store) ListFieldValues(ctx context.Context, documentID uint) ([]FieldValue, error) {
	var values []database.DocumentFieldValue
	if err := s.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Find(&values).Error; err != nil {
		return nil, fmt.Errorf("list values of document %d: %w", documentID, err)
	}
	if len(values) == 0 {
		return []FieldValue{}, nil
	}

	byField := make(map[uint]database.DocumentFieldValue, len(values))
	ids := make([]uint, 0, len(values))
	for _, v := range values {
		byField[v.TemplateFieldID] = v
		ids = append(ids, v.TemplateFieldID)
	}

	var fields []database.TemplateField
	if err := s.db.WithContext(ctx).
		Where("id IN ?", ids).
		Order("created_at, id").
		Find(&fields).Error; err != nil {
		return nil, fmt.Errorf("load fields of document %d: %w", documentID, err)
	}

	result := make([]FieldValue, 0, len(fields))
	for _, f := range fields {
		result = append(result, FieldValue{Value: byField[f.ID], Field: f})
	}
	return result, nil
}

// ValueMap 返回 fieldKey -> value，null 值映射为空串。
func (s *Store) ValueMap(ctx context.Context, documentID uint) (map[string]string, error) {
	values, err := s.ListFieldValues(ctx, documentID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(values))
	for _, v := range values {
		out[v.Field.FieldKey] = v.Text()
	}
	return out, nil
}

// ValuesByField 返回文档在给定字段上的值，键为字段 ID；不存在的字段不会出现在结果中。
func (s *Store) ValuesByField(ctx context.Context, documentID uint, fieldIDs []uint) (map[uint]database.DocumentFieldValue, error) {
	out := make(map[uint]database.DocumentFieldValue, len(fieldIDs))
	if len(fieldIDs) == 0 {
		return out, nil
	}
	var values []database.DocumentFieldValue
	if err := s.db.WithContext(ctx).
		Where("document_id = ? AND template_field_id IN ?", documentID, fieldIDs).
		Find(&values).Error; err != nil {
		return nil, fmt.Errorf("load values of document %d: %w", documentID, err)
	}
	for _, v := range values {
		out[v.TemplateFieldID] = v
	}
	return out, nil
}

// DeleteValue 删除单个字段值。
func (s *Store) DeleteValue(ctx context.Context, documentID, fieldID uint) error {
	res := s.db.WithContext(ctx).
		Where("document_id = ? AND template_field_id = ?", documentID, fieldID).
		Delete(&database.DocumentFieldValue{})
	if res.Error != nil {
		return fmt.Errorf("delete value of field %d on document %d: %w", fieldID, documentID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("value of field %d on document %d: %w", fieldID, documentID, ErrNotFound)
	}
	return nil
}

// DeleteAllValuesForDocument 删除文档的全部字段值，返回删除行数。
func (s *Store) DeleteAllValuesForDocument(ctx context.Context, documentID uint) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Delete(&database.DocumentFieldValue{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete values of document %d: %w", documentID, res.Error)
	}
	return res.RowsAffected, nil
}
