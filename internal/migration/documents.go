package migration

import (
	"context"
	"errors"
	"fmt"

	"docflow/internal/fields"
	"docflow/internal/legacy"
)

// MigrateDocumentValues 把文档 data.coordinateFields 中的旧值写入已迁移的字段，返回新写入的值数量。
// 已存在的值不会被覆盖，重复执行结果不变。模板尚未迁移时没有可匹配的字段，返回 0。
func (e *Engine) MigrateDocumentValues(ctx context.Context, documentID uint) (int, error) {
	seeded := 0
	err := e.store.Transaction(ctx, func(tx *fields.Store) error {
		doc, err := tx.GetDocument(ctx, documentID)
		if err != nil {
			return err
		}

		values, err := legacy.ParseDocumentValues(doc.Data)
		if err != nil {
			if errors.Is(err, legacy.ErrNotArray) {
				return nil
			}
			return fmt.Errorf("document %d: %w", documentID, err)
		}
		if len(values) == 0 {
			return nil
		}

		list, err := tx.ListFields(ctx, doc.TemplateID)
		if err != nil {
			return err
		}
		byKey := make(map[string]uint, len(list))
		for _, f := range list {
			byKey[f.FieldKey] = f.ID
		}

		for _, v := range values {
			if _, isTable := v.Element.(legacy.TableField); isTable || v.Text == nil {
				continue
			}
			key := v.Element.Common().Key()
			fieldID, ok := byKey[key]
			if !ok {
				e.logger.Debug("no field for legacy value", "document_id", documentID, "field_key", key)
				continue
			}
			inserted, err := tx.SeedValue(ctx, documentID, fieldID, fields.ValueInput{Value: v.Text})
			if err != nil {
				return err
			}
			if inserted {
				seeded++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if seeded > 0 {
		e.logger.Info("document values migrated", "document_id", documentID, "values", seeded)
	}
	return seeded, nil
}
