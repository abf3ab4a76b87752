// Package completion reports how many required fields of a document are filled.
package completion

import (
	"context"

	"docflow/internal/fields"
)

// Info 是文档的必填完成度。
type Info struct {
	FilledRequired int      `json:"filledRequired"`
	TotalRequired  int      `json:"totalRequired"`
	IsComplete     bool     `json:"isComplete"`
	MissingLabels  []string `json:"missingLabels"`
}

// Calculator 基于 fields.Store 计算完成度。
type Calculator struct {
	store *fields.Store
}

func NewCalculator(store *fields.Store) *Calculator {
	return &Calculator{store: store}
}

// GetCompletion 统计文档模板中必填字段的填写情况。
// 没有值行、值为 null 或只含空白都算未填，MissingLabels 按字段创建顺序排列。
func (c *Calculator) GetCompletion(ctx context.Context, documentID uint) (Info, error) {
	doc, err := c.store.GetDocument(ctx, documentID)
	if err != nil {
		return Info{}, err
	}

	required, err := c.store.ListRequiredFields(ctx, doc.TemplateID)
	if err != nil {
		return Info{}, err
	}

	ids := make([]uint, 0, len(required))
	for _, f := range required {
		ids = append(ids, f.ID)
	}
	values, err := c.store.ValuesByField(ctx, documentID, ids)
	if err != nil {
		return Info{}, err
	}

	info := Info{TotalRequired: len(required), MissingLabels: []string{}}
	for _, f := range required {
		if v, ok := values[f.ID]; ok && fields.Filled(v.Value) {
			info.FilledRequired++
			continue
		}
		info.MissingLabels = append(info.MissingLabels, f.Label)
	}
	info.IsComplete = info.FilledRequired >= info.TotalRequired
	return info, nil
}
