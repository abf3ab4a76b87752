// Package migration converts legacy coordinateFields blobs into normalized
// template fields and document values.
package migration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"docflow/internal/database"
	"docflow/internal/fields"
	"docflow/internal/geometry"
	"docflow/internal/legacy"
	"docflow/internal/metrics"
)

// Archiver 在迁移前保存模板的旧版原文。
type Archiver interface {
	ArchiveLegacy(ctx context.Context, templateID uint, blob []byte) error
}

// Engine 执行旧数据迁移。
type Engine struct {
	store    *fields.Store
	canvas   geometry.Canvas
	workers  int
	archiver Archiver
	logger   *slog.Logger
}

// Option 配置 Engine。
type Option func(*Engine)

// WithCanvas 指定像素坐标的参考画布，非法尺寸会被忽略。
func WithCanvas(c geometry.Canvas) Option {
	return func(e *Engine) {
		if c.Valid() {
			e.canvas = c
		}
	}
}

// WithWorkers 指定 MigrateAll 的并发度。
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithArchiver 启用旧原文归档。
func WithArchiver(a Archiver) Option {
	return func(e *Engine) { e.archiver = a }
}

// WithLogger 指定日志输出。
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine 构造迁移引擎，默认使用 800x1000 画布与 4 个 worker。
func NewEngine(store *fields.Store, opts ...Option) *Engine {
	e := &Engine{
		store:   store,
		canvas:  geometry.DefaultCanvas,
		workers: 4,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Canvas 返回当前使用的参考画布。
func (e *Engine) Canvas() geometry.Canvas {
	return e.canvas
}

// MigrateTemplate 迁移单个模板。模板已有字段、原文为空或不是数组时跳过并返回 false。
// 整个模板在一个事务内完成，任一字段失败全部回滚。
func (e *Engine) MigrateTemplate(ctx context.Context, templateID uint) (bool, error) {
	created, err := e.migrateTemplate(ctx, templateID)
	switch {
	case err != nil:
		metrics.RecordTemplateMigration(metrics.OutcomeFailed, 0)
		e.logger.Error("template migration failed", "template_id", templateID, "error", err)
		return false, err
	case created == 0:
		metrics.RecordTemplateMigration(metrics.OutcomeSkipped, 0)
		return false, nil
	default:
		metrics.RecordTemplateMigration(metrics.OutcomeMigrated, created)
		e.logger.Info("template migrated", "template_id", templateID, "fields", created)
		return true, nil
	}
}

func (e *Engine) migrateTemplate(ctx context.Context, templateID uint) (int, error) {
	created := 0
	err := e.store.Transaction(ctx, func(tx *fields.Store) error {
		var tpl database.Template
		if err := tx.DB().
			Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&tpl, templateID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("template %d: %w", templateID, fields.ErrNotFound)
			}
			return fmt.Errorf("lock template %d: %w", templateID, err)
		}

		count, err := tx.CountFields(ctx, templateID)
		if err != nil {
			return err
		}
		if count > 0 {
			e.logger.Debug("template already has fields", "template_id", templateID, "fields", count)
			return nil
		}
		if legacy.IsEmpty(tpl.CoordinateFields) {
			return nil
		}

		elements, err := legacy.ParseTemplateFields(tpl.CoordinateFields)
		if err != nil {
			if errors.Is(err, legacy.ErrNotArray) {
				e.logger.Warn("legacy coordinate fields are not an array, skipping", "template_id", templateID)
				return nil
			}
			return err
		}
		if len(elements) == 0 {
			return nil
		}

		if e.archiver != nil {
			if err := e.archiver.ArchiveLegacy(ctx, templateID, tpl.CoordinateFields); err != nil {
				return fmt.Errorf("archive legacy fields of template %d: %w", templateID, err)
			}
		}

		for _, el := range elements {
			in, ok := e.convert(templateID, el)
			if !ok {
				e.logger.Info("skipping table element", "template_id", templateID, "index", el.Common().Index)
				continue
			}
			if _, err := tx.CreateField(ctx, in); err != nil {
				return fmt.Errorf("element %d (%s): %w", el.Common().Index, in.FieldKey, err)
			}
			created++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return created, nil
}

// convert 把旧元素转换为待创建字段；表格类元素无法表示，返回 false。
func (e *Engine) convert(templateID uint, el legacy.Element) (fields.NewField, bool) {
	switch el.(type) {
	case legacy.TableField:
		return fields.NewField{}, false
	case legacy.TextField, legacy.DateField, legacy.SignatureField:
	default:
		panic(fmt.Sprintf("unhandled legacy element %T", el))
	}

	p := el.Common()
	return fields.NewField{
		TemplateID: templateID,
		FieldKey:   p.Key(),
		Label:      p.DisplayLabel(),
		Required:   p.Required,
		Page:       p.Page,
		Rect:       e.canvas.Normalize(p.PixelRect()),
	}, true
}
