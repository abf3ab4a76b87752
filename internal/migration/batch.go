package migration

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"docflow/internal/errcode"
)

// Status 是单个模板迁移的结果。
type Status struct {
	TemplateID uint   `json:"templateId"`
	Success    bool   `json:"success"`
	Migrated   bool   `json:"migrated"`
	Message    string `json:"message"`
	ErrorCode  int    `json:"errorCode,omitempty"`
}

const (
	MessageMigrated = "Migration completed successfully"
	MessageSkipped  = "Template already migrated or no fields to migrate"
)

// Result 汇总一次批量迁移。
type Result struct {
	TotalTemplates int      `json:"totalTemplates"`
	MigratedCount  int      `json:"migratedCount"`
	SkippedCount   int      `json:"skippedCount"`
	ErrorCount     int      `json:"errorCount"`
	Errors         []string `json:"errors"`
	// ErrorCode 是失败模板共同的错误码；原因不一致时为 errcode.MixedFailures，无失败时为 0。
	ErrorCode      int      `json:"errorCode"`
}

// Successful 当没有任何模板失败时为 true。
func (r Result) Successful() bool {
	return r.ErrorCount == 0
}

// SuccessRate 返回未出错模板（迁移或跳过）的占比，空批次视为 1。
// 对已迁移的批次重跑时全部跳过，比例仍为 1。
func (r Result) SuccessRate() float64 {
	if r.TotalTemplates == 0 {
		return 1
	}
	return float64(r.MigratedCount+r.SkippedCount) / float64(r.TotalTemplates)
}

// MigrateTemplateStatus 包装 MigrateTemplate，把结果转换为 Status。
func (e *Engine) MigrateTemplateStatus(ctx context.Context, templateID uint) Status {
	migrated, err := e.MigrateTemplate(ctx, templateID)
	st := Status{TemplateID: templateID, Success: err == nil, Migrated: migrated}
	switch {
	case err != nil:
		st.Message = "Migration failed: " + err.Error()
		st.ErrorCode = errcode.FromError(err)
	case migrated:
		st.Message = MessageMigrated
	default:
		st.Message = MessageSkipped
	}
	return st
}

type templateError struct {
	id   uint
	code int
	msg  string
}

// MigrateAll 迁移全部模板。单个模板失败不会影响其他模板，错误按模板 ID 排序记录在结果中。
// 只有读取模板列表失败时返回 error。
func (e *Engine) MigrateAll(ctx context.Context) (Result, error) {
	ids, err := e.store.ListTemplateIDs(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("migrate all: %w", err)
	}

	var (
		mu     sync.Mutex
		result = Result{TotalTemplates: len(ids), Errors: []string{}}
		failed []templateError
	)

	var g errgroup.Group
	g.SetLimit(e.workers)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			migrated, err := e.MigrateTemplate(ctx, id)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				result.ErrorCount++
				failed = append(failed, templateError{id: id, code: errcode.FromError(err), msg: err.Error()})
			case migrated:
				result.MigratedCount++
			default:
				result.SkippedCount++
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(failed, func(i, j int) bool { return failed[i].id < failed[j].id })
	for i, f := range failed {
		result.Errors = append(result.Errors, fmt.Sprintf("Template ID %d: %s", f.id, f.msg))
		switch {
		case i == 0:
			result.ErrorCode = f.code
		case f.code != result.ErrorCode:
			result.ErrorCode = errcode.MixedFailures
		}
	}

	e.logger.Info("legacy migration finished",
		"total", result.TotalTemplates,
		"migrated", result.MigratedCount,
		"skipped", result.SkippedCount,
		"errors", result.ErrorCount,
	)
	return result, nil
}
