package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ErrNotArchived 模板没有归档过旧版原文。
var ErrNotArchived = errors.New("legacy fields not archived")

// ObjectStore 是归档所需的最小对象存储能力，*Client 实现了它。
type ObjectStore interface {
	PutJSON(ctx context.Context, key string, data []byte, meta map[string]string) error
	GetJSON(ctx context.Context, key string) ([]byte, error)
}

// LegacyArchiver 在迁移前把模板的 coordinateFields 原文写入对象存储。
type LegacyArchiver struct {
	objects ObjectStore
	now     func() time.Time
}

func NewLegacyArchiver(objects ObjectStore) *LegacyArchiver {
	return &LegacyArchiver{objects: objects, now: time.Now}
}

// LegacyObjectKey 返回模板旧原文的对象键。
func LegacyObjectKey(templateID uint) string {
	return fmt.Sprintf("legacy/templates/%d/coordinate-fields.json", templateID)
}

// ArchiveLegacy 上传原文，重复归档会覆盖同一对象。
func (a *LegacyArchiver) ArchiveLegacy(ctx context.Context, templateID uint, blob []byte) error {
	meta := map[string]string{
		"template-id": strconv.FormatUint(uint64(templateID), 10),
		"archived-at": a.now().UTC().Format(time.RFC3339),
	}
	if err := a.objects.PutJSON(ctx, LegacyObjectKey(templateID), blob, meta); err != nil {
		return fmt.Errorf("archive template %d: %w", templateID, err)
	}
	return nil
}

// LoadLegacy 读取已归档的原文，对象不存在时返回 ErrNotArchived。
func (a *LegacyArchiver) LoadLegacy(ctx context.Context, templateID uint) ([]byte, error) {
	data, err := a.objects.GetJSON(ctx, LegacyObjectKey(templateID))
	if errors.Is(err, ErrObjectNotFound) {
		return nil, fmt.Errorf("template %d: %w", templateID, ErrNotArchived)
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}
