package fields

import (
	"errors"

	"gorm.io/gorm"
)

var (
	// ErrNotFound 模板、字段、文档或字段值不存在。
	ErrNotFound = errors.New("not found")
	// ErrDuplicateKey 同一模板下 fieldKey 重复。
	ErrDuplicateKey = errors.New("field key already exists in this template")
	// ErrFieldTemplateMismatch 字段不属于文档所用的模板，防止跨模板写值。
	ErrFieldTemplateMismatch = errors.New("template field does not belong to document's template")
	// ErrConcurrentUpdate 乐观锁版本号已变化。
	ErrConcurrentUpdate = errors.New("template field was modified concurrently")
	// ErrInvalidInput 必填参数缺失。
	ErrInvalidInput = errors.New("invalid input")
)

func notFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

func isDuplicate(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
