package errcode

import (
	"errors"

	"docflow/internal/fields"
	"docflow/internal/geometry"
	"docflow/internal/legacy"
)

// 错误码约定：
// - 0：无错误
// - 4xxx：调用方错误，拒绝单个操作且不产生部分写入
// - 5xxx：系统错误（需要中断流程）
const (
	OK                    = 0
	InvalidInput          = 4000
	FieldTemplateMismatch = 4003
	NotFound              = 4004
	DuplicateKey          = 4009
	ConcurrentUpdate      = 4010
	InvalidGeometry       = 4022
	ParseFailure          = 4023
	MixedFailures         = 4200 // 批量迁移中各模板因不同原因失败
	SystemError           = 5000
)

// FromError 把领域错误映射为错误码，未知错误视为系统错误。
func FromError(err error) int {
	switch {
	case err == nil:
		return OK
	case errors.Is(err, fields.ErrNotFound):
		return NotFound
	case errors.Is(err, fields.ErrDuplicateKey):
		return DuplicateKey
	case errors.Is(err, geometry.ErrInvalidGeometry):
		return InvalidGeometry
	case errors.Is(err, fields.ErrFieldTemplateMismatch):
		return FieldTemplateMismatch
	case errors.Is(err, legacy.ErrParseFailure), errors.Is(err, legacy.ErrNotArray):
		return ParseFailure
	case errors.Is(err, fields.ErrConcurrentUpdate):
		return ConcurrentUpdate
	case errors.Is(err, fields.ErrInvalidInput):
		return InvalidInput
	default:
		return SystemError
	}
}
