package database

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// 文档状态流转：editing -> review -> signing -> complete。
const (
	DocumentStatusEditing  = "editing"
	DocumentStatusReview   = "review"
	DocumentStatusSigning  = "signing"
	DocumentStatusComplete = "complete"
)

// Template 表示上传的 PDF 模板。
// CoordinateFields 是旧版的自由格式字段数组（像素坐标），迁移后由 TemplateField 取代。
type Template struct {
	gorm.Model
	Name             string         `gorm:"size:255"`
	PDFObjectKey     string         `gorm:"size:512"`
	CoordinateFields datatypes.JSON `gorm:"type:jsonb"`
	UserID           uint           `gorm:"index"`
}

// Document 是基于模板创建的一份文档。
// Data 中可能仍保存旧版的 {"coordinateFields": [...]} 字段值。
type Document struct {
	gorm.Model
	TemplateID uint           `gorm:"index;not null"`
	Title      string         `gorm:"size:255"`
	Status     string         `gorm:"size:32"`
	Data       datatypes.JSON `gorm:"type:jsonb"`
}

// TemplateField 是模板上按页面比例定位的输入槽位，(TemplateID, FieldKey) 唯一。
// 不使用软删除：被删除的 FieldKey 必须可以重新创建。
type TemplateField struct {
	ID         uint    `gorm:"primaryKey"`
	TemplateID uint    `gorm:"not null;uniqueIndex:idx_template_field_key,priority:1"`
	FieldKey   string  `gorm:"size:255;not null;uniqueIndex:idx_template_field_key,priority:2"`
	Label      string  `gorm:"size:255;not null"`
	Required   bool    `gorm:"not null"`
	Page       int     `gorm:"not null"`
	X          float64 `gorm:"type:numeric(10,8);not null"`
	Y          float64 `gorm:"type:numeric(10,8);not null"`
	Width      float64 `gorm:"type:numeric(10,8);not null"`
	Height     float64 `gorm:"type:numeric(10,8);not null"`
	Version    int     `gorm:"not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// DocumentFieldValue 保存某文档在某模板字段上的值，(DocumentID, TemplateFieldID) 唯一。
type DocumentFieldValue struct {
	ID              uint           `gorm:"primaryKey"`
	DocumentID      uint           `gorm:"not null;uniqueIndex:idx_document_field_value,priority:1"`
	TemplateFieldID uint           `gorm:"not null;uniqueIndex:idx_document_field_value,priority:2;index"`
	Value           *string        `gorm:"type:text"`
	ValueRaw        datatypes.JSON `gorm:"type:jsonb"`
	UpdatedAt       time.Time
}

// Models 返回需要 AutoMigrate 的全部模型。
func Models() []any {
	return []any{
		&Template{},
		&Document{},
		&TemplateField{},
		&DocumentFieldValue{},
	}
}
