// Package dbtest 为各包测试提供内存 SQLite 数据库。
package dbtest

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"docflow/internal/database"
)

var seq atomic.Int64

// Open 创建一个已完成 AutoMigrate 的独立内存库。
// 连接数固定为 1，避免 SQLite 共享缓存下的表锁冲突。
func Open(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, seq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap sqlite: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// SeedTemplate 插入一个模板，legacy 为旧版 coordinateFields 原文（可为空）。
func SeedTemplate(t *testing.T, db *gorm.DB, name, legacy string) database.Template {
	t.Helper()
	tpl := database.Template{Name: name, UserID: 1}
	if legacy != "" {
		tpl.CoordinateFields = []byte(legacy)
	}
	if err := db.Create(&tpl).Error; err != nil {
		t.Fatalf("seed template: %v", err)
	}
	return tpl
}

// SeedDocument 插入一个处于 editing 状态的文档。
func SeedDocument(t *testing.T, db *gorm.DB, templateID uint, data string) database.Document {
	t.Helper()
	doc := database.Document{TemplateID: templateID, Title: "doc", Status: database.DocumentStatusEditing}
	if data != "" {
		doc.Data = []byte(data)
	}
	if err := db.Create(&doc).Error; err != nil {
		t.Fatalf("seed document: %v", err)
	}
	return doc
}
