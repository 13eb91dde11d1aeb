// Package dbtest 为测试准备独立的 SQLite 库。
package dbtest

import (
	"path/filepath"
	"testing"

	"gorm.io/gorm"

	"season_pass/internal/database"
)

// New 在临时目录建库并迁移，测试结束自动关闭。
func New(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := database.Open("sqlite", filepath.Join(t.TempDir(), "test.db")+"?_busy_timeout=5000")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}
