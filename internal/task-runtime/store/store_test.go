package store

import (
	"os"
	"strconv"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"task-runtime-service/internal/task-runtime/db"
)

func setupTestDB(t *testing.T) (*gorm.DB, func()) {
	dbFile := "test_store_" + strconv.FormatInt(time.Now().UnixNano(), 10) + ".db"
	_ = os.Remove(dbFile)

	gormDB, err := gorm.Open(sqlite.Open(dbFile), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	if err := gormDB.AutoMigrate(&db.TaskDefinition{}, &db.Trigger{}, &db.Document{}); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	cleanup := func() {
		sqlDB, err := gormDB.DB()
		if err == nil {
			_ = sqlDB.Close()
		}
		_ = os.Remove(dbFile)
	}
	return gormDB, cleanup
}
