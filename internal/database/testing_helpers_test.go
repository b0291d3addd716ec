package database

import (
	"fmt"
	"strings"
	"testing"

	"greenweb/internal/domain"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_fk=1", name)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}

	// One connection keeps the shared in-memory database free of table locks.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.Exec("PRAGMA busy_timeout = 5000").Error; err != nil {
		t.Fatalf("set busy timeout: %v", err)
	}

	if _, err := SetupDB(WithExistingDB(db), WithMigrations(DefaultMigrations()...)); err != nil {
		t.Fatalf("setup database: %v", err)
	}

	t.Cleanup(func() {
		_ = sqlDB.Close()
		DB = nil
	})

	return db
}

func createProvider(t *testing.T, db *gorm.DB, provider domain.Provider) domain.Provider {
	t.Helper()
	if provider.Name == "" {
		provider.Name = "Provider"
	}
	if err := db.Create(&provider).Error; err != nil {
		t.Fatalf("create provider: %v", err)
	}
	return provider
}
