// Package storetest opens throwaway in-memory SQLite stores for tests.
package storetest

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"nexosql-backend/internal/store/gormstore"
)

// Open returns a migrated, isolated in-memory database and a store over it.
func Open(t testing.TB) (*gorm.DB, *gormstore.Store) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", uuid.NewString())
	db, err := gormstore.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("opening sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := gormstore.Migrate(db); err != nil {
		t.Fatalf("migrating: %v", err)
	}
	return db, gormstore.New(db)
}
