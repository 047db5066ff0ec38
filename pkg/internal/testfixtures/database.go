// Package testfixtures provides shared helpers for package tests.
package testfixtures

import (
	"testing"

	"git.solsynth.dev/hypernet/gathering/pkg/internal/database"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDatabase opens a migrated in-memory database. The pool is capped at a
// single connection, so concurrent transactions queue behind each other the
// way row locks would order them on Postgres.
func NewDatabase(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}

	raw, err := db.DB()
	if err != nil {
		t.Fatalf("raw database: %v", err)
	}
	raw.SetMaxOpenConns(1)
	raw.SetMaxIdleConns(1)
	raw.SetConnMaxLifetime(0)

	if err := database.RunMigration(db); err != nil {
		t.Fatalf("migrate database: %v", err)
	}

	t.Cleanup(func() {
		_ = raw.Close()
	})

	return db
}
