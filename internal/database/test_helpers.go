package database

import (
	"path/filepath"
	"testing"
)

func setupTestDB(t *testing.T) (*DB, func()) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "clipsight_test.db")
	db, err := NewDB(Config{Type: "sqlite", SQLitePath: dbPath})
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	cleanup := func() {
		db.Close()
	}

	return db, cleanup
}
