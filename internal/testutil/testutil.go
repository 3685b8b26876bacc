// Package testutil provides shared test helpers for setting up stores and
// services over temporary directories.
package testutil

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/cdot/Squirrel-sub002/internal/storage"
)

// TestStore creates a temporary FS store.
func TestStore(t *testing.T) (string, *storage.FS) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, store
}

// TestSQLite creates a temporary SQLite blob store that is closed on cleanup.
func TestSQLite(t *testing.T) *storage.SQLite {
	t.Helper()
	db, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "cloud.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// Logger discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
