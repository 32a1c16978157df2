package core

import (
	"os"
	"testing"
)

// setupTempDB opens a fresh store rooted at a new temp directory and
// registers cleanup. Unlike its predecessor (a non-"_test.go" file of the
// same name, which shipped the testing import into ordinary builds), this
// lives in a real test file so `go build` never sees package testing.
func setupTempDB(t *testing.T, opts ...Option) (db *DB, dir string) {
	t.Helper()

	dir = t.TempDir()
	db, err := Open(dir, opts...)
	if err != nil {
		t.Fatalf("Open(%q) failed: %v", dir, err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return db, dir
}
