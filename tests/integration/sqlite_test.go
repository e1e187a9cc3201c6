//go:build integration
// +build integration

package integration

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSQLiteLoad(t *testing.T) {
	// Use environment variable if set, otherwise use a temporary file
	databaseURL := os.Getenv("SQLITE_TEST_URL")
	if databaseURL == "" {
		databaseURL = "sqlite://" + filepath.Join(t.TempDir(), "integration.db")
	}

	runLoadSuite(t, databaseURL)
}
