//go:build integration
// +build integration

package integration

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/pimdb/pimdb"
	"github.com/pimdb/pimdb/internal/dataset"
	"github.com/pimdb/pimdb/internal/db"
)

var allTables = []string{
	"dataset_load", "title_ratings", "title_principals", "title_crew",
	"title_akas", "title_basics", "name_basics",
}

// openRaw opens a plain database/sql handle for verification queries,
// bypassing the session layer.
func openRaw(t *testing.T, databaseURL string) *sql.DB {
	t.Helper()
	driver, dsn, _, err := db.ParseURL(databaseURL)
	if err != nil {
		t.Fatalf("Failed to parse database URL: %v", err)
	}
	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })
	return sqlDB
}

// dropTables resets the database so each test starts clean. Reference order
// matters: referencing tables go first.
func dropTables(t *testing.T, sqlDB *sql.DB) {
	t.Helper()
	for _, table := range allTables {
		if _, err := sqlDB.Exec("DROP TABLE IF EXISTS " + table); err != nil {
			t.Fatalf("Failed to drop table %s: %v", table, err)
		}
	}
}

func queryInt(t *testing.T, sqlDB *sql.DB, query string) int {
	t.Helper()
	var n int
	if err := sqlDB.QueryRow(query).Scan(&n); err != nil {
		t.Fatalf("Query %q failed: %v", query, err)
	}
	return n
}

// writeDump writes one gzipped TSV dump into dir.
func writeDump(t *testing.T, dir string, ds dataset.Name, columns []string, rows []map[string]string) {
	t.Helper()
	f, err := os.Create(filepath.Join(dir, ds.Filename()))
	if err != nil {
		t.Fatalf("Failed to create dump file: %v", err)
	}
	defer f.Close()

	w := dataset.NewTSVWriter(f, columns)
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			t.Fatalf("Failed to write dump row: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Failed to close dump writer: %v", err)
	}
}

// fixtureDir writes a small, consistent pair of dumps: two titles and their
// ratings, with one duplicated ratings row that must be dropped.
func fixtureDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeDump(t, dir, dataset.TitleBasics,
		[]string{"tconst", "titleType", "primaryTitle", "originalTitle",
			"isAdult", "startYear", "endYear", "runtimeMinutes", "genres"},
		[]map[string]string{
			{"tconst": "tt0000001", "titleType": "short", "primaryTitle": "Carmencita",
				"originalTitle": "Carmencita", "isAdult": "0", "startYear": "1894",
				"runtimeMinutes": "1", "genres": "Documentary,Short"},
			{"tconst": "tt0000002", "titleType": "short", "primaryTitle": "Le clown",
				"originalTitle": "Le clown et ses chiens", "isAdult": "0", "startYear": "1892",
				"runtimeMinutes": "5", "genres": "Animation,Short"},
		})
	writeDump(t, dir, dataset.TitleRatings,
		[]string{"tconst", "averageRating", "numVotes"},
		[]map[string]string{
			{"tconst": "tt0000001", "averageRating": "5.7", "numVotes": "2006"},
			{"tconst": "tt0000001", "averageRating": "9.9", "numVotes": "1"},
			{"tconst": "tt0000002", "averageRating": "6.1", "numVotes": "280"},
		})
	return dir
}

// runLoadSuite exercises the full load path against one backend. Both
// backends run the exact same suite; the asserted row sets must not differ.
func runLoadSuite(t *testing.T, databaseURL string) {
	ctx := context.Background()
	sqlDB := openRaw(t, databaseURL)

	t.Run("FullLoad", func(t *testing.T) {
		dropTables(t, sqlDB)
		opts := &pimdb.Options{
			Datasets: []string{"title.basics", "title.ratings"},
			DataDir:  fixtureDir(t),
		}
		if err := pimdb.LoadDatasets(ctx, databaseURL, opts); err != nil {
			t.Fatalf("Load failed: %v", err)
		}

		if n := queryInt(t, sqlDB, "SELECT count(*) FROM title_basics"); n != 2 {
			t.Errorf("Expected 2 title_basics rows, got %d", n)
		}
		if n := queryInt(t, sqlDB, "SELECT count(*) FROM title_ratings"); n != 2 {
			t.Errorf("Expected 2 title_ratings rows (duplicate dropped), got %d", n)
		}
		if n := queryInt(t, sqlDB, "SELECT count(*) FROM dataset_load"); n != 2 {
			t.Errorf("Expected 2 audit rows, got %d", n)
		}

		// The first occurrence of a duplicated key wins.
		var rating string
		err := sqlDB.QueryRow(
			"SELECT average_rating FROM title_ratings WHERE tconst = 'tt0000001'").Scan(&rating)
		if err != nil {
			t.Fatalf("Query failed: %v", err)
		}
		if rating != "5.7" {
			t.Errorf("Expected rating 5.7, got %s", rating)
		}
	})

	t.Run("PartialLoadEnsuresReferencedTables", func(t *testing.T) {
		dropTables(t, sqlDB)
		opts := &pimdb.Options{
			Datasets: []string{"title.ratings"},
			DataDir:  fixtureDir(t),
		}
		if err := pimdb.LoadDatasets(ctx, databaseURL, opts); err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if n := queryInt(t, sqlDB, "SELECT count(*) FROM title_basics"); n != 0 {
			t.Errorf("Referenced table should be ensured but empty, got %d rows", n)
		}
		if n := queryInt(t, sqlDB, "SELECT count(*) FROM title_ratings"); n != 2 {
			t.Errorf("Expected 2 title_ratings rows, got %d", n)
		}
	})

	t.Run("EnsureSchemasIsIdempotent", func(t *testing.T) {
		dropTables(t, sqlDB)
		if err := pimdb.EnsureSchemas(ctx, databaseURL, nil); err != nil {
			t.Fatalf("First ensure failed: %v", err)
		}
		if err := pimdb.EnsureSchemas(ctx, databaseURL, nil); err != nil {
			t.Fatalf("Second ensure failed: %v", err)
		}
	})

	t.Run("RejectsDivergedTable", func(t *testing.T) {
		dropTables(t, sqlDB)
		_, err := sqlDB.Exec("CREATE TABLE name_basics (nconst INTEGER NOT NULL, PRIMARY KEY (nconst))")
		if err != nil {
			t.Fatalf("Failed to create diverged table: %v", err)
		}
		err = pimdb.EnsureSchemas(ctx, databaseURL, &pimdb.Options{Datasets: []string{"name.basics"}})
		if !errors.Is(err, pimdb.ErrSchemaMismatch) {
			t.Errorf("Expected schema mismatch, got %v", err)
		}
	})

	t.Run("BadRecordRollsEverythingBack", func(t *testing.T) {
		dropTables(t, sqlDB)
		dir := t.TempDir()
		writeDump(t, dir, dataset.NameBasics,
			[]string{"nconst", "primaryName", "birthYear", "deathYear",
				"primaryProfession", "knownForTitles"},
			[]map[string]string{
				{"nconst": "nm0000001", "primaryName": "Fred Astaire", "birthYear": "1899"},
				{"nconst": "nm0000002", "primaryName": "Lauren Bacall", "birthYear": "192X"},
			})
		err := pimdb.LoadDatasets(ctx, databaseURL, &pimdb.Options{
			Datasets: []string{"name.basics"},
			DataDir:  dir,
		})
		if err == nil {
			t.Fatal("Expected load to fail on malformed birth year")
		}
		// Nothing may be visible after rollback, the table included.
		var n int
		if scanErr := sqlDB.QueryRow("SELECT count(*) FROM name_basics").Scan(&n); scanErr == nil && n != 0 {
			t.Errorf("Expected no persisted rows after rollback, got %d", n)
		}
	})
}
