package dataset

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pimdb/pimdb/internal/schema"
)

// writeDump writes rows as a gzipped TSV dump with the given header columns
// and returns the file path.
func writeDump(t *testing.T, filename string, columns []string, rows []map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), filename)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := NewTSVWriter(f, columns)
	for _, row := range rows {
		require.NoError(t, w.Write(row))
	}
	require.NoError(t, w.Close())
	return path
}

func ratingsTable(t *testing.T) *schema.Table {
	t.Helper()
	reg, err := BuildRegistry(Expand([]Name{TitleRatings}))
	require.NoError(t, err)
	table, ok := reg.Table("title_ratings")
	require.True(t, ok)
	return table
}

func drain(t *testing.T, r *GzippedTSVReader) []schema.Record {
	t.Helper()
	var out []schema.Record
	for {
		rec, err := r.Next()
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, rec)
	}
}

func TestReaderRoundTrip(t *testing.T) {
	columns := []string{"tconst", "averageRating", "numVotes"}
	path := writeDump(t, TitleRatings.Filename(), columns, []map[string]string{
		{"tconst": "tt0000001", "averageRating": "5.7", "numVotes": "2006"},
		{"tconst": "tt0000002", "averageRating": "6.1", "numVotes": "280"},
	})

	r, err := OpenTSV(path, TitleRatings, ratingsTable(t), nil)
	require.NoError(t, err)
	defer r.Close()

	records := drain(t, r)
	require.Len(t, records, 2)
	assert.Equal(t, "tt0000001", records[0]["tconst"].Native())
	assert.Equal(t, "5.7", records[0]["average_rating"].Native(), "ratings stay exact decimal text")
	assert.Equal(t, int64(2006), records[0]["num_votes"].Native())
	assert.Equal(t, 2, r.Rows())
	assert.Equal(t, 0, r.Duplicates())
}

func TestReaderDropsDuplicateKeys(t *testing.T) {
	columns := []string{"tconst", "averageRating", "numVotes"}
	path := writeDump(t, TitleRatings.Filename(), columns, []map[string]string{
		{"tconst": "tt0000001", "averageRating": "5.7", "numVotes": "100"},
		{"tconst": "tt0000001", "averageRating": "9.9", "numVotes": "200"},
		{"tconst": "tt0000002", "averageRating": "6.1", "numVotes": "300"},
	})

	r, err := OpenTSV(path, TitleRatings, ratingsTable(t), nil)
	require.NoError(t, err)
	defer r.Close()

	records := drain(t, r)
	require.Len(t, records, 2)
	// The first occurrence wins.
	assert.Equal(t, "5.7", records[0]["average_rating"].Native())
	assert.Equal(t, "tt0000002", records[1]["tconst"].Native())
	assert.Equal(t, 3, r.Rows())
	assert.Equal(t, 1, r.Duplicates())
}

func TestReaderCompositeKey(t *testing.T) {
	// title.principals deduplicates on (nconst, tconst), not its primary
	// key, matching the shape of the dumps.
	reg, err := BuildRegistry(Expand([]Name{TitlePrincipals}))
	require.NoError(t, err)
	table, ok := reg.Table("title_principals")
	require.True(t, ok)

	columns := []string{"tconst", "ordering", "nconst", "category", "job", "characters"}
	path := writeDump(t, TitlePrincipals.Filename(), columns, []map[string]string{
		{"tconst": "tt1", "ordering": "1", "nconst": "nm1", "category": "actor"},
		{"tconst": "tt1", "ordering": "2", "nconst": "nm1", "category": "director"},
		{"tconst": "tt2", "ordering": "1", "nconst": "nm1", "category": "actor"},
	})

	r, err := OpenTSV(path, TitlePrincipals, table, nil)
	require.NoError(t, err)
	defer r.Close()

	records := drain(t, r)
	require.Len(t, records, 2, "second row repeats (nm1, tt1)")
	assert.Equal(t, 1, r.Duplicates())
}

func TestReaderParsesNullsAndTypes(t *testing.T) {
	reg, err := BuildRegistry([]Name{TitleBasics})
	require.NoError(t, err)
	table, ok := reg.Table("title_basics")
	require.True(t, ok)

	columns := []string{"tconst", "titleType", "primaryTitle", "originalTitle",
		"isAdult", "startYear", "endYear", "runtimeMinutes", "genres"}
	path := writeDump(t, TitleBasics.Filename(), columns, []map[string]string{
		{
			"tconst": "tt0000001", "titleType": "short",
			"primaryTitle": "Carmencita", "originalTitle": "Carmencita",
			"isAdult": "0", "startYear": "1894",
			// endYear and runtimeMinutes omitted, written as \N.
			"genres": "Documentary,Short",
		},
	})

	r, err := OpenTSV(path, TitleBasics, table, nil)
	require.NoError(t, err)
	defer r.Close()

	records := drain(t, r)
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, false, rec["is_adult"].Native())
	assert.Equal(t, int64(1894), rec["start_year"].Native())
	assert.True(t, rec["end_year"].IsNull())
	assert.True(t, rec["runtime_minutes"].IsNull())

	require.NoError(t, table.ValidateRecord(rec))
}

func TestReaderRejectsBadValues(t *testing.T) {
	columns := []string{"tconst", "averageRating", "numVotes"}
	path := writeDump(t, TitleRatings.Filename(), columns, []map[string]string{
		{"tconst": "tt0000001", "averageRating": "5.7", "numVotes": "many"},
	})

	r, err := OpenTSV(path, TitleRatings, ratingsTable(t), nil)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Next()
	require.Error(t, err)

	var rowErr *RowError
	require.ErrorAs(t, err, &rowErr)
	assert.Equal(t, 1, rowErr.Row)
	assert.Contains(t, err.Error(), "num_votes")
}

func TestReaderHeaderValidation(t *testing.T) {
	t.Run("reordered columns are fine", func(t *testing.T) {
		columns := []string{"numVotes", "tconst", "averageRating"}
		path := writeDump(t, TitleRatings.Filename(), columns, []map[string]string{
			{"numVotes": "12", "tconst": "tt0000001", "averageRating": "5.7"},
		})
		r, err := OpenTSV(path, TitleRatings, ratingsTable(t), nil)
		require.NoError(t, err)
		defer r.Close()

		records := drain(t, r)
		require.Len(t, records, 1)
		assert.Equal(t, int64(12), records[0]["num_votes"].Native())
	})

	t.Run("missing column fails on open", func(t *testing.T) {
		columns := []string{"tconst", "averageRating"}
		path := writeDump(t, TitleRatings.Filename(), columns, []map[string]string{
			{"tconst": "tt0000001", "averageRating": "5.7"},
		})
		_, err := OpenTSV(path, TitleRatings, ratingsTable(t), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "numVotes")
	})

	t.Run("empty file fails on open", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), TitleRatings.Filename())
		f, err := os.Create(path)
		require.NoError(t, err)
		w := NewTSVWriter(f, nil)
		require.NoError(t, w.Close())
		require.NoError(t, f.Close())

		_, err = OpenTSV(path, TitleRatings, ratingsTable(t), nil)
		require.Error(t, err)
	})
}

func TestRowErrorFormat(t *testing.T) {
	err := &RowError{Path: "/data/title.ratings.tsv.gz", Row: 41, Err: io.ErrUnexpectedEOF}
	assert.Equal(t, "title.ratings.tsv.gz (41): unexpected EOF", err.Error())
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestTimestampsSurviveRoundTrip(t *testing.T) {
	// Audit rows written back out as TSV parse to the same instant.
	ts := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	v, err := schema.ParseValue(schema.TypeTimestamp, ts.Format(time.RFC3339Nano))
	require.NoError(t, err)
	assert.Equal(t, ts, v.Native())
}
