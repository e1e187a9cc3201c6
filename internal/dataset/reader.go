package dataset

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pimdb/pimdb/internal/schema"
)

// progressInterval is how often a running read logs its row count.
const progressInterval = 3 * time.Second

// maxLineSize bounds a single TSV line; the IMDb dumps stay far below this.
const maxLineSize = 1 << 20

// nullField is how the dumps spell a missing value.
const nullField = `\N`

// RowError reports a malformed row with its position in the file.
type RowError struct {
	Path string
	Row  int
	Err  error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("%s (%d): %v", filepath.Base(e.Path), e.Row, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// GzippedTSVReader streams one dataset dump as typed records. Rows whose key
// columns repeat an earlier row are dropped and counted as duplicates. It is
// a single-pass loader.RecordSource.
type GzippedTSVReader struct {
	path    string
	dataset Name
	table   *schema.Table
	logger  *slog.Logger

	file    *os.File
	gz      *gzip.Reader
	scanner *bufio.Scanner

	fields   []field
	fieldIdx []int
	keyIdx   []int

	row          int
	dups         int
	seen         map[string]struct{}
	lastProgress time.Time
}

// OpenTSV opens the dump at path for the given dataset. The table must be
// the dataset's declaration from the registry; its resolved column kinds
// drive the value parsing. If logger is nil, a discard logger is used.
func OpenTSV(path string, ds Name, table *schema.Table, logger *slog.Logger) (*GzippedTSVReader, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	gz, err := gzip.NewReader(file)
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("open gzip %s: %w", path, err)
	}

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	r := &GzippedTSVReader{
		path:         path,
		dataset:      ds,
		table:        table,
		logger:       logger,
		file:         file,
		gz:           gz,
		scanner:      scanner,
		fields:       datasetFields[ds],
		seen:         make(map[string]struct{}),
		lastProgress: time.Now(),
	}
	if err := r.readHeader(); err != nil {
		_ = r.Close()
		return nil, err
	}
	return r, nil
}

// readHeader resolves the dump's column order against the declared fields.
func (r *GzippedTSVReader) readHeader() error {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return &RowError{Path: r.path, Row: 0, Err: err}
		}
		return &RowError{Path: r.path, Row: 0, Err: fmt.Errorf("missing header line")}
	}
	headers := strings.Split(r.scanner.Text(), "\t")
	index := make(map[string]int, len(headers))
	for i, h := range headers {
		index[h] = i
	}

	r.fieldIdx = make([]int, len(r.fields))
	for i, f := range r.fields {
		idx, ok := index[f.tsv]
		if !ok {
			return &RowError{Path: r.path, Row: 0, Err: fmt.Errorf("missing column %s", f.tsv)}
		}
		r.fieldIdx[i] = idx
	}
	for _, key := range r.dataset.KeyColumns() {
		idx, ok := index[key]
		if !ok {
			return &RowError{Path: r.path, Row: 0, Err: fmt.Errorf("missing key column %s", key)}
		}
		r.keyIdx = append(r.keyIdx, idx)
	}
	return nil
}

// Next returns the next non-duplicate record, or io.EOF once the dump is
// exhausted.
func (r *GzippedTSVReader) Next() (schema.Record, error) {
	for r.scanner.Scan() {
		r.row++
		parts := strings.Split(r.scanner.Text(), "\t")

		key, err := r.rowKey(parts)
		if err != nil {
			return nil, err
		}
		if _, dup := r.seen[key]; dup {
			r.dups++
			continue
		}
		r.seen[key] = struct{}{}

		rec, err := r.record(parts)
		if err != nil {
			return nil, err
		}
		r.progress()
		return rec, nil
	}
	if err := r.scanner.Err(); err != nil {
		return nil, &RowError{Path: r.path, Row: r.row, Err: err}
	}
	r.logger.Info("dataset file processed",
		"path", r.path, "rows", r.row, "duplicates", r.dups)
	return nil, io.EOF
}

func (r *GzippedTSVReader) rowKey(parts []string) (string, error) {
	var key strings.Builder
	for _, idx := range r.keyIdx {
		if idx >= len(parts) {
			return "", &RowError{Path: r.path, Row: r.row, Err: fmt.Errorf("row has %d columns, key needs column %d", len(parts), idx+1)}
		}
		key.WriteString(parts[idx])
		key.WriteByte('\t')
	}
	return key.String(), nil
}

func (r *GzippedTSVReader) record(parts []string) (schema.Record, error) {
	rec := make(schema.Record, len(r.fields))
	for i, f := range r.fields {
		idx := r.fieldIdx[i]
		if idx >= len(parts) {
			return nil, &RowError{Path: r.path, Row: r.row, Err: fmt.Errorf("row has %d columns, want %d", len(parts), idx+1)}
		}
		raw := parts[idx]
		if raw == nullField {
			rec[f.column.Name] = schema.Null()
			continue
		}
		spec, _ := r.table.Spec(f.column.Name)
		v, err := schema.ParseValue(spec.Kind, raw)
		if err != nil {
			return nil, &RowError{Path: r.path, Row: r.row, Err: fmt.Errorf("column %s: %w", f.column.Name, err)}
		}
		rec[f.column.Name] = v
	}
	return rec, nil
}

func (r *GzippedTSVReader) progress() {
	if time.Since(r.lastProgress) < progressInterval {
		return
	}
	r.lastProgress = time.Now()
	r.logger.Info("processing dataset file",
		"path", r.path, "rows", r.row, "duplicates", r.dups)
}

// Rows returns the number of data rows read so far, duplicates included.
func (r *GzippedTSVReader) Rows() int { return r.row }

// Duplicates returns the number of rows dropped for repeating a key.
func (r *GzippedTSVReader) Duplicates() int { return r.dups }

// Close releases the underlying file.
func (r *GzippedTSVReader) Close() error {
	gzErr := r.gz.Close()
	fileErr := r.file.Close()
	if gzErr != nil {
		return gzErr
	}
	return fileErr
}
