package dataset

import (
	"bufio"
	"compress/gzip"
	"io"
	"strings"
)

// TSVWriter writes gzipped tab-separated rows with a header line, the
// inverse of GzippedTSVReader. It exists for fixtures and tests; the real
// dumps come from the IMDb servers.
type TSVWriter struct {
	gz          *gzip.Writer
	buf         *bufio.Writer
	columns     []string
	wroteHeader bool
}

// NewTSVWriter writes rows with the given column order to w.
func NewTSVWriter(w io.Writer, columns []string) *TSVWriter {
	gz := gzip.NewWriter(w)
	return &TSVWriter{
		gz:      gz,
		buf:     bufio.NewWriter(gz),
		columns: columns,
	}
}

// Write appends one row. Columns missing from the map are written as \N.
func (w *TSVWriter) Write(row map[string]string) error {
	if !w.wroteHeader {
		if _, err := w.buf.WriteString(strings.Join(w.columns, "\t") + "\n"); err != nil {
			return err
		}
		w.wroteHeader = true
	}
	values := make([]string, len(w.columns))
	for i, col := range w.columns {
		v, ok := row[col]
		if !ok {
			v = nullField
		}
		values[i] = v
	}
	_, err := w.buf.WriteString(strings.Join(values, "\t") + "\n")
	return err
}

// Close flushes the stream. It does not close the underlying writer.
func (w *TSVWriter) Close() error {
	if err := w.buf.Flush(); err != nil {
		return err
	}
	return w.gz.Close()
}
