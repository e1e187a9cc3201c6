// Package loader orchestrates one bulk load: ensure every table schema in
// declared order, stream records into them, and commit once at the end.
// Any failure rolls the whole transaction back.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/pimdb/pimdb/internal/db"
	"github.com/pimdb/pimdb/internal/schema"
)

// ErrOrdering marks REFERENCE columns that point at a table not yet ensured.
var ErrOrdering = errors.New("table ordering")

// OrderingError reports a table declared before the table it references.
type OrderingError struct {
	Table string
	Ref   string
}

func (e *OrderingError) Error() string {
	return fmt.Sprintf("table %s references %s, which is not ensured before it", e.Table, e.Ref)
}

func (e *OrderingError) Unwrap() error { return ErrOrdering }

// RecordSource is a finite, single-pass stream of records. Next returns
// io.EOF once the stream is exhausted.
type RecordSource interface {
	Next() (schema.Record, error)
}

// Set pairs a table with the records destined for it. A nil Records means
// the table is ensured but nothing is loaded into it.
type Set struct {
	Table   *schema.Table
	Records RecordSource
}

type state int

const (
	stateNotStarted state = iota
	stateSchemasEnsured
	stateLoading
	stateCommitted
	stateRolledBack
)

func (s state) String() string {
	switch s {
	case stateNotStarted:
		return "not started"
	case stateSchemasEnsured:
		return "schemas ensured"
	case stateLoading:
		return "loading"
	case stateCommitted:
		return "committed"
	case stateRolledBack:
		return "rolled back"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Loader drives a single load over one session. It is single-use: after the
// load commits or rolls back, no further operation is permitted.
type Loader struct {
	session   *db.Session
	logger    *slog.Logger
	batchSize int
	state     state
	counts    map[string]int64
}

// New returns a loader over the session. If logger is nil, a discard logger
// is used.
func New(session *db.Session, logger *slog.Logger, batchSize int) *Loader {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Loader{
		session:   session,
		logger:    logger,
		batchSize: batchSize,
		counts:    make(map[string]int64),
	}
}

// RowCounts returns the number of records written per table. Only meaningful
// after Load committed.
func (l *Loader) RowCounts() map[string]int64 { return l.counts }

// checkOrdering verifies that every REFERENCE points at a table that appears
// earlier in sets, before any backend call is made. Self-references are
// allowed.
func checkOrdering(sets []Set) error {
	ensured := make(map[string]bool, len(sets))
	for _, set := range sets {
		for _, spec := range set.Table.Specs() {
			if spec.Type != schema.TypeReference {
				continue
			}
			if spec.RefTable != set.Table.Name() && !ensured[spec.RefTable] {
				return &OrderingError{Table: set.Table.Name(), Ref: spec.RefTable}
			}
		}
		ensured[set.Table.Name()] = true
	}
	return nil
}

// Load runs the full pass: ensure schemas in declared order, stream every
// set's records in fixed-size batches, then commit once. On any failure the
// transaction is rolled back in full and the returned error names the table
// and record position that failed. Cancellation is honored between batches.
func (l *Loader) Load(ctx context.Context, sets []Set) (err error) {
	if l.state != stateNotStarted {
		return fmt.Errorf("loader already used (state %s)", l.state)
	}
	if err := checkOrdering(sets); err != nil {
		l.state = stateRolledBack
		return err
	}

	if err := l.session.Begin(ctx); err != nil {
		l.state = stateRolledBack
		return err
	}
	defer func() {
		if err != nil {
			if rbErr := l.session.Rollback(); rbErr != nil {
				l.logger.Warn("rollback failed", "error", rbErr)
			}
			l.state = stateRolledBack
		}
	}()

	for _, set := range sets {
		if err := l.session.EnsureSchema(ctx, set.Table); err != nil {
			return fmt.Errorf("ensure schema %s: %w", set.Table.Name(), err)
		}
	}
	l.state = stateSchemasEnsured

	l.state = stateLoading
	for _, set := range sets {
		if set.Records == nil {
			continue
		}
		if err := l.loadSet(ctx, set); err != nil {
			return err
		}
	}

	if err := l.session.Commit(); err != nil {
		return err
	}
	l.state = stateCommitted
	return nil
}

// loadSet consumes one record stream, forwarding it to the session in
// batches of batchSize.
func (l *Loader) loadSet(ctx context.Context, set Set) error {
	table := set.Table
	var written int64
	batch := make([]schema.Record, 0, l.batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := l.session.InsertBatch(ctx, table, batch, l.batchSize); err != nil {
			return offsetWriteError(err, written)
		}
		written += int64(len(batch))
		batch = batch[:0]
		return nil
	}

	for {
		rec, err := set.Records.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read records for %s: %w", table.Name(), err)
		}
		batch = append(batch, rec)
		if len(batch) >= l.batchSize && l.batchSize > 0 {
			if err := flush(); err != nil {
				return err
			}
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("load %s: %w", table.Name(), err)
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}

	l.counts[table.Name()] = written
	l.logger.Info("table loaded", "table", table.Name(), "records", written)
	return nil
}

// offsetWriteError rebases a WriteError's index from the current batch to
// the whole stream.
func offsetWriteError(err error, offset int64) error {
	var writeErr *db.WriteError
	if errors.As(err, &writeErr) && offset > 0 {
		return &db.WriteError{
			Table: writeErr.Table,
			Index: writeErr.Index + int(offset),
			Err:   writeErr.Err,
		}
	}
	return err
}
