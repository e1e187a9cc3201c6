package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pimdb/pimdb/internal/dialect"
	"github.com/pimdb/pimdb/internal/schema"
)

const defaultBatchSize = 1000

// Session owns one backend connection and at most one in-flight transaction.
// It is scoped to a single load operation and must be released with Close on
// every exit path. A session is not safe for concurrent use.
type Session struct {
	db      *sql.DB
	tx      *sql.Tx
	dialect dialect.Dialect
	logger  *slog.Logger
	timeout time.Duration
}

// NewSession wraps an open connection with the given dialect. If logger is
// nil, a discard logger is used.
func NewSession(db *sql.DB, d dialect.Dialect, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Session{db: db, dialect: d, logger: logger}
}

// Dialect returns the dialect this session is bound to.
func (s *Session) Dialect() dialect.Dialect { return s.dialect }

// SetTimeout bounds every backend call with a deadline. Zero means no
// deadline. On expiry the call fails with a TimeoutError.
func (s *Session) SetTimeout(d time.Duration) { s.timeout = d }

// opContext derives the per-call context.
func (s *Session) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// execer routes statements through the open transaction when there is one.
func (s *Session) execer() interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
} {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// Begin opens the session's transaction. A session holds at most one.
func (s *Session) Begin(ctx context.Context) error {
	if s.tx != nil {
		return fmt.Errorf("session already has an open transaction")
	}
	opCtx, cancel := s.opContext(ctx)
	defer cancel()
	tx, err := s.db.BeginTx(opCtx, nil)
	if err != nil {
		return wrapTimeout("begin transaction", err)
	}
	s.tx = tx
	return nil
}

// Commit ends the open transaction, making all writes visible.
func (s *Session) Commit() error {
	if s.tx == nil {
		return fmt.Errorf("no open transaction to commit")
	}
	err := s.tx.Commit()
	s.tx = nil
	if err != nil {
		return wrapTimeout("commit", err)
	}
	return nil
}

// Rollback discards the open transaction. Calling it without one is a no-op
// so it can sit in defer chains.
func (s *Session) Rollback() error {
	if s.tx == nil {
		return nil
	}
	err := s.tx.Rollback()
	s.tx = nil
	if err != nil && err != sql.ErrTxDone {
		return err
	}
	return nil
}

// Close rolls back any open transaction and releases the connection.
func (s *Session) Close() error {
	rollbackErr := s.Rollback()
	closeErr := s.db.Close()
	if rollbackErr != nil {
		return rollbackErr
	}
	return closeErr
}

// EnsureSchema creates the table if it does not exist; if it does, the
// existing columns are introspected and compared against the declaration.
// A mismatch fails with a SchemaMismatchError naming the differing columns;
// an existing table is never altered.
func (s *Session) EnsureSchema(ctx context.Context, t *schema.Table) error {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	existing, err := s.dialect.TableColumns(opCtx, s.db, t.Name())
	if err != nil {
		return wrapTimeout(fmt.Sprintf("introspect table %s", t.Name()), err)
	}
	if len(existing) == 0 {
		return s.createTable(ctx, t)
	}
	return s.matchExisting(t, existing)
}

func (s *Session) createTable(ctx context.Context, t *schema.Table) error {
	stmt, err := s.dialect.CreateTableSQL(t)
	if err != nil {
		return err
	}
	s.logger.Debug("creating table", "table", t.Name(), "dialect", s.dialect.Name())
	opCtx, cancel := s.opContext(ctx)
	defer cancel()
	if _, err := s.execer().ExecContext(opCtx, stmt); err != nil {
		return wrapTimeout(fmt.Sprintf("create table %s", t.Name()), err)
	}
	return nil
}

// matchExisting compares introspected columns against the declaration,
// collecting every difference instead of stopping at the first.
func (s *Session) matchExisting(t *schema.Table, existing []dialect.ColumnInfo) error {
	byName := make(map[string]dialect.ColumnInfo, len(existing))
	for _, col := range existing {
		byName[col.Name] = col
	}

	var mismatches []string
	for _, spec := range t.Specs() {
		col, ok := byName[spec.Name]
		if !ok {
			mismatches = append(mismatches, fmt.Sprintf("%s: missing from existing table", spec.Name))
			continue
		}
		delete(byName, spec.Name)
		if !s.dialect.TypeMatches(spec.Kind, col.Type) {
			mismatches = append(mismatches,
				fmt.Sprintf("%s: declared %s, backend has %s", spec.Name, spec.Kind, col.Type))
		}
		wantNullable := spec.Nullable && !t.IsPrimaryKey(spec.Name)
		if wantNullable != col.Nullable {
			mismatches = append(mismatches,
				fmt.Sprintf("%s: declared nullable=%t, backend has nullable=%t", spec.Name, wantNullable, col.Nullable))
		}
	}
	for name := range byName {
		mismatches = append(mismatches, fmt.Sprintf("%s: not in declaration", name))
	}

	if len(mismatches) > 0 {
		return &SchemaMismatchError{Table: t.Name(), Columns: mismatches}
	}
	s.logger.Debug("table matches declaration", "table", t.Name())
	return nil
}

// insertSQL builds the INSERT statement for a table with the dialect's
// placeholder syntax.
func insertSQL(d dialect.Dialect, t *schema.Table) string {
	specs := t.Specs()
	names := make([]string, len(specs))
	placeholders := make([]string, len(specs))
	for i, spec := range specs {
		names[i] = spec.Name
		placeholders[i] = d.Placeholder(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		t.Name(), strings.Join(names, ", "), strings.Join(placeholders, ", "))
}

// InsertBatch validates each record against the declaration and writes the
// records in fixed-size batches inside the open transaction. It never
// commits; the caller owns the transaction boundary. Cancellation is checked
// between batches. On a backend rejection the returned WriteError carries
// the offending record's index within records.
func (s *Session) InsertBatch(ctx context.Context, t *schema.Table, records []schema.Record, batchSize int) error {
	if s.tx == nil {
		return fmt.Errorf("insert into %s: no open transaction", t.Name())
	}
	if len(records) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	specs := t.Specs()
	stmt, err := s.tx.PrepareContext(ctx, insertSQL(s.dialect, t))
	if err != nil {
		return wrapTimeout(fmt.Sprintf("prepare insert into %s", t.Name()), err)
	}
	defer stmt.Close()

	for start := 0; start < len(records); start += batchSize {
		if err := ctx.Err(); err != nil {
			return wrapTimeout(fmt.Sprintf("insert into %s", t.Name()), err)
		}
		end := min(start+batchSize, len(records))
		if err := s.insertOne(ctx, t, stmt, specs, records[start:end], start); err != nil {
			return err
		}
		s.logger.Debug("batch written", "table", t.Name(), "records", end)
	}
	return nil
}

func (s *Session) insertOne(ctx context.Context, t *schema.Table, stmt *sql.Stmt, specs []schema.ColumnSpec, batch []schema.Record, offset int) error {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	args := make([]any, len(specs))
	for i, rec := range batch {
		if err := t.ValidateRecord(rec); err != nil {
			return &WriteError{Table: t.Name(), Index: offset + i, Err: err}
		}
		for j, spec := range specs {
			v, ok := rec[spec.Name]
			if !ok {
				v = schema.Null()
			}
			args[j] = s.dialect.BindValue(v)
		}
		if _, err := stmt.ExecContext(opCtx, args...); err != nil {
			return &WriteError{Table: t.Name(), Index: offset + i, Err: wrapTimeout("insert", err)}
		}
	}
	return nil
}
