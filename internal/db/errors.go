package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSchemaMismatch marks existing tables that disagree with their
	// declaration.
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrWrite marks records the backend rejected.
	ErrWrite = errors.New("write rejected")

	// ErrTimeout marks backend calls that exceeded the caller's deadline.
	ErrTimeout = errors.New("operation timed out")
)

// SchemaMismatchError reports the columns on which an existing backend table
// disagrees with its declaration. The table is never altered to fit.
type SchemaMismatchError struct {
	Table   string
	Columns []string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("table %s does not match declaration: %s", e.Table, strings.Join(e.Columns, "; "))
}

func (e *SchemaMismatchError) Unwrap() error { return ErrSchemaMismatch }

// WriteError reports a rejected record and its position in the stream.
type WriteError struct {
	Table string
	Index int
	Err   error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("table %s: record %d: %v", e.Table, e.Index, e.Err)
}

func (e *WriteError) Unwrap() []error { return []error{ErrWrite, e.Err} }

// TimeoutError reports a backend call that hit its deadline.
type TimeoutError struct {
	Op  string
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TimeoutError) Unwrap() []error { return []error{ErrTimeout, e.Err} }

// wrapTimeout converts deadline expiry into a TimeoutError and leaves every
// other error untouched.
func wrapTimeout(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Op: op, Err: err}
	}
	return err
}
