// Package dialect translates the logical schema model into the SQL text and
// parameter syntax of one backend. A dialect is selected once, at session
// construction, from the connection URL scheme; nothing above this package
// branches on the backend per call.
package dialect

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/pimdb/pimdb/internal/schema"
)

// ErrUnsupportedType marks logical types a backend cannot represent.
var ErrUnsupportedType = errors.New("unsupported type")

// UnsupportedTypeError names the column and logical type the dialect has no
// mapping for.
type UnsupportedTypeError struct {
	Dialect string
	Table   string
	Column  string
	Type    schema.LogicalType
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("dialect %s: table %s: column %s: no mapping for type %s",
		e.Dialect, e.Table, e.Column, e.Type)
}

func (e *UnsupportedTypeError) Unwrap() error { return ErrUnsupportedType }

// ColumnInfo is one column as reported by backend introspection.
type ColumnInfo struct {
	Name     string
	Type     string
	Nullable bool
}

// Dialect maps the logical schema model onto one backend. Implementations
// are stateless and safe for concurrent use.
type Dialect interface {
	// Name returns the dialect name ("sqlite", "postgres").
	Name() string

	// TypeName returns the backend column type for a storage kind.
	TypeName(t schema.LogicalType) (string, error)

	// CreateTableSQL returns a deterministic CREATE TABLE IF NOT EXISTS
	// statement for the declaration.
	CreateTableSQL(t *schema.Table) (string, error)

	// Placeholder returns the bound-parameter marker for the i-th
	// parameter, 1-based.
	Placeholder(i int) string

	// TypeMatches reports whether a backend-reported column type is an
	// acceptable representation of the storage kind, modulo the backend's
	// type widening.
	TypeMatches(t schema.LogicalType, reported string) bool

	// TableColumns introspects an existing table. An empty result means
	// the table does not exist.
	TableColumns(ctx context.Context, db *sql.DB, table string) ([]ColumnInfo, error)

	// BindValue converts a value into the driver-level representation the
	// backend stores for it. This is where cross-backend normalization of
	// booleans and timestamps happens.
	BindValue(v schema.Value) any
}

// ForName returns the dialect with the given name.
func ForName(name string) (Dialect, error) {
	switch name {
	case "sqlite":
		return SQLite(), nil
	case "postgres":
		return Postgres(), nil
	default:
		return nil, fmt.Errorf("unknown dialect %q", name)
	}
}

// createTableSQL builds the shared CREATE TABLE shape; only type names come
// from the dialect. Primary key columns always get an explicit NOT NULL so
// both backends introspect them identically. REFERENCE columns are emitted
// as plain columns of the referenced key's type: SQLite does not enforce
// foreign keys by default while PostgreSQL always does, so a constraint in
// the DDL would make the backends diverge on partial loads.
func createTableSQL(d Dialect, t *schema.Table) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (", t.Name())
	for i, spec := range t.Specs() {
		if i > 0 {
			b.WriteString(", ")
		}
		typeName, err := d.TypeName(spec.Kind)
		if err != nil {
			return "", &UnsupportedTypeError{Dialect: d.Name(), Table: t.Name(), Column: spec.Name, Type: spec.Kind}
		}
		fmt.Fprintf(&b, "%s %s", spec.Name, typeName)
		if !spec.Nullable || t.IsPrimaryKey(spec.Name) {
			b.WriteString(" NOT NULL")
		}
	}
	fmt.Fprintf(&b, ", PRIMARY KEY (%s))", strings.Join(t.PrimaryKey(), ", "))
	return b.String(), nil
}

// normalizeReportedType upper-cases an introspected type and strips any size
// suffix, e.g. "character varying(255)" becomes "CHARACTER VARYING".
func normalizeReportedType(reported string) string {
	s := strings.ToUpper(strings.TrimSpace(reported))
	if i := strings.IndexByte(s, '('); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	return s
}

// typeEquivalents lists, per storage kind, every backend spelling accepted
// as equivalent. Shared by both dialects so the widening rules cannot drift
// apart.
var typeEquivalents = map[schema.LogicalType][]string{
	schema.TypeText:      {"TEXT", "VARCHAR", "CHARACTER VARYING", "CHAR", "CHARACTER", "CLOB"},
	schema.TypeInteger:   {"INTEGER", "INT", "BIGINT", "SMALLINT", "INT2", "INT4", "INT8"},
	schema.TypeBoolean:   {"BOOLEAN", "BOOL", "TINYINT"},
	schema.TypeTimestamp: {"TIMESTAMP", "TIMESTAMP WITHOUT TIME ZONE", "TIMESTAMPTZ", "TIMESTAMP WITH TIME ZONE", "DATETIME"},
}

func typeMatches(t schema.LogicalType, reported string) bool {
	normalized := normalizeReportedType(reported)
	for _, accepted := range typeEquivalents[t] {
		if normalized == accepted {
			return true
		}
	}
	return false
}
