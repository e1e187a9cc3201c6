package schema

import (
	"fmt"
	"strconv"
	"time"
)

// Value is a tagged variant holding one typed cell. Records carry Values so
// that type checking happens at the schema boundary instead of being
// deferred to the backend.
type Value struct {
	kind      LogicalType
	null      bool
	text      string
	integer   int64
	boolean   bool
	timestamp time.Time
}

// Text returns a TEXT value.
func Text(s string) Value { return Value{kind: TypeText, text: s} }

// Int returns an INTEGER value.
func Int(i int64) Value { return Value{kind: TypeInteger, integer: i} }

// Bool returns a BOOLEAN value.
func Bool(b bool) Value { return Value{kind: TypeBoolean, boolean: b} }

// Timestamp returns a TIMESTAMP value. The moment is normalized to UTC at
// microsecond precision, the finest granularity both backends agree on.
func Timestamp(ts time.Time) Value {
	return Value{kind: TypeTimestamp, timestamp: ts.UTC().Truncate(time.Microsecond)}
}

// Null returns the null value. It carries no type and satisfies any
// nullable column.
func Null() Value { return Value{null: true} }

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return v.null }

// Kind returns the value's logical type. Meaningless for null values.
func (v Value) Kind() LogicalType { return v.kind }

// Native returns the value as the matching Go type: string, int64, bool,
// time.Time, or nil for null.
func (v Value) Native() any {
	if v.null {
		return nil
	}
	switch v.kind {
	case TypeText:
		return v.text
	case TypeInteger:
		return v.integer
	case TypeBoolean:
		return v.boolean
	case TypeTimestamp:
		return v.timestamp
	default:
		return nil
	}
}

func (v Value) String() string {
	if v.null {
		return "NULL"
	}
	return fmt.Sprintf("%v", v.Native())
}

// ParseValue converts dataset text into a typed value for the given column
// type. REFERENCE columns are parsed with the storage type of the referenced
// primary key, which the caller obtains from ColumnSpec.Kind.
func ParseValue(t LogicalType, s string) (Value, error) {
	switch t {
	case TypeText:
		return Text(s), nil
	case TypeInteger:
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("parse %q as INTEGER: %w", s, err)
		}
		return Int(i), nil
	case TypeBoolean:
		switch s {
		case "0", "false":
			return Bool(false), nil
		case "1", "true":
			return Bool(true), nil
		}
		return Value{}, fmt.Errorf("parse %q as BOOLEAN: want 0, 1, true or false", s)
	case TypeTimestamp:
		ts, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return Value{}, fmt.Errorf("parse %q as TIMESTAMP: %w", s, err)
		}
		return Timestamp(ts), nil
	default:
		return Value{}, fmt.Errorf("cannot parse value for type %s", t)
	}
}

// Record maps column names to values. Absent columns are treated as null.
type Record map[string]Value

// ValidateRecord checks a record against the table declaration: every value
// must belong to a declared column and type-check against it, and
// non-nullable columns must be present and non-null.
func (t *Table) ValidateRecord(rec Record) error {
	for name := range rec {
		if _, ok := t.index[name]; !ok {
			return &SchemaError{Table: t.name, Column: name, Reason: "value for undeclared column"}
		}
	}
	for _, spec := range t.specs {
		v, ok := rec[spec.Name]
		if !ok || v.IsNull() {
			if !spec.Nullable && !t.IsPrimaryKey(spec.Name) {
				return &SchemaError{Table: t.name, Column: spec.Name, Reason: "null value for NOT NULL column"}
			}
			if t.IsPrimaryKey(spec.Name) {
				return &SchemaError{Table: t.name, Column: spec.Name, Reason: "null value for primary key column"}
			}
			continue
		}
		if v.Kind() != spec.Kind {
			return &SchemaError{Table: t.name, Column: spec.Name,
				Reason: fmt.Sprintf("value of type %s for %s column", v.Kind(), spec.Kind)}
		}
	}
	return nil
}
