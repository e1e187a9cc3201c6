// Package schema declares table structures independent of any SQL backend.
//
// A Table is built through a Registry, which resolves REFERENCE columns
// against previously declared tables and rejects malformed declarations at
// construction time rather than at write time. Tables and columns are
// immutable once constructed and may be shared read-only across sessions.
package schema

import (
	"errors"
	"fmt"
)

// ErrSchema marks malformed schema declarations and invalid records.
var ErrSchema = errors.New("schema error")

// LogicalType is a backend-independent column type.
type LogicalType int

const (
	TypeText LogicalType = iota
	TypeInteger
	TypeBoolean
	TypeTimestamp
	// TypeReference stores the primary key of another table. Its storage
	// type is that of the referenced primary key column.
	TypeReference
)

func (t LogicalType) String() string {
	switch t {
	case TypeText:
		return "TEXT"
	case TypeInteger:
		return "INTEGER"
	case TypeBoolean:
		return "BOOLEAN"
	case TypeTimestamp:
		return "TIMESTAMP"
	case TypeReference:
		return "REFERENCE"
	default:
		return fmt.Sprintf("LogicalType(%d)", int(t))
	}
}

// Column declares a single table column.
type Column struct {
	Name     string
	Type     LogicalType
	Nullable bool
	// RefTable names the table whose primary key this column references.
	// Must be set exactly when Type is TypeReference.
	RefTable string
}

// ColumnSpec is a column with its reference resolved against the registry.
type ColumnSpec struct {
	Column
	// Kind is the storage type: identical to Column.Type except for
	// REFERENCE columns, where it is the referenced primary key's type.
	Kind LogicalType
	// RefColumn is the referenced primary key column, for REFERENCE columns.
	RefColumn string
}

// SchemaError reports a malformed table declaration or an invalid record.
type SchemaError struct {
	Table  string
	Column string
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("table %s: column %s: %s", e.Table, e.Column, e.Reason)
	}
	return fmt.Sprintf("table %s: %s", e.Table, e.Reason)
}

func (e *SchemaError) Unwrap() error { return ErrSchema }

// Table is an ordered set of columns plus a primary key declaration.
// Construct through Registry.NewTable; the zero value is not usable.
type Table struct {
	name       string
	specs      []ColumnSpec
	primaryKey []string
	index      map[string]int
}

// Name returns the table name.
func (t *Table) Name() string { return t.name }

// Specs returns the ordered, reference-resolved column list.
// The returned slice must not be modified.
func (t *Table) Specs() []ColumnSpec { return t.specs }

// PrimaryKey returns the primary key column names in declaration order.
func (t *Table) PrimaryKey() []string { return t.primaryKey }

// Spec returns the resolved column with the given name.
func (t *Table) Spec(name string) (ColumnSpec, bool) {
	i, ok := t.index[name]
	if !ok {
		return ColumnSpec{}, false
	}
	return t.specs[i], true
}

// IsPrimaryKey reports whether name is part of the primary key.
func (t *Table) IsPrimaryKey(name string) bool {
	for _, pk := range t.primaryKey {
		if pk == name {
			return true
		}
	}
	return false
}

// Equal reports whether both declarations describe the same table shape:
// same name, same ordered (name, type, nullability) columns and the same
// primary key. Backend-independent.
func (t *Table) Equal(o *Table) bool {
	if o == nil || t.name != o.name || len(t.specs) != len(o.specs) || len(t.primaryKey) != len(o.primaryKey) {
		return false
	}
	for i, s := range t.specs {
		os := o.specs[i]
		if s.Name != os.Name || s.Type != os.Type || s.Nullable != os.Nullable {
			return false
		}
	}
	for i, pk := range t.primaryKey {
		if pk != o.primaryKey[i] {
			return false
		}
	}
	return true
}

// Registry holds the tables known to one database declaration. It is passed
// explicitly rather than kept as process-wide state so concurrent loaders
// stay independent.
type Registry struct {
	tables map[string]*Table
	order  []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tables: make(map[string]*Table)}
}

// Table returns a previously declared table.
func (r *Registry) Table(name string) (*Table, bool) {
	t, ok := r.tables[name]
	return t, ok
}

// Tables returns all declared tables in declaration order.
func (r *Registry) Tables() []*Table {
	out := make([]*Table, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tables[name])
	}
	return out
}

// NewTable validates a declaration, registers it and returns it. REFERENCE
// columns must name a table already declared in this registry with a
// single-column primary key. Fails fast with a SchemaError; nothing is
// registered on failure.
func (r *Registry) NewTable(name string, columns []Column, primaryKey ...string) (*Table, error) {
	if name == "" {
		return nil, &SchemaError{Table: name, Reason: "table name must not be empty"}
	}
	if _, ok := r.tables[name]; ok {
		return nil, &SchemaError{Table: name, Reason: "table already declared"}
	}
	if len(columns) == 0 {
		return nil, &SchemaError{Table: name, Reason: "table must have at least one column"}
	}
	if len(primaryKey) == 0 {
		return nil, &SchemaError{Table: name, Reason: "table must declare a primary key"}
	}

	t := &Table{
		name:       name,
		specs:      make([]ColumnSpec, 0, len(columns)),
		primaryKey: primaryKey,
		index:      make(map[string]int, len(columns)),
	}
	for _, col := range columns {
		if col.Name == "" {
			return nil, &SchemaError{Table: name, Reason: "column name must not be empty"}
		}
		if _, dup := t.index[col.Name]; dup {
			return nil, &SchemaError{Table: name, Column: col.Name, Reason: "duplicate column name"}
		}
		spec, err := r.resolve(name, col)
		if err != nil {
			return nil, err
		}
		t.index[col.Name] = len(t.specs)
		t.specs = append(t.specs, spec)
	}
	for _, pk := range primaryKey {
		if _, ok := t.index[pk]; !ok {
			return nil, &SchemaError{Table: name, Column: pk, Reason: "primary key column not declared"}
		}
	}

	r.tables[name] = t
	r.order = append(r.order, name)
	return t, nil
}

// resolve turns a declared column into its storage spec, chasing REFERENCE
// columns to the referenced primary key.
func (r *Registry) resolve(table string, col Column) (ColumnSpec, error) {
	spec := ColumnSpec{Column: col, Kind: col.Type}
	if col.Type != TypeReference {
		if col.RefTable != "" {
			return ColumnSpec{}, &SchemaError{Table: table, Column: col.Name,
				Reason: "RefTable set on a non-REFERENCE column"}
		}
		return spec, nil
	}
	if col.RefTable == "" {
		return ColumnSpec{}, &SchemaError{Table: table, Column: col.Name,
			Reason: "REFERENCE column must name a referenced table"}
	}
	ref, ok := r.tables[col.RefTable]
	if !ok {
		return ColumnSpec{}, &SchemaError{Table: table, Column: col.Name,
			Reason: fmt.Sprintf("REFERENCE to unknown table %s", col.RefTable)}
	}
	if len(ref.primaryKey) != 1 {
		return ColumnSpec{}, &SchemaError{Table: table, Column: col.Name,
			Reason: fmt.Sprintf("REFERENCE to table %s with composite primary key", col.RefTable)}
	}
	pkSpec, _ := ref.Spec(ref.primaryKey[0])
	spec.Kind = pkSpec.Kind
	spec.RefColumn = pkSpec.Name
	return spec, nil
}
