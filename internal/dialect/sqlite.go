package dialect

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pimdb/pimdb/internal/schema"
)

// sqliteTimestampLayout is how timestamps are stored in SQLite: UTC text at
// microsecond precision, so values compare equal to what PostgreSQL returns.
const sqliteTimestampLayout = "2006-01-02 15:04:05.999999"

type sqliteDialect struct{}

// SQLite returns the dialect for the embedded SQLite backend.
func SQLite() Dialect { return sqliteDialect{} }

func (sqliteDialect) Name() string { return "sqlite" }

func (sqliteDialect) TypeName(t schema.LogicalType) (string, error) {
	switch t {
	case schema.TypeText:
		return "TEXT", nil
	case schema.TypeInteger:
		return "INTEGER", nil
	case schema.TypeBoolean:
		return "BOOLEAN", nil
	case schema.TypeTimestamp:
		return "TIMESTAMP", nil
	default:
		return "", fmt.Errorf("no sqlite mapping for %s: %w", t, ErrUnsupportedType)
	}
}

func (d sqliteDialect) CreateTableSQL(t *schema.Table) (string, error) {
	return createTableSQL(d, t)
}

func (sqliteDialect) Placeholder(int) string { return "?" }

func (sqliteDialect) TypeMatches(t schema.LogicalType, reported string) bool {
	return typeMatches(t, reported)
}

func (sqliteDialect) TableColumns(ctx context.Context, db *sql.DB, table string) ([]ColumnInfo, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []ColumnInfo
	for rows.Next() {
		var (
			cid, notNull, pk int
			name, colType    string
			defaultValue     sql.NullString
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &defaultValue, &pk); err != nil {
			return nil, err
		}
		columns = append(columns, ColumnInfo{
			Name:     name,
			Type:     colType,
			Nullable: notNull == 0,
		})
	}
	return columns, rows.Err()
}

func (sqliteDialect) BindValue(v schema.Value) any {
	if v.IsNull() {
		return nil
	}
	switch v.Kind() {
	case schema.TypeBoolean:
		// SQLite has no boolean storage class; 0/1 keeps the row set
		// comparable across backends.
		if v.Native().(bool) {
			return int64(1)
		}
		return int64(0)
	case schema.TypeTimestamp:
		return v.Native().(time.Time).Format(sqliteTimestampLayout)
	default:
		return v.Native()
	}
}
