package dialect

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pimdb/pimdb/internal/schema"
)

type postgresDialect struct{}

// Postgres returns the dialect for the PostgreSQL backend.
func Postgres() Dialect { return postgresDialect{} }

func (postgresDialect) Name() string { return "postgres" }

func (postgresDialect) TypeName(t schema.LogicalType) (string, error) {
	switch t {
	case schema.TypeText:
		return "TEXT", nil
	case schema.TypeInteger:
		// Values are modeled as int64 throughout, so the widest integer
		// type is declared. TypeMatches accepts INTEGER as equivalent.
		return "BIGINT", nil
	case schema.TypeBoolean:
		return "BOOLEAN", nil
	case schema.TypeTimestamp:
		return "TIMESTAMP", nil
	default:
		return "", fmt.Errorf("no postgres mapping for %s: %w", t, ErrUnsupportedType)
	}
}

func (d postgresDialect) CreateTableSQL(t *schema.Table) (string, error) {
	return createTableSQL(d, t)
}

func (postgresDialect) Placeholder(i int) string { return fmt.Sprintf("$%d", i) }

func (postgresDialect) TypeMatches(t schema.LogicalType, reported string) bool {
	return typeMatches(t, reported)
}

func (postgresDialect) TableColumns(ctx context.Context, db *sql.DB, table string) ([]ColumnInfo, error) {
	query := `
		SELECT column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1
		ORDER BY ordinal_position
	`
	rows, err := db.QueryContext(ctx, query, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []ColumnInfo
	for rows.Next() {
		var col ColumnInfo
		var nullable string
		if err := rows.Scan(&col.Name, &col.Type, &nullable); err != nil {
			return nil, err
		}
		col.Nullable = nullable == "YES"
		columns = append(columns, col)
	}
	return columns, rows.Err()
}

func (postgresDialect) BindValue(v schema.Value) any {
	if v.IsNull() {
		return nil
	}
	// Timestamps are already normalized to UTC microseconds by the value
	// constructor; pgx stores time.Time natively.
	return v.Native()
}
