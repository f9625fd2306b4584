package dialect

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/AbdelilahOu/dbroute/internal/client"
)

type MySQL struct{}

func (MySQL) Name() string { return client.FamilyMySQL }

func (MySQL) Placeholder(int) string { return "?" }

func (MySQL) Quote(ident string) string { return quoteWith(ident, "`") }

// GET_LOCK returns 1 on success, 0 on timeout and NULL on error.
func (MySQL) GetAdvisoryLock(ctx context.Context, q client.Queryer, key string) (bool, error) {
	var status sql.NullInt64
	if err := q.QueryRowContext(ctx, "SELECT GET_LOCK(?, 0)", key).Scan(&status); err != nil {
		return false, fmt.Errorf("acquire advisory lock %q: %w", key, err)
	}
	return status.Valid && status.Int64 == 1, nil
}

func (MySQL) ReleaseAdvisoryLock(ctx context.Context, q client.Queryer, key string) (bool, error) {
	var status sql.NullInt64
	if err := q.QueryRowContext(ctx, "SELECT RELEASE_LOCK(?)", key).Scan(&status); err != nil {
		return false, fmt.Errorf("release advisory lock %q: %w", key, err)
	}
	return status.Valid && status.Int64 == 1, nil
}

// GetAllTables lists tables of the given schemas, or of the current
// database when none are given.
func (d MySQL) GetAllTables(ctx context.Context, q client.Queryer, schemas []string) ([]string, error) {
	schemaFilter := "table_schema = DATABASE()"
	if len(schemas) > 0 {
		schemaFilter = "table_schema IN (" + placeholders(d, 1, len(schemas)) + ")"
	}

	query := `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_type = 'BASE TABLE'
			AND ` + schemaFilter + `
		ORDER BY table_name`

	rows, err := q.QueryContext(ctx, query, toArgs(schemas)...)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	return scanStrings(rows)
}

func (MySQL) GetColumns(ctx context.Context, q client.Queryer, table string) ([]Column, error) {
	schema, name := splitTable(table)

	schemaFilter := "DATABASE()"
	args := []any{name}
	if schema != "" {
		schemaFilter = "?"
		args = append(args, schema)
	}

	query := `
		SELECT
			COLUMN_NAME AS column_name,
			DATA_TYPE AS data_type,
			CASE WHEN IS_NULLABLE = 'YES' THEN true ELSE false END AS is_nullable,
			COLUMN_DEFAULT AS default_value,
			CHARACTER_MAXIMUM_LENGTH AS character_maximum_length,
			CASE WHEN COLUMN_KEY = 'PRI' THEN true ELSE false END AS is_primary_key
		FROM information_schema.columns
		WHERE table_name = ? AND table_schema = ` + schemaFilter + `
		ORDER BY ordinal_position`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query columns: %w", err)
	}
	return scanColumns(rows)
}

func (d MySQL) TruncateSQL(table string, _ bool) string {
	return "TRUNCATE TABLE " + d.Quote(table)
}
