package dialect

import (
	"context"
	"fmt"
	"strconv"

	"github.com/AbdelilahOu/dbroute/internal/client"
)

type Postgres struct{}

func (Postgres) Name() string { return client.FamilyPostgres }

func (Postgres) Placeholder(n int) string { return "$" + strconv.Itoa(n) }

func (Postgres) Quote(ident string) string { return quoteWith(ident, `"`) }

// Advisory lock keys are hashed to the int4 space pg_try_advisory_lock
// accepts.
func (Postgres) GetAdvisoryLock(ctx context.Context, q client.Queryer, key string) (bool, error) {
	var ok bool
	if err := q.QueryRowContext(ctx, "SELECT pg_try_advisory_lock(hashtext($1))", key).Scan(&ok); err != nil {
		return false, fmt.Errorf("acquire advisory lock %q: %w", key, err)
	}
	return ok, nil
}

func (Postgres) ReleaseAdvisoryLock(ctx context.Context, q client.Queryer, key string) (bool, error) {
	var ok bool
	if err := q.QueryRowContext(ctx, "SELECT pg_advisory_unlock(hashtext($1))", key).Scan(&ok); err != nil {
		return false, fmt.Errorf("release advisory lock %q: %w", key, err)
	}
	return ok, nil
}

func (d Postgres) GetAllTables(ctx context.Context, q client.Queryer, schemas []string) ([]string, error) {
	if len(schemas) == 0 {
		schemas = []string{"public"}
	}

	query := `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_type = 'BASE TABLE'
			AND table_schema IN (` + placeholders(d, 1, len(schemas)) + `)
		ORDER BY table_name`

	rows, err := q.QueryContext(ctx, query, toArgs(schemas)...)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	return scanStrings(rows)
}

func (Postgres) GetColumns(ctx context.Context, q client.Queryer, table string) ([]Column, error) {
	schema, name := splitTable(table)

	schemaFilter := "current_schema()"
	args := []any{name}
	if schema != "" {
		schemaFilter = "$2"
		args = append(args, schema)
	}

	query := `
		SELECT
			c.column_name,
			c.data_type,
			CASE WHEN c.is_nullable = 'YES' THEN true ELSE false END AS is_nullable,
			c.column_default,
			c.character_maximum_length,
			CASE WHEN pk.column_name IS NOT NULL THEN true ELSE false END AS is_primary_key
		FROM information_schema.columns c
		LEFT JOIN (
			SELECT ku.column_name
			FROM information_schema.table_constraints tc
			JOIN information_schema.key_column_usage ku
				ON tc.constraint_name = ku.constraint_name
				AND tc.table_schema = ku.table_schema
			WHERE tc.constraint_type = 'PRIMARY KEY'
				AND tc.table_name = $1
				AND tc.table_schema = ` + schemaFilter + `
		) pk ON c.column_name = pk.column_name
		WHERE c.table_name = $1 AND c.table_schema = ` + schemaFilter + `
		ORDER BY c.ordinal_position`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query columns: %w", err)
	}
	return scanColumns(rows)
}

func (d Postgres) TruncateSQL(table string, cascade bool) string {
	stmt := "TRUNCATE " + d.Quote(table) + " RESTART IDENTITY"
	if cascade {
		stmt += " CASCADE"
	}
	return stmt
}
