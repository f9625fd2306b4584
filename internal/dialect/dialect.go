// Package dialect holds the per-driver-family SQL that the query client
// needs beyond plain statements: advisory locks, metadata lookups and
// truncation.
package dialect

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/AbdelilahOu/dbroute/internal/client"
)

// Dialect is the capability set of one driver family.
type Dialect interface {
	Name() string

	// Placeholder returns the bind marker for the n-th (1-based) argument.
	Placeholder(n int) string

	// Quote quotes a possibly schema-qualified identifier.
	Quote(ident string) string

	GetAdvisoryLock(ctx context.Context, q client.Queryer, key string) (bool, error)
	ReleaseAdvisoryLock(ctx context.Context, q client.Queryer, key string) (bool, error)

	GetAllTables(ctx context.Context, q client.Queryer, schemas []string) ([]string, error)
	GetColumns(ctx context.Context, q client.Queryer, table string) ([]Column, error)

	// TruncateSQL ignores cascade where the engine has no CASCADE.
	TruncateSQL(table string, cascade bool) string
}

type Column struct {
	Name         string  `json:"name"`
	Type         string  `json:"type"`
	MaxLength    *int64  `json:"max_length,omitempty"`
	Nullable     bool    `json:"nullable"`
	DefaultValue *string `json:"default_value,omitempty"`
	PrimaryKey   bool    `json:"primary_key"`
}

// For returns the dialect of a resolved driver.
func For(d client.Driver) (Dialect, error) {
	switch d.Family {
	case client.FamilyPostgres:
		return Postgres{}, nil
	case client.FamilyMySQL:
		return MySQL{}, nil
	case client.FamilySQLite:
		return SQLite{}, nil
	}
	return nil, fmt.Errorf("no dialect for driver family %q", d.Family)
}

func quoteWith(ident string, quote string) string {
	parts := strings.Split(ident, ".")
	for i, part := range parts {
		parts[i] = quote + strings.ReplaceAll(part, quote, quote+quote) + quote
	}
	return strings.Join(parts, ".")
}

// splitTable separates "schema.table" into its parts; schema is empty when
// unqualified.
func splitTable(table string) (schema, name string) {
	if i := strings.LastIndexByte(table, '.'); i >= 0 {
		return table[:i], table[i+1:]
	}
	return "", table
}

func placeholders(d Dialect, from, count int) string {
	marks := make([]string, count)
	for i := range marks {
		marks[i] = d.Placeholder(from + i)
	}
	return strings.Join(marks, ", ")
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func toArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}

func scanColumns(rows *sql.Rows) ([]Column, error) {
	defer rows.Close()

	var columns []Column
	for rows.Next() {
		var (
			col       Column
			maxLen    sql.NullInt64
			defaultV  sql.NullString
			nullable  bool
			isPrimary bool
		)
		if err := rows.Scan(&col.Name, &col.Type, &nullable, &defaultV, &maxLen, &isPrimary); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		col.Nullable = nullable
		col.PrimaryKey = isPrimary
		if maxLen.Valid {
			length := maxLen.Int64
			col.MaxLength = &length
		}
		if defaultV.Valid {
			value := defaultV.String
			col.DefaultValue = &value
		}
		columns = append(columns, col)
	}
	return columns, rows.Err()
}
