package dialect

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/AbdelilahOu/dbroute/internal/client"
)

// SQLite is the embedded file database. It has no advisory locks; lock calls
// succeed without doing anything.
type SQLite struct{}

func (SQLite) Name() string { return client.FamilySQLite }

func (SQLite) Placeholder(int) string { return "?" }

func (SQLite) Quote(ident string) string { return quoteWith(ident, `"`) }

func (SQLite) GetAdvisoryLock(context.Context, client.Queryer, string) (bool, error) {
	return true, nil
}

func (SQLite) ReleaseAdvisoryLock(context.Context, client.Queryer, string) (bool, error) {
	return true, nil
}

// GetAllTables ignores schemas; a sqlite file has a single namespace.
func (SQLite) GetAllTables(ctx context.Context, q client.Queryer, _ []string) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	return scanStrings(rows)
}

func (d SQLite) GetColumns(ctx context.Context, q client.Queryer, table string) ([]Column, error) {
	_, name := splitTable(table)

	rows, err := q.QueryContext(ctx, "PRAGMA table_info("+d.Quote(name)+")")
	if err != nil {
		return nil, fmt.Errorf("failed to query columns: %w", err)
	}
	defer rows.Close()

	var columns []Column
	for rows.Next() {
		var (
			cid      int
			col      Column
			notNull  int
			defaultV sql.NullString
			pk       int
		)
		if err := rows.Scan(&cid, &col.Name, &col.Type, &notNull, &defaultV, &pk); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		col.Nullable = notNull == 0
		col.PrimaryKey = pk > 0
		if defaultV.Valid {
			value := defaultV.String
			col.DefaultValue = &value
		}
		columns = append(columns, col)
	}
	return columns, rows.Err()
}

func (d SQLite) TruncateSQL(table string, _ bool) string {
	return "DELETE FROM " + d.Quote(table)
}
