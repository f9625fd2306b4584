package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/juju/errors"

	"github.com/AbdelilahOu/dbroute/internal/client"
	"github.com/AbdelilahOu/dbroute/internal/dialect"
	"github.com/AbdelilahOu/dbroute/internal/events"
	dbroute "github.com/AbdelilahOu/dbroute/pkg"
)

// runner is implemented by QueryClient and TransactionClient. Builders run
// through it so they work the same inside and outside a transaction.
type runner interface {
	queryer(write bool) (client.Queryer, error)
	owner() *Connection
	sqlDialect() dialect.Dialect
	inTransaction() bool
}

// statement is one SQL text with its bindings and debug override.
type statement struct {
	method   string
	sql      string
	bindings []any
	debug    *bool
}

func (s statement) debugEnabled(connectionDebug bool) bool {
	if s.debug != nil {
		return *s.debug
	}
	return connectionDebug
}

// run executes fn against the client r routes to, then logs, records and,
// when debugging is on, publishes a db:query event.
func run[T any](r runner, st statement, write bool, fn func(q client.Queryer) (T, error)) (T, error) {
	var zero T

	q, err := r.queryer(write)
	if err != nil {
		return zero, err
	}

	conn := r.owner()
	start := conn.clock.Now()
	res, err := fn(q)
	elapsed := conn.clock.Now().Sub(start)
	err = classify(err)

	conn.observe(st.method, st.sql, elapsed, err)
	if st.debugEnabled(conn.config.Debug) {
		conn.bus.Publish(events.TopicQuery, dbroute.QueryEvent{
			SQL:           st.sql,
			Bindings:      st.bindings,
			Connection:    conn.name,
			InTransaction: r.inTransaction(),
			Duration:      elapsed,
			Method:        st.method,
			Error:         err,
		})
	}

	if err != nil {
		return zero, errors.Trace(err)
	}
	return res, nil
}

func execStatement(ctx context.Context, r runner, st statement, write bool) (sql.Result, error) {
	return run(r, st, write, func(q client.Queryer) (sql.Result, error) {
		return q.ExecContext(ctx, st.sql, st.bindings...)
	})
}

func queryStatement(ctx context.Context, r runner, st statement, write bool) ([]map[string]any, error) {
	return run(r, st, write, func(q client.Queryer) ([]map[string]any, error) {
		rows, err := q.QueryContext(ctx, st.sql, st.bindings...)
		if err != nil {
			return nil, err
		}
		return scanRows(rows)
	})
}

// scanRows reads every row into a column-keyed map. Byte slices are turned
// into strings so results serialise as text.
func scanRows(rows *sql.Rows) ([]map[string]any, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	results := make([]map[string]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		results = append(results, row)
	}
	return results, rows.Err()
}
