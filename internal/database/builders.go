package database

import (
	"context"
	"database/sql"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
)

// RawQuery runs SQL exactly as given. In read mode it goes to the read
// client, otherwise to the write client.
type RawQuery struct {
	r     runner
	write bool
	st    statement
}

func newRawQuery(r runner, write bool, sqlText string, bindings []any) *RawQuery {
	return &RawQuery{
		r:     r,
		write: write,
		st:    statement{method: "raw", sql: sqlText, bindings: bindings},
	}
}

// Debug overrides the connection's debug flag for this query.
func (q *RawQuery) Debug(enabled bool) *RawQuery {
	q.st.debug = &enabled
	return q
}

func (q *RawQuery) ToSQL() (string, []any) {
	return q.st.sql, q.st.bindings
}

func (q *RawQuery) Exec(ctx context.Context) (sql.Result, error) {
	return execStatement(ctx, q.r, q.st, q.write)
}

func (q *RawQuery) All(ctx context.Context) ([]map[string]any, error) {
	return queryStatement(ctx, q.r, q.st, q.write)
}

// First returns nil when the query yields no rows.
func (q *RawQuery) First(ctx context.Context) (map[string]any, error) {
	rows, err := q.All(ctx)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

type where struct {
	column string
	op     string
	value  any
}

var allowedOperators = map[string]bool{
	"=": true, "!=": true, "<>": true, "<": true, "<=": true, ">": true, ">=": true,
	"LIKE": true, "NOT LIKE": true,
}

// SelectQuery is a single-table SELECT. It always runs on the read side of
// the client.
type SelectQuery struct {
	r       runner
	table   string
	columns []string
	wheres  []where
	orderBy []string
	limit   int
	offset  int
	debug   *bool
	err     error
}

func newSelectQuery(r runner, table string) *SelectQuery {
	return &SelectQuery{r: r, table: table}
}

func (q *SelectQuery) Select(columns ...string) *SelectQuery {
	q.columns = append(q.columns, columns...)
	return q
}

func (q *SelectQuery) Where(column, op string, value any) *SelectQuery {
	op = strings.ToUpper(strings.TrimSpace(op))
	if !allowedOperators[op] {
		q.err = fmt.Errorf("unsupported operator %q", op)
		return q
	}
	q.wheres = append(q.wheres, where{column: column, op: op, value: value})
	return q
}

func (q *SelectQuery) OrderBy(column string, desc bool) *SelectQuery {
	d := q.r.sqlDialect()
	clause := d.Quote(column)
	if desc {
		clause += " DESC"
	}
	q.orderBy = append(q.orderBy, clause)
	return q
}

func (q *SelectQuery) Limit(n int) *SelectQuery {
	q.limit = n
	return q
}

func (q *SelectQuery) Offset(n int) *SelectQuery {
	q.offset = n
	return q
}

func (q *SelectQuery) Debug(enabled bool) *SelectQuery {
	q.debug = &enabled
	return q
}

func (q *SelectQuery) ToSQL() (string, []any) {
	d := q.r.sqlDialect()

	cols := "*"
	if len(q.columns) > 0 {
		quoted := make([]string, len(q.columns))
		for i, c := range q.columns {
			quoted[i] = d.Quote(c)
		}
		cols = strings.Join(quoted, ", ")
	}

	var b strings.Builder
	b.WriteString("SELECT " + cols + " FROM " + d.Quote(q.table))

	var args []any
	for i, w := range q.wheres {
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		args = append(args, w.value)
		b.WriteString(d.Quote(w.column) + " " + w.op + " " + d.Placeholder(len(args)))
	}
	if len(q.orderBy) > 0 {
		b.WriteString(" ORDER BY " + strings.Join(q.orderBy, ", "))
	}
	if q.limit > 0 {
		b.WriteString(" LIMIT " + strconv.Itoa(q.limit))
	}
	if q.offset > 0 {
		b.WriteString(" OFFSET " + strconv.Itoa(q.offset))
	}
	return b.String(), args
}

func (q *SelectQuery) All(ctx context.Context) ([]map[string]any, error) {
	if q.err != nil {
		return nil, q.err
	}
	sqlText, args := q.ToSQL()
	return queryStatement(ctx, q.r, statement{method: "select", sql: sqlText, bindings: args, debug: q.debug}, false)
}

// First returns nil when no row matches.
func (q *SelectQuery) First(ctx context.Context) (map[string]any, error) {
	limited := *q
	limited.limit = 1
	rows, err := limited.All(ctx)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

// InsertQuery inserts one or more rows sharing the same column set. It only
// exists on clients that can write.
type InsertQuery struct {
	r     runner
	table string
	rows  []map[string]any
	debug *bool
}

func newInsertQuery(r runner, table string) *InsertQuery {
	return &InsertQuery{r: r, table: table}
}

func (q *InsertQuery) Values(rows ...map[string]any) *InsertQuery {
	q.rows = append(q.rows, rows...)
	return q
}

func (q *InsertQuery) Debug(enabled bool) *InsertQuery {
	q.debug = &enabled
	return q
}

// ToSQL fails when there are no rows or the rows disagree on columns.
func (q *InsertQuery) ToSQL() (string, []any, error) {
	if len(q.rows) == 0 {
		return "", nil, fmt.Errorf("insert into %q: no values", q.table)
	}
	d := q.r.sqlDialect()

	columns := slices.Sorted(maps.Keys(q.rows[0]))
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = d.Quote(c)
	}

	var (
		args   []any
		tuples []string
	)
	for i, row := range q.rows {
		if len(row) != len(columns) {
			return "", nil, fmt.Errorf("insert into %q: row %d has %d columns, want %d", q.table, i, len(row), len(columns))
		}
		marks := make([]string, len(columns))
		for j, c := range columns {
			v, ok := row[c]
			if !ok {
				return "", nil, fmt.Errorf("insert into %q: row %d is missing column %q", q.table, i, c)
			}
			args = append(args, v)
			marks[j] = d.Placeholder(len(args))
		}
		tuples = append(tuples, "("+strings.Join(marks, ", ")+")")
	}

	sqlText := "INSERT INTO " + d.Quote(q.table) +
		" (" + strings.Join(quoted, ", ") + ") VALUES " + strings.Join(tuples, ", ")
	return sqlText, args, nil
}

func (q *InsertQuery) Exec(ctx context.Context) (sql.Result, error) {
	sqlText, args, err := q.ToSQL()
	if err != nil {
		return nil, err
	}
	return execStatement(ctx, q.r, statement{method: "insert", sql: sqlText, bindings: args, debug: q.debug}, true)
}
