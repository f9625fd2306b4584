package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/juju/errors"

	"github.com/AbdelilahOu/dbroute/internal/client"
	"github.com/AbdelilahOu/dbroute/internal/dialect"
)

// QueryClient routes statements of one connection according to its mode.
// It holds at most one open global transaction and the pinned sessions of
// its advisory locks.
type QueryClient struct {
	mode       Mode
	connection *Connection
	dialect    dialect.Dialect

	mu    sync.Mutex
	tx    *TransactionClient
	locks map[string]*sql.Conn
}

// NewQueryClient fails when the connection has not been connected, since the
// dialect is only known after Connect.
func NewQueryClient(mode Mode, conn *Connection) (*QueryClient, error) {
	if _, err := ParseMode(string(mode)); err != nil {
		return nil, err
	}
	d := conn.Dialect()
	if d == nil {
		return nil, connectionClosed(conn.Name())
	}
	return &QueryClient{
		mode:       mode,
		connection: conn,
		dialect:    d,
		locks:      make(map[string]*sql.Conn),
	}, nil
}

func (c *QueryClient) Mode() Mode { return c.mode }

func (c *QueryClient) ConnectionName() string { return c.connection.Name() }

func (c *QueryClient) Dialect() dialect.Dialect { return c.dialect }

// WriteClient fails in read mode with a mode violation.
func (c *QueryClient) WriteClient() (*sql.DB, error) {
	if c.mode == ModeRead {
		return nil, writeClientUnavailable()
	}
	db := c.connection.WriteClient()
	if db == nil {
		return nil, connectionClosed(c.connection.Name())
	}
	return db, nil
}

// ReadClient is the write client in write mode and the read client
// otherwise.
func (c *QueryClient) ReadClient() (*sql.DB, error) {
	var db *sql.DB
	if c.mode == ModeWrite {
		db = c.connection.WriteClient()
	} else {
		db = c.connection.ReadClient()
	}
	if db == nil {
		return nil, connectionClosed(c.connection.Name())
	}
	return db, nil
}

func (c *QueryClient) queryer(write bool) (client.Queryer, error) {
	if write {
		return c.WriteClient()
	}
	return c.ReadClient()
}

func (c *QueryClient) owner() *Connection { return c.connection }

func (c *QueryClient) sqlDialect() dialect.Dialect { return c.dialect }

func (c *QueryClient) inTransaction() bool { return false }

// rawTarget is the client raw SQL goes to: read in read mode, write
// otherwise.
func (c *QueryClient) rawTarget() (*sql.DB, error) {
	if c.mode == ModeRead {
		return c.ReadClient()
	}
	return c.WriteClient()
}

// RawQuery passes sqlText and bindings to the driver untouched.
func (c *QueryClient) RawQuery(sqlText string, bindings ...any) *RawQuery {
	return newRawQuery(c, c.mode != ModeRead, sqlText, bindings)
}

// RawSelect is RawQuery routed as a read: it goes to the read client in
// read and dual mode.
func (c *QueryClient) RawSelect(sqlText string, bindings ...any) *RawQuery {
	return newRawQuery(c, false, sqlText, bindings)
}

// Query starts a SELECT against table. Reads are allowed in every mode.
func (c *QueryClient) Query(table string) *SelectQuery {
	return newSelectQuery(c, table)
}

// InsertQuery fails in read mode.
func (c *QueryClient) InsertQuery(table string) (*InsertQuery, error) {
	if _, err := c.WriteClient(); err != nil {
		return nil, err
	}
	return newInsertQuery(c, table), nil
}

// Truncate empties table. cascade is honoured where the engine supports it.
func (c *QueryClient) Truncate(ctx context.Context, table string, cascade bool) error {
	if _, err := c.WriteClient(); err != nil {
		return err
	}
	_, err := execStatement(ctx, c, statement{method: "truncate", sql: c.dialect.TruncateSQL(table, cascade)}, true)
	return err
}

// ColumnsInfo describes every column of table keyed by column name.
func (c *QueryClient) ColumnsInfo(ctx context.Context, table string) (map[string]dialect.Column, error) {
	db, err := c.ReadClient()
	if err != nil {
		return nil, err
	}
	columns, err := c.dialect.GetColumns(ctx, db, table)
	if err != nil {
		return nil, errors.Trace(classify(err))
	}
	if len(columns) == 0 {
		return nil, errors.NotFoundf("table %q", table)
	}
	info := make(map[string]dialect.Column, len(columns))
	for _, col := range columns {
		info[col.Name] = col
	}
	return info, nil
}

// ColumnInfo describes a single column of table.
func (c *QueryClient) ColumnInfo(ctx context.Context, table, column string) (dialect.Column, error) {
	info, err := c.ColumnsInfo(ctx, table)
	if err != nil {
		return dialect.Column{}, err
	}
	col, ok := info[column]
	if !ok {
		return dialect.Column{}, errors.NotFoundf("column %q of table %q", column, table)
	}
	return col, nil
}

// Columns lists the columns of table in ordinal order.
func (c *QueryClient) Columns(ctx context.Context, table string) ([]dialect.Column, error) {
	db, err := c.ReadClient()
	if err != nil {
		return nil, err
	}
	columns, err := c.dialect.GetColumns(ctx, db, table)
	if err != nil {
		return nil, errors.Trace(classify(err))
	}
	return columns, nil
}

// GetAllTables lists the tables of schemas, or of the default schema when
// none are given.
func (c *QueryClient) GetAllTables(ctx context.Context, schemas ...string) ([]string, error) {
	db, err := c.ReadClient()
	if err != nil {
		return nil, err
	}
	tables, err := c.dialect.GetAllTables(ctx, db, schemas)
	if err != nil {
		return nil, errors.Trace(classify(err))
	}
	return tables, nil
}

// Transaction opens the client's global transaction. Only one may be open at
// a time; nest with TransactionClient.Transaction instead.
func (c *QueryClient) Transaction(ctx context.Context, opts *sql.TxOptions) (*TransactionClient, error) {
	db, err := c.WriteClient()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tx != nil && !c.tx.IsCompleted() {
		return nil, errors.Trace(ErrTransactionInProgress)
	}

	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return nil, errors.Annotatef(classify(err), "begin transaction on %q", c.connection.Name())
	}
	c.tx = newTransactionClient(c, tx)
	return c.tx, nil
}

// WithTransaction runs fn inside a transaction, committing when fn returns
// nil and rolling back when it fails or panics.
func (c *QueryClient) WithTransaction(ctx context.Context, fn func(tx *TransactionClient) error) error {
	tx, err := c.Transaction(ctx, nil)
	if err != nil {
		return err
	}
	return scoped(c.connection, tx, fn)
}

func scoped(conn *Connection, tx *TransactionClient, fn func(tx *TransactionClient) error) error {
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			conn.logger.Error("rollback failed", rbErr, map[string]interface{}{
				"connection": conn.Name(),
			})
		}
		return err
	}
	return tx.Commit()
}

// GetAdvisoryLock takes a named lock. The session that holds it is pinned
// until ReleaseAdvisoryLock so session-scoped locks stay held.
func (c *QueryClient) GetAdvisoryLock(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, held := c.locks[key]; held {
		return true, nil
	}

	db, err := c.rawTarget()
	if err != nil {
		return false, err
	}
	session, err := db.Conn(ctx)
	if err != nil {
		return false, errors.Trace(classify(err))
	}

	ok, err := c.dialect.GetAdvisoryLock(ctx, session, key)
	if err != nil || !ok {
		_ = session.Close()
		return false, errors.Trace(classify(err))
	}
	c.locks[key] = session
	return true, nil
}

// ReleaseAdvisoryLock releases a lock taken by GetAdvisoryLock. A key this
// client does not hold is released on a fresh session, where engines with
// advisory locks report false and sqlite reports true.
func (c *QueryClient) ReleaseAdvisoryLock(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	session, held := c.locks[key]
	delete(c.locks, key)
	c.mu.Unlock()

	var q client.Queryer
	if held {
		defer session.Close()
		q = session
	} else {
		db, err := c.rawTarget()
		if err != nil {
			return false, err
		}
		q = db
	}

	ok, err := c.dialect.ReleaseAdvisoryLock(ctx, q, key)
	if err != nil {
		return false, errors.Trace(classify(err))
	}
	return ok, nil
}

func (c *QueryClient) String() string {
	return fmt.Sprintf("QueryClient(%s, %s)", c.connection.Name(), c.mode)
}
