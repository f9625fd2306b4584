package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/juju/errors"

	"github.com/AbdelilahOu/dbroute/internal/client"
	"github.com/AbdelilahOu/dbroute/internal/dialect"
)

// TransactionClient runs statements inside one driver transaction. Nested
// transactions are savepoints on the same driver transaction.
type TransactionClient struct {
	client    *QueryClient
	tx        *sql.Tx
	parent    *TransactionClient
	savepoint string
	depth     int

	mu        sync.Mutex
	completed bool
	child     *TransactionClient
}

func newTransactionClient(c *QueryClient, tx *sql.Tx) *TransactionClient {
	return &TransactionClient{client: c, tx: tx}
}

func (t *TransactionClient) Mode() Mode { return t.client.mode }

func (t *TransactionClient) IsCompleted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.completed
}

// Nested reports whether the transaction is a savepoint.
func (t *TransactionClient) Nested() bool { return t.parent != nil }

func (t *TransactionClient) queryer(bool) (client.Queryer, error) {
	if t.IsCompleted() {
		return nil, errors.Trace(ErrTransactionCompleted)
	}
	return t.tx, nil
}

func (t *TransactionClient) owner() *Connection { return t.client.connection }

func (t *TransactionClient) sqlDialect() dialect.Dialect { return t.client.dialect }

func (t *TransactionClient) inTransaction() bool { return true }

func (t *TransactionClient) RawQuery(sqlText string, bindings ...any) *RawQuery {
	return newRawQuery(t, true, sqlText, bindings)
}

func (t *TransactionClient) Query(table string) *SelectQuery {
	return newSelectQuery(t, table)
}

func (t *TransactionClient) InsertQuery(table string) (*InsertQuery, error) {
	return newInsertQuery(t, table), nil
}

func (t *TransactionClient) Truncate(ctx context.Context, table string, cascade bool) error {
	_, err := execStatement(ctx, t, statement{method: "truncate", sql: t.client.dialect.TruncateSQL(table, cascade)}, true)
	return err
}

// Transaction opens a savepoint inside t.
func (t *TransactionClient) Transaction(ctx context.Context) (*TransactionClient, error) {
	t.mu.Lock()
	switch {
	case t.completed:
		t.mu.Unlock()
		return nil, errors.Trace(ErrTransactionCompleted)
	case t.child != nil && !t.child.IsCompleted():
		t.mu.Unlock()
		return nil, errors.Trace(ErrTransactionInProgress)
	}
	depth := t.depth + 1
	t.mu.Unlock()

	name := fmt.Sprintf("dbroute_sp_%d", depth)
	if _, err := execStatement(ctx, t, statement{method: "savepoint", sql: "SAVEPOINT " + name}, true); err != nil {
		return nil, err
	}

	child := &TransactionClient{
		client:    t.client,
		tx:        t.tx,
		parent:    t,
		savepoint: name,
		depth:     depth,
	}
	t.mu.Lock()
	t.child = child
	t.mu.Unlock()
	return child, nil
}

// WithTransaction runs fn inside a savepoint, releasing it when fn returns
// nil and rolling back to it otherwise.
func (t *TransactionClient) WithTransaction(ctx context.Context, fn func(tx *TransactionClient) error) error {
	child, err := t.Transaction(ctx)
	if err != nil {
		return err
	}
	return scoped(t.client.connection, child, fn)
}

// Commit commits the driver transaction, or releases the savepoint of a
// nested transaction.
func (t *TransactionClient) Commit() error {
	if err := t.complete(); err != nil {
		return err
	}
	if t.parent != nil {
		_, err := execStatement(context.Background(), t.parent, statement{method: "commit", sql: "RELEASE SAVEPOINT " + t.savepoint}, true)
		return err
	}
	return t.finish("commit", t.tx.Commit)
}

// Rollback aborts the driver transaction, or rolls back to the savepoint of
// a nested transaction.
func (t *TransactionClient) Rollback() error {
	if err := t.complete(); err != nil {
		return err
	}
	if t.parent != nil {
		_, err := execStatement(context.Background(), t.parent, statement{method: "rollback", sql: "ROLLBACK TO SAVEPOINT " + t.savepoint}, true)
		return err
	}
	return t.finish("rollback", t.tx.Rollback)
}

func (t *TransactionClient) finish(method string, fn func() error) error {
	conn := t.client.connection
	start := conn.clock.Now()
	err := classify(fn())
	conn.observe(method, strings.ToUpper(method), conn.clock.Now().Sub(start), err)
	return errors.Trace(err)
}

func (t *TransactionClient) complete() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.completed {
		return errors.Trace(ErrTransactionCompleted)
	}
	t.completed = true
	return nil
}
