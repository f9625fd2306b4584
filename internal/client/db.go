package client

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/AbdelilahOu/dbroute/internal/config"
)

const (
	defaultMaxOpenConns    = 10
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 5 * time.Minute
)

// Queryer is the statement surface shared by *sql.DB, *sql.Conn and *sql.Tx.
type Queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var (
	_ Queryer = (*sql.DB)(nil)
	_ Queryer = (*sql.Conn)(nil)
	_ Queryer = (*sql.Tx)(nil)
)

// Open builds a pooled driver client for one node. It does not dial; the
// pool connects on first use.
func Open(d Driver, node config.NodeConfig) (*sql.DB, error) {
	dsn, err := DSN(d, node.Connection)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(d.Name, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.Name, err)
	}

	applyPool(db, node.Pool)
	return db, nil
}

func applyPool(db *sql.DB, pool config.PoolConfig) {
	maxOpen := pool.MaxOpen
	if maxOpen == 0 {
		maxOpen = defaultMaxOpenConns
	}
	maxIdle := pool.MaxIdle
	if maxIdle == 0 {
		maxIdle = defaultMaxIdleConns
	}
	lifetime := pool.MaxLifetime.Std()
	if lifetime == 0 {
		lifetime = defaultConnMaxLifetime
	}

	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(lifetime)
	if idle := pool.MaxIdleTime.Std(); idle > 0 {
		db.SetConnMaxIdleTime(idle)
	}
}

// PoolMetrics is a read-through view of a driver client's pool.
type PoolMetrics struct {
	Open      int   `json:"open"`
	Used      int   `json:"used"`
	Free      int   `json:"free"`
	WaitCount int64 `json:"wait_count"`
}

func Stats(db *sql.DB) PoolMetrics {
	if db == nil {
		return PoolMetrics{}
	}
	s := db.Stats()
	return PoolMetrics{
		Open:      s.OpenConnections,
		Used:      s.InUse,
		Free:      s.Idle,
		WaitCount: s.WaitCount,
	}
}
