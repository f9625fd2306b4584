package client

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AbdelilahOu/dbroute/internal/config"
)

func TestResolveDriver(t *testing.T) {
	tests := []struct {
		client string
		want   Driver
	}{
		{"pg", Driver{Name: "postgres", Family: FamilyPostgres}},
		{"PostgreSQL", Driver{Name: "postgres", Family: FamilyPostgres}},
		{"pgx", Driver{Name: "pgx", Family: FamilyPostgres}},
		{"mysql2", Driver{Name: "mysql", Family: FamilyMySQL}},
		{"better-sqlite3", Driver{Name: "sqlite", Family: FamilySQLite}},
	}
	for _, tt := range tests {
		t.Run(tt.client, func(t *testing.T) {
			got, err := ResolveDriver(tt.client)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ResolveDriver("oracledb")
	var unknown ErrUnknownClient
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "oracledb", unknown.Client)
}

func TestDSN(t *testing.T) {
	pg := Driver{Name: "postgres", Family: FamilyPostgres}
	my := Driver{Name: "mysql", Family: FamilyMySQL}
	lite := Driver{Name: "sqlite", Family: FamilySQLite}

	tests := []struct {
		name    string
		driver  Driver
		params  config.ConnParams
		want    string
		prefix  bool
		wantErr bool
	}{
		{
			name:   "url wins",
			driver: pg,
			params: config.ConnParams{URL: "postgres://u@h/db", Host: "ignored"},
			want:   "postgres://u@h/db",
		},
		{
			name:   "postgres fields",
			driver: pg,
			params: config.ConnParams{Host: "db", User: "app", Password: "pw", Database: "main", Options: map[string]string{"sslmode": "disable", "application_name": "x"}},
			want:   "postgres://app:pw@db:5432/main?application_name=x&sslmode=disable",
		},
		{
			name:    "postgres without host",
			driver:  pg,
			params:  config.ConnParams{Database: "main"},
			wantErr: true,
		},
		{
			name:   "mysql fields",
			driver: my,
			params: config.ConnParams{Host: "db", Port: 3307, User: "app", Password: "pw", Database: "main"},
			want:   "app:pw@tcp(db:3307)/main",
			prefix: true,
		},
		{
			name:   "sqlite filename",
			driver: lite,
			params: config.ConnParams{Filename: "/tmp/a.db"},
			want:   "/tmp/a.db",
		},
		{
			name:   "sqlite options",
			driver: lite,
			params: config.ConnParams{Database: "a.db", Options: map[string]string{"_pragma": "busy_timeout(5000)"}},
			want:   "a.db?_pragma=busy_timeout%285000%29",
		},
		{
			name:    "sqlite without file",
			driver:  lite,
			params:  config.ConnParams{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DSN(tt.driver, tt.params)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.prefix {
				assert.True(t, strings.HasPrefix(got, tt.want), got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func sqliteNode(t *testing.T, name string, pool config.PoolConfig) config.NodeConfig {
	t.Helper()
	return config.NodeConfig{
		Client:     "sqlite",
		Connection: config.ConnParams{Filename: filepath.Join(t.TempDir(), name)},
		Pool:       pool,
	}
}

func TestOpenAppliesPool(t *testing.T) {
	d, err := ResolveDriver("sqlite")
	require.NoError(t, err)

	db, err := Open(d, sqliteNode(t, "a.db", config.PoolConfig{MaxOpen: 3}))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.PingContext(context.Background()))
	assert.Equal(t, 3, db.Stats().MaxOpenConnections)

	stats := Stats(db)
	assert.Equal(t, 1, stats.Open)
	assert.Equal(t, 1, stats.Free)
	assert.Equal(t, 0, stats.Used)
}

func TestStatsNil(t *testing.T) {
	assert.Equal(t, PoolMetrics{}, Stats(nil))
}

func TestOpenRoundRobinSpreadsConnections(t *testing.T) {
	d, err := ResolveDriver("sqlite")
	require.NoError(t, err)
	ctx := context.Background()

	nodes := []config.NodeConfig{sqliteNode(t, "r1.db", config.PoolConfig{}), sqliteNode(t, "r2.db", config.PoolConfig{})}
	for i, node := range nodes {
		seed, err := Open(d, node)
		require.NoError(t, err)
		_, err = seed.ExecContext(ctx, "CREATE TABLE whoami (n INTEGER)")
		require.NoError(t, err)
		_, err = seed.ExecContext(ctx, "INSERT INTO whoami (n) VALUES (?)", i+1)
		require.NoError(t, err)
		require.NoError(t, seed.Close())
	}

	db, err := OpenRoundRobin(d, nodes)
	require.NoError(t, err)
	defer db.Close()

	seen := map[int]bool{}
	var conns []*sql.Conn
	for range 2 {
		conn, err := db.Conn(ctx)
		require.NoError(t, err)
		conns = append(conns, conn)

		var n int
		require.NoError(t, conn.QueryRowContext(ctx, "SELECT n FROM whoami").Scan(&n))
		seen[n] = true
	}
	for _, c := range conns {
		require.NoError(t, c.Close())
	}

	assert.Equal(t, map[int]bool{1: true, 2: true}, seen)
}

func TestOpenRoundRobinRequiresReplicas(t *testing.T) {
	_, err := OpenRoundRobin(Driver{Name: "sqlite", Family: FamilySQLite}, nil)
	assert.ErrorContains(t, err, "at least one replica")
}
