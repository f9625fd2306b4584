package tools

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AbdelilahOu/dbroute/internal/config"
	"github.com/AbdelilahOu/dbroute/internal/database"
	"github.com/AbdelilahOu/dbroute/internal/logger"
	"github.com/AbdelilahOu/dbroute/internal/state"
)

func newTestEnv(t *testing.T, mode database.Mode, readOnly bool) *Env {
	t.Helper()
	cfg := &config.Config{
		DefaultConnection: "primary",
		Connections: map[string]config.ConnectionConfig{
			"primary": {
				Client:      "sqlite",
				Connection:  config.ConnParams{Filename: filepath.Join(t.TempDir(), "primary.db")},
				HealthCheck: true,
				Description: "main database",
			},
			"analytics": {
				Client:      "sqlite",
				Connection:  config.ConnParams{Filename: filepath.Join(t.TempDir(), "analytics.db")},
				HealthCheck: true,
			},
		},
	}
	m := database.NewManagerFromConfig(cfg, nil, nil)
	t.Cleanup(func() { _ = m.Shutdown() })

	return &Env{
		Manager:  m,
		Sessions: state.NewStore(cfg.DefaultConnection, mode),
		Config:   cfg,
		Logger:   logger.NewNopLogger(),
		ReadOnly: readOnly,
	}
}

func TestListConnections(t *testing.T) {
	env := newTestEnv(t, database.ModeDual, false)

	_, out, err := listConnectionsHandler(context.Background(), nil, ListConnectionsInput{}, env)

	require.NoError(t, err)
	require.Len(t, out.Connections, 2)
	assert.Equal(t, "analytics", out.Connections[0].Name)
	assert.Equal(t, "primary", out.Connections[1].Name)
	assert.Equal(t, "main database", out.Connections[1].Description)
	assert.False(t, out.Connections[1].Connected)
	assert.Equal(t, "primary", out.DefaultConnection)
	assert.Equal(t, "primary", out.ActiveConnection)
}

func TestSwitchConnection(t *testing.T) {
	env := newTestEnv(t, database.ModeDual, false)
	ctx := context.Background()

	_, out, err := switchConnectionHandler(ctx, nil, SwitchConnectionInput{Connection: "analytics"}, env)
	require.NoError(t, err)
	assert.Equal(t, "analytics", out.Connection)
	assert.True(t, env.Manager.IsConnected("analytics"))

	_, _, err = switchConnectionHandler(ctx, nil, SwitchConnectionInput{Connection: "missing"}, env)
	assert.ErrorContains(t, err, "not found")
}

func TestTestConnectionAndHealthReport(t *testing.T) {
	env := newTestEnv(t, database.ModeDual, false)
	ctx := context.Background()

	_, tested, err := testConnectionHandler(ctx, nil, TestConnectionInput{}, env)
	require.NoError(t, err)
	assert.True(t, tested.Success)
	assert.Equal(t, "primary", tested.Connection)

	_, report, err := healthReportHandler(ctx, nil, HealthReportInput{}, env)
	require.NoError(t, err)
	assert.True(t, report.Healthy)
	assert.Len(t, report.Connections, 2)
}

func TestQueryTools(t *testing.T) {
	env := newTestEnv(t, database.ModeDual, false)
	ctx := context.Background()

	_, exec, err := executeQueryHandler(ctx, nil, ExecuteQueryInput{Query: "CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT)"}, env)
	require.NoError(t, err)
	assert.Contains(t, exec.Message, "CREATE")

	_, exec, err = executeQueryHandler(ctx, nil, ExecuteQueryInput{Query: "INSERT INTO users (id, name) VALUES (1, 'ada'), (2, 'grace')"}, env)
	require.NoError(t, err)
	assert.EqualValues(t, 2, exec.RowsAffected)

	_, sel, err := selectQueryHandler(ctx, nil, SelectQueryInput{Query: "SELECT name FROM users ORDER BY id"}, env)
	require.NoError(t, err)
	require.Len(t, sel.Data, 2)
	assert.Equal(t, "ada", sel.Data[0]["name"])

	_, tables, err := listTablesHandler(ctx, nil, ListTablesInput{}, env)
	require.NoError(t, err)
	require.Len(t, tables.Tables, 1)
	assert.Equal(t, "users", tables.Tables[0].Name)

	_, described, err := describeTableHandler(ctx, nil, DescribeTableInput{TableName: "users"}, env)
	require.NoError(t, err)
	require.Len(t, described.Columns, 2)
	assert.True(t, described.Columns[0].IsPrimaryKey)

	_, analyzed, err := analyzeTableHandler(ctx, nil, AnalyzeTableInput{TableName: "users"}, env)
	require.NoError(t, err)
	assert.EqualValues(t, 2, analyzed.Stats.RowCount)
	assert.Equal(t, []string{"id"}, analyzed.Stats.PrimaryKey)

	_, info, err := getDBInfoHandler(ctx, nil, GetDBInfoInput{}, env)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", info.Driver)
	assert.Equal(t, 1, info.TableCount)

	_, plan, err := explainQueryHandler(ctx, nil, ExplainQueryInput{Query: "SELECT * FROM users WHERE id = 1"}, env)
	require.NoError(t, err)
	assert.NotEmpty(t, plan.Plan)
}

func TestSelectQueryRejectsWrites(t *testing.T) {
	env := newTestEnv(t, database.ModeDual, false)

	_, _, err := selectQueryHandler(context.Background(), nil, SelectQueryInput{Query: "DELETE FROM users"}, env)

	assert.ErrorContains(t, err, "only SELECT")
}

func TestExecuteQueryGuards(t *testing.T) {
	ctx := context.Background()

	readOnly := newTestEnv(t, database.ModeRead, true)
	_, _, err := executeQueryHandler(ctx, nil, ExecuteQueryInput{Query: "CREATE TABLE t (id INTEGER)"}, readOnly)
	assert.ErrorContains(t, err, "read-only")

	readMode := newTestEnv(t, database.ModeRead, false)
	_, _, err = executeQueryHandler(ctx, nil, ExecuteQueryInput{Query: "CREATE TABLE t (id INTEGER)"}, readMode)
	assert.ErrorIs(t, err, database.ErrModeViolation)

	dual := newTestEnv(t, database.ModeDual, false)
	_, _, err = executeQueryHandler(ctx, nil, ExecuteQueryInput{Query: "TRUNCATE users"}, dual)
	assert.ErrorContains(t, err, "dangerous operation")
}
