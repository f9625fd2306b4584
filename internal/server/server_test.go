package server

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AbdelilahOu/dbroute/internal/config"
	"github.com/AbdelilahOu/dbroute/internal/database"
	"github.com/AbdelilahOu/dbroute/internal/logger"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		DefaultConnection: "primary",
		Connections: map[string]config.ConnectionConfig{
			"primary": {
				Client:     "sqlite",
				Connection: config.ConnParams{Filename: filepath.Join(t.TempDir(), "primary.db")},
			},
			"broken": {
				Client:     "sqlite",
				Connection: config.ConnParams{Filename: filepath.Join(t.TempDir(), "missing", "dir", "x.db")},
			},
		},
	}
}

func TestNewMCPServerOpensDefaultConnection(t *testing.T) {
	cfg := testConfig(t)
	m := database.NewManagerFromConfig(cfg, nil, nil)
	t.Cleanup(func() { _ = m.Shutdown() })

	srv, err := NewMCPServer(MCPServerConfig{Version: "test"}, cfg, m, logger.NewNopLogger())

	require.NoError(t, err)
	assert.NotNil(t, srv)
	assert.True(t, m.IsConnected("primary"))
	assert.False(t, m.IsConnected("broken"))
}

func TestNewMCPServerFailsOnUnknownInitialConnection(t *testing.T) {
	cfg := testConfig(t)
	m := database.NewManagerFromConfig(cfg, nil, nil)
	t.Cleanup(func() { _ = m.Shutdown() })

	_, err := NewMCPServer(MCPServerConfig{InitialConnection: "nope"}, cfg, m, logger.NewNopLogger())

	assert.ErrorContains(t, err, "failed to initialize connection 'nope'")
}
