package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFileJSON(t *testing.T) {
	path := writeFile(t, "connections.json", `{
		"default_connection": "primary",
		"connections": {
			"primary": {
				"client": "pg",
				"connection": {"host": "db", "user": "app", "database": "main"},
				"replicas": {
					"write": {"connection": {"host": "writer"}},
					"read": [{"connection": {"host": "reader-1"}}, {"connection": {"host": "reader-2"}}]
				},
				"health_check": true,
				"pool": {"max_open": 20, "max_lifetime": "1m"}
			}
		},
		"logging": {"level": "debug"}
	}`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "primary", cfg.DefaultConnection)
	assert.Equal(t, "debug", cfg.Logging.Level)

	conn, ok := cfg.GetConnection("primary")
	require.True(t, ok)
	assert.True(t, conn.HealthCheck)
	assert.True(t, conn.HasReadReplicas())
	assert.Equal(t, 20, conn.Pool.MaxOpen)
	assert.Equal(t, time.Minute, conn.Pool.MaxLifetime.Std())
}

func TestLoadFileYAML(t *testing.T) {
	path := writeFile(t, "connections.yaml", `
connections:
  local:
    client: sqlite
    connection:
      filename: /tmp/local.db
    debug: true
    pool:
      max_idle_time: 30s
`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	conn, ok := cfg.GetConnection("local")
	require.True(t, ok)
	assert.Equal(t, "sqlite", conn.Client)
	assert.True(t, conn.Debug)
	assert.Equal(t, 30*time.Second, conn.Pool.MaxIdleTime.Std())
	assert.False(t, conn.HasReadReplicas())
	assert.Len(t, cfg.ListConnections(), 1)
}

func TestLoadFileRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing client",
			content: `{"connections": {"a": {"connection": {"host": "x"}}}}`,
			wantErr: "client is required",
		},
		{
			name:    "missing params",
			content: `{"connections": {"a": {"client": "pg"}}}`,
			wantErr: "parameters are required",
		},
		{
			name:    "empty replica",
			content: `{"connections": {"a": {"client": "pg", "connection": {"host": "x"}, "replicas": {"read": [{}]}}}}`,
			wantErr: "read replica 0",
		},
		{
			name:    "unknown default",
			content: `{"default_connection": "b", "connections": {"a": {"client": "pg", "connection": {"host": "x"}}}}`,
			wantErr: "not defined",
		},
		{
			name:    "malformed",
			content: `{"connections": `,
			wantErr: "failed to parse",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFile(writeFile(t, "connections.json", tt.content))
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	path := writeFile(t, "custom.json", `{"connections": {"a": {"client": "sqlite", "connection": {"filename": "a.db"}}}}`)
	t.Setenv(EnvConfigPath, path)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Contains(t, cfg.Connections, "a")
}

func TestLoadConfigMissingFile(t *testing.T) {
	t.Setenv(EnvConfigPath, filepath.Join(t.TempDir(), "nope.json"))

	_, err := LoadConfig()
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestReplicaMerging(t *testing.T) {
	off := false
	cfg := ConnectionConfig{
		Client: "pg",
		Connection: ConnParams{
			Host: "db", User: "app", Password: "secret", Database: "main",
			Options: map[string]string{"sslmode": "disable"},
		},
		Debug: true,
		Pool:  PoolConfig{MaxOpen: 10},
		Replicas: &ReplicasConfig{
			Write: ReplicaConfig{Connection: ConnParams{Host: "writer"}},
			Read: []ReplicaConfig{
				{Connection: ConnParams{Host: "reader", Options: map[string]string{"application_name": "ro"}}, Pool: &PoolConfig{MaxOpen: 2}, Debug: &off},
			},
		},
	}

	write := cfg.WriteConfig()
	assert.Equal(t, "writer", write.Connection.Host)
	assert.Equal(t, "app", write.Connection.User)
	assert.Equal(t, "main", write.Connection.Database)
	assert.True(t, write.Debug)

	reads := cfg.ReadConfigs()
	require.Len(t, reads, 1)
	assert.Equal(t, "reader", reads[0].Connection.Host)
	assert.Equal(t, "secret", reads[0].Connection.Password)
	assert.Equal(t, map[string]string{"sslmode": "disable", "application_name": "ro"}, reads[0].Connection.Options)
	assert.Equal(t, 2, reads[0].Pool.MaxOpen)
	assert.False(t, reads[0].Debug)

	// the base options map must not be mutated by the merge
	assert.Len(t, cfg.Connection.Options, 1)
}

func TestValidateAcceptsParamsFromWriteReplica(t *testing.T) {
	cfg := ConnectionConfig{
		Client: "sqlite",
		Replicas: &ReplicasConfig{
			Write: ReplicaConfig{Connection: ConnParams{Filename: "writer.db"}},
			Read:  []ReplicaConfig{{Connection: ConnParams{Filename: "reader.db"}}},
		},
	}

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "writer.db", cfg.WriteConfig().Connection.Filename)

	cfg.Replicas.Write = ReplicaConfig{}
	assert.ErrorContains(t, cfg.Validate(), "parameters are required")
}

func TestWriteConfigWithoutReplicas(t *testing.T) {
	cfg := ConnectionConfig{Client: "sqlite", Connection: ConnParams{Filename: "a.db"}}

	assert.Equal(t, "a.db", cfg.WriteConfig().Connection.Filename)
	assert.Nil(t, cfg.ReadConfigs())
}

func TestExpandCompoundURL(t *testing.T) {
	cfg := ConnectionConfig{
		Client:     "pg",
		Connection: ConnParams{URL: "postgres://w/db; postgres://r1/db ;postgres://r2/db;"},
	}.ExpandCompoundURL()

	assert.Equal(t, "postgres://w/db", cfg.Connection.URL)
	require.True(t, cfg.HasReadReplicas())
	require.Len(t, cfg.Replicas.Read, 2)
	assert.Equal(t, "postgres://r1/db", cfg.Replicas.Read[0].Connection.URL)
	assert.Equal(t, "postgres://r2/db", cfg.Replicas.Read[1].Connection.URL)

	single := ConnectionConfig{Connection: ConnParams{URL: "postgres://w/db"}}.ExpandCompoundURL()
	assert.Nil(t, single.Replicas)
}

func TestDurationDecoding(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalJSON([]byte(`"1m30s"`)))
	assert.Equal(t, 90*time.Second, d.Std())

	require.NoError(t, d.UnmarshalJSON([]byte(`1000`)))
	assert.Equal(t, time.Microsecond, d.Std())

	assert.Error(t, d.UnmarshalJSON([]byte(`"soon"`)))

	out, err := Duration(2 * time.Second).MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"2s"`, string(out))
}
