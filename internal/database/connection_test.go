package database

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AbdelilahOu/dbroute/internal/config"
	"github.com/AbdelilahOu/dbroute/internal/events"
	dbroute "github.com/AbdelilahOu/dbroute/pkg"
)

func TestConnection_ConnectIsIdempotent(t *testing.T) {
	bus := events.NewBus()
	connects := record(t, bus, events.TopicConnectionConnect)
	conn := newTestConnection(t, sqliteConfig(t, "app.db"), bus)

	require.NoError(t, conn.Connect())
	require.NoError(t, conn.Connect())

	assert.True(t, conn.IsConnected())
	assert.Equal(t, StateOpen, conn.State())
	assert.Equal(t, 1, conn.constructions)
	require.Eventually(t, func() bool { return connects.count() == 1 }, time.Second, 10*time.Millisecond)
	assert.Never(t, func() bool { return connects.count() > 1 }, 100*time.Millisecond, 10*time.Millisecond)
}

func TestConnection_ConcurrentConnectConstructsOnce(t *testing.T) {
	conn := newTestConnection(t, sqliteConfig(t, "app.db"), nil)

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, conn.Connect())
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, conn.constructions)
}

func TestConnection_ReadClientAliasesWriteWithoutReplicas(t *testing.T) {
	conn := newTestConnection(t, sqliteConfig(t, "app.db"), nil)
	require.NoError(t, conn.Connect())

	assert.False(t, conn.HasReadReplicas())
	assert.Same(t, conn.WriteClient(), conn.ReadClient())
	assert.Equal(t, "sqlite", conn.Dialect().Name())
}

func TestConnection_ReadReplicasGetTheirOwnClient(t *testing.T) {
	cfg := sqliteConfig(t, "primary.db")
	cfg.Replicas = &config.ReplicasConfig{
		Read: []config.ReplicaConfig{
			{Connection: sqliteConfig(t, "replica-a.db").Connection},
			{Connection: sqliteConfig(t, "replica-b.db").Connection},
		},
	}
	conn := newTestConnection(t, cfg, nil)
	require.NoError(t, conn.Connect())

	assert.True(t, conn.HasReadReplicas())
	require.NotNil(t, conn.ReadClient())
	assert.NotSame(t, conn.WriteClient(), conn.ReadClient())
}

func TestConnection_DisconnectClearsClients(t *testing.T) {
	bus := events.NewBus()
	disconnects := record(t, bus, events.TopicConnectionDisconnect)
	conn := newTestConnection(t, sqliteConfig(t, "app.db"), bus)
	require.NoError(t, conn.Connect())

	require.NoError(t, conn.Disconnect())

	assert.Nil(t, conn.WriteClient())
	assert.Nil(t, conn.ReadClient())
	assert.False(t, conn.IsConnected())
	assert.Equal(t, StateClosed, conn.State())
	require.Eventually(t, func() bool { return disconnects.countFor(conn) == 1 }, time.Second, 10*time.Millisecond)
}

func TestConnection_DisconnectWhenNotOpenIsNoop(t *testing.T) {
	bus := events.NewBus()
	disconnects := record(t, bus, events.TopicConnectionDisconnect)
	conn := newTestConnection(t, sqliteConfig(t, "app.db"), bus)

	require.NoError(t, conn.Disconnect())

	assert.Equal(t, StateRegistered, conn.State())
	assert.Never(t, func() bool { return disconnects.count() > 0 }, 100*time.Millisecond, 10*time.Millisecond)
}

func TestConnection_ReconnectAfterDisconnect(t *testing.T) {
	conn := newTestConnection(t, sqliteConfig(t, "app.db"), nil)
	require.NoError(t, conn.Connect())
	require.NoError(t, conn.Disconnect())

	require.NoError(t, conn.Connect())

	assert.True(t, conn.IsConnected())
	assert.Equal(t, 2, conn.constructions)
}

func TestConnection_UnknownClientIsConfigurationError(t *testing.T) {
	bus := events.NewBus()
	failures := record(t, bus, events.TopicConnectionError)
	cfg := sqliteConfig(t, "app.db")
	cfg.Client = "oracle"
	conn := newTestConnection(t, cfg, bus)

	err := conn.Connect()

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.Contains(t, err.Error(), "oracle")
	assert.False(t, conn.IsConnected())
	assert.Nil(t, conn.WriteClient())

	require.Eventually(t, func() bool { return failures.count() == 1 }, time.Second, 10*time.Millisecond)
	published, ok := failures.all()[0].(*ConnectionError)
	require.True(t, ok)
	assert.Same(t, conn, published.Connection)
	assert.ErrorIs(t, published, ErrConfiguration)
}

func TestConnection_WriteReplicaSuppliesParams(t *testing.T) {
	cfg := config.ConnectionConfig{
		Client: "sqlite",
		Replicas: &config.ReplicasConfig{
			Write: config.ReplicaConfig{Connection: sqliteConfig(t, "writer.db").Connection},
			Read:  []config.ReplicaConfig{{Connection: sqliteConfig(t, "reader.db").Connection}},
		},
	}
	conn := newTestConnection(t, cfg, nil)

	require.NoError(t, conn.Connect())

	ctx := context.Background()
	_, err := conn.WriteClient().ExecContext(ctx, "CREATE TABLE t (id INTEGER)")
	require.NoError(t, err)
	assert.True(t, conn.Report(ctx).Healthy())
}

func TestConnection_MissingParamsIsConfigurationError(t *testing.T) {
	conn := newTestConnection(t, config.ConnectionConfig{Client: "pg"}, nil)

	err := conn.Connect()

	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestConnection_ReportHealthy(t *testing.T) {
	conn := newTestConnection(t, sqliteConfig(t, "app.db"), nil)
	require.NoError(t, conn.Connect())

	report := conn.Report(context.Background())

	assert.True(t, report.Healthy())
	assert.Equal(t, "primary", report.Connection)
	assert.Equal(t, dbroute.MessageConnectionHealthy, report.Message)
}

func TestConnection_ReportUnreachablePrimary(t *testing.T) {
	conn := newTestConnection(t, unreachableConfig(t), nil)
	require.NoError(t, conn.Connect())

	report := conn.Report(context.Background())

	assert.False(t, report.Healthy())
	assert.Equal(t, dbroute.MessageServerUnreachable, report.Message)
	assert.ErrorIs(t, report.Error, ErrConnectivity)
}

func TestConnection_ReportUnreachableReadHost(t *testing.T) {
	cfg := sqliteConfig(t, "primary.db")
	cfg.Replicas = &config.ReplicasConfig{
		Read: []config.ReplicaConfig{{Connection: unreachableConfig(t).Connection}},
	}
	conn := newTestConnection(t, cfg, nil)
	require.NoError(t, conn.Connect())

	report := conn.Report(context.Background())

	assert.False(t, report.Healthy())
	assert.Equal(t, dbroute.MessageReadHostUnreachable, report.Message)
}

func TestConnection_ReportWhenClosed(t *testing.T) {
	conn := newTestConnection(t, sqliteConfig(t, "app.db"), nil)

	report := conn.Report(context.Background())

	assert.Equal(t, dbroute.MessageServerUnreachable, report.Message)
	assert.ErrorIs(t, report.Error, ErrConnectivity)
}

func TestConnection_PoolMetrics(t *testing.T) {
	conn := newTestConnection(t, sqliteConfig(t, "app.db"), nil)
	assert.Zero(t, conn.PoolMetrics())

	require.NoError(t, conn.Connect())
	_ = conn.Report(context.Background())

	metrics := conn.PoolMetrics()
	assert.GreaterOrEqual(t, metrics.Open, 1)
}
