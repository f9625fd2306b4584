package database

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/AbdelilahOu/dbroute/internal/config"
	"github.com/AbdelilahOu/dbroute/internal/events"
)

func sqliteConfig(t *testing.T, file string) config.ConnectionConfig {
	t.Helper()
	return config.ConnectionConfig{
		Client:      "sqlite",
		Connection:  config.ConnParams{Filename: filepath.Join(t.TempDir(), file)},
		HealthCheck: true,
	}
}

// unreachableConfig points at a file in a directory that does not exist, so
// construction succeeds but the first query fails.
func unreachableConfig(t *testing.T) config.ConnectionConfig {
	t.Helper()
	return config.ConnectionConfig{
		Client:      "sqlite",
		Connection:  config.ConnParams{Filename: filepath.Join(t.TempDir(), "missing", "nested", "db.sqlite")},
		HealthCheck: true,
	}
}

// recorder collects every event published on a topic.
type recorder struct {
	mu     sync.Mutex
	events []interface{}
}

func record(t *testing.T, bus *events.Bus, topic string) *recorder {
	t.Helper()
	r := &recorder{}
	unsubscribe := bus.Subscribe(topic, func(_ string, data interface{}) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, data)
	})
	t.Cleanup(unsubscribe)
	return r
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func (r *recorder) all() []interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]interface{}(nil), r.events...)
}

func (r *recorder) countFor(conn *Connection) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e == conn {
			n++
		}
	}
	return n
}

func newTestConnection(t *testing.T, cfg config.ConnectionConfig, bus *events.Bus) *Connection {
	t.Helper()
	conn := NewConnection("primary", cfg, nil, bus)
	t.Cleanup(func() { _ = conn.Disconnect() })
	return conn
}
