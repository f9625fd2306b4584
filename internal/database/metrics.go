package database

import (
	"fmt"
	"io"
	"time"

	"github.com/VictoriaMetrics/metrics"

	"github.com/AbdelilahOu/dbroute/internal/client"
)

// Metrics records query latency and failures per connection and method.
type Metrics struct {
	set *metrics.Set
}

func NewMetrics() *Metrics {
	return &Metrics{set: metrics.NewSet()}
}

func (m *Metrics) observeQuery(connection, method string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.set.GetOrCreateHistogram(
		fmt.Sprintf(`dbroute_query_duration_seconds{connection=%q,method=%q}`, connection, method),
	).Update(elapsed.Seconds())
	m.set.GetOrCreateCounter(
		fmt.Sprintf(`dbroute_queries_total{connection=%q,method=%q}`, connection, method),
	).Inc()
	if err != nil {
		m.set.GetOrCreateCounter(
			fmt.Sprintf(`dbroute_query_errors_total{connection=%q,method=%q}`, connection, method),
		).Inc()
	}
}

func (m *Metrics) observeConnection(event, connection string) {
	if m == nil {
		return
	}
	m.set.GetOrCreateCounter(
		fmt.Sprintf(`dbroute_connection_events_total{connection=%q,event=%q}`, connection, event),
	).Inc()
}

func (m *Metrics) observePool(connection string, pool client.PoolMetrics) {
	if m == nil {
		return
	}
	gauge := func(name string, v int64) {
		m.set.GetOrCreateCounter(fmt.Sprintf(`%s{connection=%q}`, name, connection)).Set(uint64(max(v, 0)))
	}
	gauge("dbroute_pool_open_connections", int64(pool.Open))
	gauge("dbroute_pool_in_use_connections", int64(pool.Used))
	gauge("dbroute_pool_idle_connections", int64(pool.Free))
	gauge("dbroute_pool_wait_count", pool.WaitCount)
}

// WritePrometheus writes every recorded series in Prometheus text format.
func (m *Metrics) WritePrometheus(w io.Writer) {
	if m == nil {
		return
	}
	m.set.WritePrometheus(w)
}
