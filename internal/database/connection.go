package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/juju/errors"

	"github.com/AbdelilahOu/dbroute/internal/client"
	"github.com/AbdelilahOu/dbroute/internal/config"
	"github.com/AbdelilahOu/dbroute/internal/dialect"
	"github.com/AbdelilahOu/dbroute/internal/events"
	"github.com/AbdelilahOu/dbroute/internal/logger"
	dbroute "github.com/AbdelilahOu/dbroute/pkg"
)

const probeQuery = "SELECT 1"

// ConnectionOption customises a Connection.
type ConnectionOption func(*Connection)

// WithClock sets the clock used to time queries.
func WithClock(c clock.Clock) ConnectionOption {
	return func(conn *Connection) { conn.clock = c }
}

// WithMetrics records query and lifecycle series into m.
func WithMetrics(m *Metrics) ConnectionOption {
	return func(conn *Connection) { conn.metrics = m }
}

// Connection owns the physical driver clients of one named database: a write
// client and, when read replicas are configured, a read client balanced
// across them. Clients are built lazily by Connect.
type Connection struct {
	ID string

	name    string
	config  config.ConnectionConfig
	logger  *logger.Logger
	bus     *events.Bus
	clock   clock.Clock
	metrics *Metrics

	mu            sync.Mutex
	state         State
	driver        client.Driver
	dialect       dialect.Dialect
	writeClient   *sql.DB
	readClient    *sql.DB
	constructions int
}

func NewConnection(name string, cfg config.ConnectionConfig, log *logger.Logger, bus *events.Bus, opts ...ConnectionOption) *Connection {
	if log == nil {
		log = logger.NewNopLogger()
	}
	if bus == nil {
		bus = events.NewBus()
	}
	c := &Connection{
		ID:     uuid.New().String(),
		name:   name,
		config: cfg,
		logger: log,
		bus:    bus,
		clock:  clock.WallClock,
		state:  StateRegistered,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Connection) Name() string { return c.name }

func (c *Connection) Config() config.ConnectionConfig { return c.config }

func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports whether the write client is live.
func (c *Connection) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateOpen && c.writeClient != nil
}

// HasReadReplicas reports whether reads are served by replicas rather than
// the write client.
func (c *Connection) HasReadReplicas() bool {
	return c.config.HasReadReplicas()
}

// WriteClient returns nil while the connection is not open.
func (c *Connection) WriteClient() *sql.DB {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeClient
}

// ReadClient returns the replica client, or the write client when no read
// replicas are configured. It returns nil while the connection is not open.
func (c *Connection) ReadClient() *sql.DB {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readClient
}

// Dialect is resolved by Connect and nil before it.
func (c *Connection) Dialect() dialect.Dialect {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dialect
}

func (c *Connection) DriverName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.driver.Name
}

// Connect builds the driver clients. It is idempotent: calling it on an open
// connection does nothing and publishes nothing. Construction failures are
// both returned and published on db:connection:error.
func (c *Connection) Connect() error {
	c.mu.Lock()
	if c.state == StateOpen {
		c.mu.Unlock()
		return nil
	}
	err := c.setupClients()
	if err == nil {
		c.state = StateOpen
		c.constructions++
	}
	driverName := c.driver.Name
	c.mu.Unlock()

	if err != nil {
		c.logger.LogConnectionEvent("connect", c.name, c.config.Client, err)
		c.bus.Publish(events.TopicConnectionError, &ConnectionError{Err: err, Connection: c})
		return errors.Trace(err)
	}

	c.logger.LogConnectionEvent("connect", c.name, driverName, nil)
	c.metrics.observeConnection("connect", c.name)
	c.bus.Publish(events.TopicConnectionConnect, c)
	return nil
}

// setupClients assigns both clients or neither. Callers hold c.mu.
func (c *Connection) setupClients() error {
	if err := c.config.Validate(); err != nil {
		return configurationError("connection %q: %v", c.name, err)
	}

	drv, err := client.ResolveDriver(c.config.Client)
	if err != nil {
		return configurationError("connection %q: %v", c.name, err)
	}
	d, err := dialect.For(drv)
	if err != nil {
		return configurationError("connection %q: %v", c.name, err)
	}

	write, err := client.Open(drv, c.config.WriteConfig())
	if err != nil {
		return configurationError("connection %q: write client: %v", c.name, err)
	}

	read := write
	if reads := c.config.ReadConfigs(); len(reads) > 0 {
		read, err = client.OpenRoundRobin(drv, reads)
		if err != nil {
			_ = write.Close()
			return configurationError("connection %q: read client: %v", c.name, err)
		}
	}

	c.driver = drv
	c.dialect = d
	c.writeClient = write
	c.readClient = read
	return nil
}

// Disconnect closes the write client and then the read client. Each close
// runs even when the other fails; the first failure is returned. References
// are dropped and a disconnect event is published regardless. Disconnecting
// a connection that is not open does nothing.
func (c *Connection) Disconnect() error {
	c.mu.Lock()
	if c.state != StateOpen {
		c.mu.Unlock()
		return nil
	}
	write, read := c.writeClient, c.readClient
	c.writeClient, c.readClient = nil, nil
	c.state = StateClosed
	c.mu.Unlock()

	var firstErr error
	if write != nil {
		if err := write.Close(); err != nil {
			firstErr = fmt.Errorf("close write client: %w", err)
		}
	}
	if read != nil && read != write {
		if err := read.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close read client: %w", err)
		}
	}

	c.logger.LogConnectionEvent("disconnect", c.name, c.config.Client, firstErr)
	c.metrics.observeConnection("disconnect", c.name)
	if firstErr != nil {
		c.bus.Publish(events.TopicConnectionError, &ConnectionError{Err: firstErr, Connection: c})
	}
	c.bus.Publish(events.TopicConnectionDisconnect, c)
	return firstErr
}

// Report probes the write client and, when replicas are configured, the read
// client. ctx bounds both probes.
func (c *Connection) Report(ctx context.Context) dbroute.ConnectionReport {
	report := dbroute.ConnectionReport{
		Connection: c.name,
		Message:    dbroute.MessageConnectionHealthy,
	}

	c.mu.Lock()
	write, read := c.writeClient, c.readClient
	c.mu.Unlock()

	if write == nil {
		report.Message = dbroute.MessageServerUnreachable
		report.Error = connectionClosed(c.name)
		return report
	}
	if err := probe(ctx, write); err != nil {
		report.Message = dbroute.MessageServerUnreachable
		report.Error = err
		return report
	}
	if read != nil && read != write {
		if err := probe(ctx, read); err != nil {
			report.Message = dbroute.MessageReadHostUnreachable
			report.Error = err
		}
	}
	return report
}

func probe(ctx context.Context, db *sql.DB) error {
	var one int
	if err := db.QueryRowContext(ctx, probeQuery).Scan(&one); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectivity, err)
	}
	return nil
}

// PoolMetrics reports the write client's pool. It is zero while the
// connection is not open.
func (c *Connection) PoolMetrics() client.PoolMetrics {
	pool := client.Stats(c.WriteClient())
	c.metrics.observePool(c.name, pool)
	return pool
}

// observe records a finished statement.
func (c *Connection) observe(method, query string, elapsed time.Duration, err error) {
	c.logger.LogDatabaseOperation(c.name, method, query, elapsed, err)
	c.metrics.observeQuery(c.name, method, elapsed, err)
}
