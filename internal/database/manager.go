package database

import (
	"context"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/juju/errors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/AbdelilahOu/dbroute/internal/config"
	"github.com/AbdelilahOu/dbroute/internal/events"
	"github.com/AbdelilahOu/dbroute/internal/logger"
	dbroute "github.com/AbdelilahOu/dbroute/pkg"
)

const defaultProbeTimeout = 5 * time.Second

// ConnectionNode is the registry entry of a named connection. Connection is
// nil until the node is first connected, and again after a failed connect
// or a patch.
type ConnectionNode struct {
	Name       string
	Config     config.ConnectionConfig
	State      State
	Connection *Connection
}

// ManagerOption customises a Manager.
type ManagerOption func(*Manager)

// WithProbeTimeout bounds each connection probe of Report.
func WithProbeTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) { m.probeTimeout = d }
}

// WithConnectionOptions applies opts to every connection the manager builds.
func WithConnectionOptions(opts ...ConnectionOption) ManagerOption {
	return func(m *Manager) { m.connOpts = append(m.connOpts, opts...) }
}

// Manager is the registry of named connections.
type Manager struct {
	logger       *logger.Logger
	bus          *events.Bus
	metrics      *Metrics
	probeTimeout time.Duration
	connOpts     []ConnectionOption

	mu      sync.RWMutex
	nodes   map[string]*ConnectionNode
	orphans map[*Connection]func() // value drops the pending replacement subscription

	connecting  singleflight.Group
	unsubscribe func()
}

func NewManager(log *logger.Logger, bus *events.Bus, opts ...ManagerOption) *Manager {
	if log == nil {
		log = logger.NewNopLogger()
	}
	if bus == nil {
		bus = events.NewBus()
	}
	m := &Manager{
		logger:       log,
		bus:          bus,
		metrics:      NewMetrics(),
		probeTimeout: defaultProbeTimeout,
		nodes:        make(map[string]*ConnectionNode),
		orphans:      make(map[*Connection]func()),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.connOpts = append([]ConnectionOption{WithMetrics(m.metrics)}, m.connOpts...)
	m.unsubscribe = bus.Subscribe(events.TopicConnectionDisconnect, m.onDisconnect)
	return m
}

// NewManagerFromConfig registers every configured connection.
func NewManagerFromConfig(cfg *config.Config, log *logger.Logger, bus *events.Bus, opts ...ManagerOption) *Manager {
	m := NewManager(log, bus, opts...)
	for name, conn := range cfg.ListConnections() {
		m.Add(name, conn)
	}
	return m
}

func (m *Manager) Bus() *events.Bus { return m.bus }

// onDisconnect marks a node closed when its connection is closed from
// outside the manager.
func (m *Manager) onDisconnect(_ string, data interface{}) {
	conn, ok := data.(*Connection)
	if !ok {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if node, ok := m.nodes[conn.Name()]; ok && node.Connection == conn && node.State == StateOpen {
		node.State = StateClosed
	}
}

// Add registers a connection. Adding a name that is already open does
// nothing; otherwise the config replaces the previous one.
func (m *Manager) Add(name string, cfg config.ConnectionConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if node, ok := m.nodes[name]; ok {
		if node.Connection != nil && node.Connection.IsConnected() {
			m.logger.Debug("connection already open, ignoring add", map[string]interface{}{
				"connection": name,
			})
			return
		}
		node.Config = cfg
		node.Connection = nil
		node.State = StateRegistered
		return
	}

	m.nodes[name] = &ConnectionNode{
		Name:   name,
		Config: cfg,
		State:  StateRegistered,
	}
	m.logger.Debug("connection registered", map[string]interface{}{
		"connection": name,
		"client":     cfg.Client,
	})
}

// Connect opens a registered connection. Concurrent calls for the same name
// share one attempt. Connecting an open node returns its connection.
func (m *Manager) Connect(name string) (*Connection, error) {
	v, err, _ := m.connecting.Do(name, func() (interface{}, error) {
		return m.connect(name)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Connection), nil
}

func (m *Manager) connect(name string) (*Connection, error) {
	m.mu.Lock()
	node, ok := m.nodes[name]
	if !ok {
		m.mu.Unlock()
		return nil, errors.NotFoundf("connection %q", name)
	}
	conn := node.Connection
	if conn != nil && conn.IsConnected() {
		node.State = StateOpen
		m.mu.Unlock()
		return conn, nil
	}
	if conn == nil {
		conn = NewConnection(name, node.Config, m.logger, m.bus, m.connOpts...)
		node.Connection = conn
	}
	m.mu.Unlock()

	err := conn.Connect()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.nodes[name] != node || node.Connection != conn {
		// released or patched while connecting
		if err == nil {
			go m.disconnect(conn)
		}
		return nil, errors.NotFoundf("connection %q", name)
	}
	if err != nil {
		node.Connection = nil
		node.State = StateRegistered
		return nil, errors.Trace(err)
	}
	node.State = StateOpen
	return conn, nil
}

// Get returns a copy of the node, with its state reconciled against the
// live connection.
func (m *Manager) Get(name string) (ConnectionNode, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	node, ok := m.nodes[name]
	if !ok {
		return ConnectionNode{}, false
	}
	out := *node
	if out.State == StateOpen && (out.Connection == nil || !out.Connection.IsConnected()) {
		out.State = StateClosed
	}
	return out, true
}

func (m *Manager) Has(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.nodes[name]
	return ok
}

// IsConnected reports whether name is registered and its connection is live.
func (m *Manager) IsConnected(name string) bool {
	node, ok := m.Get(name)
	return ok && node.State == StateOpen
}

// Names returns the registered connection names in sorted order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.nodes))
	for name := range m.nodes {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Patch replaces the config of name. An open connection is not closed
// immediately: it becomes an orphan that keeps serving in-flight work until
// the replacement connects, and is then disconnected.
func (m *Manager) Patch(name string, cfg config.ConnectionConfig) {
	m.mu.Lock()
	node, ok := m.nodes[name]
	if !ok {
		m.mu.Unlock()
		m.Add(name, cfg)
		return
	}

	old := node.Connection
	node.Config = cfg
	node.Connection = nil
	node.State = StateRegistered
	if old == nil || !old.IsConnected() {
		m.mu.Unlock()
		return
	}
	// subscribed under the lock so a racing Connect cannot publish first
	m.bus.SubscribeOnce(events.TopicConnectionDisconnect,
		func(data interface{}) bool { return data == old },
		func(interface{}) {
			m.mu.Lock()
			delete(m.orphans, old)
			m.mu.Unlock()
		},
	)
	m.orphans[old] = m.bus.SubscribeOnce(events.TopicConnectionConnect,
		func(data interface{}) bool {
			conn, ok := data.(*Connection)
			return ok && conn != old && conn.Name() == name
		},
		func(interface{}) { _ = m.disconnect(old) },
	)
	m.mu.Unlock()

	m.logger.Info("connection patched, previous connection orphaned", map[string]interface{}{
		"connection": name,
		"orphan_id":  old.ID,
	})
}

// OrphanCount is the number of patched-out connections not yet
// disconnected.
func (m *Manager) OrphanCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.orphans)
}

// takeOrphans returns the orphans of name with the releases of their pending
// replacement subscriptions. Entries leave the orphan set once their
// disconnect event arrives. Callers hold m.mu.
func (m *Manager) takeOrphans(name string) ([]*Connection, []func()) {
	var (
		conns    []*Connection
		releases []func()
	)
	for orphan, release := range m.orphans {
		if orphan.Name() != name {
			continue
		}
		conns = append(conns, orphan)
		if release != nil {
			releases = append(releases, release)
			m.orphans[orphan] = nil
		}
	}
	return conns, releases
}

// disconnectAll disconnects every conn and returns the first failure.
func (m *Manager) disconnectAll(conns []*Connection) error {
	var firstErr error
	for _, conn := range conns {
		if err := m.disconnect(conn); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *Manager) disconnect(conn *Connection) error {
	if err := conn.Disconnect(); err != nil {
		m.logger.Error("disconnect failed", err, map[string]interface{}{
			"connection": conn.Name(),
			"id":         conn.ID,
		})
		return err
	}
	return nil
}

// Close disconnects name, and any orphans it left behind, and keeps it
// registered so it can reconnect.
func (m *Manager) Close(name string) error {
	m.mu.Lock()
	node, ok := m.nodes[name]
	if !ok {
		m.mu.Unlock()
		return errors.NotFoundf("connection %q", name)
	}
	conns, releases := m.takeOrphans(name)
	if node.Connection != nil {
		conns = append(conns, node.Connection)
		if node.State == StateOpen {
			node.State = StateClosed
		}
	}
	m.mu.Unlock()

	for _, release := range releases {
		release()
	}
	return m.disconnectAll(conns)
}

// Release disconnects name and removes it from the registry.
func (m *Manager) Release(name string) error {
	m.mu.Lock()
	node, ok := m.nodes[name]
	if !ok {
		m.mu.Unlock()
		return errors.NotFoundf("connection %q", name)
	}
	delete(m.nodes, name)
	conns, releases := m.takeOrphans(name)
	if node.Connection != nil {
		conns = append(conns, node.Connection)
	}
	m.mu.Unlock()

	for _, release := range releases {
		release()
	}
	return m.disconnectAll(conns)
}

// CloseAll disconnects every connection, orphans included, and empties the
// registry. All disconnects run; the first failure is returned.
func (m *Manager) CloseAll() error {
	m.mu.Lock()
	var (
		conns    []*Connection
		releases []func()
	)
	for _, node := range m.nodes {
		if node.Connection != nil {
			conns = append(conns, node.Connection)
		}
	}
	for orphan, release := range m.orphans {
		conns = append(conns, orphan)
		if release != nil {
			releases = append(releases, release)
			m.orphans[orphan] = nil
		}
	}
	clear(m.nodes)
	m.mu.Unlock()

	for _, release := range releases {
		release()
	}
	return m.disconnectAll(conns)
}

// Shutdown closes everything and stops listening for events.
func (m *Manager) Shutdown() error {
	err := m.CloseAll()
	m.mu.Lock()
	unsubscribe := m.unsubscribe
	m.unsubscribe = nil
	m.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
	return err
}

// Client connects name and returns a query client in mode.
func (m *Manager) Client(name string, mode Mode) (*QueryClient, error) {
	conn, err := m.Connect(name)
	if err != nil {
		return nil, err
	}
	return NewQueryClient(mode, conn)
}

// Report probes every connection with health checks enabled, connecting it
// first when needed. Probes run concurrently and each is bounded by the
// probe timeout.
func (m *Manager) Report(ctx context.Context) dbroute.HealthReport {
	m.mu.RLock()
	var names []string
	for name, node := range m.nodes {
		if node.Config.HealthCheck {
			names = append(names, name)
		}
	}
	m.mu.RUnlock()
	slices.Sort(names)

	reports := make([]dbroute.ConnectionReport, len(names))
	var g errgroup.Group
	for i, name := range names {
		g.Go(func() error {
			reports[i] = m.probe(ctx, name)
			return nil
		})
	}
	_ = g.Wait()

	report := dbroute.HealthReport{
		Health: dbroute.Health{Healthy: true, Message: dbroute.MessageAllHealthy},
		Meta:   reports,
	}
	for _, r := range reports {
		if !r.Healthy() {
			report.Health = dbroute.Health{Healthy: false, Message: dbroute.MessageSomeUnhealthy}
			break
		}
	}
	return report
}

func (m *Manager) probe(ctx context.Context, name string) dbroute.ConnectionReport {
	conn, err := m.Connect(name)
	if err != nil {
		return dbroute.ConnectionReport{
			Connection: name,
			Message:    dbroute.MessageServerUnreachable,
			Error:      err,
		}
	}

	probeCtx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	defer cancel()
	r := conn.Report(probeCtx)
	conn.PoolMetrics()
	return r
}

// WritePrometheus writes query, connection and pool series.
func (m *Manager) WritePrometheus(w io.Writer) {
	m.metrics.WritePrometheus(w)
}
