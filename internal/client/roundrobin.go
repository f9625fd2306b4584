package client

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/AbdelilahOu/dbroute/internal/config"
)

// roundRobinConnector opens each new pooled connection against the next
// replica in turn.
type roundRobinConnector struct {
	driver     driver.Driver
	connectors []driver.Connector
	next       atomic.Uint64
}

func (c *roundRobinConnector) Connect(ctx context.Context) (driver.Conn, error) {
	i := (c.next.Add(1) - 1) % uint64(len(c.connectors))
	return c.connectors[i].Connect(ctx)
}

func (c *roundRobinConnector) Driver() driver.Driver {
	return c.driver
}

// dsnConnector adapts drivers that do not implement driver.DriverContext.
type dsnConnector struct {
	driver driver.Driver
	dsn    string
}

func (c dsnConnector) Connect(_ context.Context) (driver.Conn, error) {
	return c.driver.Open(c.dsn)
}

func (c dsnConnector) Driver() driver.Driver {
	return c.driver
}

// OpenRoundRobin builds one pooled driver client spread across the given
// replicas. Pool settings come from the first replica.
func OpenRoundRobin(d Driver, nodes []config.NodeConfig) (*sql.DB, error) {
	if len(nodes) == 0 {
		return nil, errors.New("round robin client requires at least one replica")
	}

	dsns := make([]string, 0, len(nodes))
	for _, node := range nodes {
		dsn, err := DSN(d, node.Connection)
		if err != nil {
			return nil, err
		}
		dsns = append(dsns, dsn)
	}

	// sql.Open does not dial; it is only used to look up the registered driver
	probe, err := sql.Open(d.Name, dsns[0])
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.Name, err)
	}
	drv := probe.Driver()
	_ = probe.Close()

	rr := &roundRobinConnector{driver: drv}
	for _, dsn := range dsns {
		if dc, ok := drv.(driver.DriverContext); ok {
			connector, err := dc.OpenConnector(dsn)
			if err != nil {
				return nil, fmt.Errorf("open %s replica: %w", d.Name, err)
			}
			rr.connectors = append(rr.connectors, connector)
			continue
		}
		rr.connectors = append(rr.connectors, dsnConnector{driver: drv, dsn: dsn})
	}

	db := sql.OpenDB(rr)
	applyPool(db, nodes[0].Pool)
	return db, nil
}
