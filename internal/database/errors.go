package database

import (
	"context"
	"database/sql/driver"
	"fmt"
	"net"

	"github.com/juju/errors"
)

const (
	// ErrConfiguration marks invalid or missing driver configuration. It is
	// returned by Connect before any I/O happens.
	ErrConfiguration = errors.ConstError("configuration error")

	// ErrModeViolation marks a write attempted through a read-mode client.
	ErrModeViolation = errors.ConstError("mode violation")

	// ErrConnectivity marks network or driver failures.
	ErrConnectivity = errors.ConstError("connectivity error")

	// ErrMissingResource marks a missing file or directory a workflow
	// depends on, such as a migrations directory.
	ErrMissingResource = errors.ConstError("missing resource")

	ErrTransactionInProgress = errors.ConstError("transaction already in progress")
	ErrTransactionCompleted  = errors.ConstError("transaction already completed")
)

// ConnectionError is the payload of db:connection:error events.
type ConnectionError struct {
	Err        error
	Connection *Connection
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection %q: %v", e.Connection.Name(), e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

func configurationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

func writeClientUnavailable() error {
	return fmt.Errorf("%w: Write client is not available for query client instantiated in read mode", ErrModeViolation)
}

func connectionClosed(name string) error {
	return fmt.Errorf("%w: connection %q is not open", ErrConnectivity, name)
}

// classify tags transport failures with ErrConnectivity and leaves statement
// errors untouched.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	switch {
	case errors.Is(err, ErrConnectivity):
		return err
	case errors.Is(err, driver.ErrBadConn),
		errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr):
		return fmt.Errorf("%w: %w", ErrConnectivity, err)
	}
	return err
}
