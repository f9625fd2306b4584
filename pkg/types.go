package dbroute

import (
	"encoding/json"
	"time"
)

// Health report messages. Operational tooling matches on these strings.
const (
	MessageConnectionHealthy   = "Connection is healthy"
	MessageServerUnreachable   = "Unable to reach the database server"
	MessageReadHostUnreachable = "Unable to reach one of the read hosts"
	MessageAllHealthy          = "All connections are healthy"
	MessageSomeUnhealthy       = "One or more connections are not healthy"
)

// HealthReport is the aggregate health of every connection with health
// checks enabled.
type HealthReport struct {
	Health Health             `json:"health"`
	Meta   []ConnectionReport `json:"meta"`
}

type Health struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message"`
}

// ConnectionReport is the probe result of a single connection.
type ConnectionReport struct {
	Connection string `json:"connection"`
	Message    string `json:"message"`
	Error      error  `json:"-"`
}

func (r ConnectionReport) Healthy() bool {
	return r.Error == nil
}

func (r ConnectionReport) MarshalJSON() ([]byte, error) {
	var errMsg *string
	if r.Error != nil {
		msg := r.Error.Error()
		errMsg = &msg
	}
	return json.Marshal(struct {
		Connection string  `json:"connection"`
		Message    string  `json:"message"`
		Error      *string `json:"error"`
	}{r.Connection, r.Message, errMsg})
}

// QueryEvent is published on db:query for every executed statement while
// debugging is enabled. Duration is encoded in milliseconds.
type QueryEvent struct {
	SQL           string        `json:"sql"`
	Bindings      []any         `json:"bindings"`
	Connection    string        `json:"connection"`
	InTransaction bool          `json:"inTransaction"`
	Duration      time.Duration `json:"duration"`
	Method        string        `json:"method"`
	Error         error         `json:"-"`
}

func (e QueryEvent) MarshalJSON() ([]byte, error) {
	var errMsg *string
	if e.Error != nil {
		msg := e.Error.Error()
		errMsg = &msg
	}
	return json.Marshal(struct {
		SQL           string  `json:"sql"`
		Bindings      []any   `json:"bindings"`
		Connection    string  `json:"connection"`
		InTransaction bool    `json:"inTransaction"`
		Duration      float64 `json:"duration"`
		Method        string  `json:"method"`
		Error         *string `json:"error,omitempty"`
	}{
		SQL:           e.SQL,
		Bindings:      e.Bindings,
		Connection:    e.Connection,
		InTransaction: e.InTransaction,
		Duration:      float64(e.Duration) / float64(time.Millisecond),
		Method:        e.Method,
		Error:         errMsg,
	})
}
