package database

import "fmt"

// Mode decides which physical client answers a query.
type Mode string

const (
	// ModeRead serves everything from the read client and rejects writes.
	ModeRead Mode = "read"
	// ModeWrite serves reads and writes from the write client.
	ModeWrite Mode = "write"
	// ModeDual sends reads to the read client and writes to the write client.
	ModeDual Mode = "dual"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeRead, ModeWrite, ModeDual:
		return m, nil
	}
	return "", fmt.Errorf("invalid query client mode %q", s)
}

func (m Mode) String() string { return string(m) }

// State is the lifecycle state of a connection.
type State string

const (
	StateRegistered State = "registered"
	StateOpen       State = "open"
	StateClosed     State = "closed"
)
