package mcp

import "time"

// StateKind identifies which variant of the connection state machine a
// server is in. Exactly one state holds per server; the manager is the sole
// mutator and publishes transitions by replacing the server record, so
// readers never observe a half-written state.
type StateKind string

const (
	StateIdle       StateKind = "idle"
	StateConnecting StateKind = "connecting"
	StateConnected  StateKind = "connected"
	StateFailed     StateKind = "failed"
)

// ConnState is the tagged connection state of one server. Only the fields
// relevant to Kind are populated.
type ConnState struct {
	Kind StateKind `json:"kind"`
	// StartedAt is set while Connecting.
	StartedAt time.Time `json:"startedAt,omitempty"`
	// Since is set once Connected or Failed.
	Since time.Time `json:"since,omitempty"`
	// Transport is set while Connected.
	Transport TransportKind `json:"transport,omitempty"`
	// Err holds the sanitized failure message while Failed.
	Err string `json:"error,omitempty"`
}

func idleState() ConnState {
	return ConnState{Kind: StateIdle}
}

func connectingState() ConnState {
	return ConnState{Kind: StateConnecting, StartedAt: time.Now()}
}

func connectedState(kind TransportKind) ConnState {
	return ConnState{Kind: StateConnected, Since: time.Now(), Transport: kind}
}

func failedState(errMsg string) ConnState {
	return ConnState{Kind: StateFailed, Since: time.Now(), Err: errMsg}
}
