package ws

import "sync/atomic"

// ConnState represents the lifecycle state of a delivery channel.
type ConnState int32

// Connection states driven by the reconnection controller.
const (
	// StateIdle is the initial state: no session and no pending timer.
	StateIdle ConnState = iota
	// StateConnecting indicates a handshake is in flight.
	StateConnecting
	// StateConnected indicates a live session with active subscriptions.
	StateConnected
	// StateDisconnected indicates the session was lost without the caller asking for it.
	StateDisconnected
	// StateReconnecting indicates a backoff timer is pending.
	StateReconnecting
	// StateTerminated indicates the retry budget is exhausted.
	StateTerminated
)

// String returns the string representation of the connection state.
func (s ConnState) String() string {
	if s < StateIdle || s > StateTerminated {
		return "unknown"
	}
	return [...]string{
		"idle",
		"connecting",
		"connected",
		"disconnected",
		"reconnecting",
		"terminated",
	}[s]
}

// Active reports whether the state owns a session or a handshake in flight.
func (s ConnState) Active() bool {
	return s == StateConnecting || s == StateConnected
}

// State provides thread-safe atomic access to a ConnState value.
type State struct {
	state atomic.Int32
}

// Load returns the current connection state.
func (s *State) Load() ConnState {
	return ConnState(s.state.Load())
}

// Store sets the connection state to the given value.
func (s *State) Store(state ConnState) {
	s.state.Store(int32(state))
}

// Swap stores the new state and returns the previous one.
func (s *State) Swap(state ConnState) ConnState {
	return ConnState(s.state.Swap(int32(state)))
}
