package channel

import (
	"github.com/rs/zerolog"

	"sinyal/internal/transport"
	"sinyal/internal/ws"
	"sinyal/pkg/core"
)

// State is the lifecycle state of a channel.
type State = ws.ConnState

// Channel states.
const (
	StateIdle         = ws.StateIdle
	StateConnecting   = ws.StateConnecting
	StateConnected    = ws.StateConnected
	StateDisconnected = ws.StateDisconnected
	StateReconnecting = ws.StateReconnecting
	StateTerminated   = ws.StateTerminated
)

// Option configures a Channel.
type Option func(*Channel)

type callbacks struct {
	onOpen        func(core.HandshakeInfo)
	onClose       func(core.CloseInfo)
	onError       func(error)
	onStateChange func(from, to State)
	onTerminated  func(core.Status)
}

// WithLogger sets the logger. The channel name is added to every entry.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Channel) {
		c.logger = logger
	}
}

// WithDialer replaces the transport. The default dials gws websockets,
// wrapped in SockJS framing when the config asks for it.
func WithDialer(dialer transport.Dialer) Option {
	return func(c *Channel) {
		c.dialer = dialer
	}
}

// WithHandler binds h to destination. destination must be one of the
// configured destinations.
func WithHandler(destination string, h Handler) Option {
	return func(c *Channel) {
		c.handlers[destination] = h
	}
}

// WithDefaultHandler binds h to every destination without its own handler.
func WithDefaultHandler(h Handler) Option {
	return func(c *Channel) {
		c.defaultHandler = h
	}
}

// OnOpen is called once the messaging session is established.
func OnOpen(fn func(core.HandshakeInfo)) Option {
	return func(c *Channel) {
		c.callbacks.onOpen = fn
	}
}

// OnClose is called when an established session ends.
func OnClose(fn func(core.CloseInfo)) Option {
	return func(c *Channel) {
		c.callbacks.onClose = fn
	}
}

// OnError receives configuration, transport, protocol and decode errors as *core.ChannelError.
func OnError(fn func(error)) Option {
	return func(c *Channel) {
		c.callbacks.onError = fn
	}
}

// OnStateChange is called on every state transition.
func OnStateChange(fn func(from, to State)) Option {
	return func(c *Channel) {
		c.callbacks.onStateChange = fn
	}
}

// OnTerminated is called when the retry budget is exhausted.
func OnTerminated(fn func(core.Status)) Option {
	return func(c *Channel) {
		c.callbacks.onTerminated = fn
	}
}
