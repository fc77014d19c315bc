package core

import (
	"fmt"
	"strings"
)

// Mode selects how a channel reaches its server.
type Mode int

// Mode constants define the connection topologies.
const (
	// ModeDirect dials a fixed host:port target.
	ModeDirect Mode = iota
	// ModeProxied dials through the same origin that serves the REST API.
	ModeProxied
)

// String returns the string representation of the mode ("direct" or "proxied").
func (m Mode) String() string {
	if m != ModeProxied {
		return "direct"
	}
	return "proxied"
}

// MarshalText implements encoding.TextMarshaler for Mode.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler for Mode.
// It accepts both uppercase and lowercase formats.
func (m *Mode) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "", "direct":
		*m = ModeDirect
	case "proxied", "proxy":
		*m = ModeProxied
	default:
		return fmt.Errorf("unknown mode %q", string(text))
	}
	return nil
}

// Framing selects the socket framing used under the messaging sub-protocol.
type Framing int

// Framing constants.
const (
	// FramingWebSocket sends each STOMP frame as one websocket text message.
	FramingWebSocket Framing = iota
	// FramingSockJS wraps frames in the SockJS websocket transport envelope.
	FramingSockJS
)

// String returns the string representation of the framing.
func (f Framing) String() string {
	if f != FramingSockJS {
		return "websocket"
	}
	return "sockjs"
}

// UnmarshalText implements encoding.TextUnmarshaler for Framing.
func (f *Framing) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "", "websocket", "ws":
		*f = FramingWebSocket
	case "sockjs":
		*f = FramingSockJS
	default:
		return fmt.Errorf("unknown framing %q", string(text))
	}
	return nil
}
