// Package transport owns the message-oriented socket beneath a delivery channel.
//
// A Dialer opens one session per call. Lifecycle and inbound messages are
// reported to the Handler given at dial time; a Handler is never shared
// between sessions.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Close codes used by the client.
const (
	CloseNormal   = 1000
	CloseAbnormal = 1006
)

// Request describes one handshake.
type Request struct {
	URL    string
	Header http.Header
	// HandshakeTimeout bounds the upgrade. Zero leaves it to ctx.
	HandshakeTimeout time.Duration
	// ReadTimeout closes a session that stays silent for longer. Zero disables it.
	ReadTimeout time.Duration
}

// Conn is an open session.
type Conn interface {
	// Send writes one text message.
	Send(data []byte) error
	// Close closes the session with the given close code and reason.
	Close(code int, reason string) error
}

// Handler receives session events. Calls for one session are serialized.
type Handler interface {
	OnOpen(conn Conn)
	OnMessage(conn Conn, data []byte)
	// OnClose is called once. err is a *CloseError for a close handshake.
	OnClose(conn Conn, err error)
}

// Dialer opens sessions.
type Dialer interface {
	Dial(ctx context.Context, req Request, handler Handler) (Conn, error)
}

// CloseError reports the close code and reason a session ended with.
type CloseError struct {
	Code   int
	Reason string
}

func (e *CloseError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("connection closed: code %d", e.Code)
	}
	return fmt.Sprintf("connection closed: code %d: %s", e.Code, e.Reason)
}

// IsNormalClosure reports whether err is a clean close with code 1000.
func IsNormalClosure(err error) bool {
	var ce *CloseError
	return errors.As(err, &ce) && ce.Code == CloseNormal
}

// CloseDetails extracts the close code and reason from err.
// Errors that are not close handshakes map to 1006.
func CloseDetails(err error) (int, string) {
	var ce *CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Reason
	}
	if err == nil {
		return CloseNormal, ""
	}
	return CloseAbnormal, err.Error()
}
