package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lxzan/gws"
	"github.com/rs/zerolog"
)

// GWSDialer opens plain websocket sessions with gws.
type GWSDialer struct {
	logger zerolog.Logger
}

// NewGWSDialer creates a dialer that logs nothing until SetLogger is called.
func NewGWSDialer() *GWSDialer {
	return &GWSDialer{logger: zerolog.Nop()}
}

func (d *GWSDialer) SetLogger(logger zerolog.Logger) {
	d.logger = logger
}

type dialResult struct {
	socket *gws.Conn
	err    error
}

// Dial performs the websocket upgrade and starts the read loop. OnOpen is
// delivered from the read loop, possibly before Dial returns.
func (d *GWSDialer) Dial(ctx context.Context, req Request, handler Handler) (Conn, error) {
	conn := &wsConn{readTimeout: req.ReadTimeout}
	events := &wsEventHandler{conn: conn, handler: handler, logger: d.logger}

	timeout := req.HandshakeTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); timeout == 0 || remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 && ctx.Err() != nil {
		return nil, ctx.Err()
	}

	done := make(chan dialResult, 1)
	go func() {
		socket, _, err := gws.NewClient(events, &gws.ClientOption{
			Addr:             req.URL,
			RequestHeader:    req.Header,
			HandshakeTimeout: timeout,
		})
		done <- dialResult{socket: socket, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return nil, fmt.Errorf("dial websocket: %w", res.err)
		}
		conn.socket = res.socket
	case <-ctx.Done():
		go func() {
			if res := <-done; res.socket != nil {
				_ = res.socket.NetConn().Close()
			}
		}()
		return nil, ctx.Err()
	}

	d.logger.Debug().Str("url", req.URL).Msg("websocket upgraded")

	go conn.socket.ReadLoop()
	return conn, nil
}

type wsConn struct {
	socket      *gws.Conn
	readTimeout time.Duration
}

func (c *wsConn) Send(data []byte) error {
	if err := c.socket.WriteMessage(gws.OpcodeText, data); err != nil {
		return fmt.Errorf("write websocket: %w", err)
	}
	return nil
}

func (c *wsConn) Close(code int, reason string) error {
	c.socket.WriteClose(uint16(code), []byte(reason))
	return nil
}

func (c *wsConn) touch() {
	if c.readTimeout > 0 {
		_ = c.socket.SetReadDeadline(time.Now().Add(c.readTimeout))
	}
}

type wsEventHandler struct {
	conn    *wsConn
	handler Handler
	logger  zerolog.Logger
}

func (h *wsEventHandler) OnOpen(socket *gws.Conn) {
	h.conn.touch()
	h.handler.OnOpen(h.conn)
}

func (h *wsEventHandler) OnClose(socket *gws.Conn, err error) {
	var ce *gws.CloseError
	if errors.As(err, &ce) {
		err = &CloseError{Code: int(ce.Code), Reason: string(ce.Reason)}
	}
	h.logger.Debug().Err(err).Msg("websocket closed")
	h.handler.OnClose(h.conn, err)
}

func (h *wsEventHandler) OnPing(socket *gws.Conn, payload []byte) {
	h.conn.touch()
	_ = socket.WritePong(payload)
}

func (h *wsEventHandler) OnPong(socket *gws.Conn, payload []byte) {
	h.conn.touch()
}

func (h *wsEventHandler) OnMessage(socket *gws.Conn, message *gws.Message) {
	defer message.Close()

	h.conn.touch()
	data := message.Bytes()
	if len(data) == 0 {
		return
	}
	// the message buffer returns to a pool on Close
	payload := make([]byte, len(data))
	copy(payload, data)
	h.handler.OnMessage(h.conn, payload)
}
