package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"sinyal/internal/circuitbreaker"
	"sinyal/internal/http"
	"sinyal/internal/sockjs"
)

// SockJSDialer opens SockJS sessions over the websocket transport of an inner Dialer.
// Request.URL is the SockJS base URL (http or https).
type SockJSDialer struct {
	inner   Dialer
	probe   *http.Client
	breaker *circuitbreaker.Breaker
	logger  zerolog.Logger
}

// NewSockJSDialer wraps inner. A non-nil probe client requests {base}/info
// before each session. Once the probe keeps failing, sessions are dialed
// without it until the breaker's cooldown has passed.
func NewSockJSDialer(inner Dialer, probe *http.Client) *SockJSDialer {
	return &SockJSDialer{
		inner:   inner,
		probe:   probe,
		breaker: circuitbreaker.New(circuitbreaker.DefaultConfig()),
		logger:  zerolog.Nop(),
	}
}

// WithBreaker replaces the probe breaker.
func (d *SockJSDialer) WithBreaker(b *circuitbreaker.Breaker) *SockJSDialer {
	d.breaker = b
	return d
}

func (d *SockJSDialer) SetLogger(logger zerolog.Logger) {
	d.logger = logger
}

func (d *SockJSDialer) Dial(ctx context.Context, req Request, handler Handler) (Conn, error) {
	if err := d.preflight(ctx, req.URL); err != nil {
		return nil, err
	}

	sessionURL, err := sockjs.SessionURL(req.URL)
	if err != nil {
		return nil, err
	}
	req.URL = sessionURL

	conn := &sockJSConn{}
	inner, err := d.inner.Dial(ctx, req, &sockJSHandler{conn: conn, handler: handler, logger: d.logger})
	if err != nil {
		return nil, err
	}
	conn.setInner(inner)
	return conn, nil
}

func (d *SockJSDialer) preflight(ctx context.Context, base string) error {
	if d.probe == nil {
		return nil
	}
	if !d.breaker.Allow() {
		d.logger.Debug().Msg("sockjs info probe skipped")
		return nil
	}

	info, err := sockjs.Probe(ctx, d.probe, base)
	if err != nil {
		// a server that answered with websocket:false is healthy
		d.breaker.Record(errors.Is(err, sockjs.ErrWebSocketDisabled))
		return err
	}
	d.breaker.Record(true)
	d.logger.Debug().Bool("cookie_needed", info.CookieNeeded).Msg("sockjs info")
	return nil
}

type sockJSConn struct {
	mu    sync.Mutex
	inner Conn
}

func (c *sockJSConn) setInner(inner Conn) {
	c.mu.Lock()
	if c.inner == nil {
		c.inner = inner
	}
	c.mu.Unlock()
}

func (c *sockJSConn) conn() Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inner
}

func (c *sockJSConn) Send(data []byte) error {
	inner := c.conn()
	if inner == nil {
		return fmt.Errorf("sockjs: session not open")
	}
	payload, err := sockjs.Encode(string(data))
	if err != nil {
		return err
	}
	return inner.Send(payload)
}

func (c *sockJSConn) Close(code int, reason string) error {
	inner := c.conn()
	if inner == nil {
		return nil
	}
	return inner.Close(code, reason)
}

type sockJSHandler struct {
	conn    *sockJSConn
	handler Handler
	logger  zerolog.Logger
	closed  bool
}

// OnOpen waits for the "o" frame instead.
func (h *sockJSHandler) OnOpen(conn Conn) {
	h.conn.setInner(conn)
}

func (h *sockJSHandler) OnMessage(conn Conn, data []byte) {
	if h.closed {
		return
	}
	f, err := sockjs.Decode(data)
	if err != nil {
		h.logger.Warn().Err(err).Msg("dropping sockjs frame")
		return
	}
	switch f.Kind {
	case sockjs.FrameOpen:
		h.handler.OnOpen(h.conn)
	case sockjs.FrameHeartbeat:
	case sockjs.FrameArray:
		for _, msg := range f.Messages {
			h.handler.OnMessage(h.conn, []byte(msg))
		}
	case sockjs.FrameClose:
		h.closed = true
		_ = conn.Close(CloseNormal, "")
		h.handler.OnClose(h.conn, &CloseError{Code: f.Code, Reason: f.Reason})
	}
}

func (h *sockJSHandler) OnClose(conn Conn, err error) {
	if h.closed {
		return
	}
	h.closed = true
	h.handler.OnClose(h.conn, err)
}
