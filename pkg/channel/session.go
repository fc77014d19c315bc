package channel

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"sinyal/internal/stomp"
	"sinyal/internal/transport"
	"sinyal/pkg/core"
)

// session is one transport session. A session is current while c.sess points
// at it; events from any other session are dropped.
type session struct {
	gen      uint64
	url      string
	identity string
	token    string
	conn     transport.Conn

	// open is set when the transport opened, connected on STOMP CONNECTED.
	open      bool
	connected bool
	subs      map[string]Binding

	heartbeat time.Duration
	handshake *time.Timer
	hbTimer   *time.Timer

	// incoming is the negotiated server heart-beat interval; lastRx is
	// refreshed by every inbound message.
	incoming time.Duration
	lastRx   time.Time
	watchdog *time.Timer
}

func (s *session) stop() {
	for _, t := range []*time.Timer{s.handshake, s.hbTimer, s.watchdog} {
		if t != nil {
			t.Stop()
		}
	}
}

// sessionHandler forwards transport events of one session to the loop.
type sessionHandler struct {
	c   *Channel
	gen uint64
}

func (h *sessionHandler) OnOpen(conn transport.Conn) {
	if !h.c.post(func() { h.c.onTransportOpen(h.gen, conn) }) {
		_ = conn.Close(transport.CloseNormal, disconnectReason)
	}
}

func (h *sessionHandler) OnMessage(_ transport.Conn, data []byte) {
	h.c.post(func() { h.c.onTransportMessage(h.gen, data) })
}

func (h *sessionHandler) OnClose(_ transport.Conn, err error) {
	h.c.post(func() { h.c.onTransportClose(h.gen, err) })
}

func (c *Channel) current(gen uint64) *session {
	if c.sess != nil && c.sess.gen == gen {
		return c.sess
	}
	return nil
}

func (c *Channel) send(s *session, f *stomp.Frame) error {
	data, err := stomp.Encode(f)
	if err != nil {
		return err
	}
	return s.conn.Send(data)
}

func disconnectFrame() *stomp.Frame {
	return stomp.Disconnect("")
}

func (c *Channel) onTransportOpen(gen uint64, conn transport.Conn) {
	s := c.current(gen)
	if s == nil {
		c.logger.Debug().Uint64("session", gen).Msg("closing late session")
		_ = conn.Close(transport.CloseNormal, disconnectReason)
		return
	}
	s.conn = conn
	s.open = true

	connect := stomp.Connect(stomp.ConnectOptions{
		Host:     c.stompHost(s.url),
		Token:    s.token,
		Outgoing: c.cfg.HeartbeatOutgoing,
		Incoming: c.cfg.HeartbeatIncoming,
	})
	if err := c.send(s, connect); err != nil {
		c.fail(s, c.transportError("send CONNECT", err), err)
	}
}

func (c *Channel) stompHost(raw string) string {
	if c.cfg.Host != "" {
		return c.cfg.Host
	}
	if u, err := url.Parse(raw); err == nil {
		return u.Hostname()
	}
	return ""
}

func (c *Channel) onTransportMessage(gen uint64, data []byte) {
	s := c.current(gen)
	if s == nil {
		return
	}
	s.lastRx = time.Now()

	frames, err := stomp.Decode(data)
	for _, f := range frames {
		switch f.Command {
		case stomp.CONNECTED:
			c.onConnected(s, f)
		case stomp.MESSAGE:
			c.dispatch(s, f)
		case stomp.ERROR:
			msg := stomp.ErrorMessage(f)
			cause := errors.New(msg)
			c.fail(s, core.NewChannelError(c.cfg.Channel, core.ErrorTypeProtocol, "server error", cause).
				WithCode(core.ErrCodeServerError), cause)
		case stomp.RECEIPT:
			c.logger.Debug().Str("receipt", stomp.Header(f, stomp.HeaderReceiptID)).Msg("receipt")
		default:
			c.logger.Debug().Str("command", f.Command).Msg("ignoring frame")
		}
		if c.current(gen) == nil {
			return
		}
	}
	if err != nil {
		c.reportError(core.NewChannelError(c.cfg.Channel, core.ErrorTypeDecode, "malformed frame", err))
	}
}

func (c *Channel) onTransportClose(gen uint64, err error) {
	s := c.current(gen)
	if s == nil {
		return
	}
	if err == nil {
		err = &transport.CloseError{Code: transport.CloseAbnormal}
	}
	code := core.ErrCodeAbnormalClose
	if transport.IsNormalClosure(err) {
		code = core.ErrCodeTransport
	}
	c.fail(s, c.transportError("connection closed", err).WithCode(code), err)
}

func (c *Channel) onConnected(s *session, f *stomp.Frame) {
	if s.connected {
		return
	}
	s.connected = true
	if s.handshake != nil {
		s.handshake.Stop()
	}
	c.attempts = 0
	c.setState(StateConnected)

	c.logger.Info().
		Str("url", s.url).
		Str("version", stomp.Header(f, stomp.HeaderVersion)).
		Msg("connected")

	if err := c.subscribe(s); err != nil {
		c.fail(s, c.transportError("subscribe", err), err)
		return
	}

	s.heartbeat = stomp.NegotiateHeartBeat(c.cfg.HeartbeatOutgoing, stomp.Header(f, stomp.HeaderHeartBeat))
	if s.heartbeat > 0 {
		c.scheduleHeartbeat(s)
	}
	s.incoming = stomp.NegotiateIncoming(c.cfg.HeartbeatIncoming, stomp.Header(f, stomp.HeaderHeartBeat))
	if s.incoming > 0 {
		s.lastRx = time.Now()
		c.watchIncoming(s)
	}

	if c.callbacks.onOpen != nil {
		c.callbacks.onOpen(core.HandshakeInfo{
			URL:       s.url,
			Version:   stomp.Header(f, stomp.HeaderVersion),
			Session:   stomp.Header(f, stomp.HeaderSession),
			Server:    stomp.Header(f, stomp.HeaderServer),
			Headers:   stomp.Headers(f),
			HeartBeat: s.heartbeat,
		})
	}
}

func (c *Channel) scheduleHeartbeat(s *session) {
	gen := s.gen
	s.hbTimer = time.AfterFunc(s.heartbeat, func() {
		c.post(func() {
			if c.current(gen) != s {
				return
			}
			if err := s.conn.Send(stomp.Heartbeat); err != nil {
				c.fail(s, c.transportError("send heart-beat", err), err)
				return
			}
			c.scheduleHeartbeat(s)
		})
	})
}

// watchIncoming fails s once the server has been silent for two negotiated
// intervals, so a half-open link is handed to the reconnection cycle.
func (c *Channel) watchIncoming(s *session) {
	gen := s.gen
	s.watchdog = time.AfterFunc(s.incoming, func() {
		c.post(func() {
			if c.current(gen) != s {
				return
			}
			if silent := time.Since(s.lastRx); silent > 2*s.incoming {
				err := fmt.Errorf("%w: silent for %s", core.ErrHeartbeatTimeout, silent.Round(time.Millisecond))
				c.fail(s, c.transportError("server heart-beat missed", err).WithCode(core.ErrCodeHeartbeat), err)
				return
			}
			c.watchIncoming(s)
		})
	})
}
