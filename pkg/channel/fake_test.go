package channel

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/go-stomp/stomp/v3/frame"

	"sinyal/internal/stomp"
	"sinyal/internal/transport"
	"sinyal/pkg/core"
)

// fakeDialer plays a STOMP server. Every Dial opens a fakeConn immediately
// unless hold is set, and every CONNECT is answered with CONNECTED.
type fakeDialer struct {
	mu        sync.Mutex
	dials     int
	failNext  int
	failAll   bool
	hold      bool
	heartBeat string
	// gate delays every Dial until it is closed.
	gate  chan struct{}
	conns []*fakeConn
}

func (d *fakeDialer) Dial(_ context.Context, req transport.Request, h transport.Handler) (transport.Conn, error) {
	d.mu.Lock()
	d.dials++
	gate := d.gate
	d.mu.Unlock()
	if gate != nil {
		<-gate
	}

	d.mu.Lock()
	if d.failAll || d.failNext > 0 {
		if d.failNext > 0 {
			d.failNext--
		}
		d.mu.Unlock()
		return nil, errors.New("connection refused")
	}
	conn := &fakeConn{dialer: d, req: req, handler: h}
	d.conns = append(d.conns, conn)
	hold := d.hold
	d.mu.Unlock()

	if !hold {
		h.OnOpen(conn)
	}
	return conn, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.conns) {
		return nil
	}
	return d.conns[i]
}

func (d *fakeDialer) connCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

func (d *fakeDialer) last() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

type fakeConn struct {
	dialer  *fakeDialer
	req     transport.Request
	handler transport.Handler

	mu         sync.Mutex
	frames     []*stomp.Frame
	heartbeats int
	closed     bool
	closeCode  int
	closeText  string
}

func (c *fakeConn) Send(data []byte) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.New("closed")
	}
	frames, err := stomp.Decode(data)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if len(frames) == 0 {
		c.heartbeats++
	}
	c.frames = append(c.frames, frames...)
	c.mu.Unlock()

	for _, f := range frames {
		if f.Command == stomp.CONNECT {
			c.dialer.mu.Lock()
			hb := c.dialer.heartBeat
			c.dialer.mu.Unlock()
			connected := frame.New(stomp.CONNECTED, frame.Version, "1.2", frame.Session, "s-1", frame.Server, "fake/1.0")
			if hb != "" {
				connected.Header.Add(frame.HeartBeat, hb)
			}
			c.push(connected)
		}
	}
	return nil
}

func (c *fakeConn) Close(code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		c.closeCode = code
		c.closeText = reason
	}
	return nil
}

func (c *fakeConn) push(f *stomp.Frame) {
	data, err := stomp.Encode(f)
	if err != nil {
		panic(err)
	}
	c.handler.OnMessage(c, data)
}

// deliver sends a MESSAGE for the subscription bound to destination.
func (c *fakeConn) deliver(destination, body string) {
	id := c.subscriptionID(destination)
	c.push(&frame.Frame{
		Command: stomp.MESSAGE,
		Header: frame.NewHeader(
			frame.Destination, destination,
			frame.Subscription, id,
			frame.MessageId, strconv.FormatInt(time.Now().UnixNano(), 10),
			frame.ContentType, "application/json",
		),
		Body: []byte(body),
	})
}

func (c *fakeConn) raw(data string) {
	c.handler.OnMessage(c, []byte(data))
}

func (c *fakeConn) drop(err error) {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.handler.OnClose(c, err)
}

func (c *fakeConn) subscriptionID(destination string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, f := range c.frames {
		if f.Command == stomp.SUBSCRIBE && f.Header.Get(frame.Destination) == destination {
			return f.Header.Get(frame.Id)
		}
	}
	return ""
}

func (c *fakeConn) commands() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.frames))
	for _, f := range c.frames {
		out = append(out, f.Command)
	}
	return out
}

func (c *fakeConn) sent(command string) []*stomp.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*stomp.Frame
	for _, f := range c.frames {
		if f.Command == command {
			out = append(out, f)
		}
	}
	return out
}

func (c *fakeConn) isClosed() (bool, int, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed, c.closeCode, c.closeText
}

func (c *fakeConn) heartbeatCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.heartbeats
}

// events records callbacks.
type events struct {
	mu          sync.Mutex
	opens       []core.HandshakeInfo
	closes      []core.CloseInfo
	errs        []error
	transitions []State
	terminated  []core.Status
	payloads    []string
}

func (e *events) options() []Option {
	return []Option{
		OnOpen(func(info core.HandshakeInfo) {
			e.mu.Lock()
			e.opens = append(e.opens, info)
			e.mu.Unlock()
		}),
		OnClose(func(info core.CloseInfo) {
			e.mu.Lock()
			e.closes = append(e.closes, info)
			e.mu.Unlock()
		}),
		OnError(func(err error) {
			e.mu.Lock()
			e.errs = append(e.errs, err)
			e.mu.Unlock()
		}),
		OnStateChange(func(_, to State) {
			e.mu.Lock()
			e.transitions = append(e.transitions, to)
			e.mu.Unlock()
		}),
		OnTerminated(func(st core.Status) {
			e.mu.Lock()
			e.terminated = append(e.terminated, st)
			e.mu.Unlock()
		}),
		WithDefaultHandler(Handle(func(v *map[string]any, msg Message) {
			name, _ := (*v)["name"].(string)
			e.mu.Lock()
			e.payloads = append(e.payloads, name)
			e.mu.Unlock()
		})),
	}
}

func (e *events) received() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.payloads...)
}

func (e *events) errors() []error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]error(nil), e.errs...)
}

func (e *events) openCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.opens)
}

func (e *events) closeInfos() []core.CloseInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]core.CloseInfo(nil), e.closes...)
}

func (e *events) terminations() []core.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]core.Status(nil), e.terminated...)
}

func (e *events) states() []State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]State(nil), e.transitions...)
}

func (e *events) countErrors(match func(error) bool) int {
	n := 0
	for _, err := range e.errors() {
		if match(err) {
			n++
		}
	}
	return n
}
