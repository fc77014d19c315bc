package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sinyal/internal/circuitbreaker"
	sjhttp "sinyal/internal/http"
)

// pipeDialer hands the caller the handler so tests can play the server side.
type pipeDialer struct {
	mu      sync.Mutex
	req     Request
	handler Handler
	conn    *pipeConn
	err     error
}

func (d *pipeDialer) Dial(_ context.Context, req Request, handler Handler) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	d.req = req
	d.handler = handler
	d.conn = &pipeConn{}
	return d.conn, nil
}

type pipeConn struct {
	mu     sync.Mutex
	sent   []string
	closed bool
}

func (c *pipeConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, string(data))
	return nil
}

func (c *pipeConn) Close(int, string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func TestSockJSDialer_Frames(t *testing.T) {
	inner := &pipeDialer{}
	rec := &recorder{}

	conn, err := NewSockJSDialer(inner, nil).Dial(context.Background(), Request{URL: "http://localhost:8084/ws/forecasts?userId=42"}, rec)
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^ws://localhost:8084/ws/forecasts/\d{3}/[0-9a-f]{32}/websocket\?userId=42$`), inner.req.URL)

	inner.handler.OnOpen(inner.conn)
	opened, _, _, _ := rec.snapshot()
	assert.Zero(t, opened, "websocket open alone does not open the sockjs session")

	inner.handler.OnMessage(inner.conn, []byte("o"))
	inner.handler.OnMessage(inner.conn, []byte("h"))
	inner.handler.OnMessage(inner.conn, []byte(`a["one","two"]`))
	inner.handler.OnMessage(inner.conn, []byte("garbage"))

	opened, msgs, _, _ := rec.snapshot()
	assert.Equal(t, 1, opened)
	assert.Equal(t, []string{"one", "two"}, msgs)

	require.NoError(t, conn.Send([]byte("SEND\n\n\x00")))
	assert.Equal(t, []string{`["SEND\n\n\u0000"]`}, inner.conn.sent)

	inner.handler.OnMessage(inner.conn, []byte(`c[3000,"Go away!"]`))
	inner.handler.OnClose(inner.conn, errors.New("eof"))

	_, _, closed, closeErr := rec.snapshot()
	assert.Equal(t, 1, closed)
	code, reason := CloseDetails(closeErr)
	assert.Equal(t, 3000, code)
	assert.Equal(t, "Go away!", reason)
	assert.True(t, inner.conn.closed)
}

func TestSockJSDialer_InnerClose(t *testing.T) {
	inner := &pipeDialer{}
	rec := &recorder{}

	_, err := NewSockJSDialer(inner, nil).Dial(context.Background(), Request{URL: "https://example.com/ws/forecasts"}, rec)
	require.NoError(t, err)
	assert.Contains(t, inner.req.URL, "wss://example.com/ws/forecasts/")

	inner.handler.OnClose(inner.conn, errors.New("reset"))
	_, _, closed, closeErr := rec.snapshot()
	assert.Equal(t, 1, closed)
	assert.EqualError(t, closeErr, "reset")
}

func TestSockJSDialer_Probe(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"websocket":false}`))
	}))
	defer ts.Close()

	probe, err := sjhttp.NewClient(sjhttp.DefaultConfig(), zerolog.Nop())
	require.NoError(t, err)
	defer probe.Close()

	inner := &pipeDialer{}
	_, err = NewSockJSDialer(inner, probe).Dial(context.Background(), Request{URL: ts.URL + "/ws/forecasts"}, &recorder{})
	require.Error(t, err)
	assert.Nil(t, inner.handler, "no session is dialed when the probe fails")
}

func TestSockJSDialer_ProbeBreaker(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()

	probe, err := sjhttp.NewClient(&sjhttp.Config{Timeout: time.Second}, zerolog.Nop())
	require.NoError(t, err)
	defer probe.Close()

	breaker := circuitbreaker.New(circuitbreaker.Config{FailThreshold: 2, SuccessThreshold: 1, Cooldown: time.Minute})
	inner := &pipeDialer{}
	dialer := NewSockJSDialer(inner, probe).WithBreaker(breaker)
	req := Request{URL: ts.URL + "/ws/forecasts"}

	for i := 0; i < 2; i++ {
		_, err = dialer.Dial(context.Background(), req, &recorder{})
		require.Error(t, err)
	}
	assert.Nil(t, inner.handler)
	assert.Equal(t, circuitbreaker.StateOpen, breaker.State())

	_, err = dialer.Dial(context.Background(), req, &recorder{})
	require.NoError(t, err)
	assert.NotNil(t, inner.handler, "an open breaker dials without the probe")
	assert.Equal(t, int64(1), breaker.Metrics().Skipped)
}

func TestSockJSDialer_InnerError(t *testing.T) {
	inner := &pipeDialer{err: errors.New("refused")}
	_, err := NewSockJSDialer(inner, nil).Dial(context.Background(), Request{URL: "http://localhost:8084/ws"}, &recorder{})
	assert.EqualError(t, err, "refused")
}
