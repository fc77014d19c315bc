// Package stomptest provides an in-process STOMP broker over gws for tests,
// optionally speaking SockJS framing.
package stomptest

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/go-stomp/stomp/v3/frame"
	"github.com/lxzan/gws"

	"sinyal/internal/sockjs"
	"sinyal/internal/stomp"
)

// Server is a minimal broker: it answers CONNECT, remembers SUBSCRIBE ids
// per connection and delivers Publish calls to matching subscriptions.
type Server struct {
	// URL is the http base of the server.
	URL string

	sockJS   bool
	ts       *httptest.Server
	upgrader *gws.Upgrader

	mu       sync.Mutex
	token    string
	onSend   func(destination string, body []byte)
	conns    map[*gws.Conn]*peer
	frames   []*stomp.Frame
	requests []*http.Request
}

type peer struct {
	subs map[string]string // destination -> subscription id
}

// Option configures a Server.
type Option func(*Server)

// WithSockJS serves SockJS framing and the /info endpoint.
func WithSockJS() Option {
	return func(s *Server) {
		s.sockJS = true
	}
}

// WithToken rejects CONNECT frames that do not carry this bearer token.
func WithToken(token string) Option {
	return func(s *Server) {
		s.token = token
	}
}

// WithOnSend is called for every client SEND frame.
func WithOnSend(fn func(destination string, body []byte)) Option {
	return func(s *Server) {
		s.onSend = fn
	}
}

// NewServer starts a server. Call Close when done.
func NewServer(opts ...Option) *Server {
	s := &Server{conns: make(map[*gws.Conn]*peer)}
	for _, opt := range opts {
		opt(s)
	}
	s.upgrader = gws.NewUpgrader(&handler{s: s}, &gws.ServerOption{})
	s.ts = httptest.NewServer(http.HandlerFunc(s.serveHTTP))
	s.URL = s.ts.URL
	return s
}

func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	if s.sockJS && strings.HasSuffix(r.URL.Path, "/info") {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"websocket":true,"cookie_needed":false,"origins":["*:*"],"entropy":1}`))
		return
	}

	s.mu.Lock()
	s.requests = append(s.requests, r.Clone(r.Context()))
	s.mu.Unlock()

	socket, err := s.upgrader.Upgrade(w, r)
	if err != nil {
		return
	}
	go socket.ReadLoop()
}

// Close shuts the server down.
func (s *Server) Close() {
	s.ts.Close()
}

// Requests returns the handshake requests seen so far.
func (s *Server) Requests() []*http.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*http.Request(nil), s.requests...)
}

// Frames returns every received frame with the given command.
func (s *Server) Frames(command string) []*stomp.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*stomp.Frame
	for _, f := range s.frames {
		if f.Command == command {
			out = append(out, f)
		}
	}
	return out
}

// Connections returns the number of open connections.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Subscribed reports whether some open connection subscribed to destination.
func (s *Server) Subscribed(destination string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.conns {
		if _, ok := p.subs[destination]; ok {
			return true
		}
	}
	return false
}

// Publish delivers body to every subscription on destination and returns
// the number of deliveries.
func (s *Server) Publish(destination string, body []byte) int {
	type target struct {
		socket *gws.Conn
		id     string
	}
	s.mu.Lock()
	var targets []target
	for socket, p := range s.conns {
		if id, ok := p.subs[destination]; ok {
			targets = append(targets, target{socket: socket, id: id})
		}
	}
	s.mu.Unlock()

	for _, t := range targets {
		s.write(t.socket, &frame.Frame{
			Command: stomp.MESSAGE,
			Header: frame.NewHeader(
				frame.Destination, destination,
				frame.Subscription, t.id,
				frame.MessageId, t.id+"-msg",
				frame.ContentType, "application/json",
			),
			Body: body,
		})
	}
	return len(targets)
}

// WriteRaw sends data as is, wrapped in SockJS framing when enabled.
func (s *Server) WriteRaw(data []byte) {
	s.mu.Lock()
	sockets := make([]*gws.Conn, 0, len(s.conns))
	for socket := range s.conns {
		sockets = append(sockets, socket)
	}
	s.mu.Unlock()
	for _, socket := range sockets {
		s.writeBytes(socket, data)
	}
}

// DropAll closes every connection without a close handshake.
func (s *Server) DropAll() {
	s.mu.Lock()
	sockets := make([]*gws.Conn, 0, len(s.conns))
	for socket := range s.conns {
		sockets = append(sockets, socket)
	}
	s.mu.Unlock()
	for _, socket := range sockets {
		_ = socket.NetConn().Close()
	}
}

func (s *Server) write(socket *gws.Conn, f *stomp.Frame) {
	data, err := stomp.Encode(f)
	if err != nil {
		return
	}
	s.writeBytes(socket, data)
}

func (s *Server) writeBytes(socket *gws.Conn, data []byte) {
	if s.sockJS {
		payload, err := sockjs.Encode(string(data))
		if err != nil {
			return
		}
		data = append([]byte("a"), payload...)
	}
	_ = socket.WriteMessage(gws.OpcodeText, data)
}

func (s *Server) handle(socket *gws.Conn, data []byte) {
	messages := []string{string(data)}
	if s.sockJS {
		if err := sonic.Unmarshal(data, &messages); err != nil {
			return
		}
	}

	for _, msg := range messages {
		frames, err := stomp.Decode([]byte(msg))
		if err != nil {
			continue
		}
		for _, f := range frames {
			s.handleFrame(socket, f)
		}
	}
}

func (s *Server) handleFrame(socket *gws.Conn, f *stomp.Frame) {
	s.mu.Lock()
	s.frames = append(s.frames, f)
	token := s.token
	onSend := s.onSend
	s.mu.Unlock()

	switch f.Command {
	case stomp.CONNECT:
		if token != "" && f.Header.Get("Authorization") != "Bearer "+token {
			s.write(socket, frame.New(stomp.ERROR, frame.Message, "Unauthorized"))
			return
		}
		s.write(socket, frame.New(stomp.CONNECTED,
			frame.Version, "1.2",
			frame.HeartBeat, "0,0",
			frame.Server, "stomptest/1.0",
		))
	case stomp.SUBSCRIBE:
		s.mu.Lock()
		if p, ok := s.conns[socket]; ok {
			p.subs[f.Header.Get(frame.Destination)] = f.Header.Get(frame.Id)
		}
		s.mu.Unlock()
	case stomp.SEND:
		if onSend != nil {
			onSend(f.Header.Get(frame.Destination), f.Body)
		}
	case stomp.DISCONNECT:
		if receipt := f.Header.Get(frame.Receipt); receipt != "" {
			s.write(socket, frame.New(stomp.RECEIPT, frame.ReceiptId, receipt))
		}
	}
}

type handler struct {
	s *Server
}

func (h *handler) OnOpen(socket *gws.Conn) {
	h.s.mu.Lock()
	h.s.conns[socket] = &peer{subs: make(map[string]string)}
	h.s.mu.Unlock()
	if h.s.sockJS {
		_ = socket.WriteMessage(gws.OpcodeText, []byte{byte(sockjs.FrameOpen)})
	}
}

func (h *handler) OnClose(socket *gws.Conn, err error) {
	h.s.mu.Lock()
	delete(h.s.conns, socket)
	h.s.mu.Unlock()
}

func (h *handler) OnPing(socket *gws.Conn, payload []byte) {
	_ = socket.WritePong(payload)
}

func (h *handler) OnPong(socket *gws.Conn, payload []byte) {}

func (h *handler) OnMessage(socket *gws.Conn, message *gws.Message) {
	defer message.Close()
	data := append([]byte(nil), message.Bytes()...)
	h.s.handle(socket, data)
}
