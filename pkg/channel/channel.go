// Package channel implements a resilient STOMP pub/sub channel.
//
// A Channel owns one connection handle: the resolved URL, identity,
// credential, lifecycle state, retry counter and pending timer. Every state
// transition and every callback runs on the channel's own event loop, so
// callbacks may call back into the channel freely. Connect, Disconnect,
// SetIdentity, SetCredential and Publish only enqueue work and return.
package channel

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"sinyal/internal/http"
	"sinyal/internal/ratelimit"
	"sinyal/internal/stomp"
	"sinyal/internal/transport"
	"sinyal/internal/ws"
	"sinyal/pkg/core"
	"sinyal/pkg/endpoint"
)

// Channel is a resilient subscription to one or more destinations.
type Channel struct {
	cfg       *core.Config
	target    endpoint.Target
	backoff   ws.Backoff
	logger    zerolog.Logger
	dialer    transport.Dialer
	probe     *http.Client
	limiter   *ratelimit.Limiter
	callbacks callbacks

	handlers       map[string]Handler
	defaultHandler Handler
	bindings       []Binding

	credMu   sync.Mutex
	identity string
	token    string

	mailbox   *mailbox
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closed    atomic.Bool
	closeOnce sync.Once
	state     ws.State
	status    atomic.Pointer[core.Status]

	// owned by the loop
	stopped  bool
	attempts int
	gen      uint64
	sess     *session
	timer    *time.Timer
	timerSeq uint64
	url      string
}

// New validates cfg and starts the channel's event loop. The channel stays
// Idle until Connect is called.
func New(cfg *core.Config, opts ...Option) (*Channel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, core.NewChannelError(cfg.Channel, core.ErrorTypeConfiguration, "invalid config", err)
	}
	cfg = cfg.Clone()

	ctx, cancel := context.WithCancel(context.Background())
	c := &Channel{
		cfg:    cfg,
		target: endpoint.FromConfig(cfg),
		backoff: ws.Backoff{
			BaseWait:    cfg.Reconnect.BaseWait,
			MaxWait:     cfg.Reconnect.MaxWait,
			MaxAttempts: cfg.Reconnect.MaxAttempts,
		},
		logger:   zerolog.Nop(),
		limiter:  ratelimit.New(cfg.PublishRateLimit, cfg.PublishRatePeriod),
		handlers: make(map[string]Handler),
		identity: cfg.UserID,
		token:    cfg.Token,
		mailbox:  newMailbox(),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.logger = c.logger.With().Str("channel", cfg.Channel).Logger()
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && cfg.LogLevel != "" {
		c.logger = c.logger.Level(level)
	}

	if c.dialer == nil {
		dialer, err := c.defaultDialer()
		if err != nil {
			cancel()
			return nil, core.NewChannelError(cfg.Channel, core.ErrorTypeConfiguration, "create dialer", err)
		}
		c.dialer = dialer
	}

	for dest := range c.handlers {
		if !contains(cfg.Destinations, dest) {
			cancel()
			return nil, core.NewChannelError(cfg.Channel, core.ErrorTypeConfiguration,
				fmt.Sprintf("handler for unknown destination %q", dest), nil)
		}
	}
	c.bindings = c.buildBindings()

	c.state.Store(StateIdle)
	c.publishStatus()

	go c.run()
	return c, nil
}

func (c *Channel) defaultDialer() (transport.Dialer, error) {
	gwsDialer := transport.NewGWSDialer()
	gwsDialer.SetLogger(c.logger)
	if c.cfg.Framing != core.FramingSockJS {
		return gwsDialer, nil
	}

	if c.cfg.ProbeSockJS {
		probe, err := http.NewClient(http.DefaultConfig(), c.logger)
		if err != nil {
			return nil, err
		}
		c.probe = probe
	}
	sockJSDialer := transport.NewSockJSDialer(gwsDialer, c.probe)
	sockJSDialer.SetLogger(c.logger)
	return sockJSDialer, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (c *Channel) run() {
	defer close(c.done)
	defer c.cancel()

	for range c.mailbox.signal {
		for _, fn := range c.mailbox.drain() {
			fn()
			c.publishStatus()
		}
		if c.stopped {
			// the mailbox is closed now; late dial results and transport
			// events queued before that still run so their sockets get closed
			for _, fn := range c.mailbox.drain() {
				fn()
			}
			c.publishStatus()
			if c.probe != nil {
				_ = c.probe.Close()
			}
			return
		}
	}
}

// post runs fn on the event loop. It reports false once the channel is closed.
func (c *Channel) post(fn func()) bool {
	return c.mailbox.push(fn)
}

// Connect starts connecting. It is a no-op while connecting or connected.
// A missing identity, or a missing credential on a channel that requires one,
// is returned as a configuration error and also reported to OnError; no
// socket is created in that case.
func (c *Channel) Connect() error {
	if c.closed.Load() {
		return core.ErrClientClosed
	}
	identity, token := c.credentials()
	if err := c.checkCredentials(identity, token); err != nil {
		c.post(func() { c.reportError(err) })
		return err
	}
	c.post(c.handleConnect)
	return nil
}

// Disconnect cancels any pending retry and closes the session. The close is
// deliberate, so no reconnect follows. Safe to call repeatedly.
func (c *Channel) Disconnect() {
	c.post(c.handleDisconnect)
}

// Close disconnects and stops the event loop. Done is closed once the loop has exited.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.post(c.handleDisconnect)
		c.post(func() {
			c.stopped = true
			c.mailbox.close()
		})
	})
	return nil
}

// Done is closed after Close once the event loop has exited.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// SetIdentity changes the user id. A live or pending session is replaced
// after the settle delay. Setting the current identity again does nothing.
func (c *Channel) SetIdentity(identity string) {
	c.credMu.Lock()
	if c.identity == identity {
		c.credMu.Unlock()
		return
	}
	c.identity = identity
	c.credMu.Unlock()

	c.post(func() { c.handleCredentialChange("identity") })
}

// SetCredential changes the bearer token. A live or pending session is
// replaced after the settle delay. Setting the current token again does nothing.
func (c *Channel) SetCredential(token string) {
	c.credMu.Lock()
	if c.token == token {
		c.credMu.Unlock()
		return
	}
	c.token = token
	c.credMu.Unlock()

	c.post(func() { c.handleCredentialChange("credential") })
}

func (c *Channel) credentials() (string, string) {
	c.credMu.Lock()
	defer c.credMu.Unlock()
	return c.identity, c.token
}

func (c *Channel) checkCredentials(identity, token string) error {
	if identity == "" {
		return core.NewChannelError(c.cfg.Channel, core.ErrorTypeConfiguration, "cannot connect", core.ErrMissingIdentity).
			WithCode(core.ErrCodeMissingIdentity)
	}
	if c.cfg.RequireCredential && token == "" {
		return core.NewChannelError(c.cfg.Channel, core.ErrorTypeConfiguration, "cannot connect", core.ErrMissingCredential).
			WithCode(core.ErrCodeMissingCredential)
	}
	return nil
}

// Publish sends body to destination on the live session. It waits for the
// publish rate limit and fails fast when the channel is not connected.
// Write failures after that are reported to OnError.
func (c *Channel) Publish(ctx context.Context, destination string, body []byte) error {
	if c.closed.Load() {
		return core.ErrClientClosed
	}
	if c.state.Load() != StateConnected {
		return c.notConnected()
	}
	if err := c.limiter.WaitDestination(ctx, destination); err != nil {
		return fmt.Errorf("publish rate limit: %w", err)
	}

	payload := append([]byte(nil), body...)
	if !c.post(func() { c.handlePublish(destination, payload) }) {
		return core.ErrClientClosed
	}
	return nil
}

// SetPublishRate replaces the publish rate limit of the channel and of every
// destination it has published to.
func (c *Channel) SetPublishRate(requests int, period time.Duration) error {
	if requests < 1 || period <= 0 {
		err := fmt.Errorf("publish rate %d per %s", requests, period)
		return core.NewChannelError(c.cfg.Channel, core.ErrorTypeConfiguration, "invalid publish rate", err).
			WithCode(core.ErrCodeInvalidConfig)
	}
	c.limiter.SetLimit(requests, period)
	c.logger.Debug().Int("requests", requests).Dur("period", period).Msg("publish rate updated")
	return nil
}

func (c *Channel) notConnected() error {
	return core.NewChannelError(c.cfg.Channel, core.ErrorTypeTransport, "cannot publish", core.ErrNotConnected).
		WithCode(core.ErrCodeNotConnected)
}

func (c *Channel) handlePublish(destination string, body []byte) {
	s := c.sess
	if s == nil || !s.connected {
		c.reportError(c.notConnected())
		return
	}
	if err := c.send(s, stomp.Send(destination, body)); err != nil {
		c.fail(s, c.transportError("publish failed", err), err)
		return
	}
	c.logger.Debug().Str("destination", destination).Int("bytes", len(body)).Msg("published")
}

// Status returns a snapshot of the connection handle.
func (c *Channel) Status() core.Status {
	st := *c.status.Load()
	identity, _ := c.credentials()
	st.Identity = identity
	return st
}

// Identity returns the user id the channel connects as.
func (c *Channel) Identity() string {
	identity, _ := c.credentials()
	return identity
}

// State returns the current lifecycle state.
func (c *Channel) State() State {
	return c.state.Load()
}

// IsConnected reports whether a session is live.
func (c *Channel) IsConnected() bool {
	return c.state.Load() == StateConnected
}

// Name returns the configured channel name.
func (c *Channel) Name() string {
	return c.cfg.Channel
}

// Limiter exposes publish limiter statistics.
func (c *Channel) Limiter() ratelimit.MetricsSnapshot {
	return c.limiter.Metrics()
}

func (c *Channel) publishStatus() {
	state := c.state.Load()
	c.status.Store(&core.Status{
		Channel:   c.cfg.Channel,
		State:     state.String(),
		Connected: state == StateConnected,
		URL:       c.url,
		Attempts:  c.attempts,
		Mode:      c.cfg.Mode,
	})
}

func (c *Channel) reportError(err error) {
	c.logger.Error().Err(err).Msg("channel error")
	if c.callbacks.onError != nil {
		c.callbacks.onError(err)
	}
}

func (c *Channel) transportError(message string, err error) *core.ChannelError {
	return core.NewChannelError(c.cfg.Channel, core.ErrorTypeTransport, message, err)
}
