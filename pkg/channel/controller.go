package channel

import (
	"context"
	"net/http"
	"time"

	"sinyal/internal/transport"
	"sinyal/pkg/core"
	"sinyal/pkg/endpoint"
)

// Reason sent with the close frame of a caller-initiated disconnect.
const disconnectReason = "Client disconnect"

func (c *Channel) setState(to State) {
	from := c.state.Swap(to)
	if from == to {
		return
	}
	c.logger.Debug().
		Str("from", from.String()).
		Str("state", to.String()).
		Msg("state changed")
	c.publishStatus()
	if c.callbacks.onStateChange != nil {
		c.callbacks.onStateChange(from, to)
	}
}

// schedule replaces the pending timer with one that runs fn on the loop after d.
func (c *Channel) schedule(d time.Duration, fn func()) {
	c.cancelTimer()
	seq := c.timerSeq
	c.timer = time.AfterFunc(d, func() {
		c.post(func() {
			if seq != c.timerSeq {
				return
			}
			c.timer = nil
			fn()
		})
	})
}

func (c *Channel) cancelTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.timerSeq++
}

func (c *Channel) handleConnect() {
	if c.state.Load().Active() {
		return
	}
	c.cancelTimer()
	c.attempts = 0
	c.dial()
}

func (c *Channel) handleDisconnect() {
	c.cancelTimer()
	if s := c.sess; s != nil {
		c.closeDeliberately(s)
	}
	c.attempts = 0
	c.setState(StateIdle)
}

// handleCredentialChange replaces a live, pending or retrying session with
// one using the new identity or credential after the settle delay.
func (c *Channel) handleCredentialChange(what string) {
	switch c.state.Load() {
	case StateConnecting, StateConnected, StateReconnecting, StateDisconnected:
	default:
		return
	}

	c.logger.Info().
		Str("changed", what).
		Dur("wait", c.cfg.Reconnect.SettleDelay).
		Msg("reconnecting with new credentials")

	c.cancelTimer()
	if s := c.sess; s != nil {
		c.closeDeliberately(s)
	}
	c.attempts = 0
	c.setState(StateIdle)
	c.schedule(c.cfg.Reconnect.SettleDelay, func() {
		if c.state.Load() == StateIdle {
			c.dial()
		}
	})
}

// dial starts a new session, superseding any previous one.
func (c *Channel) dial() {
	if c.closed.Load() {
		return
	}
	identity, token := c.credentials()
	if err := c.checkCredentials(identity, token); err != nil {
		c.setState(StateIdle)
		c.reportError(err)
		return
	}

	url, err := endpoint.Resolve(c.target, identity, token)
	if err != nil {
		c.setState(StateIdle)
		c.reportError(core.NewChannelError(c.cfg.Channel, core.ErrorTypeConfiguration, "resolve endpoint", err))
		return
	}

	c.gen++
	s := &session{gen: c.gen, url: url, identity: identity, token: token}
	c.sess = s
	c.url = url
	c.setState(StateConnecting)

	c.logger.Info().
		Str("url", url).
		Int("attempt", c.attempts).
		Msg("connecting")

	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	req := transport.Request{
		URL:              url,
		Header:           header,
		HandshakeTimeout: c.cfg.HandshakeTimeout,
		ReadTimeout:      c.cfg.ReadTimeout,
	}

	gen := s.gen
	s.handshake = time.AfterFunc(c.cfg.HandshakeTimeout, func() {
		c.post(func() { c.onHandshakeTimeout(gen) })
	})

	handler := &sessionHandler{c: c, gen: gen}
	go func() {
		ctx, cancel := context.WithTimeout(c.ctx, c.cfg.HandshakeTimeout)
		defer cancel()

		conn, err := c.dialer.Dial(ctx, req, handler)
		if !c.post(func() { c.onDialed(gen, conn, err) }) && conn != nil {
			_ = conn.Close(transport.CloseNormal, disconnectReason)
		}
	}()
}

func (c *Channel) onDialed(gen uint64, conn transport.Conn, err error) {
	s := c.current(gen)
	if err != nil {
		if s != nil {
			c.fail(s, c.transportError("handshake failed", err).WithCode(core.ErrCodeHandshake), err)
		}
		return
	}
	if s == nil {
		c.logger.Debug().Uint64("session", gen).Msg("closing superseded session")
		_ = conn.Close(transport.CloseNormal, disconnectReason)
		return
	}
	if s.conn == nil {
		s.conn = conn
	}
}

func (c *Channel) onHandshakeTimeout(gen uint64) {
	s := c.current(gen)
	if s == nil || s.connected {
		return
	}
	err := context.DeadlineExceeded
	c.fail(s, c.transportError("handshake timed out", err).WithCode(core.ErrCodeHandshake), err)
}

// fail tears down s after a transport or protocol failure and starts the retry cycle.
func (c *Channel) fail(s *session, chErr *core.ChannelError, cause error) {
	if c.current(s.gen) == nil {
		return
	}
	wasOpen := s.open
	c.sess = nil
	s.stop()
	if s.conn != nil {
		_ = s.conn.Close(transport.CloseNormal, "")
	}

	code, reason := transport.CloseDetails(cause)
	c.logger.Warn().
		Err(cause).
		Str("url", s.url).
		Int("code", code).
		Msg("session lost")

	c.setState(StateDisconnected)
	if wasOpen && c.callbacks.onClose != nil {
		c.callbacks.onClose(core.CloseInfo{Code: code, Reason: reason, Err: cause})
	}
	c.reportError(chErr)
	c.scheduleRetry()
}

func (c *Channel) scheduleRetry() {
	if c.backoff.Exhausted(c.attempts) {
		c.terminate()
		return
	}

	wait := c.backoff.Delay(c.attempts)
	c.attempts++
	c.setState(StateReconnecting)

	c.logger.Info().
		Dur("wait", wait).
		Int("attempt", c.attempts).
		Msg("scheduling reconnect")

	c.schedule(wait, func() {
		if c.state.Load() == StateReconnecting {
			c.dial()
		}
	})
}

func (c *Channel) terminate() {
	c.cancelTimer()
	c.setState(StateTerminated)

	c.logger.Error().
		Int("attempt", c.attempts).
		Msg("reconnection stopped, retry budget exhausted")

	if c.callbacks.onTerminated != nil {
		st := *c.status.Load()
		st.Identity, _ = c.credentials()
		c.callbacks.onTerminated(st)
	}
	c.reportError(c.transportError("reconnection stopped", core.ErrRetryBudgetExhausted).
		WithCode(core.ErrCodeRetryExhausted))

	if cooldown := c.cfg.Reconnect.TerminalCooldown; cooldown > 0 && c.state.Load() == StateTerminated {
		c.schedule(cooldown, func() {
			if c.state.Load() == StateTerminated {
				c.logger.Info().Msg("cooldown elapsed, starting a fresh retry cycle")
				c.attempts = 0
				c.dial()
			}
		})
	}
}

// closeDeliberately ends s at the caller's request. No retry follows.
func (c *Channel) closeDeliberately(s *session) {
	c.sess = nil
	s.stop()
	if s.conn != nil {
		if s.connected {
			if err := c.send(s, disconnectFrame()); err != nil {
				c.logger.Debug().Err(err).Msg("send disconnect frame")
			}
		}
		_ = s.conn.Close(transport.CloseNormal, disconnectReason)
	}
	c.logger.Info().Str("url", s.url).Msg("disconnected")

	if s.open && c.callbacks.onClose != nil {
		c.callbacks.onClose(core.CloseInfo{
			Code:       transport.CloseNormal,
			Reason:     disconnectReason,
			Deliberate: true,
			Err:        core.ErrDeliberateClose,
		})
	}
}
