package core

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
)

// DefaultDirectBaseURL is the direct host:port target used when no proxy base is configured.
const DefaultDirectBaseURL = "http://localhost:8084"

// ReconnectConfig holds the reconnection controller policy.
type ReconnectConfig struct {
	// MaxAttempts is the retry budget. Zero disables automatic reconnection.
	MaxAttempts int `json:"max_attempts" validate:"min=0"`
	// BaseWait is the delay before the first retry.
	BaseWait time.Duration `json:"base_wait" validate:"min=1ms"`
	// MaxWait caps the exponential delay.
	MaxWait time.Duration `json:"max_wait" validate:"min=1ms"`
	// SettleDelay separates the disconnect and the reconnect that follow an identity change.
	SettleDelay time.Duration `json:"settle_delay" validate:"min=0"`
	// TerminalCooldown restarts a fresh retry cycle after the budget is exhausted.
	// Zero leaves the channel terminated until Connect is called again.
	TerminalCooldown time.Duration `json:"terminal_cooldown" validate:"min=0"`
}

// DefaultReconnectConfig returns 1s doubling up to 30s, five retries and a 1s settle delay.
func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		MaxAttempts: 5,
		BaseWait:    1 * time.Second,
		MaxWait:     30 * time.Second,
		SettleDelay: 1 * time.Second,
	}
}

// Config contains all configuration options for one delivery channel.
// Identity and credential are carried here but checked at connect time, not by Validate.
type Config struct {
	// Channel names the instance in logs and errors.
	Channel string  `json:"channel" validate:"required"`
	Mode    Mode    `json:"mode"`
	Framing Framing `json:"framing"`

	// URL overrides the resolved base entirely when set.
	URL           string `json:"url,omitempty" validate:"omitempty,url"`
	ProxyBaseURL  string `json:"proxy_base_url,omitempty" validate:"omitempty,url"`
	DirectBaseURL string `json:"direct_base_url" validate:"required,url"`
	Path          string `json:"path" validate:"required,startswith=/"`

	UserID            string `json:"user_id,omitempty"`
	Token             string `json:"-"`
	RequireCredential bool   `json:"require_credential"`
	// TokenInQuery also appends the token as a query parameter for servers
	// that cannot read handshake headers.
	TokenInQuery bool `json:"token_in_query"`

	Destinations       []string `json:"destinations" validate:"required,min=1,dive,required"`
	ControlDestination string   `json:"control_destination,omitempty"`
	// Host is sent in the STOMP CONNECT frame. Defaults to the URL host.
	Host string `json:"host,omitempty"`

	HandshakeTimeout  time.Duration `json:"handshake_timeout" validate:"min=1ms"`
	HeartbeatOutgoing time.Duration `json:"heartbeat_outgoing" validate:"min=0"`
	HeartbeatIncoming time.Duration `json:"heartbeat_incoming" validate:"min=0"`
	// ReadTimeout closes a silent session. Zero disables it.
	ReadTimeout time.Duration `json:"read_timeout" validate:"min=0"`
	// ProbeSockJS requests {base}/info before dialing a SockJS session.
	ProbeSockJS bool `json:"probe_sockjs"`

	Reconnect ReconnectConfig `json:"reconnect"`

	PublishRateLimit  int           `json:"publish_rate_limit" validate:"min=1"`
	PublishRatePeriod time.Duration `json:"publish_rate_period" validate:"min=1ms"`

	LogLevel string `json:"log_level" validate:"omitempty,oneof=debug info warn error"`
}

// DefaultConfig returns a Config for the named channel served at path.
// Default values: direct mode against localhost:8084, websocket framing,
// 10s handshake timeout, 10 publishes per second, DefaultReconnectConfig.
func DefaultConfig(channel, path string) *Config {
	return &Config{
		Channel:       channel,
		Mode:          ModeDirect,
		Framing:       FramingWebSocket,
		DirectBaseURL: DefaultDirectBaseURL,
		Path:          path,

		HandshakeTimeout: 10 * time.Second,

		Reconnect: DefaultReconnectConfig(),

		PublishRateLimit:  10,
		PublishRatePeriod: time.Second,

		LogLevel: "info",
	}
}

var validate = validator.New()

// Validate checks struct tags and the cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Reconnect.MaxWait < c.Reconnect.BaseWait {
		return errors.New("Reconnect.MaxWait must not be shorter than Reconnect.BaseWait")
	}
	if c.Mode == ModeProxied && c.URL == "" && c.ProxyBaseURL == "" {
		return errors.New("ProxyBaseURL is required in proxied mode")
	}
	return nil
}

// WithUserID sets the identity and returns the config for chaining.
func (c *Config) WithUserID(userID string) *Config {
	c.UserID = userID
	return c
}

// WithToken sets the bearer credential and returns the config for chaining.
func (c *Config) WithToken(token string) *Config {
	c.Token = token
	return c
}

// WithURL sets the URL override and returns the config for chaining.
func (c *Config) WithURL(url string) *Config {
	c.URL = url
	return c
}

// WithProxy switches to proxied mode behind base and returns the config for chaining.
func (c *Config) WithProxy(base string) *Config {
	c.Mode = ModeProxied
	c.ProxyBaseURL = base
	return c
}

// WithFraming sets the socket framing and returns the config for chaining.
func (c *Config) WithFraming(framing Framing) *Config {
	c.Framing = framing
	return c
}

// WithRequireCredential sets the credential requirement and returns the config for chaining.
func (c *Config) WithRequireCredential(required bool) *Config {
	c.RequireCredential = required
	return c
}

// WithReconnect sets the reconnection policy and returns the config for chaining.
func (c *Config) WithReconnect(reconnect ReconnectConfig) *Config {
	c.Reconnect = reconnect
	return c
}

// WithHeartbeat sets the STOMP heart-beat intervals and returns the config for chaining.
func (c *Config) WithHeartbeat(outgoing, incoming time.Duration) *Config {
	c.HeartbeatOutgoing = outgoing
	c.HeartbeatIncoming = incoming
	return c
}

// Clone returns a deep copy of the config.
func (c *Config) Clone() *Config {
	cp := *c
	cp.Destinations = append([]string(nil), c.Destinations...)
	return &cp
}
