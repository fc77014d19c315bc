// Package forecast is the typed client of the forecast delivery channel.
//
// The channel subscribes to the identity's private forecast queue and then
// asks the server for the last known forecast, so a fresh snapshot arrives
// on every connect and reconnect.
package forecast

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"sinyal/pkg/channel"
	"sinyal/pkg/core"
)

const (
	// Channel names the forecast channel in logs and errors.
	Channel = "forecasts"
	// Path is the handshake path of the forecast endpoint.
	Path = "/ws/forecasts"
	// Destination is the private per-identity forecast queue.
	Destination = "/user/queue/forecasts"
	// ControlDestination requests the last known forecast.
	ControlDestination = "/app/forecasts.subscribe"
)

// DefaultConfig returns the forecast channel configuration: SockJS framing,
// 4s heart-beats both ways, credential optional but sent when set.
func DefaultConfig() *core.Config {
	cfg := core.DefaultConfig(Channel, Path)
	cfg.Framing = core.FramingSockJS
	cfg.Destinations = []string{Destination}
	cfg.ControlDestination = ControlDestination
	cfg.HeartbeatOutgoing = 4 * time.Second
	cfg.HeartbeatIncoming = 4 * time.Second
	return cfg
}

// Client delivers forecast snapshots for one identity.
type Client struct {
	ch *channel.Channel

	mu         sync.RWMutex
	logger     zerolog.Logger
	latest     *core.Forecast
	latestFor  string
	onForecast func(*core.Forecast)
}

// NewClient creates a forecast client. onForecast may be nil; Latest always
// holds the most recent snapshot of the current identity.
func NewClient(cfg *core.Config, onForecast func(*core.Forecast), opts ...channel.Option) (*Client, error) {
	c := &Client{
		logger:     zerolog.Nop(),
		onForecast: onForecast,
	}

	opts = append(opts, channel.WithHandler(Destination, channel.Handle(c.handleForecast)))
	ch, err := channel.New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	c.ch = ch
	return c, nil
}

func (c *Client) handleForecast(f *core.Forecast, msg channel.Message) {
	c.mu.Lock()
	c.latest = f
	c.latestFor = msg.Identity
	logger := c.logger
	c.mu.Unlock()

	logger.Debug().
		Str("destination", msg.Destination).
		Str("week", f.ForecastWeekStart).
		Msg("forecast received")

	if c.onForecast != nil {
		c.onForecast(f)
	}
}

// SetLogger sets the logger for decoded snapshots. The channel itself logs
// through channel.WithLogger.
func (c *Client) SetLogger(logger zerolog.Logger) {
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

// Connect starts the channel. See channel.Channel.Connect.
func (c *Client) Connect() error {
	return c.ch.Connect()
}

// Disconnect closes the session deliberately.
func (c *Client) Disconnect() {
	c.ch.Disconnect()
}

func (c *Client) Close() error {
	return c.ch.Close()
}

// SetIdentity switches the identity. The previous identity's snapshot is
// dropped at once; the new one arrives after the reconnect.
func (c *Client) SetIdentity(userID string) {
	c.ch.SetIdentity(userID)
	c.mu.Lock()
	if c.latestFor != userID {
		c.latest = nil
	}
	c.mu.Unlock()
}

func (c *Client) SetCredential(token string) {
	c.ch.SetCredential(token)
}

func (c *Client) Status() core.Status {
	return c.ch.Status()
}

func (c *Client) IsConnected() bool {
	return c.ch.IsConnected()
}

// Channel exposes the underlying channel.
func (c *Client) Channel() *channel.Channel {
	return c.ch
}

// Latest returns the most recent forecast of the current identity, or nil
// before the first one arrives.
func (c *Client) Latest() *core.Forecast {
	identity := c.ch.Identity()
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.latestFor != identity {
		return nil
	}
	return c.latest
}

// Refresh asks the server to push the last known forecast again.
func (c *Client) Refresh(ctx context.Context) error {
	return c.ch.Publish(ctx, ControlDestination, nil)
}
