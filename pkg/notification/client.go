// Package notification is the typed client of the notification delivery channel.
//
// The channel subscribes to the identity's private queue and to the shared
// broadcast topic. Both feed the same callback; Broadcast tells them apart.
package notification

import (
	"sync"

	"github.com/rs/zerolog"

	"sinyal/pkg/channel"
	"sinyal/pkg/core"
)

const (
	// Channel names the notification channel in logs and errors.
	Channel = "notifications"
	// Path is the handshake path of the notification endpoint.
	Path = "/ws/notifications"
	// PrivateDestination is the per-identity notification queue.
	PrivateDestination = "/user/queue/notifications"
	// BroadcastDestination is the topic shared by every identity.
	BroadcastDestination = "/topic/notifications"
)

// DefaultConfig returns the notification channel configuration: plain
// websocket framing and a required bearer credential.
func DefaultConfig() *core.Config {
	cfg := core.DefaultConfig(Channel, Path)
	cfg.Framing = core.FramingWebSocket
	cfg.RequireCredential = true
	cfg.Destinations = []string{PrivateDestination, BroadcastDestination}
	return cfg
}

// Client delivers notification records for one identity.
type Client struct {
	ch *channel.Channel

	mu             sync.RWMutex
	logger         zerolog.Logger
	onNotification func(*core.Notification)
}

// NewClient creates a notification client. onNotification receives records
// from both destinations, in arrival order.
func NewClient(cfg *core.Config, onNotification func(*core.Notification), opts ...channel.Option) (*Client, error) {
	c := &Client{
		logger:         zerolog.Nop(),
		onNotification: onNotification,
	}

	opts = append(opts,
		channel.WithHandler(PrivateDestination, channel.Handle(func(n *core.Notification, msg channel.Message) {
			c.deliver(n, msg, false)
		})),
		channel.WithHandler(BroadcastDestination, channel.Handle(func(n *core.Notification, msg channel.Message) {
			c.deliver(n, msg, true)
		})),
	)
	ch, err := channel.New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	c.ch = ch
	return c, nil
}

// SetLogger sets the logger for decoded records. The channel itself logs
// through channel.WithLogger.
func (c *Client) SetLogger(logger zerolog.Logger) {
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

func (c *Client) deliver(n *core.Notification, msg channel.Message, broadcast bool) {
	n.Broadcast = broadcast

	c.mu.RLock()
	logger := c.logger
	c.mu.RUnlock()
	logger.Debug().
		Str("destination", msg.Destination).
		Str("id", string(n.ID)).
		Str("type", n.Type).
		Bool("broadcast", broadcast).
		Msg("notification received")

	if c.onNotification != nil {
		c.onNotification(n)
	}
}

// Connect starts the channel. A missing credential fails here without dialing.
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

func (c *Client) SetIdentity(userID string) {
	c.ch.SetIdentity(userID)
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
