package channel

import (
	"strconv"

	"sinyal/internal/stomp"
)

// Binding pairs a destination with the handler its messages are dispatched to.
type Binding struct {
	Destination string
	Handler     Handler
}

func (c *Channel) buildBindings() []Binding {
	bindings := make([]Binding, 0, len(c.cfg.Destinations))
	for _, dest := range c.cfg.Destinations {
		h, ok := c.handlers[dest]
		if !ok {
			h = c.defaultHandler
		}
		bindings = append(bindings, Binding{Destination: dest, Handler: h})
	}
	return bindings
}

// Bindings returns the destinations the channel subscribes to on every connect.
func (c *Channel) Bindings() []Binding {
	return append([]Binding(nil), c.bindings...)
}

func subscriptionID(i int) string {
	return "sub-" + strconv.Itoa(i)
}

// subscribe issues one SUBSCRIBE per binding and then the control publish.
// It runs after every CONNECTED since subscriptions die with the session.
func (c *Channel) subscribe(s *session) error {
	s.subs = make(map[string]Binding, len(c.bindings))
	for i, b := range c.bindings {
		id := subscriptionID(i)
		if err := c.send(s, stomp.Subscribe(id, b.Destination)); err != nil {
			return err
		}
		s.subs[id] = b
		c.logger.Debug().
			Str("destination", b.Destination).
			Str("id", id).
			Msg("subscribed")
	}

	if dest := c.cfg.ControlDestination; dest != "" {
		if err := c.send(s, stomp.Send(dest, nil)); err != nil {
			return err
		}
		c.logger.Debug().Str("destination", dest).Msg("control message sent")
	}
	return nil
}
