package channel

import (
	"fmt"

	"github.com/bytedance/sonic"

	"sinyal/internal/stomp"
	"sinyal/pkg/core"
)

// Message is an inbound MESSAGE frame.
type Message struct {
	Destination  string
	Subscription string
	// Identity is the user id the delivering session connected as.
	Identity string
	Headers  map[string]string
	Body     []byte
}

// Handler consumes one message. A returned error is reported to OnError as a
// decode error; the session is unaffected.
type Handler func(msg Message) error

// Handle returns a Handler that decodes the JSON body into a T and passes it to fn.
// Panics in fn are not recovered.
func Handle[T any](fn func(v *T, msg Message)) Handler {
	return func(msg Message) error {
		v := new(T)
		if err := sonic.Unmarshal(msg.Body, v); err != nil {
			return fmt.Errorf("decode %T: %w", *v, err)
		}
		if fn != nil {
			fn(v, msg)
		}
		return nil
	}
}

func (c *Channel) dispatch(s *session, f *stomp.Frame) {
	id := stomp.Header(f, stomp.HeaderSubscription)
	dest := stomp.Header(f, stomp.HeaderDestination)

	b, ok := s.subs[id]
	if !ok {
		b, ok = c.bindingFor(dest)
	}
	if !ok {
		c.logger.Debug().Str("destination", dest).Str("id", id).Msg("no binding for message")
		return
	}
	if b.Handler == nil {
		return
	}
	if dest == "" {
		dest = b.Destination
	}

	err := b.Handler(Message{
		Destination:  dest,
		Subscription: id,
		Identity:     s.identity,
		Headers:      stomp.Headers(f),
		Body:         f.Body,
	})
	if err != nil {
		c.reportError(core.NewChannelError(c.cfg.Channel, core.ErrorTypeDecode, "decode message", err).
			WithDestination(b.Destination))
	}
}

func (c *Channel) bindingFor(destination string) (Binding, bool) {
	for _, b := range c.bindings {
		if b.Destination == destination {
			return b, true
		}
	}
	return Binding{}, false
}
