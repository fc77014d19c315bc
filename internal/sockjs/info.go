package sockjs

import (
	"context"
	"errors"
	"fmt"

	"sinyal/internal/http"
)

// ErrWebSocketDisabled is returned when the server does not offer the websocket transport.
var ErrWebSocketDisabled = errors.New("sockjs: websocket transport disabled by server")

// Info is the body of GET {base}/info.
type Info struct {
	WebSocket    bool     `json:"websocket"`
	CookieNeeded bool     `json:"cookie_needed"`
	Origins      []string `json:"origins"`
	Entropy      int64    `json:"entropy"`
}

// Probe asks the server which transports it offers and fails when the
// websocket transport is not available.
func Probe(ctx context.Context, client *http.Client, base string, opts ...http.RequestOption) (*Info, error) {
	infoURL, err := InfoURL(base)
	if err != nil {
		return nil, err
	}
	var info Info
	if err := client.GetJSON(ctx, infoURL, &info, opts...); err != nil {
		return nil, fmt.Errorf("sockjs: probe: %w", err)
	}
	if !info.WebSocket {
		return &info, ErrWebSocketDisabled
	}
	return &info, nil
}
