// Package endpoint resolves the handshake URL of a delivery channel.
package endpoint

import (
	"fmt"
	"net/url"
	"strings"

	"sinyal/pkg/core"
)

// Target is the part of a channel configuration that decides where it connects.
type Target struct {
	Mode    core.Mode
	Framing core.Framing
	// URL is a complete endpoint that replaces base and path.
	URL           string
	ProxyBaseURL  string
	DirectBaseURL string
	Path          string
	// TokenInQuery appends the credential as a token query parameter.
	TokenInQuery bool
}

// FromConfig extracts the target from cfg.
func FromConfig(cfg *core.Config) Target {
	return Target{
		Mode:          cfg.Mode,
		Framing:       cfg.Framing,
		URL:           cfg.URL,
		ProxyBaseURL:  cfg.ProxyBaseURL,
		DirectBaseURL: cfg.DirectBaseURL,
		Path:          cfg.Path,
		TokenInQuery:  cfg.TokenInQuery,
	}
}

// Base returns the endpoint without identity parameters.
func (t Target) Base() string {
	if t.URL != "" {
		return t.URL
	}
	base := t.DirectBaseURL
	if t.Mode == core.ModeProxied && t.ProxyBaseURL != "" {
		base = t.ProxyBaseURL
	}
	if base == "" {
		base = core.DefaultDirectBaseURL
	}
	return strings.TrimRight(base, "/") + t.Path
}

// Resolve returns {base}{path}?userId={identity}. Websocket framing maps
// http(s) to ws(s); SockJS framing keeps http(s) because the session URL is
// derived from it later. Existing query parameters are preserved.
func Resolve(t Target, identity, token string) (string, error) {
	if identity == "" {
		return "", core.ErrMissingIdentity
	}

	u, err := url.Parse(t.Base())
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("endpoint %q has no host", t.Base())
	}

	u.Scheme, err = scheme(u.Scheme, t.Framing)
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set("userId", identity)
	if t.TokenInQuery && token != "" {
		q.Set("token", token)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func scheme(s string, framing core.Framing) (string, error) {
	secure := false
	switch strings.ToLower(s) {
	case "http", "ws":
	case "https", "wss":
		secure = true
	default:
		return "", fmt.Errorf("unsupported scheme %q", s)
	}

	switch {
	case framing == core.FramingSockJS && secure:
		return "https", nil
	case framing == core.FramingSockJS:
		return "http", nil
	case secure:
		return "wss", nil
	default:
		return "ws", nil
	}
}
