// Package sockjs implements the client side of the SockJS websocket transport:
// session URL layout, frame codec and the /info probe.
package sockjs

import (
	"errors"
	"fmt"
	"math/rand"
	"net/url"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
)

// FrameKind identifies a SockJS frame by its leading letter.
type FrameKind byte

// Frame letters sent by a SockJS server.
const (
	FrameOpen      FrameKind = 'o'
	FrameHeartbeat FrameKind = 'h'
	FrameArray     FrameKind = 'a'
	FrameMessage   FrameKind = 'm'
	FrameClose     FrameKind = 'c'
)

// ErrEmptyFrame is returned when decoding an empty payload.
var ErrEmptyFrame = errors.New("sockjs: empty frame")

// Frame is a decoded SockJS frame.
type Frame struct {
	Kind     FrameKind
	Messages []string
	Code     int
	Reason   string
}

// SessionURL returns the websocket endpoint for a new session under base:
// {base}/{server}/{session}/websocket with http(s) mapped to ws(s).
// The query string of base is preserved.
func SessionURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("sockjs: parse base url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("sockjs: unsupported scheme %q", u.Scheme)
	}
	server := fmt.Sprintf("%03d", rand.Intn(1000))
	session := strings.ReplaceAll(uuid.NewString(), "-", "")
	u.Path = strings.TrimRight(u.Path, "/") + "/" + server + "/" + session + "/websocket"
	u.RawPath = ""
	return u.String(), nil
}

// InfoURL returns {base}/info without the query string of base.
func InfoURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("sockjs: parse base url: %w", err)
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/info"
	u.RawPath = ""
	u.RawQuery = ""
	return u.String(), nil
}

// Decode parses one websocket message from a SockJS server.
func Decode(data []byte) (Frame, error) {
	if len(data) == 0 {
		return Frame{}, ErrEmptyFrame
	}
	kind := FrameKind(data[0])
	body := data[1:]
	switch kind {
	case FrameOpen, FrameHeartbeat:
		return Frame{Kind: kind}, nil
	case FrameArray:
		var msgs []string
		if err := sonic.Unmarshal(body, &msgs); err != nil {
			return Frame{}, fmt.Errorf("sockjs: decode array frame: %w", err)
		}
		return Frame{Kind: kind, Messages: msgs}, nil
	case FrameMessage:
		var msg string
		if err := sonic.Unmarshal(body, &msg); err != nil {
			return Frame{}, fmt.Errorf("sockjs: decode message frame: %w", err)
		}
		return Frame{Kind: FrameArray, Messages: []string{msg}}, nil
	case FrameClose:
		var closing []any
		if err := sonic.Unmarshal(body, &closing); err != nil {
			return Frame{}, fmt.Errorf("sockjs: decode close frame: %w", err)
		}
		f := Frame{Kind: kind}
		if len(closing) > 0 {
			if code, ok := closing[0].(float64); ok {
				f.Code = int(code)
			}
		}
		if len(closing) > 1 {
			f.Reason, _ = closing[1].(string)
		}
		return f, nil
	default:
		return Frame{}, fmt.Errorf("sockjs: unknown frame type %q", data[0])
	}
}

// Encode wraps outbound payloads in the JSON array a SockJS server expects.
func Encode(messages ...string) ([]byte, error) {
	data, err := sonic.Marshal(messages)
	if err != nil {
		return nil, fmt.Errorf("sockjs: encode: %w", err)
	}
	return data, nil
}
