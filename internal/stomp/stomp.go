// Package stomp builds and parses the STOMP 1.2 frames exchanged over a delivery channel.
package stomp

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
)

// Frame is a STOMP frame.
type Frame = frame.Frame

// Commands used by the client.
const (
	CONNECT    = frame.CONNECT
	CONNECTED  = frame.CONNECTED
	SUBSCRIBE  = frame.SUBSCRIBE
	SEND       = frame.SEND
	MESSAGE    = frame.MESSAGE
	ERROR      = frame.ERROR
	RECEIPT    = frame.RECEIPT
	DISCONNECT = frame.DISCONNECT
)

// AcceptVersion is the version list sent in CONNECT.
const AcceptVersion = "1.2,1.1,1.0"

// Heartbeat is the single end-of-line a heart-beat consists of.
var Heartbeat = []byte{'\n'}

// ConnectOptions configure the CONNECT frame.
type ConnectOptions struct {
	Host  string
	Token string
	// Outgoing and Incoming are advertised in the heart-beat header.
	Outgoing time.Duration
	Incoming time.Duration
}

// Connect builds the CONNECT frame. A token is sent as a bearer Authorization header.
func Connect(opts ConnectOptions) *Frame {
	f := frame.New(CONNECT,
		frame.AcceptVersion, AcceptVersion,
		frame.HeartBeat, FormatHeartBeat(opts.Outgoing, opts.Incoming),
	)
	if opts.Host != "" {
		f.Header.Add(frame.Host, opts.Host)
	}
	if opts.Token != "" {
		f.Header.Add("Authorization", "Bearer "+opts.Token)
	}
	return f
}

// Subscribe builds a SUBSCRIBE frame with automatic acknowledgement.
func Subscribe(id, destination string) *Frame {
	return frame.New(SUBSCRIBE,
		frame.Id, id,
		frame.Destination, destination,
		frame.Ack, "auto",
	)
}

// Send builds a SEND frame. An empty body produces a bodiless frame.
func Send(destination string, body []byte) *Frame {
	f := frame.New(SEND, frame.Destination, destination)
	if len(body) > 0 {
		f.Header.Add(frame.ContentType, "application/json")
		f.Body = body
	}
	return f
}

// Disconnect builds the DISCONNECT frame.
func Disconnect(receipt string) *Frame {
	if receipt == "" {
		return frame.New(DISCONNECT)
	}
	return frame.New(DISCONNECT, frame.Receipt, receipt)
}

// Encode serializes f as wire bytes.
func Encode(f *Frame) ([]byte, error) {
	var buf bytes.Buffer
	if err := frame.NewWriter(&buf).Write(f); err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", f.Command, err)
	}
	return buf.Bytes(), nil
}

// Decode parses every frame in data. Heart-beats are skipped, so a pure
// heart-beat message yields no frames and no error.
func Decode(data []byte) ([]*Frame, error) {
	r := frame.NewReader(bytes.NewReader(data))
	var frames []*Frame
	for {
		f, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return frames, nil
			}
			return frames, fmt.Errorf("decode frame: %w", err)
		}
		if f != nil {
			frames = append(frames, f)
		}
	}
}

// FormatHeartBeat renders the heart-beat header value in milliseconds.
func FormatHeartBeat(outgoing, incoming time.Duration) string {
	return strconv.FormatInt(outgoing.Milliseconds(), 10) + "," + strconv.FormatInt(incoming.Milliseconds(), 10)
}

// ParseHeartBeat parses a heart-beat header value.
func ParseHeartBeat(value string) (time.Duration, time.Duration, error) {
	if value == "" {
		return 0, 0, nil
	}
	parts := strings.Split(value, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid heart-beat %q", value)
	}
	cx, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil || cx < 0 {
		return 0, 0, fmt.Errorf("invalid heart-beat %q", value)
	}
	cy, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil || cy < 0 {
		return 0, 0, fmt.Errorf("invalid heart-beat %q", value)
	}
	return time.Duration(cx) * time.Millisecond, time.Duration(cy) * time.Millisecond, nil
}

// NegotiateHeartBeat returns how often the client must send heart-beats given
// what it offered and the server's CONNECTED heart-beat header. Zero means never.
func NegotiateHeartBeat(clientOutgoing time.Duration, serverHeader string) time.Duration {
	_, serverIncoming, err := ParseHeartBeat(serverHeader)
	if err != nil || clientOutgoing == 0 || serverIncoming == 0 {
		return 0
	}
	return max(clientOutgoing, serverIncoming)
}

// NegotiateIncoming returns how often the server has agreed to send
// heart-beats given what the client asked for. Zero means the link is not watched.
func NegotiateIncoming(clientIncoming time.Duration, serverHeader string) time.Duration {
	serverOutgoing, _, err := ParseHeartBeat(serverHeader)
	if err != nil || clientIncoming == 0 || serverOutgoing == 0 {
		return 0
	}
	return max(clientIncoming, serverOutgoing)
}

// ErrorMessage extracts a readable message from an ERROR frame.
func ErrorMessage(f *Frame) string {
	if msg := f.Header.Get(frame.Message); msg != "" {
		return msg
	}
	if len(f.Body) > 0 {
		return strings.TrimSpace(string(f.Body))
	}
	return "STOMP error"
}

// Header returns the named header of f.
func Header(f *Frame, name string) string {
	return f.Header.Get(name)
}

// Header names read by the client.
const (
	HeaderDestination  = frame.Destination
	HeaderSubscription = frame.Subscription
	HeaderVersion      = frame.Version
	HeaderSession      = frame.Session
	HeaderServer       = frame.Server
	HeaderHeartBeat    = frame.HeartBeat
	HeaderReceiptID    = frame.ReceiptId
)

// Headers flattens the frame headers into a map. Repeated keys keep the first value.
func Headers(f *Frame) map[string]string {
	out := make(map[string]string, f.Header.Len())
	for i := 0; i < f.Header.Len(); i++ {
		k, v := f.Header.GetAt(i)
		if _, ok := out[k]; !ok {
			out[k] = v
		}
	}
	return out
}
