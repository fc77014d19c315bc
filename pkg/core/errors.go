package core

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType represents the category of a channel error.
type ErrorType int

// Error type constants categorize errors for recovery decisions.
const (
	// ErrorTypeUnknown indicates an unclassified error.
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeConfiguration indicates missing identity or credential. Never retried.
	ErrorTypeConfiguration
	// ErrorTypeTransport indicates handshake failure, abnormal close or socket error.
	// Transport errors drive the reconnect cycle.
	ErrorTypeTransport
	// ErrorTypeDecode indicates a malformed inbound payload. Local to one event.
	ErrorTypeDecode
	// ErrorTypeProtocol indicates a server-reported failure on the messaging sub-protocol.
	// Protocol errors are handled like transport errors.
	ErrorTypeProtocol
)

// String returns the string representation of the error type.
func (t ErrorType) String() string {
	if t < ErrorTypeUnknown || t > ErrorTypeProtocol {
		return "UNKNOWN"
	}
	return [...]string{
		"UNKNOWN",
		"CONFIGURATION",
		"TRANSPORT",
		"DECODE",
		"PROTOCOL",
	}[t]
}

// Sentinel errors for common error conditions.
var (
	// ErrMissingIdentity is returned when connecting without a user id.
	ErrMissingIdentity = errors.New("identity is required")
	// ErrMissingCredential is returned when a credential-bearing channel has no token.
	ErrMissingCredential = errors.New("credential is required")
	// ErrClientClosed is returned when attempting to use a closed channel.
	ErrClientClosed = errors.New("channel is closed")
	// ErrNotConnected is returned when publishing without a live session.
	ErrNotConnected = errors.New("channel not connected")
	// ErrRetryBudgetExhausted is reported when reconnection gives up.
	ErrRetryBudgetExhausted = errors.New("retry budget exhausted")
	// ErrHeartbeatTimeout is reported when the server stops sending heart-beats.
	ErrHeartbeatTimeout = errors.New("server heart-beat timeout")
	// ErrDeliberateClose marks a close requested by the caller.
	ErrDeliberateClose = errors.New("closed by client")
)

// ChannelError represents a structured error raised by a delivery channel.
type ChannelError struct {
	// Type categorizes the error for programmatic handling.
	Type ErrorType `json:"type"`
	// Code is the stable machine-readable error code.
	Code string `json:"code"`
	// Channel names the channel instance, e.g. "forecasts".
	Channel string `json:"channel"`
	// Destination is set for decode errors.
	Destination string `json:"destination,omitempty"`
	// Message is the human-readable error description.
	Message string `json:"message"`
	// Err is the underlying cause.
	Err error `json:"-"`
	// Timestamp is when the error occurred.
	Timestamp time.Time `json:"timestamp"`
}

// Error implements the error interface for ChannelError.
func (e *ChannelError) Error() string {
	msg := e.Message
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = msg + ": " + e.Err.Error()
		}
	}
	if e.Destination != "" {
		return fmt.Sprintf("[%s] %s (%s) %s: %s", e.Channel, e.Type, e.Code, e.Destination, msg)
	}
	return fmt.Sprintf("[%s] %s (%s): %s", e.Channel, e.Type, e.Code, msg)
}

// Unwrap returns the underlying cause.
func (e *ChannelError) Unwrap() error {
	return e.Err
}

// WithCode sets the error code and returns the error for chaining.
func (e *ChannelError) WithCode(code ErrorCode) *ChannelError {
	e.Code = string(code)
	return e
}

// WithDestination sets the destination and returns the error for chaining.
func (e *ChannelError) WithDestination(destination string) *ChannelError {
	e.Destination = destination
	return e
}

// NewChannelError creates a new ChannelError wrapping err.
// The timestamp is automatically set to the current time.
func NewChannelError(channel string, errorType ErrorType, message string, err error) *ChannelError {
	return &ChannelError{
		Type:      errorType,
		Code:      string(defaultCode(errorType)),
		Channel:   channel,
		Message:   message,
		Err:       err,
		Timestamp: time.Now(),
	}
}

func defaultCode(t ErrorType) ErrorCode {
	switch t {
	case ErrorTypeConfiguration:
		return ErrCodeInvalidConfig
	case ErrorTypeTransport:
		return ErrCodeTransport
	case ErrorTypeDecode:
		return ErrCodeDecode
	case ErrorTypeProtocol:
		return ErrCodeProtocol
	default:
		return ErrCodeUnknown
	}
}

func isType(err error, t ErrorType) bool {
	var chErr *ChannelError
	if errors.As(err, &chErr) {
		return chErr.Type == t
	}
	return false
}

// IsConfigurationError returns true if the error is a configuration error.
// Configuration errors are fatal to the connect attempt and are not retried.
func IsConfigurationError(err error) bool {
	return isType(err, ErrorTypeConfiguration)
}

// IsTransportError returns true if the error is a transport error.
func IsTransportError(err error) bool {
	return isType(err, ErrorTypeTransport)
}

// IsDecodeError returns true if the error is a decode error.
func IsDecodeError(err error) bool {
	return isType(err, ErrorTypeDecode)
}

// IsProtocolError returns true if the error is a protocol error.
func IsProtocolError(err error) bool {
	return isType(err, ErrorTypeProtocol)
}

// IsRetryable returns true for errors that drive the reconnect cycle.
func IsRetryable(err error) bool {
	return IsTransportError(err) || IsProtocolError(err)
}
