package core

import "errors"

// ErrorCode represents a stable error identifier.
type ErrorCode string

// Error code constants.
const (
	ErrCodeUnknown ErrorCode = "UNKNOWN"

	// Configuration errors
	ErrCodeInvalidConfig     ErrorCode = "INVALID_CONFIG"
	ErrCodeMissingIdentity   ErrorCode = "MISSING_IDENTITY"
	ErrCodeMissingCredential ErrorCode = "MISSING_CREDENTIAL"

	// Transport errors
	ErrCodeTransport      ErrorCode = "TRANSPORT_ERROR"
	ErrCodeHandshake      ErrorCode = "HANDSHAKE_FAILED"
	ErrCodeAbnormalClose  ErrorCode = "ABNORMAL_CLOSE"
	ErrCodeNotConnected   ErrorCode = "NOT_CONNECTED"
	ErrCodeRetryExhausted ErrorCode = "RETRY_EXHAUSTED"
	ErrCodeHeartbeat      ErrorCode = "HEARTBEAT_TIMEOUT"

	// Payload errors
	ErrCodeDecode ErrorCode = "DECODE_ERROR"

	// Messaging sub-protocol errors
	ErrCodeProtocol    ErrorCode = "PROTOCOL_ERROR"
	ErrCodeServerError ErrorCode = "SERVER_ERROR"

	// Client state errors
	ErrCodeClientClosed ErrorCode = "CLIENT_CLOSED"
)

// IsErrorCode checks if the error matches the specified error code.
func IsErrorCode(err error, code ErrorCode) bool {
	var chErr *ChannelError
	if errors.As(err, &chErr) {
		return ErrorCode(chErr.Code) == code
	}
	return false
}
