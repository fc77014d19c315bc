package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorType_String(t *testing.T) {
	tests := []struct {
		errorType ErrorType
		expected  string
	}{
		{ErrorTypeUnknown, "UNKNOWN"},
		{ErrorTypeConfiguration, "CONFIGURATION"},
		{ErrorTypeTransport, "TRANSPORT"},
		{ErrorTypeDecode, "DECODE"},
		{ErrorTypeProtocol, "PROTOCOL"},
		{ErrorType(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.errorType.String())
	}
}

func TestChannelError_Error(t *testing.T) {
	err := NewChannelError("forecasts", ErrorTypeConfiguration, "connect", ErrMissingIdentity).
		WithCode(ErrCodeMissingIdentity)

	assert.Equal(t, "[forecasts] CONFIGURATION (MISSING_IDENTITY): connect: identity is required", err.Error())
	assert.True(t, errors.Is(err, ErrMissingIdentity))
	assert.False(t, err.Timestamp.IsZero())

	decodeErr := NewChannelError("notifications", ErrorTypeDecode, "", errors.New("bad json")).
		WithDestination("/topic/notifications")
	assert.Equal(t, "[notifications] DECODE (DECODE_ERROR) /topic/notifications: bad json", decodeErr.Error())
}

func TestChannelError_Classification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		config    bool
		transport bool
		decode    bool
		protocol  bool
		retryable bool
	}{
		{
			name:   "configuration",
			err:    NewChannelError("c", ErrorTypeConfiguration, "", ErrMissingCredential),
			config: true,
		},
		{
			name:      "transport",
			err:       NewChannelError("c", ErrorTypeTransport, "dial", errors.New("refused")),
			transport: true,
			retryable: true,
		},
		{
			name:   "decode",
			err:    NewChannelError("c", ErrorTypeDecode, "", errors.New("eof")),
			decode: true,
		},
		{
			name:      "protocol",
			err:       NewChannelError("c", ErrorTypeProtocol, "ERROR frame", nil),
			protocol:  true,
			retryable: true,
		},
		{
			name:      "wrapped_transport",
			err:       fmt.Errorf("outer: %w", NewChannelError("c", ErrorTypeTransport, "", nil)),
			transport: true,
			retryable: true,
		},
		{
			name: "plain",
			err:  errors.New("plain"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.config, IsConfigurationError(tt.err))
			assert.Equal(t, tt.transport, IsTransportError(tt.err))
			assert.Equal(t, tt.decode, IsDecodeError(tt.err))
			assert.Equal(t, tt.protocol, IsProtocolError(tt.err))
			assert.Equal(t, tt.retryable, IsRetryable(tt.err))
		})
	}
}

func TestIsErrorCode(t *testing.T) {
	err := NewChannelError("c", ErrorTypeTransport, "", nil).WithCode(ErrCodeAbnormalClose)

	assert.True(t, IsErrorCode(err, ErrCodeAbnormalClose))
	assert.False(t, IsErrorCode(err, ErrCodeHandshake))
	assert.False(t, IsErrorCode(errors.New("x"), ErrCodeAbnormalClose))

	assert.True(t, IsErrorCode(NewChannelError("c", ErrorTypeDecode, "", nil), ErrCodeDecode))
}

func TestAmount_UnmarshalJSON(t *testing.T) {
	var f Forecast
	data := []byte(`{"forecastAmount":42350.5,"confidenceMin":"40000","confidenceMax":null,"changePercentage":-3.5,"chartUrls":{"weekly":"/charts/1.png"}}`)

	require.NoError(t, sonic.Unmarshal(data, &f))

	assert.Equal(t, "42350.5", f.ForecastAmount.String())
	assert.Equal(t, "40000", f.ConfidenceMin.String())
	assert.Equal(t, "0", f.ConfidenceMax.String())
	require.NotNil(t, f.ChangePercentage)
	assert.Equal(t, -3.5, *f.ChangePercentage)
	assert.Equal(t, "/charts/1.png", f.ChartURLs["weekly"])

	var bad Amount
	assert.Error(t, bad.UnmarshalJSON([]byte(`"abc"`)))
}

func TestAmount_MarshalJSON(t *testing.T) {
	a, err := NewAmount("1250.75")
	require.NoError(t, err)

	data, err := sonic.Marshal(a)
	require.NoError(t, err)
	assert.Equal(t, "1250.75", string(data))

	_, err = NewAmount("1,25")
	assert.Error(t, err)
}

func TestNotification_Unmarshal(t *testing.T) {
	var n Notification
	data := []byte(`{"id":1017,"userId":"42","type":"BUDGET_EXCEEDED","message":"Budget exceeded","read":false,"createdAt":"2025-03-01T10:00:00"}`)

	require.NoError(t, sonic.Unmarshal(data, &n))

	assert.Equal(t, ID("1017"), n.ID)
	assert.Equal(t, ID("42"), n.UserID)
	assert.Equal(t, "BUDGET_EXCEEDED", n.Type)
	assert.Equal(t, "2025-03-01T10:00:00", n.CreatedAt)
	assert.False(t, n.Broadcast)
}
