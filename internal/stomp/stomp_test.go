package stomp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnect_RoundTrip(t *testing.T) {
	f := Connect(ConnectOptions{
		Host:     "localhost",
		Token:    "abc.def",
		Outgoing: 4 * time.Second,
		Incoming: 4 * time.Second,
	})

	data, err := Encode(f)
	require.NoError(t, err)

	frames, err := Decode(data)
	require.NoError(t, err)
	require.Len(t, frames, 1)

	got := frames[0]
	assert.Equal(t, CONNECT, got.Command)
	assert.Equal(t, AcceptVersion, Header(got, "accept-version"))
	assert.Equal(t, "4000,4000", Header(got, HeaderHeartBeat))
	assert.Equal(t, "localhost", Header(got, "host"))
	assert.Equal(t, "Bearer abc.def", Header(got, "Authorization"))
}

func TestConnect_WithoutToken(t *testing.T) {
	f := Connect(ConnectOptions{})

	assert.Empty(t, Header(f, "Authorization"))
	assert.Equal(t, "0,0", Header(f, HeaderHeartBeat))
}

func TestSubscribeAndSend(t *testing.T) {
	sub := Subscribe("sub-0", "/user/queue/forecasts")
	assert.Equal(t, SUBSCRIBE, sub.Command)
	assert.Equal(t, "sub-0", Header(sub, "id"))
	assert.Equal(t, "/user/queue/forecasts", Header(sub, HeaderDestination))

	control := Send("/app/forecasts.subscribe", nil)
	assert.Equal(t, SEND, control.Command)
	assert.Empty(t, control.Body)
	assert.Empty(t, Header(control, "content-type"))

	withBody := Send("/app/echo", []byte(`{"a":1}`))
	data, err := Encode(withBody)
	require.NoError(t, err)

	frames, err := Decode(data)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, `{"a":1}`, string(frames[0].Body))
	assert.Equal(t, "/app/echo", Header(frames[0], HeaderDestination))
}

func TestDecode_ServerFrames(t *testing.T) {
	data := []byte("MESSAGE\ndestination:/user/queue/forecasts\nsubscription:sub-0\nmessage-id:1\n\n{\"forecastAmount\":1}\x00\n" +
		"MESSAGE\ndestination:/topic/notifications\nsubscription:sub-1\nmessage-id:2\n\n{\"id\":2}\x00")

	frames, err := Decode(data)
	require.NoError(t, err)
	require.Len(t, frames, 2)

	assert.Equal(t, MESSAGE, frames[0].Command)
	assert.Equal(t, "sub-0", Header(frames[0], HeaderSubscription))
	assert.Equal(t, `{"forecastAmount":1}`, string(frames[0].Body))
	assert.Equal(t, "/topic/notifications", Header(frames[1], HeaderDestination))

	headers := Headers(frames[1])
	assert.Equal(t, "2", headers["message-id"])
}

func TestDecode_Heartbeat(t *testing.T) {
	frames, err := Decode(Heartbeat)
	assert.NoError(t, err)
	assert.Empty(t, frames)

	frames, err = Decode([]byte("\r\n"))
	assert.NoError(t, err)
	assert.Empty(t, frames)
}

func TestDecode_Malformed(t *testing.T) {
	_, err := Decode([]byte("MESSAGE\nbroken header line without colon\n\nbody\x00"))
	assert.Error(t, err)
}

func TestErrorMessage(t *testing.T) {
	frames, err := Decode([]byte("ERROR\nmessage:Access denied\n\n\x00"))
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, "Access denied", ErrorMessage(frames[0]))

	frames, err = Decode([]byte("ERROR\n\nsession expired\x00"))
	require.NoError(t, err)
	assert.Equal(t, "session expired", ErrorMessage(frames[0]))

	frames, err = Decode([]byte("ERROR\n\n\x00"))
	require.NoError(t, err)
	assert.Equal(t, "STOMP error", ErrorMessage(frames[0]))
}

func TestHeartBeat(t *testing.T) {
	assert.Equal(t, "4000,0", FormatHeartBeat(4*time.Second, 0))

	cx, cy, err := ParseHeartBeat("10000, 4000")
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, cx)
	assert.Equal(t, 4*time.Second, cy)

	_, _, err = ParseHeartBeat("10")
	assert.Error(t, err)
	_, _, err = ParseHeartBeat("a,b")
	assert.Error(t, err)

	tests := []struct {
		outgoing time.Duration
		server   string
		expected time.Duration
	}{
		{4 * time.Second, "0,10000", 10 * time.Second},
		{4 * time.Second, "0,1000", 4 * time.Second},
		{4 * time.Second, "10000,0", 0},
		{0, "0,1000", 0},
		{4 * time.Second, "", 0},
		{4 * time.Second, "garbage", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, NegotiateHeartBeat(tt.outgoing, tt.server), "server %q", tt.server)
	}
}

func TestNegotiateIncoming(t *testing.T) {
	tests := []struct {
		incoming time.Duration
		server   string
		expected time.Duration
	}{
		{4 * time.Second, "4000,4000", 4 * time.Second},
		{4 * time.Second, "10000,0", 10 * time.Second},
		{20 * time.Second, "5000,0", 20 * time.Second},
		{4 * time.Second, "0,4000", 0},
		{0, "4000,4000", 0},
		{4 * time.Second, "", 0},
		{4 * time.Second, "1,2,3", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, NegotiateIncoming(tt.incoming, tt.server), "server %q", tt.server)
	}
}

func TestDisconnect(t *testing.T) {
	assert.Equal(t, DISCONNECT, Disconnect("").Command)
	assert.Equal(t, "bye", Header(Disconnect("bye"), "receipt"))
}
