package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"
)

// Status is a synchronous snapshot of a channel's connection handle.
type Status struct {
	// Channel names the instance.
	Channel string `json:"channel"`
	// State is the reconnection controller state ("idle", "connected", ...).
	State string `json:"state"`
	// Connected is true only while a session is live.
	Connected bool `json:"connected"`
	// URL is the last resolved handshake URL.
	URL string `json:"url"`
	// Identity is the user id the channel connects as.
	Identity string `json:"identity"`
	// Attempts is the number of retries scheduled since the last successful connect.
	Attempts int `json:"attempts"`
	// Mode is the operating mode.
	Mode Mode `json:"mode"`
}

// HandshakeInfo is passed to OnOpen once the messaging session is established.
type HandshakeInfo struct {
	URL     string            `json:"url"`
	Version string            `json:"version"`
	Session string            `json:"session"`
	Server  string            `json:"server"`
	Headers map[string]string `json:"headers"`
	// HeartBeat is the negotiated client-to-server heart-beat interval.
	HeartBeat time.Duration `json:"heart_beat"`
}

// CloseInfo is passed to OnClose when a session ends.
type CloseInfo struct {
	Code   int    `json:"code"`
	Reason string `json:"reason"`
	// Deliberate is true when the caller asked for the close.
	Deliberate bool  `json:"deliberate"`
	Err        error `json:"-"`
}

// Amount is a decimal money value that accepts both JSON numbers and strings.
type Amount struct {
	apd.Decimal
}

// NewAmount parses s into an Amount.
func NewAmount(s string) (Amount, error) {
	var a Amount
	if _, _, err := a.SetString(s); err != nil {
		return Amount{}, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return a, nil
}

// MarshalJSON implements json.Marshaler for Amount as a JSON number.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.Decimal.String()), nil
}

// UnmarshalJSON implements json.Unmarshaler for Amount.
// It accepts numbers, quoted numbers and null.
func (a *Amount) UnmarshalJSON(data []byte) error {
	str := strings.TrimSpace(string(data))
	if str == "null" || str == `""` {
		*a = Amount{}
		return nil
	}
	str = strings.Trim(str, `"`)
	if _, _, err := a.SetString(str); err != nil {
		return fmt.Errorf("parse amount %q: %w", str, err)
	}
	return nil
}

// ID is an identifier the server may send either as a number or as a string.
type ID string

// UnmarshalJSON implements json.Unmarshaler for ID.
func (id *ID) UnmarshalJSON(data []byte) error {
	str := strings.TrimSpace(string(data))
	if str == "null" {
		*id = ""
		return nil
	}
	*id = ID(strings.Trim(str, `"`))
	return nil
}

// Forecast is the snapshot pushed on the forecast channel.
type Forecast struct {
	UserID            ID                `json:"userId,omitempty"`
	ForecastAmount    Amount            `json:"forecastAmount"`
	ConfidenceMin     Amount            `json:"confidenceMin"`
	ConfidenceMax     Amount            `json:"confidenceMax"`
	LastWeekAmount    Amount            `json:"lastWeekAmount"`
	ChangePercentage  *float64          `json:"changePercentage,omitempty"`
	ForecastWeekStart string            `json:"forecastWeekStart,omitempty"`
	ChartURLs         map[string]string `json:"chartUrls,omitempty"`
}

// Notification is a record pushed on the notification channel.
type Notification struct {
	ID      ID     `json:"id"`
	UserID  ID     `json:"userId,omitempty"`
	Type    string `json:"type"`
	Title   string `json:"title,omitempty"`
	Message string `json:"message"`
	Read    bool   `json:"read"`
	// CreatedAt is kept as sent; servers disagree on zone suffixes.
	CreatedAt string `json:"createdAt,omitempty"`
	// Broadcast is set by the client when the record arrived on the shared topic.
	Broadcast bool `json:"-"`
}
