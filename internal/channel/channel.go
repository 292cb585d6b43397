package channel

import (
	"context"
	"strings"
)

// State is the delivery channel lifecycle state
type State string

const (
	StateAwaitingPairing State = "awaiting_pairing"
	StateConnected       State = "connected"
	StateDisconnected    State = "disconnected"
)

// Status describes the channel lifecycle, including the pairing challenge
// while the channel awaits device linking
type Status struct {
	State   State  `json:"state"`
	Pairing string `json:"pairing,omitempty"`
}

// Media is an attachment delivered alongside a message
type Media struct {
	Data     []byte
	Mime     string
	Filename string
}

// Client performs the actual message delivery to a contact's address.
// Implementations must return an error with a reason rather than hang;
// the scheduler records failures and moves on.
type Client interface {
	SendText(ctx context.Context, addr, text string) error
	SendMedia(ctx context.Context, addr string, media Media, caption string) error
	Status() Status
}

// NormalizeAddress turns a raw phone-number field into a channel address:
// non-digits are stripped, the country code is prefixed and the channel
// suffix appended. Returns "" when the field holds no digits, which the
// scheduler treats as a malformed row to skip.
func NormalizeAddress(raw, countryCode, suffix string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return ""
	}
	return countryCode + b.String() + suffix
}
