package events

import "time"

// Type identifies the kind of observer event
type Type string

const (
	// TypeContacts carries the full contact list after a replace
	TypeContacts Type = "contacts"
	// TypeContactUpdated carries a single record status change
	TypeContactUpdated Type = "update"
	// TypeProgress carries current/total after each attempt
	TypeProgress Type = "progress"
	// TypeStatus carries a human-readable state transition message
	TypeStatus Type = "status"
	// TypeCountdown carries advisory pacing ticks
	TypeCountdown Type = "delay"
	// TypeDeliveryError carries a per-contact delivery failure
	TypeDeliveryError Type = "error"
	// TypeButtons carries the derived control-button state
	TypeButtons Type = "buttons"
	// TypeChannelStatus carries channel lifecycle changes
	TypeChannelStatus Type = "channel-status"
)

// Event is a single observer notification. Data is small and
// JSON-serializable; SSE clients receive it verbatim.
type Event struct {
	Type Type      `json:"type"`
	Time time.Time `json:"time"`
	Data any       `json:"data"`
}

// Progress reports how far a batch has advanced
type Progress struct {
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Contact string `json:"contact"`
}

// Buttons is the control-button state derived from the campaign state
// machine, recomputed on every transition
type Buttons struct {
	ShowStart  bool `json:"showStart"`
	ShowPause  bool `json:"showPause"`
	ShowResume bool `json:"showResume"`
	ShowCancel bool `json:"showCancel"`
}

// DeliveryError reports a failed send attempt for one contact
type DeliveryError struct {
	Contact string `json:"contact"`
	Reason  string `json:"reason"`
}

// Countdown is an advisory pacing tick
type Countdown struct {
	SecondsLeft int `json:"secondsLeft"`
}

// ChannelStatus reports the delivery channel lifecycle state
type ChannelStatus struct {
	State   string `json:"state"`
	Pairing string `json:"pairing,omitempty"`
}

// NewStatus builds a status-message event
func NewStatus(text string) Event {
	return Event{Type: TypeStatus, Data: text}
}

// NewProgress builds a progress event
func NewProgress(current, total int, contact string) Event {
	return Event{Type: TypeProgress, Data: Progress{Current: current, Total: total, Contact: contact}}
}

// NewButtons builds a control-buttons event
func NewButtons(b Buttons) Event {
	return Event{Type: TypeButtons, Data: b}
}

// NewCountdown builds an advisory countdown tick event
func NewCountdown(secondsLeft int) Event {
	return Event{Type: TypeCountdown, Data: Countdown{SecondsLeft: secondsLeft}}
}

// NewDeliveryError builds a delivery-error event
func NewDeliveryError(contact, reason string) Event {
	return Event{Type: TypeDeliveryError, Data: DeliveryError{Contact: contact, Reason: reason}}
}

// NewContacts builds a full contact-list snapshot event
func NewContacts(contacts any) Event {
	return Event{Type: TypeContacts, Data: contacts}
}

// NewContactUpdated builds a single-record update event
func NewContactUpdated(contact any) Event {
	return Event{Type: TypeContactUpdated, Data: contact}
}

// NewChannelStatus builds a channel lifecycle event
func NewChannelStatus(state, pairing string) Event {
	return Event{Type: TypeChannelStatus, Data: ChannelStatus{State: state, Pairing: pairing}}
}
