package campaign

import "strings"

// Status is a contact's delivery status. Transitions only run
// Pending -> Sending -> (Sent | Error); a record never reverts except
// when a fresh upload replaces the whole list.
type Status string

const (
	StatusPending Status = "pending"
	StatusSending Status = "sending"
	StatusSent    Status = "sent"
	StatusError   Status = "error"
)

// AttachmentStatus tracks delivery of the shared attachment per contact
type AttachmentStatus string

const (
	AttachmentNone    AttachmentStatus = "none"
	AttachmentPending AttachmentStatus = "pending"
	AttachmentSent    AttachmentStatus = "sent"
	AttachmentError   AttachmentStatus = "error"
)

// Contact is one row of the uploaded contact list plus the
// system-managed delivery fields
type Contact struct {
	Fields           map[string]string `json:"fields"`
	Status           Status            `json:"status"`
	AttachmentStatus AttachmentStatus  `json:"attachment_status"`
	SentAt           string            `json:"sent_at,omitempty"`
}

// Field looks up an uploaded field by case-insensitive name
func (c *Contact) Field(name string) string {
	if v, ok := c.Fields[name]; ok {
		return v
	}
	for k, v := range c.Fields {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// Label returns a human-readable identifier for observer events: the
// contact's name if present, else the addressing field, else "unknown"
func (c *Contact) Label(addressField string) string {
	for _, name := range []string{"nombre", "name"} {
		if v := c.Field(name); v != "" {
			return v
		}
	}
	if v := c.Field(addressField); v != "" {
		return v
	}
	return "unknown"
}

// Clone returns a deep copy safe to hand to observers
func (c *Contact) Clone() *Contact {
	fields := make(map[string]string, len(c.Fields))
	for k, v := range c.Fields {
		fields[k] = v
	}
	return &Contact{
		Fields:           fields,
		Status:           c.Status,
		AttachmentStatus: c.AttachmentStatus,
		SentAt:           c.SentAt,
	}
}
