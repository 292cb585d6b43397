package campaign

import "github.com/damaro/courier/internal/events"

// Attachment is the shared media blob for the current batch. It is held
// in memory only and not persisted with snapshots.
type Attachment struct {
	Data     []byte
	Mime     string
	Filename string
}

// State holds one tenant's campaign configuration and runtime flags.
// It is not safe for concurrent use; the Runner serializes access.
type State struct {
	Contacts    []*Contact
	Cursor      int
	Sending     bool
	Paused      bool
	Template    string
	IntervalMin int
	IntervalMax int
	Attachment  *Attachment
}

// Snapshot is the crash-safe subset of State persisted per tenant
type Snapshot struct {
	Contacts    []*Contact `json:"contacts"`
	Cursor      int        `json:"cursor"`
	Template    string     `json:"template"`
	IntervalMin int        `json:"interval_min"`
	IntervalMax int        `json:"interval_max"`
}

// NewState returns an all-default campaign state
func NewState(intervalMin, intervalMax int) *State {
	return &State{
		IntervalMin: intervalMin,
		IntervalMax: intervalMax,
	}
}

// Replace overwrites the ordered contact list from uploaded rows. Every
// record starts Pending; the attachment status reflects whether an
// attachment is currently loaded. The cursor moves to the first record
// not already Sent (or to len when the batch is complete).
func (s *State) Replace(rows []map[string]string) {
	attachStatus := AttachmentNone
	if s.Attachment != nil {
		attachStatus = AttachmentPending
	}

	contacts := make([]*Contact, 0, len(rows))
	for _, row := range rows {
		contacts = append(contacts, &Contact{
			Fields:           row,
			Status:           StatusPending,
			AttachmentStatus: attachStatus,
		})
	}

	s.Contacts = contacts
	s.Cursor = s.firstUnsent()
}

// Attach stores or replaces the shared attachment and marks every record
// that is not yet Sent as having a pending file. Completed records are
// left untouched.
func (s *State) Attach(att *Attachment) {
	s.Attachment = att
	for _, c := range s.Contacts {
		if c.Status != StatusSent {
			c.AttachmentStatus = AttachmentPending
		}
	}
}

// Restore loads a persisted snapshot, re-deriving the cursor so a
// snapshot taken mid-batch resumes at the first unfinished record.
func (s *State) Restore(snap *Snapshot) {
	s.Contacts = snap.Contacts
	s.Template = snap.Template
	if snap.IntervalMin > 0 {
		s.IntervalMin = snap.IntervalMin
	}
	if snap.IntervalMax > 0 {
		s.IntervalMax = snap.IntervalMax
	}
	s.Cursor = snap.Cursor
	if s.Cursor < 0 || s.Cursor > len(s.Contacts) {
		s.Cursor = s.firstUnsent()
	}
	// A record interrupted mid-send comes back as Pending so the resumed
	// loop attempts it again rather than leaving it stuck in Sending.
	for _, c := range s.Contacts {
		if c.Status == StatusSending {
			c.Status = StatusPending
		}
	}
}

// Buttons derives the control-button state from the state machine flags
func (s *State) Buttons() events.Buttons {
	return events.Buttons{
		ShowStart:  !s.Sending,
		ShowPause:  s.Sending && !s.Paused,
		ShowResume: s.Paused,
		ShowCancel: s.Sending || s.Paused,
	}
}

func (s *State) firstUnsent() int {
	for i, c := range s.Contacts {
		if c.Status != StatusSent {
			return i
		}
	}
	return len(s.Contacts)
}

func (s *State) snapshot() *Snapshot {
	contacts := make([]*Contact, len(s.Contacts))
	for i, c := range s.Contacts {
		contacts[i] = c.Clone()
	}
	return &Snapshot{
		Contacts:    contacts,
		Cursor:      s.Cursor,
		Template:    s.Template,
		IntervalMin: s.IntervalMin,
		IntervalMax: s.IntervalMax,
	}
}

func (s *State) cloneContacts() []*Contact {
	contacts := make([]*Contact, len(s.Contacts))
	for i, c := range s.Contacts {
		contacts[i] = c.Clone()
	}
	return contacts
}
