package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/damaro/courier/internal/events"
)

// Events streams the tenant's observer events over SSE. On connect the
// client receives the current contacts, buttons and channel status so it
// can render without waiting for the next transition.
func (h *Handlers) Events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	t := h.currentTenant(r)

	ch, unsub := t.Hub.Subscribe(64)
	defer unsub()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	view := t.Runner.View()
	status := t.Client.Status()
	initial := []events.Event{
		events.NewContacts(view.Contacts),
		events.NewButtons(view.Buttons),
		events.NewChannelStatus(string(status.State), status.Pairing),
	}
	for _, ev := range initial {
		if err := writeSSE(w, ev); err != nil {
			return
		}
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := writeSSE(w, ev); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, ev events.Event) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
	return err
}
