package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/damaro/courier/internal/campaign"
	"github.com/damaro/courier/internal/channel"
	"github.com/damaro/courier/internal/contacts"
	"github.com/damaro/courier/internal/ratelimit"
	"github.com/damaro/courier/internal/tenant"
	"github.com/damaro/courier/internal/web/middleware"
)

const maxUploadBytes = 32 << 20 // 32MB

func (h *Handlers) currentTenant(r *http.Request) *tenant.Tenant {
	return h.tenants.GetOrCreate(middleware.TenantID(r))
}

// Upload replaces the tenant's contact list from an uploaded CSV file
func (h *Handlers) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, _, err := r.FormFile("file")
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "no file uploaded")
		return
	}
	defer file.Close()

	rows, err := contacts.Parse(file)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "failed to parse contact file")
		return
	}

	t := h.currentTenant(r)
	t.Runner.Replace(rows)

	view := t.Runner.View()
	h.respondJSON(w, http.StatusOK, map[string]any{
		"total":    view.Total,
		"contacts": view.Contacts,
	})
}

// UploadMedia stores the shared attachment for the current batch
func (h *Handlers) UploadMedia(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("media")
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "no media uploaded")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "failed to read media")
		return
	}

	mime := header.Header.Get("Content-Type")
	if mime == "" {
		mime = "application/octet-stream"
	}

	t := h.currentTenant(r)
	t.Runner.Attach(&campaign.Attachment{
		Data:     data,
		Mime:     mime,
		Filename: header.Filename,
	})

	h.respondJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"filename": header.Filename,
	})
}

type configRequest struct {
	Message     string `json:"message"`
	IntervalMin int    `json:"intervalMin"`
	IntervalMax int    `json:"intervalMax"`
}

// Configure updates the message template and pacing bounds
func (h *Handlers) Configure(w http.ResponseWriter, r *http.Request) {
	var req configRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	t := h.currentTenant(r)
	t.Runner.Configure(req.Message, req.IntervalMin, req.IntervalMax)

	view := t.Runner.View()
	h.respondJSON(w, http.StatusOK, map[string]any{
		"intervalMin": view.IntervalMin,
		"intervalMax": view.IntervalMax,
	})
}

// Start begins the tenant's sending loop
func (h *Handlers) Start(w http.ResponseWriter, r *http.Request) {
	t := h.currentTenant(r)
	t.Runner.Start()
	h.respondJSON(w, http.StatusOK, t.Runner.View().Buttons)
}

// Pause holds the tenant's sending loop
func (h *Handlers) Pause(w http.ResponseWriter, r *http.Request) {
	t := h.currentTenant(r)
	t.Runner.Pause()
	h.respondJSON(w, http.StatusOK, t.Runner.View().Buttons)
}

// Resume continues the tenant's sending loop from the current cursor
func (h *Handlers) Resume(w http.ResponseWriter, r *http.Request) {
	t := h.currentTenant(r)
	t.Runner.Resume()
	h.respondJSON(w, http.StatusOK, t.Runner.View().Buttons)
}

// Cancel stops the tenant's sending loop, retaining the cursor
func (h *Handlers) Cancel(w http.ResponseWriter, r *http.Request) {
	t := h.currentTenant(r)
	t.Runner.Cancel()
	h.respondJSON(w, http.StatusOK, t.Runner.View().Buttons)
}

type stateResponse struct {
	Campaign campaign.View   `json:"campaign"`
	Limiter  ratelimit.Stats `json:"limiter"`
	Channel  channel.Status  `json:"channel"`
}

// State returns a full snapshot of the tenant's campaign, limiter
// window and channel lifecycle
func (h *Handlers) State(w http.ResponseWriter, r *http.Request) {
	t := h.currentTenant(r)
	h.respondJSON(w, http.StatusOK, stateResponse{
		Campaign: t.Runner.View(),
		Limiter:  h.limiter.Stats(t.ID),
		Channel:  t.Client.Status(),
	})
}
