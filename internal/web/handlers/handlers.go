package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/damaro/courier/internal/config"
	"github.com/damaro/courier/internal/ratelimit"
	"github.com/damaro/courier/internal/tenant"
	"github.com/damaro/courier/internal/web/db"
)

// Handlers holds dependencies for all HTTP handlers
type Handlers struct {
	cfg     *config.Config
	db      *db.DB
	logger  *slog.Logger
	tenants *tenant.Registry
	limiter *ratelimit.Limiter
}

// New creates the handler set
func New(cfg *config.Config, database *db.DB, logger *slog.Logger, tenants *tenant.Registry, limiter *ratelimit.Limiter) *Handlers {
	return &Handlers{
		cfg:     cfg,
		db:      database,
		logger:  logger.With("component", "web"),
		tenants: tenants,
		limiter: limiter,
	}
}

// Health is a liveness check
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, msg string) {
	h.respondJSON(w, status, map[string]string{"error": msg})
}
