// Package tenant anchors the lifecycle of everything owned per tenant:
// campaign state, dispatch loop, event hub, and channel-client handle.
package tenant

import (
	"log/slog"
	"sync"

	"github.com/damaro/courier/internal/campaign"
	"github.com/damaro/courier/internal/channel"
	"github.com/damaro/courier/internal/config"
	"github.com/damaro/courier/internal/events"
	"github.com/damaro/courier/internal/metrics"
	"github.com/damaro/courier/internal/ratelimit"
	"github.com/damaro/courier/internal/store"
)

// Tenant is one registry entry. Entries live for the process lifetime;
// a tenant reconnecting reattaches to the same entry.
type Tenant struct {
	ID     string
	Hub    *events.Hub
	Runner *campaign.Runner
	Client channel.Client
}

// ClientFactory builds a channel client bound to one tenant. The hub
// receives the client's lifecycle events.
type ClientFactory func(tenantID string, hub *events.Hub) channel.Client

// Registry is the process-wide map of tenants. It is the only place new
// tenants are admitted into memory.
type Registry struct {
	cfg       *config.Config
	limiter   *ratelimit.Limiter
	store     *store.Store
	metrics   *metrics.Metrics
	logger    *slog.Logger
	newClient ClientFactory

	mu      sync.Mutex
	entries map[string]*Tenant
}

// NewRegistry creates an empty registry. newClient may be nil, in which
// case a gateway client is built from the configuration.
func NewRegistry(cfg *config.Config, limiter *ratelimit.Limiter, st *store.Store, m *metrics.Metrics, logger *slog.Logger, newClient ClientFactory) *Registry {
	r := &Registry{
		cfg:       cfg,
		limiter:   limiter,
		store:     st,
		metrics:   m,
		logger:    logger,
		newClient: newClient,
		entries:   make(map[string]*Tenant),
	}
	if r.newClient == nil {
		r.newClient = r.gatewayClient
	}
	return r
}

// GetOrCreate returns the tenant entry for id, lazily provisioning
// campaign state, runner, hub and channel client on first access.
// Idempotent: subsequent calls return the same entry.
func (r *Registry) GetOrCreate(id string) *Tenant {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.entries[id]; ok {
		return t
	}

	hub := events.NewHub()
	client := r.newClient(id, hub)

	state := campaign.NewState(r.cfg.Campaign.DefaultIntervalMin, r.cfg.Campaign.DefaultIntervalMax)
	if r.store != nil {
		snap, err := r.store.LoadCampaign(id)
		if err != nil {
			r.logger.Error("failed to load campaign snapshot", "tenant", id, "error", err)
		} else if snap != nil {
			state.Restore(snap)
		}
	}

	runner := campaign.NewRunner(id, state, client, r.limiter, hub, r.store, r.metrics, r.logger, campaign.Options{
		LimitBackoff:  r.cfg.Campaign.LimitBackoff,
		MinInterval:   r.cfg.Campaign.MinInterval,
		DefaultMin:    r.cfg.Campaign.DefaultIntervalMin,
		DefaultMax:    r.cfg.Campaign.DefaultIntervalMax,
		AddressField:  r.cfg.Campaign.AddressField,
		CountryCode:   r.cfg.Campaign.CountryCode,
		AddressSuffix: r.cfg.Campaign.AddressSuffix,
	})

	t := &Tenant{ID: id, Hub: hub, Runner: runner, Client: client}
	r.entries[id] = t
	r.logger.Info("tenant admitted", "tenant", id)
	return t
}

// Restore re-admits every tenant with a persisted campaign snapshot so
// progress is visible immediately after a restart. Campaigns come back
// idle; sending resumes only on an explicit control event.
func (r *Registry) Restore() error {
	if r.store == nil {
		return nil
	}
	tenants, err := r.store.Tenants()
	if err != nil {
		return err
	}
	for _, id := range tenants {
		r.GetOrCreate(id)
	}
	return nil
}

// Close tears down all runners and channel clients
func (r *Registry) Close() {
	r.mu.Lock()
	entries := make([]*Tenant, 0, len(r.entries))
	for _, t := range r.entries {
		entries = append(entries, t)
	}
	r.mu.Unlock()

	for _, t := range entries {
		t.Runner.Close()
		if closer, ok := t.Client.(interface{ Close() }); ok {
			closer.Close()
		}
	}
}

// gatewayClient is the default ClientFactory: an HTTP gateway session
// per tenant, with lifecycle changes bridged onto the tenant's hub.
func (r *Registry) gatewayClient(id string, hub *events.Hub) channel.Client {
	g := channel.NewGateway(r.cfg.Gateway.BaseURL, r.cfg.Gateway.APIKey, id, r.logger, func(s channel.Status) {
		hub.Publish(events.NewChannelStatus(string(s.State), s.Pairing))
	})
	g.StartPolling(r.cfg.Gateway.PollInterval)
	return g
}
