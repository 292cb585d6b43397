package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for Courier. A nil *Metrics is
// valid and records nothing, so components can take metrics optionally.
type Metrics struct {
	MessagesSentTotal   *prometheus.CounterVec
	MessagesFailedTotal *prometheus.CounterVec
	RateLimitedTotal    *prometheus.CounterVec
	CampaignsActive     prometheus.Gauge

	HTTPRequestsTotal          *prometheus.CounterVec
	HTTPRequestDurationSeconds *prometheus.HistogramVec

	registry *prometheus.Registry
}

// New creates a Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		MessagesSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "courier_messages_sent_total",
				Help: "Total number of successfully delivered messages",
			},
			[]string{"tenant"},
		),
		MessagesFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "courier_messages_failed_total",
				Help: "Total number of failed delivery attempts",
			},
			[]string{"tenant"},
		),
		RateLimitedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "courier_rate_limited_total",
				Help: "Total number of loop iterations deferred by the hourly cap",
			},
			[]string{"tenant"},
		),
		CampaignsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "courier_campaigns_active",
				Help: "Number of campaign loops currently running",
			},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "courier_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "courier_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		registry: reg,
	}

	reg.MustRegister(
		m.MessagesSentTotal,
		m.MessagesFailedTotal,
		m.RateLimitedTotal,
		m.CampaignsActive,
		m.HTTPRequestsTotal,
		m.HTTPRequestDurationSeconds,
	)

	return m
}

// Handler returns the /metrics HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// MessageSent records a successful delivery
func (m *Metrics) MessageSent(tenant string) {
	if m == nil {
		return
	}
	m.MessagesSentTotal.WithLabelValues(tenant).Inc()
}

// MessageFailed records a failed delivery attempt
func (m *Metrics) MessageFailed(tenant string) {
	if m == nil {
		return
	}
	m.MessagesFailedTotal.WithLabelValues(tenant).Inc()
}

// RateLimited records a deferred loop iteration
func (m *Metrics) RateLimited(tenant string) {
	if m == nil {
		return
	}
	m.RateLimitedTotal.WithLabelValues(tenant).Inc()
}

// CampaignStarted marks a campaign loop as running
func (m *Metrics) CampaignStarted() {
	if m == nil {
		return
	}
	m.CampaignsActive.Inc()
}

// CampaignStopped marks a campaign loop as finished
func (m *Metrics) CampaignStopped() {
	if m == nil {
		return
	}
	m.CampaignsActive.Dec()
}
