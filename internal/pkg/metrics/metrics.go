// internal/pkg/metrics/metrics.go
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Upstream marketplace API
	UpstreamDuration *prometheus.HistogramVec

	// Ledger cache
	LedgerReads *prometheus.CounterVec

	// Business metrics
	WorkflowTransitions *prometheus.CounterVec
	PurchaseOutcomes    *prometheus.CounterVec
	PendingRedirects    prometheus.Gauge
	WebsocketClients    prometheus.Gauge
}

// New creates a Metrics instance on its own registry so tests can build many.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),

		UpstreamDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "marketplace_request_duration_seconds",
				Help:    "Latency of calls to the marketplace API",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"operation", "outcome"},
		),

		LedgerReads: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_reads_total",
				Help: "Ledger snapshot reads by result",
			},
			[]string{"ledger", "result"}, // hit, miss, error
		),

		WorkflowTransitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "promotion_workflow_transitions_total",
				Help: "Promotion workflow transitions by target state",
			},
			[]string{"state"},
		),
		PurchaseOutcomes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "promotion_purchase_outcomes_total",
				Help: "Submitted promotion purchases by channel and outcome",
			},
			[]string{"channel", "outcome"},
		),
		PendingRedirects: f.NewGauge(prometheus.GaugeOpts{
			Name: "promotion_pending_redirects",
			Help: "External gateway purchases still awaiting the boost",
		}),
		WebsocketClients: f.NewGauge(prometheus.GaugeOpts{
			Name: "websocket_clients_connected",
			Help: "Connected websocket clients",
		}),
	}
}

// Registry exposes the underlying registry (used by tests).
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware creates a gin middleware for Prometheus metrics
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath() // route pattern, e.g. /api/v1/promotions/:id
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
	}
}

// ObserveLedger implements ledger.Observer.
func (m *Metrics) ObserveLedger(name, result string) {
	m.LedgerReads.WithLabelValues(name, result).Inc()
}

// ObserveUpstream implements marketclient.Observer.
func (m *Metrics) ObserveUpstream(operation, outcome string, elapsed time.Duration) {
	m.UpstreamDuration.WithLabelValues(operation, outcome).Observe(elapsed.Seconds())
}

// RecordTransition counts a workflow entering state.
func (m *Metrics) RecordTransition(state string) {
	m.WorkflowTransitions.WithLabelValues(state).Inc()
}

// RecordPurchase counts a submission outcome per channel kind.
func (m *Metrics) RecordPurchase(channel, outcome string) {
	m.PurchaseOutcomes.WithLabelValues(channel, outcome).Inc()
}

func (m *Metrics) SetPendingRedirects(n int) {
	m.PendingRedirects.Set(float64(n))
}

func (m *Metrics) SetWebsocketClients(n int) {
	m.WebsocketClients.Set(float64(n))
}
