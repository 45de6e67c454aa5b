package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
type Metrics struct {
	// Solana RPC Metrics
	solanaRPCCallsTotal    *prometheus.CounterVec
	solanaRPCCallDuration  *prometheus.HistogramVec
	solanaRPCRateLimitHits *prometheus.CounterVec
	solanaRPCRetries       *prometheus.CounterVec

	// Intent Metrics
	intentsTotal        *prometheus.CounterVec
	intentDuration      *prometheus.HistogramVec
	leaseRenewalsTotal  *prometheus.CounterVec
	sendAttemptsTotal   *prometheus.CounterVec
	intentsInFlight     *prometheus.GaugeVec

	// Snapshot Metrics
	snapshotRefreshesTotal  *prometheus.CounterVec
	snapshotRefreshDuration *prometheus.HistogramVec
	snapshotPartialTotal    *prometheus.CounterVec

	// HTTP Metrics
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsTotal    *prometheus.CounterVec
	sseActiveConnections *prometheus.GaugeVec
	sseEventsSent        *prometheus.CounterVec

	// NATS Metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		// Solana RPC Metrics
		solanaRPCCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_calls_total",
				Help: "Total number of Solana RPC calls by method and status",
			},
			[]string{"method", "status", "endpoint"},
		),
		solanaRPCCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_rpc_call_duration_seconds",
				Help:    "Duration of Solana RPC calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method", "endpoint"},
		),
		solanaRPCRateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_rate_limit_hits_total",
				Help: "Total number of Solana RPC rate limit hits (429 errors)",
			},
			[]string{"endpoint"},
		),
		solanaRPCRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_retries_total",
				Help: "Total number of Solana RPC retry attempts",
			},
			[]string{"method", "reason"},
		),

		// Intent Metrics
		intentsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intents_total",
				Help: "Total number of transaction intents by kind and terminal outcome",
			},
			[]string{"kind", "outcome"},
		),
		intentDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "intent_duration_seconds",
				Help:    "Duration from intent composition to terminal state in seconds",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"kind"},
		),
		leaseRenewalsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blockhash_lease_renewals_total",
				Help: "Total number of blockhash lease renewals by reason",
			},
			[]string{"reason"},
		),
		sendAttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "send_attempts_total",
				Help: "Total number of transaction send attempts by status",
			},
			[]string{"status"},
		),
		intentsInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "intents_in_flight",
				Help: "Number of transaction intents not yet in a terminal state",
			},
			[]string{"kind"},
		),

		// Snapshot Metrics
		snapshotRefreshesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snapshot_refreshes_total",
				Help: "Total number of account snapshot refreshes by status",
			},
			[]string{"status"},
		),
		snapshotRefreshDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "snapshot_refresh_duration_seconds",
				Help:    "Duration of account snapshot refreshes in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"trigger"},
		),
		snapshotPartialTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snapshot_partial_refreshes_total",
				Help: "Total number of snapshot sub-reads that failed and kept prior values",
			},
			[]string{"part"},
		),

		// HTTP Metrics
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),
		sseActiveConnections: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sse_active_connections",
				Help: "Number of active SSE connections",
			},
			[]string{"owner"},
		),
		sseEventsSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sse_events_sent_total",
				Help: "Total number of SSE events sent",
			},
			[]string{"owner", "event_type"},
		),

		// NATS Metrics
		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"subject"},
		),
	}
}

// Solana RPC metric helpers

// RecordRPCCall records a Solana RPC call with duration.
func (m *Metrics) RecordRPCCall(method, status, endpoint string, duration float64) {
	m.solanaRPCCallsTotal.WithLabelValues(method, status, endpoint).Inc()
	m.solanaRPCCallDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordRateLimitHit records a rate limit hit (429 error).
func (m *Metrics) RecordRateLimitHit(endpoint string) {
	m.solanaRPCRateLimitHits.WithLabelValues(endpoint).Inc()
}

// RecordRPCRetry records a retry attempt.
func (m *Metrics) RecordRPCRetry(method, reason string) {
	m.solanaRPCRetries.WithLabelValues(method, reason).Inc()
}

// Intent metric helpers

// RecordIntentTerminal records an intent reaching a terminal state.
func (m *Metrics) RecordIntentTerminal(kind, outcome string, duration float64) {
	m.intentsTotal.WithLabelValues(kind, outcome).Inc()
	m.intentDuration.WithLabelValues(kind).Observe(duration)
}

// RecordLeaseRenewal records a blockhash lease renewal.
func (m *Metrics) RecordLeaseRenewal(reason string) {
	m.leaseRenewalsTotal.WithLabelValues(reason).Inc()
}

// RecordSendAttempt records a transaction send attempt.
func (m *Metrics) RecordSendAttempt(status string) {
	m.sendAttemptsTotal.WithLabelValues(status).Inc()
}

// RecordIntentInFlightChange records a change in the number of live intents.
func (m *Metrics) RecordIntentInFlightChange(kind string, delta float64) {
	m.intentsInFlight.WithLabelValues(kind).Add(delta)
}

// Snapshot metric helpers

// RecordSnapshotRefresh records a snapshot refresh with duration.
func (m *Metrics) RecordSnapshotRefresh(status, trigger string, duration float64) {
	m.snapshotRefreshesTotal.WithLabelValues(status).Inc()
	m.snapshotRefreshDuration.WithLabelValues(trigger).Observe(duration)
}

// RecordSnapshotPartial records a sub-read failure that degraded the snapshot.
func (m *Metrics) RecordSnapshotPartial(part string) {
	m.snapshotPartialTotal.WithLabelValues(part).Inc()
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// RecordSSEConnectionChange records a change in SSE connection count.
func (m *Metrics) RecordSSEConnectionChange(owner string, delta float64) {
	m.sseActiveConnections.WithLabelValues(owner).Add(delta)
}

// RecordSSEEventSent records an SSE event being sent.
func (m *Metrics) RecordSSEEventSent(owner, eventType string) {
	m.sseEventsSent.WithLabelValues(owner, eventType).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

// Helper functions

func statusCodeToString(code int) string {
	// Group status codes by class
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}
