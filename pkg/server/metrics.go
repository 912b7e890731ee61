package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics aggregates the subsystem's prometheus instruments. A nil
// *Metrics is valid and records nothing, which keeps tests and embedders
// without a registry quiet.
type Metrics struct {
	activeConnections prometheus.Gauge
	connectsTotal     prometheus.Counter
	disconnectsTotal  prometheus.Counter
	authFailures      prometheus.Counter
	signalsEmitted    *prometheus.CounterVec
	emitFailures      *prometheus.CounterVec
	signalsDelivered  prometheus.Counter
	queueDrops        prometheus.Counter
	inboundDropped    prometheus.Counter
	wsErrors          *prometheus.CounterVec
}

// NewMetrics registers the subsystem's instruments on reg under the given
// namespace.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		activeConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_connections",
			Help:      "Number of live WebSocket connections on this process",
		}),
		connectsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Total connections accepted",
		}),
		disconnectsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "disconnects_total",
			Help:      "Total connections closed",
		}),
		authFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_failures_total",
			Help:      "Handshakes rejected by the authenticator",
		}),
		signalsEmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_emitted_total",
			Help:      "Signal emissions accepted by the event bus",
		}, []string{"channel"}),
		emitFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emit_failures_total",
			Help:      "Signal emissions rejected before or at publish",
		}, []string{"reason"}),
		signalsDelivered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_delivered_total",
			Help:      "Envelopes enqueued to local connections",
		}),
		queueDrops: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_queue_drops_total",
			Help:      "Connections closed because their send queue filled",
		}),
		inboundDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_dropped_total",
			Help:      "Inbound messages dropped by per-connection rate limiting",
		}),
		wsErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "websocket_errors_total",
			Help:      "WebSocket errors by type",
		}, []string{"type"}),
	}
}

// RecordConnect records an accepted connection.
func (m *Metrics) RecordConnect() {
	if m == nil {
		return
	}
	m.activeConnections.Inc()
	m.connectsTotal.Inc()
}

// RecordDisconnect records a closed connection.
func (m *Metrics) RecordDisconnect() {
	if m == nil {
		return
	}
	m.activeConnections.Dec()
	m.disconnectsTotal.Inc()
}

// RecordAuthFailure records a rejected handshake.
func (m *Metrics) RecordAuthFailure() {
	if m == nil {
		return
	}
	m.authFailures.Inc()
}

// RecordEmit records an emission accepted by the bus.
func (m *Metrics) RecordEmit(channel string) {
	if m == nil {
		return
	}
	m.signalsEmitted.WithLabelValues(channel).Inc()
}

// RecordEmitFailure records an emission rejected at validation or publish.
func (m *Metrics) RecordEmitFailure(reason string) {
	if m == nil {
		return
	}
	m.emitFailures.WithLabelValues(reason).Inc()
}

// RecordDelivered records envelopes handed to local connections.
func (m *Metrics) RecordDelivered(n int) {
	if m == nil {
		return
	}
	m.signalsDelivered.Add(float64(n))
}

// RecordQueueDrop records a connection closed for a full send queue.
func (m *Metrics) RecordQueueDrop() {
	if m == nil {
		return
	}
	m.queueDrops.Inc()
}

// RecordInboundDropped records an inbound message dropped by rate limiting.
func (m *Metrics) RecordInboundDropped() {
	if m == nil {
		return
	}
	m.inboundDropped.Inc()
}

// RecordWSError records a WebSocket error by category.
func (m *Metrics) RecordWSError(errorType string) {
	if m == nil {
		return
	}
	m.wsErrors.WithLabelValues(errorType).Inc()
}
