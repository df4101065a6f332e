// Package metrics holds the prometheus collectors exported by the relay.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OpenConnections = promauto.NewGauge(prometheus.GaugeOpts{Name: "streamhost_open_connections", Help: "Client connections currently open"})
	PendingSessions = promauto.NewGauge(prometheus.GaugeOpts{Name: "streamhost_pending_sessions", Help: "Sessions waiting for a peer or activation"})
	ActiveSessions  = promauto.NewGauge(prometheus.GaugeOpts{Name: "streamhost_active_sessions", Help: "Sessions currently relaying"})
	Activations     = promauto.NewCounterVec(prometheus.CounterOpts{Name: "streamhost_activations_total", Help: "Activation requests by result"}, []string{"result"})
	HandshakeErrors = promauto.NewCounterVec(prometheus.CounterOpts{Name: "streamhost_handshake_errors_total", Help: "Failed client handshakes by reason"}, []string{"reason"})
	Probes          = promauto.NewCounter(prometheus.CounterOpts{Name: "streamhost_probes_total", Help: "Capability probe connects answered"})
	PendingTimeouts = promauto.NewCounter(prometheus.CounterOpts{Name: "streamhost_pending_timeouts_total", Help: "Sessions closed because they were not activated in time"})
	RelayedBytes    = promauto.NewCounter(prometheus.CounterOpts{Name: "streamhost_relayed_bytes_total", Help: "Bytes forwarded between activated peers"})
	SessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "streamhost_session_duration_seconds", Help: "Lifetime of activated sessions", Buckets: prometheus.ExponentialBuckets(0.01, 2, 16)})
)
