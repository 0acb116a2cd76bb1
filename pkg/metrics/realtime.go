package metrics

import "github.com/prometheus/client_golang/prometheus"

// RealtimeMetrics tracks websocket hub activity.
type RealtimeMetrics struct {
	connections prometheus.Gauge
	delivered   *prometheus.CounterVec
	dropped     *prometheus.CounterVec
	authErrors  prometheus.Counter
}

// NewRealtimeMetrics registers the realtime hub metrics on the provided registerer.
func NewRealtimeMetrics(reg prometheus.Registerer) *RealtimeMetrics {
	if reg == nil {
		return &RealtimeMetrics{}
	}
	connections := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_connections",
		Help: "Currently connected realtime sessions.",
	})
	delivered := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_events_delivered",
		Help: "Realtime events delivered to sessions.",
	}, []string{"event"})
	dropped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_events_dropped",
		Help: "Realtime events dropped because a session buffer was full.",
	}, []string{"event"})
	authErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "realtime_auth_errors",
		Help: "Realtime sessions rejected during the auth handshake.",
	})
	reg.MustRegister(connections, delivered, dropped, authErrors)
	return &RealtimeMetrics{
		connections: connections,
		delivered:   delivered,
		dropped:     dropped,
		authErrors:  authErrors,
	}
}

// ConnOpened increments the live-connection gauge.
func (r *RealtimeMetrics) ConnOpened() {
	if r == nil || r.connections == nil {
		return
	}
	r.connections.Inc()
}

// ConnClosed decrements the live-connection gauge.
func (r *RealtimeMetrics) ConnClosed() {
	if r == nil || r.connections == nil {
		return
	}
	r.connections.Dec()
}

// IncDelivered counts a delivered event by kind.
func (r *RealtimeMetrics) IncDelivered(event string) {
	if r == nil || r.delivered == nil {
		return
	}
	r.delivered.WithLabelValues(normalizeLabel(event)).Inc()
}

// IncDropped counts an event dropped on a full session buffer.
func (r *RealtimeMetrics) IncDropped(event string) {
	if r == nil || r.dropped == nil {
		return
	}
	r.dropped.WithLabelValues(normalizeLabel(event)).Inc()
}

// IncAuthError counts a failed realtime handshake.
func (r *RealtimeMetrics) IncAuthError() {
	if r == nil || r.authErrors == nil {
		return
	}
	r.authErrors.Inc()
}
