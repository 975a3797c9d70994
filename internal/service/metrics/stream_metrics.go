package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// StreamMetrics tracks live simulation streams per transport (sse, ws).
type StreamMetrics struct {
	active *prometheus.GaugeVec
	events *prometheus.CounterVec
	closed *prometheus.CounterVec
}

func NewStreamMetrics(reg prometheus.Registerer) *StreamMetrics {
	f := promauto.With(reg)
	return &StreamMetrics{
		active: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "lineguard",
			Subsystem: "simulation",
			Name:      "active_streams",
			Help:      "Simulation streams currently open",
		}, []string{"transport"}),
		events: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lineguard",
			Subsystem: "simulation",
			Name:      "events_sent_total",
			Help:      "Simulation events written to clients",
		}, []string{"transport"}),
		closed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lineguard",
			Subsystem: "simulation",
			Name:      "streams_closed_total",
			Help:      "Simulation streams ended, by reason",
		}, []string{"transport", "reason"}),
	}
}

// Open marks a stream as started and returns the func that ends it.
func (m *StreamMetrics) Open(transport string) func(reason string) {
	if m == nil {
		return func(string) {}
	}
	m.active.WithLabelValues(transport).Inc()
	return func(reason string) {
		m.active.WithLabelValues(transport).Dec()
		m.closed.WithLabelValues(transport, reason).Inc()
	}
}

func (m *StreamMetrics) Sent(transport string) {
	if m != nil {
		m.events.WithLabelValues(transport).Inc()
	}
}
