package websocket

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/barstreams/metric"
)

// wsMetrics holds Prometheus metrics for the WebSocket input. A nil
// *wsMetrics records nothing.
type wsMetrics struct {
	component         string
	envelopes         *prometheus.CounterVec
	batchesPublished  *prometheus.CounterVec
	rejections        *prometheus.CounterVec
	errorsTotal       *prometheus.CounterVec
	connectionsActive *prometheus.GaugeVec
	connectionsTotal  *prometheus.CounterVec
}

func newWSMetrics(registry *metric.MetricsRegistry, componentName string) (*wsMetrics, error) {
	if registry == nil {
		return nil, nil
	}

	m := &wsMetrics{
		component: componentName,
		envelopes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "barstreams",
			Subsystem: "websocket_input",
			Name:      "envelopes_received_total",
			Help:      "Envelopes received by type",
		}, []string{"component", "type"}),

		batchesPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "barstreams",
			Subsystem: "websocket_input",
			Name:      "batches_published_total",
			Help:      "Batches published to NATS",
		}, []string{"component"}),

		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "barstreams",
			Subsystem: "websocket_input",
			Name:      "connections_rejected_total",
			Help:      "Connections refused before upgrade",
		}, []string{"component", "reason"}),

		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "barstreams",
			Subsystem: "websocket_input",
			Name:      "errors_total",
			Help:      "Total errors by type",
		}, []string{"component", "type"}),

		connectionsActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "barstreams",
			Subsystem: "websocket_input",
			Name:      "connections_active",
			Help:      "Number of active WebSocket connections",
		}, []string{"component"}),

		connectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "barstreams",
			Subsystem: "websocket_input",
			Name:      "connections_total",
			Help:      "Total number of accepted WebSocket connections",
		}, []string{"component"}),
	}

	service := "websocket_input_" + componentName
	for name, c := range map[string]*prometheus.CounterVec{
		"envelopes_received":   m.envelopes,
		"batches_published":    m.batchesPublished,
		"connections_rejected": m.rejections,
		"errors_total":         m.errorsTotal,
		"connections_total":    m.connectionsTotal,
	} {
		if err := registry.RegisterCounterVec(service, name, c); err != nil {
			return nil, err
		}
	}
	if err := registry.RegisterGaugeVec(service, "connections_active", m.connectionsActive); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *wsMetrics) envelope(kind string) {
	if m == nil {
		return
	}
	m.envelopes.WithLabelValues(m.component, kind).Inc()
}

func (m *wsMetrics) published() {
	if m == nil {
		return
	}
	m.batchesPublished.WithLabelValues(m.component).Inc()
}

func (m *wsMetrics) rejected(reason string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(m.component, reason).Inc()
}

func (m *wsMetrics) failed(kind string) {
	if m == nil {
		return
	}
	m.errorsTotal.WithLabelValues(m.component, kind).Inc()
}

func (m *wsMetrics) connected() {
	if m == nil {
		return
	}
	m.connectionsActive.WithLabelValues(m.component).Inc()
	m.connectionsTotal.WithLabelValues(m.component).Inc()
}

func (m *wsMetrics) disconnected() {
	if m == nil {
		return
	}
	m.connectionsActive.WithLabelValues(m.component).Dec()
}
