package history

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/barstreams/bars"
	"github.com/c360/barstreams/metric"
)

// historyMetrics holds Prometheus metrics for the history processor.
type historyMetrics struct {
	records   *prometheus.CounterVec   // By component and counter name
	batches   *prometheus.CounterVec   // By component and disposition
	artifacts *prometheus.CounterVec   // By component, format and status
	duration  *prometheus.HistogramVec // By component
	inFlight  *prometheus.GaugeVec     // By component
}

func newHistoryMetrics(registry *metric.MetricsRegistry) (*historyMetrics, error) {
	if registry == nil {
		return nil, nil // Metrics disabled
	}

	m := &historyMetrics{
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "barstreams",
			Subsystem: "history",
			Name:      "records_total",
			Help:      "Per-batch counters summed across batches",
		}, []string{"component", "counter"}),

		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "barstreams",
			Subsystem: "history",
			Name:      "batches_total",
			Help:      "Batches processed by terminal disposition",
		}, []string{"component", "disposition"}), // discarded, failed, skipped, error

		artifacts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "barstreams",
			Subsystem: "history",
			Name:      "artifacts_total",
			Help:      "Artifacts by format and delivery status",
		}, []string{"component", "format", "status"}), // published, encode_error, publish_error

		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "barstreams",
			Subsystem: "history",
			Name:      "batch_duration_seconds",
			Help:      "Time to decode and emit one batch",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}, []string{"component"}),

		inFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "barstreams",
			Subsystem: "history",
			Name:      "batches_in_flight",
			Help:      "Batches currently being processed",
		}, []string{"component"}),
	}

	if err := registry.RegisterCounterVec("history", "records_total", m.records); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("history", "batches_total", m.batches); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("history", "artifacts_total", m.artifacts); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogramVec("history", "batch_duration", m.duration); err != nil {
		return nil, err
	}
	if err := registry.RegisterGaugeVec("history", "batches_in_flight", m.inFlight); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *historyMetrics) adjust(component, counter string, delta int) {
	if m == nil || delta <= 0 {
		return
	}
	m.records.WithLabelValues(component, counter).Add(float64(delta))
}

func (m *historyMetrics) recordBatch(component string, result bars.Result) {
	if m == nil {
		return
	}

	disposition := result.Disposition.String()
	if result.Skipped {
		disposition = "skipped"
	}
	m.batches.WithLabelValues(component, disposition).Inc()
	m.duration.WithLabelValues(component).Observe(result.Duration.Seconds())

	if result.EncodeFailures > 0 {
		m.artifacts.WithLabelValues(component, "any", "encode_error").Add(float64(result.EncodeFailures))
	}
}

func (m *historyMetrics) recordBatchError(component string) {
	if m == nil {
		return
	}
	m.batches.WithLabelValues(component, "error").Inc()
}

func (m *historyMetrics) recordArtifact(component string, f bars.Format, err error) {
	if m == nil {
		return
	}
	status := "published"
	if err != nil {
		status = "publish_error"
	}
	m.artifacts.WithLabelValues(component, f.String(), status).Inc()
}

func (m *historyMetrics) track(component string) func() {
	if m == nil {
		return func() {}
	}
	g := m.inFlight.WithLabelValues(component)
	g.Inc()
	return g.Dec
}
