package objectstore

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/barstreams/metric"
)

// storeMetrics holds Prometheus metrics for ObjectStore operations.
type storeMetrics struct {
	operations   *prometheus.CounterVec   // By operation and status
	latency      *prometheus.HistogramVec // By operation
	bytesWritten prometheus.Counter
}

// newStoreMetrics creates and registers ObjectStore metrics for one bucket.
func newStoreMetrics(registry *metric.MetricsRegistry, bucket string) (*storeMetrics, error) {
	if registry == nil {
		return nil, nil // Metrics disabled
	}

	m := &storeMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "barstreams",
			Subsystem:   "objectstore",
			Name:        "operations_total",
			Help:        "Object store operations by outcome",
			ConstLabels: prometheus.Labels{"bucket": bucket},
		}, []string{"operation", "status"}), // operation: put, get, info, list, delete

		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   "barstreams",
			Subsystem:   "objectstore",
			Name:        "operation_duration_seconds",
			Help:        "Object store operation duration in seconds",
			ConstLabels: prometheus.Labels{"bucket": bucket},
			Buckets:     []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.0},
		}, []string{"operation"}),

		bytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "barstreams",
			Subsystem:   "objectstore",
			Name:        "bytes_written_total",
			Help:        "Bytes stored",
			ConstLabels: prometheus.Labels{"bucket": bucket},
		}),
	}

	prefix := "objectstore_" + bucket
	if err := registry.RegisterCounterVec(prefix, "operations", m.operations); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogramVec(prefix, "latency", m.latency); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(prefix, "bytes_written", m.bytesWritten); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *storeMetrics) observe(operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.operations.WithLabelValues(operation, status).Inc()
	m.latency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (m *storeMetrics) wrote(n int) {
	if m == nil {
		return
	}
	m.bytesWritten.Add(float64(n))
}
