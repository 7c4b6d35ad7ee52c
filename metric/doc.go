// Package metric provides the Prometheus registry and HTTP endpoint shared by
// all barstreams components.
//
// A MetricsRegistry wraps a private prometheus.Registry, preloaded with the
// platform metrics in Metrics and the Go runtime collectors. Components
// register their own collectors under a service name; registering the same
// service/metric pair twice returns an invalid-class error.
//
//	registry := metric.NewMetricsRegistry()
//	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "x_total"})
//	if err := registry.RegisterCounter("history", "x_total", counter); err != nil {
//		return err
//	}
//
// Server exposes the registry at /metrics and a JSON readiness document at
// /health. The health callback returns the unhealthy parts, if any.
//
//	srv := metric.NewServer(":9090", "/metrics", registry, checkHealth)
//	if err := srv.Start(); err != nil {
//		return err
//	}
//	defer srv.Stop(5 * time.Second)
package metric
