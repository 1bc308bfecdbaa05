// Package metric provides the Prometheus registry and the HTTP endpoint of the
// service.
//
// Packages that export metrics take a *MetricsRegistry, create their collectors
// under the "autoprocess" namespace and register them with a service name:
//
//	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
//	    Namespace: metric.Namespace,
//	    Subsystem: "engine",
//	    Name:      "runs_total",
//	}, []string{"kind", "status"})
//	if err := registry.RegisterCounterVec("engine", "runs_total", runs); err != nil {
//	    return nil, err
//	}
//
// A nil registry means metrics are disabled; packages keep nil-safe recording
// methods so that tests can run without one.
//
// Server exposes the registry on /metrics and a health handler on /healthz.
package metric
