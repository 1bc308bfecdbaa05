package engine

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/autoprocess/metric"
)

// engineMetrics holds Prometheus metrics for process executions.
type engineMetrics struct {
	runs        *prometheus.CounterVec   // by kind and status
	runDuration *prometheus.HistogramVec // by kind
	records     *prometheus.CounterVec   // by kind and stage (in, out, flagged, appended)
	misaligned  *prometheus.CounterVec   // by process
}

// newEngineMetrics creates and registers engine metrics with the provided registry.
func newEngineMetrics(registry *metric.MetricsRegistry) (*engineMetrics, error) {
	if registry == nil {
		return nil, nil
	}

	m := &engineMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "process",
			Name:      "runs_total",
			Help:      "Total number of process executions",
		}, []string{"kind", "status"}),

		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metric.Namespace,
			Subsystem: "process",
			Name:      "run_duration_seconds",
			Help:      "Process execution duration in seconds",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		}, []string{"kind"}),

		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "process",
			Name:      "records_total",
			Help:      "Records handled by process executions",
		}, []string{"kind", "stage"}),

		misaligned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "process",
			Name:      "misaligned_records_total",
			Help:      "Source records that did not fit the source time step of an aggregation",
		}, []string{"process"}),
	}

	if err := registry.RegisterCounterVec("engine", "runs", m.runs); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogramVec("engine", "run_duration", m.runDuration); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("engine", "records", m.records); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("engine", "misaligned_records", m.misaligned); err != nil {
		return nil, err
	}
	return m, nil
}

// recordRun records one execution.
func (m *engineMetrics) recordRun(res Result) {
	if m == nil {
		return
	}
	kind := string(res.Kind)

	m.runs.WithLabelValues(kind, res.Status).Inc()
	m.runDuration.WithLabelValues(kind).Observe(res.Duration.Seconds())

	m.records.WithLabelValues(kind, "in").Add(float64(res.Report.In))
	m.records.WithLabelValues(kind, "out").Add(float64(res.Report.Out))
	m.records.WithLabelValues(kind, "flagged").Add(float64(res.Report.Flagged()))
	m.records.WithLabelValues(kind, "appended").Add(float64(res.Appended))

	if n := res.Report.Aggregate.Regularize.Misaligned; n > 0 {
		m.misaligned.WithLabelValues(res.ProcessID).Add(float64(n))
	}
}
