package scheduler

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/autoprocess/metric"
)

type schedulerMetrics struct {
	triggers    *prometheus.CounterVec // by reason and result (queued, coalesced, dropped)
	retries     prometheus.Counter
	lastSuccess *prometheus.GaugeVec // by process
	failing     *prometheus.GaugeVec // by process, 1 while the last run failed
}

func newSchedulerMetrics(registry *metric.MetricsRegistry) (*schedulerMetrics, error) {
	if registry == nil {
		return nil, nil
	}

	m := &schedulerMetrics{
		triggers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "scheduler",
			Name:      "triggers_total",
			Help:      "Process triggers by reason and result",
		}, []string{"reason", "result"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "scheduler",
			Name:      "retries_total",
			Help:      "Process runs retried after a transient failure",
		}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metric.Namespace,
			Subsystem: "scheduler",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run of a process",
		}, []string{"process"}),
		failing: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metric.Namespace,
			Subsystem: "scheduler",
			Name:      "process_failing",
			Help:      "1 when the last run of a process failed",
		}, []string{"process"}),
	}

	if err := registry.RegisterCounterVec("scheduler", "triggers", m.triggers); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("scheduler", "retries", m.retries); err != nil {
		return nil, err
	}
	if err := registry.RegisterGaugeVec("scheduler", "last_success", m.lastSuccess); err != nil {
		return nil, err
	}
	if err := registry.RegisterGaugeVec("scheduler", "process_failing", m.failing); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *schedulerMetrics) recordTrigger(reason, result string) {
	if m == nil {
		return
	}
	m.triggers.WithLabelValues(reason, result).Inc()
}

func (m *schedulerMetrics) recordRetry() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

func (m *schedulerMetrics) recordOutcome(process string, ok bool, at time.Time) {
	if m == nil {
		return
	}
	if ok {
		m.lastSuccess.WithLabelValues(process).Set(float64(at.Unix()))
		m.failing.WithLabelValues(process).Set(0)
		return
	}
	m.failing.WithLabelValues(process).Set(1)
}
