package natsclient

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/autoprocess/metric"
)

// clientMetrics reports connection state and traffic. A nil *clientMetrics records
// nothing.
type clientMetrics struct {
	core     *metric.Metrics
	messages *prometheus.CounterVec
	kvOps    *prometheus.CounterVec
	kvErrors *prometheus.CounterVec
}

func newClientMetrics(registry *metric.MetricsRegistry) (*clientMetrics, error) {
	if registry == nil {
		return nil, nil
	}

	m := &clientMetrics{
		core: registry.CoreMetrics(),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "nats",
			Name:      "messages_total",
			Help:      "Core NATS messages by direction",
		}, []string{"direction"}),
		kvOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "kv",
			Name:      "operations_total",
			Help:      "KV operations by bucket and operation",
		}, []string{"bucket", "operation"}),
		kvErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "kv",
			Name:      "errors_total",
			Help:      "Failed KV operations by operation",
		}, []string{"operation"}),
	}

	if err := registry.RegisterCounterVec("natsclient", "messages_total", m.messages); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("natsclient", "kv_operations_total", m.kvOps); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("natsclient", "kv_errors_total", m.kvErrors); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *clientMetrics) recordConnected(connected bool) {
	if m == nil {
		return
	}
	m.core.RecordNATSStatus(connected)
}

func (m *clientMetrics) recordReconnect() {
	if m == nil {
		return
	}
	m.core.RecordNATSReconnect()
}

func (m *clientMetrics) recordMessage(direction string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(direction).Inc()
}

func (m *clientMetrics) recordKVOp(bucket, operation string) {
	if m == nil {
		return
	}
	m.kvOps.WithLabelValues(bucket, operation).Inc()
}

func (m *clientMetrics) recordKVError(operation string) {
	if m == nil {
		return
	}
	m.kvErrors.WithLabelValues(operation).Inc()
}
