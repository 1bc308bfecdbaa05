package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the service-level metrics that do not belong to one package.
type Metrics struct {
	ServiceStatus       *prometheus.GaugeVec
	ProcessesConfigured *prometheus.GaugeVec
	ConfigErrors        prometheus.Counter

	NATSConnected  prometheus.Gauge
	NATSReconnects prometheus.Counter
}

// Service states reported by ServiceStatus.
const (
	StatusStopped = iota
	StatusStarting
	StatusRunning
	StatusStopping
	StatusFailed
)

// NewMetrics creates the service-level metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		ServiceStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "service",
				Name:      "status",
				Help:      "Service status (0=stopped, 1=starting, 2=running, 3=stopping, 4=failed)",
			},
			[]string{"service"},
		),
		ProcessesConfigured: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "config",
				Name:      "processes",
				Help:      "Number of configured automatic processes by kind",
			},
			[]string{"kind"},
		),
		ConfigErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "config",
				Name:      "errors_total",
				Help:      "Process definitions rejected while loading or watching configuration",
			},
		),
		NATSConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "nats",
				Name:      "connected",
				Help:      "NATS connection status (0=disconnected, 1=connected)",
			},
		),
		NATSReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "nats",
				Name:      "reconnects_total",
				Help:      "Total number of NATS reconnections",
			},
		),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.ServiceStatus,
		m.ProcessesConfigured,
		m.ConfigErrors,
		m.NATSConnected,
		m.NATSReconnects,
	}
}

// RecordServiceStatus updates the status of a named service.
func (m *Metrics) RecordServiceStatus(service string, status int) {
	m.ServiceStatus.WithLabelValues(service).Set(float64(status))
}

// RecordProcesses sets the number of configured processes per kind.
func (m *Metrics) RecordProcesses(byKind map[string]int) {
	m.ProcessesConfigured.Reset()
	for kind, n := range byKind {
		m.ProcessesConfigured.WithLabelValues(kind).Set(float64(n))
	}
}

// RecordConfigError counts a rejected definition.
func (m *Metrics) RecordConfigError() {
	m.ConfigErrors.Inc()
}

// RecordNATSStatus updates the NATS connection gauge.
func (m *Metrics) RecordNATSStatus(connected bool) {
	value := 0.0
	if connected {
		value = 1.0
	}
	m.NATSConnected.Set(value)
}

// RecordNATSReconnect counts a reconnection.
func (m *Metrics) RecordNATSReconnect() {
	m.NATSReconnects.Inc()
}
