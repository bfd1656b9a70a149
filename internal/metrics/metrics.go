package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "arushi_agent"

// Metrics holds the Prometheus collectors of the agent. All methods are
// safe to call on a nil *Metrics, which records nothing.
type Metrics struct {
	registry *prometheus.Registry

	Reconnects     prometheus.Counter
	HeartbeatsSent prometheus.Counter
	BufferEvicted  prometheus.Counter
	Commands       *prometheus.CounterVec
	ThreatAlerts   *prometheus.CounterVec
	BufferDepth    prometheus.Gauge
	Connected      prometheus.Gauge
}

// NewMetrics creates the collectors on a private registry
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		Reconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "Total number of connections re-established after a failure",
		}),
		HeartbeatsSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "heartbeats_sent_total",
			Help:      "Total number of heartbeats delivered, buffered ones included",
		}),
		BufferEvicted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "buffer_evictions_total",
			Help:      "Total number of samples dropped from a full offline buffer",
		}),
		Commands: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Total number of executed commands by outcome",
		}, []string{"command", "outcome"}),
		ThreatAlerts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "threat_alerts_total",
			Help:      "Total number of threat alerts forwarded",
		}, []string{"mode"}),
		BufferDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "offline_buffer_depth",
			Help:      "Number of samples waiting in the offline buffer",
		}),
		Connected: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected",
			Help:      "1 while the server connection is up",
		}),
	}
}

// Registry returns the registry to expose over HTTP
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return prometheus.NewRegistry()
	}
	return m.registry
}

// IncrementReconnects counts a re-established connection
func (m *Metrics) IncrementReconnects() {
	if m == nil {
		return
	}
	m.Reconnects.Inc()
}

// IncrementHeartbeats counts a delivered heartbeat
func (m *Metrics) IncrementHeartbeats() {
	if m == nil {
		return
	}
	m.HeartbeatsSent.Inc()
}

// IncrementEvictions counts a sample lost to buffer overflow
func (m *Metrics) IncrementEvictions() {
	if m == nil {
		return
	}
	m.BufferEvicted.Inc()
}

// ObserveCommand counts an executed command
func (m *Metrics) ObserveCommand(command string, failed bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if failed {
		outcome = "error"
	}
	m.Commands.WithLabelValues(command, outcome).Inc()
}

// IncrementThreatAlerts counts a forwarded alert for the tailer mode
func (m *Metrics) IncrementThreatAlerts(mode string) {
	if m == nil {
		return
	}
	m.ThreatAlerts.WithLabelValues(mode).Inc()
}

// SetBufferDepth records the offline buffer length
func (m *Metrics) SetBufferDepth(n int) {
	if m == nil {
		return
	}
	m.BufferDepth.Set(float64(n))
}

// SetConnected records the connection state
func (m *Metrics) SetConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.Connected.Set(1)
	} else {
		m.Connected.Set(0)
	}
}
