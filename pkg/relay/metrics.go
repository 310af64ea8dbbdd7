package relay

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "relay"

// Metrics holds the server's Prometheus instruments. A nil *Metrics is
// valid and records nothing, which keeps call sites unconditional.
type Metrics struct {
	sessionsActive prometheus.Gauge
	sessionsTotal  prometheus.Counter
	recordsTotal   *prometheus.CounterVec
	broadcasts     prometheus.Counter
	unicasts       prometheus.Counter
	unicastMisses  prometheus.Counter
	authFailures   *prometheus.CounterVec
	protocolErrors prometheus.Counter
	writeErrors    prometheus.Counter
	bytesRead      prometheus.Counter
	laneLoad       *prometheus.GaugeVec
}

// NewMetrics registers the relay instruments with reg. A nil reg gets
// a private registry, so independent servers in one process never
// collide on registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return &Metrics{
		sessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "sessions_active",
			Help:      "Currently connected sessions.",
		}),
		sessionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sessions_total",
			Help:      "Connections accepted since start.",
		}),
		recordsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "records_total",
			Help:      "Records routed, by record type.",
		}, []string{"type"}),
		broadcasts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "broadcasts_total",
			Help:      "Records fanned out to all logged-in sessions.",
		}),
		unicasts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "unicasts_total",
			Help:      "Records delivered to a single addressed session.",
		}),
		unicastMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "unicast_misses_total",
			Help:      "Addressed records dropped because no session matched.",
		}),
		authFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "auth_failures_total",
			Help:      "Rejected login attempts, by reason.",
		}, []string{"reason"}),
		protocolErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "protocol_errors_total",
			Help:      "Connections dropped for malformed input.",
		}),
		writeErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "write_errors_total",
			Help:      "Outbound record writes that failed.",
		}),
		bytesRead: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "read_bytes_total",
			Help:      "Bytes read from client sockets.",
		}),
		laneLoad: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "lane_load",
			Help:      "Sessions currently assigned to each lane.",
		}, []string{"lane"}),
	}
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.sessionsTotal.Inc()
	m.sessionsActive.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.sessionsActive.Dec()
}

func (m *Metrics) RecordRouted(recordType string) {
	if m == nil {
		return
	}
	m.recordsTotal.WithLabelValues(recordType).Inc()
}

func (m *Metrics) Broadcast() {
	if m == nil {
		return
	}
	m.broadcasts.Inc()
}

func (m *Metrics) Unicast() {
	if m == nil {
		return
	}
	m.unicasts.Inc()
}

func (m *Metrics) UnicastMiss() {
	if m == nil {
		return
	}
	m.unicastMisses.Inc()
}

func (m *Metrics) AuthFailure(reason string) {
	if m == nil {
		return
	}
	m.authFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) ProtocolError() {
	if m == nil {
		return
	}
	m.protocolErrors.Inc()
}

func (m *Metrics) WriteError() {
	if m == nil {
		return
	}
	m.writeErrors.Inc()
}

func (m *Metrics) ReadBytes(n int) {
	if m == nil {
		return
	}
	m.bytesRead.Add(float64(n))
}

func (m *Metrics) SetLaneLoads(loads []int) {
	if m == nil {
		return
	}
	for i, n := range loads {
		m.laneLoad.WithLabelValues(strconv.Itoa(i)).Set(float64(n))
	}
}
