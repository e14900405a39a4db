// Package prometheus provides the Prometheus-backed implementations of
// the metrics interfaces. Constructors return nil when the registry is
// not initialized; all methods are nil-safe.
package prometheus

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/davgate/davgate/pkg/metrics"
)

type ldapMetrics struct {
	requests          *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	inflight          *prometheus.GaugeVec
	entriesReturned   prometheus.Histogram
	activeConnections prometheus.Gauge
	connsAccepted     prometheus.Counter
	connsClosed       prometheus.Counter
	connsForceClosed  prometheus.Counter
}

// NewLDAPMetrics creates the Prometheus LDAPMetrics implementation, or
// nil when metrics are disabled.
func NewLDAPMetrics() metrics.LDAPMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &ldapMetrics{
		requests: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "davgate_ldap_requests_total",
				Help: "Total LDAP requests by operation and result code",
			},
			[]string{"operation", "result"},
		),
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "davgate_ldap_request_duration_milliseconds",
				Help: "LDAP request duration in milliseconds",
				Buckets: []float64{
					1,     // local answers (Root DSE, anonymous)
					5,     //
					10,    //
					50,    //
					100,   // single galfind round-trip
					500,   //
					1000,  //
					5000,  // full A..Y sweep
					10000, //
				},
			},
			[]string{"operation"},
		),
		inflight: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "davgate_ldap_inflight_requests",
				Help: "LDAP requests currently being processed",
			},
			[]string{"operation"},
		),
		entriesReturned: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "davgate_ldap_search_entries",
				Help:    "Entries returned per LDAP search",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
			},
		),
		activeConnections: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "davgate_ldap_active_connections",
				Help: "Currently open LDAP client connections",
			},
		),
		connsAccepted: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "davgate_ldap_connections_accepted_total",
				Help: "Total accepted LDAP client connections",
			},
		),
		connsClosed: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "davgate_ldap_connections_closed_total",
				Help: "Total closed LDAP client connections",
			},
		),
		connsForceClosed: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "davgate_ldap_connections_force_closed_total",
				Help: "Connections force-closed at shutdown timeout",
			},
		),
	}
}

func (m *ldapMetrics) RecordRequest(operation string, resultCode int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(operation, strconv.Itoa(resultCode)).Inc()
	m.requestDuration.WithLabelValues(operation).Observe(duration.Seconds() * 1000)
}

func (m *ldapMetrics) RecordRequestStart(operation string) {
	if m == nil {
		return
	}
	m.inflight.WithLabelValues(operation).Inc()
}

func (m *ldapMetrics) RecordRequestEnd(operation string) {
	if m == nil {
		return
	}
	m.inflight.WithLabelValues(operation).Dec()
}

func (m *ldapMetrics) RecordEntriesReturned(count int) {
	if m == nil {
		return
	}
	m.entriesReturned.Observe(float64(count))
}

func (m *ldapMetrics) SetActiveConnections(count int32) {
	if m == nil {
		return
	}
	m.activeConnections.Set(float64(count))
}

func (m *ldapMetrics) RecordConnectionAccepted() {
	if m == nil {
		return
	}
	m.connsAccepted.Inc()
}

func (m *ldapMetrics) RecordConnectionClosed() {
	if m == nil {
		return
	}
	m.connsClosed.Inc()
}

func (m *ldapMetrics) RecordConnectionForceClosed() {
	if m == nil {
		return
	}
	m.connsForceClosed.Inc()
}
