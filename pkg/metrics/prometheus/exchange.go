package prometheus

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/davgate/davgate/pkg/metrics"
)

type exchangeMetrics struct {
	galfindDuration *prometheus.HistogramVec
	galfindResults  *prometheus.HistogramVec
	gallookups      prometheus.Counter
	lookupDuration  prometheus.Histogram
	sessionDials    *prometheus.CounterVec
	httpResponses   *prometheus.CounterVec
}

// NewExchangeMetrics creates the Prometheus ExchangeMetrics
// implementation, or nil when metrics are disabled.
func NewExchangeMetrics() metrics.ExchangeMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &exchangeMetrics{
		galfindDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "davgate_exchange_galfind_duration_milliseconds",
				Help:    "GAL search round-trip duration in milliseconds",
				Buckets: []float64{10, 50, 100, 250, 500, 1000, 2500, 5000},
			},
			[]string{"code"},
		),
		galfindResults: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "davgate_exchange_galfind_results",
				Help:    "Persons returned per GAL search",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
			},
			[]string{"code"},
		),
		gallookups: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "davgate_exchange_gallookup_total",
				Help: "Total per-entry GAL lookups",
			},
		),
		lookupDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "davgate_exchange_gallookup_duration_milliseconds",
				Help:    "GAL lookup round-trip duration in milliseconds",
				Buckets: []float64{10, 50, 100, 250, 500, 1000, 2500},
			},
		),
		sessionDials: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "davgate_exchange_session_dials_total",
				Help: "Exchange authentication attempts by outcome",
			},
			[]string{"outcome"},
		),
		httpResponses: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "davgate_exchange_http_responses_total",
				Help: "Backend HTTP responses by method and status",
			},
			[]string{"method", "status"},
		),
	}
}

func (m *exchangeMetrics) ObserveGalFind(code string, results int, duration time.Duration) {
	if m == nil {
		return
	}
	m.galfindDuration.WithLabelValues(code).Observe(duration.Seconds() * 1000)
	m.galfindResults.WithLabelValues(code).Observe(float64(results))
}

func (m *exchangeMetrics) ObserveGalLookup(duration time.Duration) {
	if m == nil {
		return
	}
	m.gallookups.Inc()
	m.lookupDuration.Observe(duration.Seconds() * 1000)
}

func (m *exchangeMetrics) RecordSessionDial(success bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.sessionDials.WithLabelValues(outcome).Inc()
}

func (m *exchangeMetrics) RecordHTTPStatus(method string, status int) {
	if m == nil {
		return
	}
	m.httpResponses.WithLabelValues(method, strconv.Itoa(status)).Inc()
}
