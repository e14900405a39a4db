package metrics

import "time"

// ExchangeMetrics provides observability for the Exchange back-end.
// Pass nil to disable collection.
type ExchangeMetrics interface {
	// ObserveGalFind records one GAL search: the code used, the number
	// of persons returned and the round-trip duration.
	ObserveGalFind(code string, results int, duration time.Duration)

	// ObserveGalLookup records one per-entry enrichment round-trip.
	ObserveGalLookup(duration time.Duration)

	// RecordSessionDial counts an Exchange authentication attempt.
	RecordSessionDial(success bool)

	// RecordHTTPStatus counts a backend HTTP response by method and
	// status code class.
	RecordHTTPStatus(method string, status int)
}
