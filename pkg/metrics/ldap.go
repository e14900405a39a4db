package metrics

import "time"

// LDAPMetrics provides observability for the LDAP front-end. Pass nil
// to disable collection with zero overhead.
//
// The connection lifecycle methods satisfy adapter.MetricsRecorder so
// one implementation serves both the accept loop and the dispatcher.
type LDAPMetrics interface {
	// RecordRequest records a completed LDAP operation with its result
	// code (0 success, 4 size limit exceeded, 49 invalid credentials,
	// 80 other).
	RecordRequest(operation string, resultCode int, duration time.Duration)

	// RecordRequestStart increments the in-flight gauge for operation.
	RecordRequestStart(operation string)

	// RecordRequestEnd decrements the in-flight gauge for operation.
	RecordRequestEnd(operation string)

	// RecordEntriesReturned observes the entry count of one search.
	RecordEntriesReturned(count int)

	// SetActiveConnections updates the current connection count.
	SetActiveConnections(count int32)

	// RecordConnectionAccepted counts an accepted client connection.
	RecordConnectionAccepted()

	// RecordConnectionClosed counts a closed client connection.
	RecordConnectionClosed()

	// RecordConnectionForceClosed counts a connection force-closed at
	// shutdown timeout.
	RecordConnectionForceClosed()
}
