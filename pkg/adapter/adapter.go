// Package adapter provides shared TCP/TLS listener lifecycle management
// for protocol front-ends. The LDAP adapter builds on BaseAdapter; the
// package itself is protocol-agnostic.
package adapter

import "context"

// Adapter is a protocol front-end managed by the gateway.
//
// Lifecycle: construct with protocol-specific configuration, then
// Serve(ctx) blocks until the context is cancelled or startup fails.
// Stop may be called concurrently with Serve and must be idempotent.
type Adapter interface {
	// Serve starts the listener and blocks until shutdown. Cancelling
	// ctx initiates graceful shutdown: stop accepting, wait for active
	// connections up to the shutdown timeout, then force-close.
	Serve(ctx context.Context) error

	// Stop initiates graceful shutdown. The context bounds the wait
	// for active connections.
	Stop(ctx context.Context) error

	// Protocol returns the front-end name for logging ("LDAP", "LDAPS").
	Protocol() string

	// Port returns the listening TCP port.
	Port() int

	// MapError translates a domain error into a protocol error code,
	// or nil when the error has no wire representation.
	MapError(err error) ProtocolError
}
