package logger

import "log/slog"

// Standard field keys for structured logging. Use these consistently
// across all log statements so LDAP, Exchange and HTTP events can be
// aggregated and queried together.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// ========================================================================
	// Protocol & Operation
	// ========================================================================
	KeyProtocol  = "protocol"   // Front-end protocol: ldap, ldaps
	KeyOperation = "operation"  // LDAP operation: bind, unbind, search
	KeyStatus    = "status"     // LDAP result code (0 success, 4 size limit, ...)
	KeyStatusMsg = "status_msg" // Human-readable status message

	// ========================================================================
	// LDAP Request Fields
	// ========================================================================
	KeyMessageID = "message_id" // LDAP message ID echoed in responses
	KeyBindDN    = "bind_dn"    // Distinguished name from the bind request
	KeyBaseDN    = "base_dn"    // Search base DN
	KeyScope     = "scope"      // Search scope (0 base, 1 one, 2 subtree)
	KeyFilter    = "filter"     // Filter description
	KeyAttribute = "attribute"  // LDAP attribute name
	KeySizeLimit = "size_limit" // Effective size limit for a search
	KeyEntries   = "entries"    // Number of entries returned

	// ========================================================================
	// Exchange Back-End
	// ========================================================================
	KeyGalCode    = "gal_code"    // Exchange GAL search code (AN, DN, FN, ...)
	KeyGalValue   = "gal_value"   // Search value sent to the GAL
	KeyURL        = "url"         // Exchange or OWA URL
	KeyMethod     = "method"      // HTTP method (GET, SEARCH, PROPFIND, DELETE)
	KeyHTTPStatus = "http_status" // HTTP status code from Exchange
	KeyRedirects  = "redirects"   // Redirect hops followed

	// ========================================================================
	// Client Identification
	// ========================================================================
	KeyClientIP   = "client_ip"   // Client IP address
	KeyClientPort = "client_port" // Client source port
	KeyUsername   = "username"    // Exchange account name
	KeyDomain     = "domain"      // Windows domain (proxy NTLM)

	// ========================================================================
	// Session & Connection
	// ========================================================================
	KeySessionID    = "session_id"    // Exchange session identifier
	KeyConnectionID = "connection_id" // LDAP connection identifier
	KeyListener     = "listener"      // Listener address
	KeyPort         = "port"          // Listener port

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyErrorCode  = "error_code"  // Numeric error code
	KeyAttempt    = "attempt"     // Retry attempt number
)

// ============================================================================
// Field constructors for type safety
// ============================================================================

// TraceID returns a slog.Attr for OpenTelemetry trace ID
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// SpanID returns a slog.Attr for OpenTelemetry span ID
func SpanID(id string) slog.Attr {
	return slog.String(KeySpanID, id)
}

// Protocol returns a slog.Attr for the front-end protocol
func Protocol(proto string) slog.Attr {
	return slog.String(KeyProtocol, proto)
}

// Operation returns a slog.Attr for the LDAP operation name
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// Status returns a slog.Attr for an LDAP result code
func Status(code int) slog.Attr {
	return slog.Int(KeyStatus, code)
}

// StatusMsg returns a slog.Attr for a human-readable status message
func StatusMsg(msg string) slog.Attr {
	return slog.String(KeyStatusMsg, msg)
}

// MessageID returns a slog.Attr for the LDAP message ID
func MessageID(id int) slog.Attr {
	return slog.Int(KeyMessageID, id)
}

// BindDN returns a slog.Attr for the bind DN
func BindDN(dn string) slog.Attr {
	return slog.String(KeyBindDN, dn)
}

// BaseDN returns a slog.Attr for the search base DN
func BaseDN(dn string) slog.Attr {
	return slog.String(KeyBaseDN, dn)
}

// Scope returns a slog.Attr for the search scope
func Scope(scope int) slog.Attr {
	return slog.Int(KeyScope, scope)
}

// Filter returns a slog.Attr for a filter description
func Filter(f string) slog.Attr {
	return slog.String(KeyFilter, f)
}

// Attribute returns a slog.Attr for an LDAP attribute name
func Attribute(name string) slog.Attr {
	return slog.String(KeyAttribute, name)
}

// SizeLimit returns a slog.Attr for the effective search size limit
func SizeLimit(n int) slog.Attr {
	return slog.Int(KeySizeLimit, n)
}

// Entries returns a slog.Attr for the number of entries returned
func Entries(n int) slog.Attr {
	return slog.Int(KeyEntries, n)
}

// GalCode returns a slog.Attr for an Exchange GAL search code
func GalCode(code string) slog.Attr {
	return slog.String(KeyGalCode, code)
}

// GalValue returns a slog.Attr for a GAL search value
func GalValue(v string) slog.Attr {
	return slog.String(KeyGalValue, v)
}

// URL returns a slog.Attr for an Exchange or OWA URL
func URL(u string) slog.Attr {
	return slog.String(KeyURL, u)
}

// Method returns a slog.Attr for an HTTP method
func Method(m string) slog.Attr {
	return slog.String(KeyMethod, m)
}

// HTTPStatus returns a slog.Attr for an HTTP status code
func HTTPStatus(code int) slog.Attr {
	return slog.Int(KeyHTTPStatus, code)
}

// Redirects returns a slog.Attr for the number of redirect hops
func Redirects(n int) slog.Attr {
	return slog.Int(KeyRedirects, n)
}

// ClientIP returns a slog.Attr for client IP address
func ClientIP(addr string) slog.Attr {
	return slog.String(KeyClientIP, addr)
}

// ClientPort returns a slog.Attr for client source port
func ClientPort(port int) slog.Attr {
	return slog.Int(KeyClientPort, port)
}

// Username returns a slog.Attr for the Exchange account name
func Username(name string) slog.Attr {
	return slog.String(KeyUsername, name)
}

// Domain returns a slog.Attr for a Windows domain name
func Domain(name string) slog.Attr {
	return slog.String(KeyDomain, name)
}

// SessionID returns a slog.Attr for an Exchange session identifier
func SessionID(id string) slog.Attr {
	return slog.String(KeySessionID, id)
}

// ConnectionID returns a slog.Attr for an LDAP connection identifier
func ConnectionID(id string) slog.Attr {
	return slog.String(KeyConnectionID, id)
}

// Listener returns a slog.Attr for a listener address
func Listener(addr string) slog.Attr {
	return slog.String(KeyListener, addr)
}

// Port returns a slog.Attr for a listener port
func Port(port int) slog.Attr {
	return slog.Int(KeyPort, port)
}

// DurationMs returns a slog.Attr for duration in milliseconds
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// ErrorCode returns a slog.Attr for numeric error code
func ErrorCode(code int) slog.Attr {
	return slog.Int(KeyErrorCode, code)
}

// Attempt returns a slog.Attr for retry attempt number
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}
