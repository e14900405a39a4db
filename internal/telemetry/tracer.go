package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Common attribute keys for gateway operations.
// These follow OpenTelemetry semantic conventions where applicable.
// Protocol-specific keys use the "ldap." and "gal." prefixes.
const (
	// ========================================================================
	// Client attributes (protocol-agnostic)
	// ========================================================================
	AttrClientIP   = "client.ip"
	AttrClientAddr = "client.address"
	AttrClientPort = "client.port"

	// ========================================================================
	// Protocol attributes (protocol-agnostic)
	// ========================================================================
	AttrProtocol  = "protocol.name" // ldap, ldaps
	AttrOperation = "protocol.operation"

	// ========================================================================
	// LDAP-specific attributes
	// ========================================================================
	AttrLDAPMessageID = "ldap.message_id"
	AttrLDAPBindDN    = "ldap.bind_dn"
	AttrLDAPBaseDN    = "ldap.base_dn"
	AttrLDAPScope     = "ldap.scope"
	AttrLDAPSizeLimit = "ldap.size_limit"
	AttrLDAPEntries   = "ldap.entries"
	AttrLDAPResult    = "ldap.result_code"

	// ========================================================================
	// GAL / Exchange attributes
	// ========================================================================
	AttrGALCode    = "gal.search_code"
	AttrGALValue   = "gal.search_value"
	AttrGALResults = "gal.results"

	// ========================================================================
	// HTTP backend attributes
	// ========================================================================
	AttrHTTPMethod    = "http.request.method"
	AttrHTTPStatus    = "http.response.status_code"
	AttrHTTPURL       = "url.full"
	AttrHTTPRedirects = "http.redirects"

	// ========================================================================
	// User/Auth attributes
	// ========================================================================
	AttrUsername = "user.name"
	AttrDomain   = "user.domain"
	AttrAuth     = "auth.method"
	AttrSession  = "exchange.session_id"
)

// Span names for operations.
// Format: <protocol>.<operation> for protocol-specific spans
// Format: <component>.<operation> for internal operations
const (
	// ========================================================================
	// LDAP protocol spans
	// ========================================================================
	SpanLDAPRequest = "ldap.request"
	SpanLDAPBind    = "ldap.BIND"
	SpanLDAPSearch  = "ldap.SEARCH"
	SpanLDAPUnbind  = "ldap.UNBIND"

	// ========================================================================
	// Exchange backend spans
	// ========================================================================
	SpanGalFind     = "gal.find"
	SpanGalLookup   = "gal.lookup"
	SpanSessionDial = "exchange.dial"
	SpanHTTPRequest = "http.request"
)

// ClientIP returns an attribute for client IP address
func ClientIP(ip string) attribute.KeyValue {
	return attribute.String(AttrClientIP, ip)
}

// ClientAddr returns an attribute for full client address
func ClientAddr(addr string) attribute.KeyValue {
	return attribute.String(AttrClientAddr, addr)
}

// Protocol returns an attribute for protocol name
func Protocol(name string) attribute.KeyValue {
	return attribute.String(AttrProtocol, name)
}

// Operation returns an attribute for protocol operation name
func Operation(op string) attribute.KeyValue {
	return attribute.String(AttrOperation, op)
}

// LDAPMessageID returns an attribute for the LDAP message ID
func LDAPMessageID(id int) attribute.KeyValue {
	return attribute.Int(AttrLDAPMessageID, id)
}

// LDAPBindDN returns an attribute for the bind DN
func LDAPBindDN(dn string) attribute.KeyValue {
	return attribute.String(AttrLDAPBindDN, dn)
}

// LDAPBaseDN returns an attribute for the search base DN
func LDAPBaseDN(dn string) attribute.KeyValue {
	return attribute.String(AttrLDAPBaseDN, dn)
}

// LDAPScope returns an attribute for the search scope
func LDAPScope(scope int) attribute.KeyValue {
	return attribute.Int(AttrLDAPScope, scope)
}

// LDAPSizeLimit returns an attribute for the effective size limit
func LDAPSizeLimit(limit int) attribute.KeyValue {
	return attribute.Int(AttrLDAPSizeLimit, limit)
}

// LDAPEntries returns an attribute for the number of entries returned
func LDAPEntries(count int) attribute.KeyValue {
	return attribute.Int(AttrLDAPEntries, count)
}

// LDAPResult returns an attribute for the LDAP result code
func LDAPResult(code int) attribute.KeyValue {
	return attribute.Int(AttrLDAPResult, code)
}

// GALCode returns an attribute for the GAL search code
func GALCode(code string) attribute.KeyValue {
	return attribute.String(AttrGALCode, code)
}

// GALValue returns an attribute for the GAL search value
func GALValue(value string) attribute.KeyValue {
	return attribute.String(AttrGALValue, value)
}

// GALResults returns an attribute for the GAL result count
func GALResults(count int) attribute.KeyValue {
	return attribute.Int(AttrGALResults, count)
}

// HTTPMethod returns an attribute for the HTTP request method
func HTTPMethod(method string) attribute.KeyValue {
	return attribute.String(AttrHTTPMethod, method)
}

// HTTPStatus returns an attribute for the HTTP response status
func HTTPStatus(status int) attribute.KeyValue {
	return attribute.Int(AttrHTTPStatus, status)
}

// HTTPURL returns an attribute for the request URL
func HTTPURL(url string) attribute.KeyValue {
	return attribute.String(AttrHTTPURL, url)
}

// HTTPRedirects returns an attribute for the number of redirects followed
func HTTPRedirects(count int) attribute.KeyValue {
	return attribute.Int(AttrHTTPRedirects, count)
}

// Username returns an attribute for username
func Username(name string) attribute.KeyValue {
	return attribute.String(AttrUsername, name)
}

// Domain returns an attribute for domain name
func Domain(name string) attribute.KeyValue {
	return attribute.String(AttrDomain, name)
}

// AuthMethod returns an attribute for authentication method
func AuthMethod(method string) attribute.KeyValue {
	return attribute.String(AttrAuth, method)
}

// SessionID returns an attribute for the Exchange session ID
func SessionID(id string) attribute.KeyValue {
	return attribute.String(AttrSession, id)
}

// StartLDAPSpan starts a span for an LDAP operation.
// This is a convenience function that sets common attributes.
func StartLDAPSpan(ctx context.Context, operation string, messageID int, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		Operation(operation),
		LDAPMessageID(messageID),
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, "ldap."+operation, trace.WithAttributes(allAttrs...))
}

// StartGalSpan starts a span for a GAL backend query.
func StartGalSpan(ctx context.Context, operation, code string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		GALCode(code),
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, "gal."+operation, trace.WithAttributes(allAttrs...))
}

// StartHTTPSpan starts a span for an outgoing Exchange HTTP request.
func StartHTTPSpan(ctx context.Context, method, url string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		HTTPMethod(method),
		HTTPURL(url),
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, SpanHTTPRequest, trace.WithAttributes(allAttrs...))
}

// StartProtocolSpan starts a span for a generic protocol operation.
func StartProtocolSpan(ctx context.Context, protocol, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		Protocol(protocol),
		Operation(operation),
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, protocol+"."+operation, trace.WithAttributes(allAttrs...))
}
