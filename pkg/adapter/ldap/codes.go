// Package ldap implements the LDAP front-end of the gateway: a minimal
// RFC 1777/2251 server that answers address book queries from the
// Exchange Global Address List.
package ldap

import "github.com/davgate/davgate/internal/ber"

// LDAP operations are APPLICATION-class tags composed on the BER base.
const (
	opBindRequest   = ber.ClassApplication | ber.Constructed | 0x00 // 0x60
	opBindResponse  = ber.ClassApplication | ber.Constructed | 0x01 // 0x61
	opUnbindRequest = ber.ClassApplication | 0x02                   // 0x42
	opSearchRequest = ber.ClassApplication | ber.Constructed | 0x03 // 0x63
	opSearchEntry   = ber.ClassApplication | ber.Constructed | 0x04 // 0x64
	opSearchDone    = ber.ClassApplication | ber.Constructed | 0x05 // 0x65
)

// Filter tags within a search request.
const (
	filterAnd        = ber.ClassContext | ber.Constructed | 0x00 // 0xa0
	filterOr         = ber.ClassContext | ber.Constructed | 0x01 // 0xa1
	filterNot        = ber.ClassContext | ber.Constructed | 0x02 // 0xa2
	filterEquality   = ber.ClassContext | ber.Constructed | 0x03 // 0xa3
	filterSubstrings = ber.ClassContext | ber.Constructed | 0x04 // 0xa4
	filterGE         = ber.ClassContext | ber.Constructed | 0x05 // 0xa5
	filterLE         = ber.ClassContext | ber.Constructed | 0x06 // 0xa6
	filterPresent    = ber.ClassContext | 0x07                   // 0x87
	filterApprox     = ber.ClassContext | ber.Constructed | 0x08 // 0xa8
)

// Substring component tags (initial/any/final). The gateway uses the
// first component of any kind as the search prefix; Exchange only
// supports prefix matching on the GAL.
const (
	substringInitial = ber.ClassContext | 0x00 // 0x80
	substringAny     = ber.ClassContext | 0x01 // 0x81
	substringFinal   = ber.ClassContext | 0x02 // 0x82
)

// bindPasswordTag carries the simple-auth password in a bind request.
const bindPasswordTag = ber.ClassContext | 0x00 // 0x80

// LDAP result codes.
const (
	resultSuccess            = 0
	resultSizeLimitExceeded  = 4
	resultInvalidCredentials = 49
	resultOther              = 80
)

// Search scopes.
const (
	scopeBaseObject = 0
)

const (
	// baseContext is the naming context the GAL is published under.
	baseContext = "ou=people"

	// maxSizeLimit caps every search; Exchange galfind returns at most
	// 100 entries per query anyway.
	maxSizeLimit = 100

	// lookupThreshold is the largest result set that still gets the
	// per-entry gallookup enrichment.
	lookupThreshold = 10
)
