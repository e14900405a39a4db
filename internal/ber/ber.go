// Package ber implements the ASN.1 BER (Basic Encoding Rules) subset
// used by the LDAP front-end: tagged, length-prefixed values with
// short or long form lengths, nested sequences with back-patched
// lengths on encode, and version-dependent string charsets (UTF-8 for
// LDAPv3, ISO-8859-1 for v2).
package ber

// Universal tags. LDAP composes application and context tags on top of
// these; those constants live with the protocol code that owns them.
const (
	TagBoolean     byte = 0x01
	TagInteger     byte = 0x02
	TagOctetString byte = 0x04
	TagEnumerated  byte = 0x0A

	// Constructed is bit 6 of the tag octet.
	Constructed byte = 0x20

	// TagSequence and TagSet carry the constructed bit already.
	TagSequence byte = 0x30
	TagSet      byte = 0x31

	// Tag class bits (7-8).
	ClassApplication byte = 0x40
	ClassContext     byte = 0x80
)

// Length encoding. Values up to 127 use a single octet; larger values
// set the high bit and use the low 7 bits as the count of big-endian
// length octets that follow.
const (
	longFormBit        = 0x80
	maxShortFormLength = 127

	// maxLengthOctets bounds long form lengths to what fits an int32.
	// LDAP frames are small; anything larger is a framing error.
	maxLengthOctets = 4

	// maxIntOctets bounds INTEGER and ENUMERATED values to int32 range.
	maxIntOctets = 4
)
