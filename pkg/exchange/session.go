// Package exchange defines the Exchange session contract the LDAP
// front-end depends on: an authenticated session that can search the
// Global Address List and enrich individual entries, and a factory
// that owns session lifecycle.
package exchange

import (
	"context"
	"errors"
)

// GAL search codes. Exchange indexes the address list on these short
// field codes; GalFind accepts exactly one of them per query.
const (
	GalCodeAccountName = "AN" // account name / uid
	GalCodeFirstName   = "FN"
	GalCodeLastName    = "LN"
	GalCodeDisplayName = "DN"
	GalCodeTitle       = "TL"
	GalCodeCompany     = "CP"
	GalCodeOffice      = "OF"
	GalCodeDepartment  = "DP"
)

// Person field keys beyond the search codes. GalFind fills the short
// codes (AN, EM, DN, PH, OFFICE, CP, TL); GalLookup adds the extended
// fields.
const (
	FieldEmail      = "EM"
	FieldPhone      = "PH"
	FieldOffice     = "OFFICE"
	FieldFirst      = "first"
	FieldInitials   = "initials"
	FieldLast       = "last"
	FieldStreet     = "street"
	FieldState      = "state"
	FieldZip        = "zip"
	FieldCountry    = "country"
	FieldDepartment = "department"
	FieldMobile     = "mobile"
)

// ErrAuthFailed is returned by SessionFactory.Acquire when Exchange
// rejects the credentials.
var ErrAuthFailed = errors.New("exchange: authentication failed")

// Person is one GAL record: a mapping of Exchange field codes to
// values. The AN code is the unique key within a result set.
type Person map[string]string

// AN returns the account name, the unique person key.
func (p Person) AN() string {
	return p[GalCodeAccountName]
}

// Email returns the primary SMTP address.
func (p Person) Email() string {
	return p[FieldEmail]
}

// Session is an authenticated Exchange session. Implementations must
// be safe for use from multiple connection goroutines.
type Session interface {
	// GalFind performs a case-insensitive GAL search on one indexed
	// code and returns matches keyed by account name.
	GalFind(ctx context.Context, code, value string) (map[string]Person, error)

	// GalLookup fills the extended person fields in place. Lookup
	// failures leave the person as-is; they are not fatal.
	GalLookup(ctx context.Context, person Person) error

	// ID identifies the session in logs.
	ID() string

	// Close releases the session's backend resources. The factory
	// calls it when a session leaves the pool; a closed session must
	// not be used again.
	Close()
}

// SessionFactory creates and releases Exchange sessions.
// Implementations must be safe for concurrent use.
type SessionFactory interface {
	// Acquire returns a session bound to the given credentials,
	// ErrAuthFailed when Exchange rejects them.
	Acquire(ctx context.Context, user, password string) (Session, error)

	// Release returns a session obtained from Acquire.
	Release(session Session)
}
