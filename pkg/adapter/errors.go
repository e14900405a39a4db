package adapter

// ProtocolError is a domain error translated to a numeric wire code.
// The LDAP adapter maps backend failures to LDAP result codes through
// this interface so connection logging stays uniform.
type ProtocolError interface {
	error

	// Code returns the numeric protocol result code.
	Code() uint32

	// Message returns the text sent to the client alongside the code.
	Message() string

	// Unwrap returns the underlying domain error so errors.Is matches
	// through the wrapper.
	Unwrap() error
}
