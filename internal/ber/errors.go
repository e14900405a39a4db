package ber

import (
	"errors"
	"fmt"
)

var (
	// ErrUnexpectedEOF is returned when a value extends past the end of
	// the buffer.
	ErrUnexpectedEOF = errors.New("ber: unexpected end of data")

	// ErrInvalidLength is returned when a length octet sequence is
	// malformed or larger than the codec supports.
	ErrInvalidLength = errors.New("ber: invalid length encoding")

	// ErrIndefiniteLength is returned for the indefinite length form,
	// which LDAP never uses.
	ErrIndefiniteLength = errors.New("ber: indefinite length not supported")

	// ErrIntegerTooLarge is returned when an INTEGER or ENUMERATED value
	// does not fit an int32.
	ErrIntegerTooLarge = errors.New("ber: integer exceeds 32 bits")

	// ErrTagMismatch is the target for errors.Is on any tag mismatch.
	ErrTagMismatch = errors.New("ber: unexpected tag")
)

// DecodeError carries the buffer offset where decoding failed.
type DecodeError struct {
	Offset  int
	Message string
	Err     error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ber: %s at offset %d: %v", e.Message, e.Offset, e.Err)
	}
	return fmt.Sprintf("ber: %s at offset %d", e.Message, e.Offset)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func decodeErr(offset int, message string, err error) *DecodeError {
	return &DecodeError{Offset: offset, Message: message, Err: err}
}

// TagError reports a tag that did not match what the caller expected.
type TagError struct {
	Offset int
	Want   byte
	Got    byte
}

func (e *TagError) Error() string {
	return fmt.Sprintf("ber: unexpected tag 0x%02x at offset %d, want 0x%02x", e.Got, e.Offset, e.Want)
}

func (e *TagError) Is(target error) bool {
	return target == ErrTagMismatch
}
