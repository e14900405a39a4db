package httpclient

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrTooManyRedirects is returned when a redirect chain exceeds
// MaxRedirects hops.
var ErrTooManyRedirects = errors.New("httpclient: too many redirects")

// StatusError reports a non-success HTTP status from Exchange.
type StatusError struct {
	Status int
	Text   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%d %s", e.Status, e.Text)
}

// BuildHTTPError converts an HTTP status into a StatusError. Exchange
// answers 440 (login timeout) where it means access denied; that quirk
// is translated to 403 Forbidden here so callers see a standard code.
func BuildHTTPError(status int, text string) *StatusError {
	if status == 440 {
		return &StatusError{Status: http.StatusForbidden, Text: "Forbidden"}
	}
	if text == "" {
		text = http.StatusText(status)
	}
	return &StatusError{Status: status, Text: text}
}
