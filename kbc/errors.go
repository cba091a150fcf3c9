package kbc

import "fmt"

// UnavailableError indicates that the key broker could not serve a resource:
//   - the attested peer is unreachable or timed out
//   - the peer answered with a non-success status
//   - the response could not be parsed as the secret envelope
//
// It is an infrastructure failure, distinct from a cryptographic rejection,
// and must never be downgraded to a successful verification.
type UnavailableError struct {
	URI string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("trust material unavailable for %s: %v", e.URI, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// Unavailable wraps err as an *UnavailableError for uri.
func Unavailable(uri ResourceURI, err error) *UnavailableError {
	return &UnavailableError{URI: uri.String(), Err: err}
}
