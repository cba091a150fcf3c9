package verifier

import (
	"fmt"

	"github.com/liudalibj/image-rs/image"
	"github.com/liudalibj/image-rs/oci"
)

// RejectedError reports that a signature artifact was evaluated against
// trust material and refused: the cryptographic check failed or the
// signed claims do not cover the image. Errors of any other type mean
// verification could not be carried out at all.
type RejectedError struct {
	Scheme oci.Scheme
	Ref    string
	Err    error
}

// Error implements the error interface.
func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s signature rejected for [%s]: %v", e.Scheme, e.Ref, e.Err)
}

// Unwrap returns the underlying cause.
func (e *RejectedError) Unwrap() error { return e.Err }

func reject(scheme oci.Scheme, ref image.Reference, err error) *RejectedError {
	return &RejectedError{Scheme: scheme, Ref: ref.String(), Err: err}
}
