// Package simplesigning models detached simple-signing artifacts: binary
// OpenPGP signed messages embedding a simple signing payload, stored in a
// lookaside location keyed by manifest digest.
package simplesigning

import (
	"fmt"

	"github.com/liudalibj/image-rs/oci"
)

// Sig is a single detached simple-signing signature of an OCI image.
type Sig struct {
	// Message is the binary OpenPGP signed message embedding the claim.
	Message []byte
	// Source describes where the signature was found, for diagnostics.
	Source string
}

// Scheme returns the simple signing scheme.
func (s *Sig) Scheme() oci.Scheme {
	return oci.SchemeSimpleSigning
}

// Blob returns the full OpenPGP message. The embedded payload is only
// reachable through signature verification against a resolved keyring.
func (s *Sig) Blob() ([]byte, error) {
	if len(s.Message) == 0 {
		return nil, fmt.Errorf("empty simple signing message from %s", s.Source)
	}
	return s.Message, nil
}
