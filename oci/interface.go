// Package oci contains the signing-scheme model for OCI image signatures and
// the simple signing payload format shared by the supported schemes.
// https://github.com/opencontainers/image-spec/tree/main#readme.
package oci

import (
	"fmt"

	"go.uber.org/multierr"
)

// Scheme identifies the signing scheme a signature artifact was produced
// under. The set is closed: artifacts carrying anything else never verify.
type Scheme string

const (
	// SchemeNone marks content that carries no signature requirement.
	SchemeNone Scheme = "none"
	// SchemeSimpleSigning is the detached OpenPGP signed-claim scheme keyed
	// by manifest digest.
	SchemeSimpleSigning Scheme = "simple-signing"
	// SchemeCosign is the cosign scheme addressing signatures via a
	// digest-derived tag in the registry.
	SchemeCosign Scheme = "cosign"
)

// Known reports whether s is one of the supported signing schemes.
func (s Scheme) Known() bool {
	switch s {
	case SchemeNone, SchemeSimpleSigning, SchemeCosign:
		return true
	}
	return false
}

// SigningAlgorithm is a specific type for string constants used for signature
// signing and verification.
type SigningAlgorithm string

const (
	// UnspecifiedSigningAlgorithm is an unrecognizable signing algorithm.
	UnspecifiedSigningAlgorithm SigningAlgorithm = "SIGNING_ALGORITHM_UNSPECIFIED"
	// RsassaPssSha256 is RSASSA-PSS with a SHA256 digest.
	RsassaPssSha256 SigningAlgorithm = "RSASSA_PSS_SHA256"
	// RsassaPkcs1v15Sha256 is RSASSA-PKCS1 v1.5 with a SHA256 digest.
	RsassaPkcs1v15Sha256 SigningAlgorithm = "RSASSA_PKCS1V15_SHA256"
	// EcdsaP256Sha256 is ECDSA on the P-256 Curve with a SHA256 digest.
	EcdsaP256Sha256 SigningAlgorithm = "ECDSA_P256_SHA256"
)

// Signature represents a single scheme-tagged OCI image signature artifact.
// Trust material is never part of the artifact; verifiers resolve keys
// separately through the attested channel.
type Signature interface {
	// Scheme returns the signing scheme the artifact belongs to.
	Scheme() Scheme

	// Blob returns the raw artifact bytes: the simple signing payload for
	// cosign signatures, the complete OpenPGP signed message for simple
	// signing.
	Blob() ([]byte, error)
}

// ValidSig checks that sig is well-formed enough to attempt verification:
// a known scheme and retrievable, non-empty artifact bytes.
func ValidSig(sig Signature) error {
	var err error
	if s := sig.Scheme(); !s.Known() || s == SchemeNone {
		err = multierr.Append(err, fmt.Errorf("unsupported signing scheme: %q", s))
	}
	blob, e := sig.Blob()
	if e != nil {
		err = multierr.Append(err, e)
	} else if len(blob) == 0 {
		err = multierr.Append(err, fmt.Errorf("empty signature artifact"))
	}
	return err
}
