package verifier

import (
	"fmt"

	"github.com/liudalibj/image-rs/image"
	"github.com/liudalibj/image-rs/oci"
	"github.com/opencontainers/go-digest"
)

// SimpleSigningVerifier verifies simple-signing artifacts: an OpenPGP
// signed message whose content is the simple signing payload. The
// signature must come from the trusted keyring and the payload claims
// must cover the pulled image.
type SimpleSigningVerifier struct{}

// Scheme implements SchemeVerifier.
func (SimpleSigningVerifier) Scheme() oci.Scheme { return oci.SchemeSimpleSigning }

// Verify implements SchemeVerifier.
func (SimpleSigningVerifier) Verify(sig oci.Signature, ref image.Reference, manifestDigest digest.Digest, trust Trust) error {
	if scheme := sig.Scheme(); scheme != oci.SchemeSimpleSigning {
		return fmt.Errorf("simple signing verifier cannot evaluate %q artifacts", scheme)
	}
	if err := oci.ValidSig(sig); err != nil {
		return reject(oci.SchemeSimpleSigning, ref, err)
	}
	keyring, err := parseKeyring(trust.Key)
	if err != nil {
		return fmt.Errorf("loading trusted keyring: %w", err)
	}
	message, err := sig.Blob()
	if err != nil {
		return reject(oci.SchemeSimpleSigning, ref, err)
	}
	content, err := verifySignedMessage(keyring, message)
	if err != nil {
		return reject(oci.SchemeSimpleSigning, ref, err)
	}
	if err := verifyPayloadClaims(content, ref, manifestDigest, trust.ExactReference); err != nil {
		return reject(oci.SchemeSimpleSigning, ref, err)
	}
	return nil
}
