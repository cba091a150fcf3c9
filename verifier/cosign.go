package verifier

import (
	"encoding/base64"
	"fmt"

	"github.com/liudalibj/image-rs/image"
	"github.com/liudalibj/image-rs/oci"
	"github.com/opencontainers/go-digest"
)

// CosignVerifier verifies cosign signature artifacts: the base64 signature
// from the layer annotation is checked over the payload blob with the
// trusted public key, then the payload claims are checked against the
// pulled image.
type CosignVerifier struct{}

// Scheme implements SchemeVerifier.
func (CosignVerifier) Scheme() oci.Scheme { return oci.SchemeCosign }

// base64Signed is the artifact surface cosign signatures carry on top of
// the shared Signature interface.
type base64Signed interface {
	Base64Encoded() (string, error)
}

// Verify implements SchemeVerifier.
func (CosignVerifier) Verify(sig oci.Signature, ref image.Reference, manifestDigest digest.Digest, trust Trust) error {
	if scheme := sig.Scheme(); scheme != oci.SchemeCosign {
		return fmt.Errorf("cosign verifier cannot evaluate %q artifacts", scheme)
	}
	if err := oci.ValidSig(sig); err != nil {
		return reject(oci.SchemeCosign, ref, err)
	}
	blob, err := sig.Blob()
	if err != nil {
		return reject(oci.SchemeCosign, ref, err)
	}
	annotated, ok := sig.(base64Signed)
	if !ok {
		return reject(oci.SchemeCosign, ref, fmt.Errorf("artifact carries no cosign signature annotation"))
	}
	base64Sig, err := annotated.Base64Encoded()
	if err != nil {
		return reject(oci.SchemeCosign, ref, err)
	}
	sigBytes, err := base64.StdEncoding.DecodeString(base64Sig)
	if err != nil {
		return reject(oci.SchemeCosign, ref, fmt.Errorf("decoding signature: %w", err))
	}

	pub, err := UnmarshalPEMToPub(trust.Key)
	if err != nil {
		return fmt.Errorf("parsing trusted public key: %w", err)
	}
	sigAlg, err := algorithmForPublicKey(pub)
	if err != nil {
		return fmt.Errorf("parsing trusted public key: %w", err)
	}
	verifier, err := loadVerifier(sigAlg)
	if err != nil {
		return err
	}

	if err := verifier.VerifySignature(blob, sigBytes, pub); err != nil {
		return reject(oci.SchemeCosign, ref, err)
	}
	if err := verifyPayloadClaims(blob, ref, manifestDigest, trust.ExactReference); err != nil {
		return reject(oci.SchemeCosign, ref, err)
	}
	return nil
}
