// Package verifier evaluates signature artifacts against resolved trust
// material. Low-level Verifiers check one signature under one algorithm;
// the scheme verifiers add the payload claim checks tying a signature to
// the image being pulled.
package verifier

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"

	"github.com/liudalibj/image-rs/image"
	"github.com/liudalibj/image-rs/oci"
	"github.com/opencontainers/go-digest"
)

// Verifier verifies a cryptographic signature over a payload with a
// public key.
type Verifier interface {
	VerifySignature(payload, signature []byte, pubKey crypto.PublicKey) error
}

// Trust is resolved trust material for one verification: raw key bytes
// (a PEM public key for cosign, an OpenPGP keyring for simple signing)
// and how strictly the signed identity must match the pulled reference.
type Trust struct {
	Key            []byte
	ExactReference bool
}

// SchemeVerifier pairs a signing scheme with its verification procedure.
// Verify returns nil when the artifact proves the image, *RejectedError
// when the artifact was evaluated and refused, and any other error when
// verification could not be carried out.
type SchemeVerifier interface {
	Scheme() oci.Scheme
	Verify(sig oci.Signature, ref image.Reference, manifestDigest digest.Digest, trust Trust) error
}

// ForScheme returns the verifier evaluating artifacts of the given scheme.
func ForScheme(scheme oci.Scheme) (SchemeVerifier, error) {
	switch scheme {
	case oci.SchemeCosign:
		return CosignVerifier{}, nil
	case oci.SchemeSimpleSigning:
		return SimpleSigningVerifier{}, nil
	default:
		return nil, fmt.Errorf("no verifier for signing scheme %q", scheme)
	}
}

func loadVerifier(sigAlg oci.SigningAlgorithm) (Verifier, error) {
	switch sigAlg {
	case oci.RsassaPssSha256:
		return &RSAPSSVerifier{hashFunc: crypto.SHA256}, nil
	case oci.RsassaPkcs1v15Sha256:
		return &RSAPKCS1V15Verifier{hashFunc: crypto.SHA256}, nil
	case oci.EcdsaP256Sha256:
		return &ECDSAVerifier{hashFunc: crypto.SHA256}, nil
	default:
		return nil, fmt.Errorf("unable to load signature verifier due to unsupported signing algorithm: %s", sigAlg)
	}
}

// algorithmForPublicKey returns the signing algorithm cosign pairs with
// the key type.
func algorithmForPublicKey(pub crypto.PublicKey) (oci.SigningAlgorithm, error) {
	switch key := pub.(type) {
	case *ecdsa.PublicKey:
		if key.Curve != elliptic.P256() {
			return oci.UnspecifiedSigningAlgorithm, fmt.Errorf("unsupported ECDSA curve: %v", key.Params().Name)
		}
		return oci.EcdsaP256Sha256, nil
	case *rsa.PublicKey:
		return oci.RsassaPkcs1v15Sha256, nil
	default:
		return oci.UnspecifiedSigningAlgorithm, fmt.Errorf("unsupported public key type: %T", pub)
	}
}

func computeDigest(hash crypto.Hash, message []byte) []byte {
	switch hash {
	case crypto.SHA256:
		digest := sha256.Sum256(message)
		return digest[:]
	default:
		return nil
	}
}

// verifyPayloadClaims checks that the signed claim covers the image being
// pulled: the claimed manifest digest equals the pulled digest and the
// claimed identity names the pulled repository, or the exact reference
// when the policy pins identity.
func verifyPayloadClaims(blob []byte, ref image.Reference, manifestDigest digest.Digest, exactReference bool) error {
	payload, err := oci.UnmarshalPayload(blob)
	if err != nil {
		return fmt.Errorf("invalid signature payload: %w", err)
	}
	claimedDigest, err := payload.Digest()
	if err != nil {
		return fmt.Errorf("invalid signature payload: %w", err)
	}
	if claimedDigest != manifestDigest {
		return fmt.Errorf("payload digest %s does not cover manifest digest %s", claimedDigest, manifestDigest)
	}
	claimedRef, err := image.ParseReference(payload.Critical.Identity.DockerReference)
	if err != nil {
		return fmt.Errorf("invalid payload identity %q: %w", payload.Critical.Identity.DockerReference, err)
	}
	if exactReference {
		if claimedRef.String() != ref.String() {
			return fmt.Errorf("payload identity %q does not match pulled reference %q", claimedRef, ref)
		}
		return nil
	}
	if !claimedRef.SameRepository(ref) {
		return fmt.Errorf("payload identity %q does not match pulled repository %q", claimedRef, ref.Repository())
	}
	return nil
}
