// Package cosign models cosign signature artifacts discovered in OCI
// registries: one manifest layer per signature, the simple signing payload
// stored as the layer blob and the cryptographic signature carried in a
// layer annotation.
package cosign

import (
	"encoding/base64"
	"fmt"

	"github.com/liudalibj/image-rs/oci"
	digest "github.com/opencontainers/go-digest"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"
)

// CosignSigKey is the layer annotation holding the base64-encoded signature
// over the payload blob.
const CosignSigKey = "dev.cosignproject.cosign/signature"

// SimpleSigningMediaType is the media type of cosign payload layers.
const SimpleSigningMediaType = "application/vnd.dev.cosign.simplesigning.v1+json"

// Sig is a single cosign signature of an OCI image.
type Sig struct {
	// Layer is the signature manifest layer describing the payload blob.
	Layer v1.Descriptor
	// Payload is the simple signing payload stored under the layer digest.
	Payload []byte
	// SourceRepo is the repository the signature object was fetched from.
	SourceRepo string
}

// NewSig assembles a Sig for a payload and base64-encoded signature, filling
// in the layer descriptor the way registries serve it.
func NewSig(payload []byte, base64Sig, sourceRepo string) *Sig {
	return &Sig{
		Layer: v1.Descriptor{
			MediaType: SimpleSigningMediaType,
			Digest:    digest.FromBytes(payload),
			Size:      int64(len(payload)),
			Annotations: map[string]string{
				CosignSigKey: base64Sig,
			},
		},
		Payload:    payload,
		SourceRepo: sourceRepo,
	}
}

// Scheme returns the cosign signing scheme.
func (s *Sig) Scheme() oci.Scheme {
	return oci.SchemeCosign
}

// Blob returns the payload bytes after checking them against the layer
// descriptor digest, so a registry cannot swap the payload under a
// signature it did not cover.
func (s *Sig) Blob() ([]byte, error) {
	if dgst := digest.FromBytes(s.Payload); dgst != s.Layer.Digest {
		return nil, fmt.Errorf("payload digest %s does not match layer descriptor digest %s", dgst, s.Layer.Digest)
	}
	return s.Payload, nil
}

// Base64Encoded returns the base64-encoded signature from the layer
// annotations.
func (s *Sig) Base64Encoded() (string, error) {
	sig, ok := s.Layer.Annotations[CosignSigKey]
	if !ok {
		return "", fmt.Errorf("layer annotation %s not found", CosignSigKey)
	}
	if _, err := base64.StdEncoding.DecodeString(sig); err != nil {
		return "", fmt.Errorf("signature is not base64 encoded: %w", err)
	}
	return sig, nil
}
