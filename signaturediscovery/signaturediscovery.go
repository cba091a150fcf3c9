// Package signaturediscovery locates the signature artifacts attached to a
// container image: cosign signature objects stored in the registry under a
// tag derived from the image digest, and simple-signing signatures kept in
// a sigstore lookaside store.
package signaturediscovery

import (
	"context"
	"fmt"

	"github.com/liudalibj/image-rs/image"
	"github.com/liudalibj/image-rs/oci"
	"github.com/opencontainers/go-digest"
)

const signatureTagSuffix = "sig"

// Fetcher discovers and fetches the signature artifacts covering the image
// manifest named by manifestDigest. A repository with no signatures yields
// an empty slice and no error; errors mean the store could not be consulted.
type Fetcher interface {
	FetchImageSignatures(ctx context.Context, ref image.Reference, manifestDigest digest.Digest) ([]oci.Signature, error)
}

// DigestResolver resolves an image reference to its manifest digest.
type DigestResolver interface {
	ResolveDigest(ctx context.Context, ref image.Reference) (digest.Digest, error)
}

// formatSigTag turns image digests into tags with signatureTagSuffix:
// sha256:9ecc53c2 -> sha256-9ecc53c2.sig
func formatSigTag(manifestDigest digest.Digest) string {
	return fmt.Sprint(manifestDigest.Algorithm(), "-", manifestDigest.Encoded(), ".", signatureTagSuffix)
}
