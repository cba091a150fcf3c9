package signaturediscovery

import (
	"context"
	"fmt"

	"github.com/liudalibj/image-rs/image"
	"github.com/liudalibj/image-rs/oci"
	"github.com/opencontainers/go-digest"
)

// Fake is an in-memory Fetcher and DigestResolver for tests. Entries are
// keyed by the normalized reference string.
type Fake struct {
	Digests    map[string]digest.Digest
	Signatures map[string][]oci.Signature
	Errs       map[string]error
}

// NewFake constructs an empty fake signature discovery client. Tests
// populate the maps directly.
func NewFake() *Fake {
	return &Fake{
		Digests:    make(map[string]digest.Digest),
		Signatures: make(map[string][]oci.Signature),
		Errs:       make(map[string]error),
	}
}

// SetImage registers an image with its manifest digest and signatures.
func (f *Fake) SetImage(ref image.Reference, manifestDigest digest.Digest, signatures ...oci.Signature) {
	f.Digests[ref.String()] = manifestDigest
	f.Signatures[ref.String()] = signatures
}

// ResolveDigest implements DigestResolver.
func (f *Fake) ResolveDigest(_ context.Context, ref image.Reference) (digest.Digest, error) {
	if err, ok := f.Errs[ref.String()]; ok {
		return "", err
	}
	if d, ok := f.Digests[ref.String()]; ok {
		return d, nil
	}
	return "", fmt.Errorf("no manifest known for [%s]", ref)
}

// FetchImageSignatures implements Fetcher.
func (f *Fake) FetchImageSignatures(_ context.Context, ref image.Reference, _ digest.Digest) ([]oci.Signature, error) {
	if err, ok := f.Errs[ref.String()]; ok {
		return nil, err
	}
	return f.Signatures[ref.String()], nil
}
