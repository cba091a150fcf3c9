package signaturediscovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/liudalibj/image-rs/image"
	"github.com/liudalibj/image-rs/oci"
	"github.com/liudalibj/image-rs/oci/cosign"
	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"oras.land/oras-go/v2"
	"oras.land/oras-go/v2/errdef"
	"oras.land/oras-go/v2/registry/remote"
	"oras.land/oras-go/v2/registry/remote/auth"
)

// RegistryClient discovers cosign signature objects by talking to the
// registry directly, without a container runtime in the path. It also
// resolves tags to manifest digests, which the containerd client cannot
// do for images the daemon has not pulled.
type RegistryClient struct {
	client    *auth.Client
	plainHTTP bool
}

// RegistryOption configures a RegistryClient.
type RegistryOption func(*RegistryClient)

// WithAuthClient sets the authenticating HTTP client used for registry
// requests. Without it the default credential chain applies.
func WithAuthClient(client *auth.Client) RegistryOption {
	return func(c *RegistryClient) { c.client = client }
}

// WithPlainHTTP switches registry requests to plain HTTP, for local
// registries in tests.
func WithPlainHTTP() RegistryOption {
	return func(c *RegistryClient) { c.plainHTTP = true }
}

// NewRegistryClient creates a daemonless signature discovery client.
func NewRegistryClient(opts ...RegistryOption) *RegistryClient {
	c := &RegistryClient{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *RegistryClient) repository(ref image.Reference) (*remote.Repository, error) {
	repo, err := remote.NewRepository(ref.Repository())
	if err != nil {
		return nil, fmt.Errorf("opening repository [%s]: %w", ref.Repository(), err)
	}
	repo.PlainHTTP = c.plainHTTP
	if c.client != nil {
		repo.Client = c.client
	}
	return repo, nil
}

// ResolveDigest resolves the reference to its manifest digest against the
// registry. Digest-pinned references resolve locally.
func (c *RegistryClient) ResolveDigest(ctx context.Context, ref image.Reference) (digest.Digest, error) {
	if d := ref.Digest(); d != "" {
		return d, nil
	}
	repo, err := c.repository(ref)
	if err != nil {
		return "", err
	}
	desc, err := repo.Resolve(ctx, ref.String())
	if err != nil {
		return "", fmt.Errorf("resolving [%s]: %w", ref, err)
	}
	return desc.Digest, nil
}

// FetchImageSignatures fetches the signature manifest stored under the
// digest-derived tag and returns one artifact per signature layer. A
// missing signature tag yields no artifacts and no error.
func (c *RegistryClient) FetchImageSignatures(ctx context.Context, ref image.Reference, manifestDigest digest.Digest) ([]oci.Signature, error) {
	repo, err := c.repository(ref)
	if err != nil {
		return nil, err
	}
	sigTag := formatSigTag(manifestDigest)
	desc, reader, err := oras.Fetch(ctx, repo, sigTag, oras.DefaultFetchOptions)
	if err != nil {
		if errors.Is(err, errdef.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("cannot fetch the signature object [%s:%s]: %w", ref.Repository(), sigTag, err)
	}
	defer reader.Close()

	manifestBytes, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading signature manifest [%s]: %w", sigTag, err)
	}
	var manifest ocispec.Manifest
	if err := json.Unmarshal(manifestBytes, &manifest); err != nil {
		return nil, fmt.Errorf("parsing signature manifest [%s] (%s): %w", sigTag, desc.MediaType, err)
	}

	signatures := make([]oci.Signature, 0, len(manifest.Layers))
	for _, layer := range manifest.Layers {
		blob, err := fetchBlob(ctx, repo, layer)
		if err != nil {
			return nil, fmt.Errorf("reading signature layer %s: %w", layer.Digest, err)
		}
		signatures = append(signatures, &cosign.Sig{
			Layer:      layer,
			Payload:    blob,
			SourceRepo: ref.Repository(),
		})
	}
	return signatures, nil
}

func fetchBlob(ctx context.Context, repo *remote.Repository, desc ocispec.Descriptor) ([]byte, error) {
	rc, err := repo.Blobs().Fetch(ctx, desc)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
