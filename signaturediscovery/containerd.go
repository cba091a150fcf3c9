package signaturediscovery

import (
	"context"
	"fmt"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/content"
	"github.com/containerd/containerd/errdefs"
	"github.com/containerd/containerd/images"
	"github.com/liudalibj/image-rs/image"
	"github.com/liudalibj/image-rs/oci"
	"github.com/liudalibj/image-rs/oci/cosign"
	"github.com/opencontainers/go-digest"
)

// Client discovers cosign signature objects through a containerd daemon.
// The signature manifest is pulled from the image's own repository under
// the tag derived from the manifest digest.
type Client struct {
	cdClient   *containerd.Client
	remoteOpts []containerd.RemoteOpt
}

// New creates a containerd-backed signature discovery client.
func New(cdClient *containerd.Client, opts ...containerd.RemoteOpt) *Client {
	return &Client{
		cdClient:   cdClient,
		remoteOpts: opts,
	}
}

// FetchImageSignatures returns the signature artifacts stored next to the
// image: one per layer of the signature manifest. A repository without a
// signature object yields no artifacts and no error.
func (c *Client) FetchImageSignatures(ctx context.Context, ref image.Reference, manifestDigest digest.Digest) ([]oci.Signature, error) {
	sigRef := fmt.Sprint(ref.Repository(), ":", formatSigTag(manifestDigest))
	sigImage, err := c.cdClient.Pull(ctx, sigRef, c.remoteOpts...)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("cannot pull the signature object [%s] from target repository [%s]: %w", sigRef, ref.Repository(), err)
	}
	cs := sigImage.ContentStore()
	manifest, err := images.Manifest(ctx, cs, sigImage.Target(), sigImage.Platform())
	if err != nil {
		return nil, fmt.Errorf("reading signature manifest [%s]: %w", sigRef, err)
	}
	signatures := make([]oci.Signature, 0, len(manifest.Layers))
	for _, layer := range manifest.Layers {
		blob, err := content.ReadBlob(ctx, cs, layer)
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

// ResolveDigest returns the manifest digest of an image already known to
// containerd. Images are resolved from the daemon's image store, not the
// registry.
func (c *Client) ResolveDigest(ctx context.Context, ref image.Reference) (digest.Digest, error) {
	img, err := c.cdClient.GetImage(ctx, ref.String())
	if err != nil {
		return "", fmt.Errorf("resolving image [%s] in containerd: %w", ref, err)
	}
	return img.Target().Digest, nil
}
