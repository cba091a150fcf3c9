// Package sample implements the fixed-answer key broker backend. It serves
// every request from an in-memory resource set and exists for CI and for
// bringing the verification pipeline up without a broker deployment.
package sample

import (
	"context"
	"fmt"

	"github.com/liudalibj/image-rs/kbc"
)

// Built-in resources served when nothing else is provisioned: a policy that
// states the trust-on-first-use posture explicitly, and a sigstore
// configuration pointing at the conventional local lookaside path.
const (
	defaultPolicy = `{
    "default": [{"type": "insecureAcceptAnything"}],
    "transports": {}
}
`
	defaultSigstoreConfig = `default:
    sigstore: file:///var/lib/containers/sigstore
`
)

// Client answers resource requests from a fixed map keyed by
// "<repository>/<type>/<tag>".
type Client struct {
	resources map[string][]byte
}

// NewClient returns a sample client serving the built-in resource set.
func NewClient() *Client {
	return NewClientWithResources(nil)
}

// NewClientWithResources returns a sample client serving the built-in
// resources overlaid with extra. Keys are resource names,
// "<repository>/<type>/<tag>".
func NewClientWithResources(extra map[string][]byte) *Client {
	resources := map[string][]byte{
		"default/" + kbc.ResourceTypePolicy + "/test":         []byte(defaultPolicy),
		"default/" + kbc.ResourceTypeSigstoreConfig + "/test": []byte(defaultSigstoreConfig),
	}
	for name, data := range extra {
		resources[name] = append([]byte(nil), data...)
	}
	return &Client{resources: resources}
}

// GetResource returns the fixed bytes for uri. Unprovisioned resources are
// reported as unavailable, same as a live broker refusing release.
func (c *Client) GetResource(_ context.Context, uri kbc.ResourceURI, _ map[string]string) ([]byte, error) {
	data, ok := c.resources[uri.Name()]
	if !ok {
		return nil, kbc.Unavailable(uri, fmt.Errorf("no sample resource provisioned"))
	}
	return append([]byte(nil), data...), nil
}

// Close is a no-op; the sample backend holds no connection.
func (c *Client) Close() error {
	return nil
}
