// Package offlinefs implements the air-gapped key broker backend: trust
// material is provisioned ahead of time into a local JSON file mapping
// resource names to base64 payloads, and no broker is contacted at runtime.
package offlinefs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"

	"github.com/liudalibj/image-rs/kbc"
)

// DefaultResourcesPath is where guest images install the provisioned
// resource file.
const DefaultResourcesPath = "/etc/aa-offline_fs_kbc-resources.json"

// Client serves resources from a provisioned file. The file is read once at
// construction; the client never touches the filesystem afterwards.
type Client struct {
	path      string
	resources map[string][]byte
}

// NewClient loads the resource file at path, or DefaultResourcesPath when
// path is empty. The file must be a JSON object mapping
// "<repository>/<type>/<tag>" names to base64-encoded payloads.
func NewClient(path string) (*Client, error) {
	if path == "" {
		path = DefaultResourcesPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading offline resources from %s: %w", path, err)
	}
	var encoded map[string]string
	if err := json.Unmarshal(data, &encoded); err != nil {
		return nil, fmt.Errorf("parsing offline resources from %s: %w", path, err)
	}
	resources := make(map[string][]byte, len(encoded))
	for name, value := range encoded {
		decoded, err := base64.StdEncoding.DecodeString(value)
		if err != nil {
			return nil, fmt.Errorf("offline resource %q in %s is not base64: %w", name, path, err)
		}
		resources[name] = decoded
	}
	return &Client{path: path, resources: resources}, nil
}

// GetResource returns the provisioned bytes for uri. Resources absent from
// the store are unavailable; there is no broker to fall back to.
func (c *Client) GetResource(_ context.Context, uri kbc.ResourceURI, _ map[string]string) ([]byte, error) {
	data, ok := c.resources[uri.Name()]
	if !ok {
		return nil, kbc.Unavailable(uri, fmt.Errorf("not provisioned in offline store %s", c.path))
	}
	return append([]byte(nil), data...), nil
}

// Close is a no-op; the offline backend holds no connection.
func (c *Client) Close() error {
	return nil
}
