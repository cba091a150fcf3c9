// Package kbc defines the key broker client contract: the protocol layer
// that retrieves trust material (public keys, keyrings, policy blobs) from
// an attested external service on behalf of the verification core.
package kbc

import (
	"context"
	"fmt"
	"strings"
)

// Backend names accepted in attestation agent parameters.
const (
	// SampleKBC answers every request from a fixed in-memory resource set.
	SampleKBC = "sample_kbc"
	// OfflineFsKBC serves resources from a local file prepared ahead of
	// time for air-gapped deployments.
	OfflineFsKBC = "offline_fs_kbc"
	// CcKBC talks to the attestation agent over its local endpoint.
	CcKBC = "cc_kbc"
)

// Client is a key broker client. Implementations are selected once at
// startup and are safe for concurrent use.
type Client interface {
	// GetResource returns the raw bytes of the resource identified by uri.
	// params carries optional per-request key-value pairs. A failure to
	// produce the bytes, for any reason, surfaces as *UnavailableError.
	GetResource(ctx context.Context, uri ResourceURI, params map[string]string) ([]byte, error)

	// Close releases the connection to the broker, if any.
	Close() error
}

// AAParameters selects the KBC backend and the key broker endpoint. The
// wire form handed to the attestation agent is "<kbc_name>::<kbs_uri>",
// e.g. "offline_fs_kbc::null".
type AAParameters struct {
	KBCName string
	KBSURI  string
}

// ParseAAParameters parses the "<kbc_name>::<kbs_uri>" form. The KBS URI is
// not interpreted here; backends that need no endpoint use "null".
func ParseAAParameters(s string) (AAParameters, error) {
	name, uri, ok := strings.Cut(s, "::")
	if !ok || name == "" || uri == "" {
		return AAParameters{}, fmt.Errorf("malformed attestation agent parameters %q, expected \"<kbc_name>::<kbs_uri>\"", s)
	}
	return AAParameters{KBCName: name, KBSURI: uri}, nil
}

func (p AAParameters) String() string {
	return p.KBCName + "::" + p.KBSURI
}
