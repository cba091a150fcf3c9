package kbc

import (
	"fmt"
	"net/url"
	"strings"
)

// Well-known resource types served by the key broker.
const (
	ResourceTypePolicy         = "security-policy"
	ResourceTypeSigstoreConfig = "sigstore-config"
	ResourceTypeGPGKeyring     = "gpg-public-config"
	ResourceTypeCosignKey      = "cosign-public-key"
)

// ResourceURI names one logical trust-material resource, in the KBS form
// kbs://<host>/<repository>/<type>/<tag>. The host part is an optional
// broker address hint and is usually empty.
type ResourceURI struct {
	Host       string
	Repository string
	Type       string
	Tag        string
}

// ParseResourceURI parses a kbs:// resource URI. The path must carry at
// least repository, type and tag segments; extra leading segments fold into
// the repository.
func ParseResourceURI(s string) (ResourceURI, error) {
	u, err := url.Parse(s)
	if err != nil {
		return ResourceURI{}, fmt.Errorf("parsing resource uri %q: %w", s, err)
	}
	if u.Scheme != "kbs" {
		return ResourceURI{}, fmt.Errorf("resource uri %q: unsupported scheme %q, expected \"kbs\"", s, u.Scheme)
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) < 3 {
		return ResourceURI{}, fmt.Errorf("resource uri %q: path needs <repository>/<type>/<tag>", s)
	}
	r := ResourceURI{
		Host:       u.Host,
		Repository: strings.Join(segments[:len(segments)-2], "/"),
		Type:       segments[len(segments)-2],
		Tag:        segments[len(segments)-1],
	}
	if r.Repository == "" || r.Type == "" || r.Tag == "" {
		return ResourceURI{}, fmt.Errorf("resource uri %q: empty path segment", s)
	}
	return r, nil
}

// Path returns the broker-side resource path, "/<repository>/<type>/<tag>".
func (r ResourceURI) Path() string {
	return "/" + r.Repository + "/" + r.Type + "/" + r.Tag
}

// Name returns the file-style name offline stores key resources by,
// "<repository>/<type>/<tag>".
func (r ResourceURI) Name() string {
	return r.Repository + "/" + r.Type + "/" + r.Tag
}

func (r ResourceURI) String() string {
	return "kbs://" + r.Host + r.Path()
}
