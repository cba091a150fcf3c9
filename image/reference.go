// Package image handles container image references: parsing, normalization,
// and the accessors the policy engine and signature verifiers key off of.
package image

import (
	"fmt"

	"github.com/distribution/reference"
	"github.com/opencontainers/go-digest"
)

// Reference is a parsed, normalized image reference. The repository name
// (registry host plus path) doubles as the policy scope the image falls
// under; the tag or digest pins the content being verified.
type Reference struct {
	named reference.Named
}

// ParseReference parses s into a normalized Reference. Docker Hub shorthand
// is expanded the same way container runtimes do it, so "busybox:latest"
// and "docker.io/library/busybox:latest" land in the same policy scope.
func ParseReference(s string) (Reference, error) {
	named, err := reference.ParseNormalizedNamed(s)
	if err != nil {
		return Reference{}, fmt.Errorf("parsing image reference %q: %w", s, err)
	}
	return Reference{named: named}, nil
}

// Registry returns the registry host, e.g. "quay.io".
func (r Reference) Registry() string {
	return reference.Domain(r.named)
}

// Repository returns the full repository name including the registry host,
// e.g. "quay.io/kata-containers/confidential-containers".
func (r Reference) Repository() string {
	return r.named.Name()
}

// Path returns the repository path without the registry host.
func (r Reference) Path() string {
	return reference.Path(r.named)
}

// Tag returns the tag, or "" when the reference carries none.
func (r Reference) Tag() string {
	if tagged, ok := r.named.(reference.Tagged); ok {
		return tagged.Tag()
	}
	return ""
}

// Digest returns the pinned manifest digest, or "" when the reference is
// not digest-pinned.
func (r Reference) Digest() digest.Digest {
	if digested, ok := r.named.(reference.Digested); ok {
		return digested.Digest()
	}
	return ""
}

// String returns the normalized reference, including tag and digest when
// present.
func (r Reference) String() string {
	return r.named.String()
}

// SameRepository reports whether other names the same repository,
// regardless of tag or digest.
func (r Reference) SameRepository(other Reference) bool {
	return r.named.Name() == other.named.Name()
}
