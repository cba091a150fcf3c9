// Package policy implements the registry-scoped security policy: per
// repository scope, whether image pulls require a signature, under which
// schemes, and against which trust material. The document format follows
// the containers policy.json layout.
package policy

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/liudalibj/image-rs/oci"
)

// TransportDocker is the only policy transport served by this client.
const TransportDocker = "docker"

// Requirement type identifiers in a policy document.
const (
	TypeInsecureAcceptAnything = "insecureAcceptAnything"
	TypeReject                 = "reject"
	TypeSignedBy               = "signedBy"
	TypeSigstoreSigned         = "sigstoreSigned"
)

// KeyTypeGPGKeys is the only signedBy key type served by this client:
// trusted keys form an OpenPGP keyring.
const KeyTypeGPGKeys = "GPGKeys"

// Identity match types for signed references.
const (
	// MatchRepository accepts a signature claiming any tag of the pulled
	// repository.
	MatchRepository = "matchRepository"
	// MatchExact requires the claimed reference to equal the pulled
	// reference, tag included.
	MatchExact = "matchExact"
)

// Policy is a parsed, immutable security policy document.
type Policy struct {
	// Default applies when no scope under Docker matches the image.
	Default []Requirement
	// Docker maps repository scopes to their requirement lists.
	Docker map[string][]Requirement
}

// Requirement is a single entry in a scope's requirement list.
type Requirement interface {
	// Type returns the policy.json requirement type identifier.
	Type() string
}

// SchemeRequirement is implemented by requirement entries that demand a
// signature under a specific signing scheme.
type SchemeRequirement interface {
	Requirement
	// Scheme returns the signing scheme the entry accepts.
	Scheme() oci.Scheme
	// Key returns the trust material reference: a key path or URI, or
	// inline key bytes. Exactly one is set.
	Key() (path string, data []byte)
	// Identity returns the reference match type the signed claim must
	// satisfy, MatchRepository when the entry does not pin one.
	Identity() string
}

// InsecureAcceptAnything accepts every image. It exists so a fail-open
// scope is an explicit, auditable statement rather than an omission.
type InsecureAcceptAnything struct{}

// Type implements Requirement.
func (InsecureAcceptAnything) Type() string { return TypeInsecureAcceptAnything }

// Reject denies every image in the scope.
type Reject struct{}

// Type implements Requirement.
func (Reject) Type() string { return TypeReject }

// SignedBy requires a simple-signing signature from an OpenPGP keyring.
type SignedBy struct {
	// KeyPath locates the keyring: a kbs:// resource URI or a local path.
	KeyPath string
	// KeyData is the keyring inline. Exactly one of KeyPath/KeyData is set.
	KeyData []byte
	// SignedIdentity optionally pins the identity match type.
	SignedIdentity string
}

// Type implements Requirement.
func (*SignedBy) Type() string { return TypeSignedBy }

// Scheme implements SchemeRequirement.
func (*SignedBy) Scheme() oci.Scheme { return oci.SchemeSimpleSigning }

// Key implements SchemeRequirement.
func (r *SignedBy) Key() (string, []byte) { return r.KeyPath, r.KeyData }

// Identity implements SchemeRequirement.
func (r *SignedBy) Identity() string {
	if r.SignedIdentity == "" {
		return MatchRepository
	}
	return r.SignedIdentity
}

// SigstoreSigned requires a cosign signature against a public key.
type SigstoreSigned struct {
	// KeyPath locates the public key: a kbs:// resource URI or a local path.
	KeyPath string
	// KeyData is the PEM key inline. Exactly one of KeyPath/KeyData is set.
	KeyData []byte
	// SignedIdentity optionally pins the identity match type.
	SignedIdentity string
}

// Type implements Requirement.
func (*SigstoreSigned) Type() string { return TypeSigstoreSigned }

// Scheme implements SchemeRequirement.
func (*SigstoreSigned) Scheme() oci.Scheme { return oci.SchemeCosign }

// Key implements SchemeRequirement.
func (r *SigstoreSigned) Key() (string, []byte) { return r.KeyPath, r.KeyData }

// Identity implements SchemeRequirement.
func (r *SigstoreSigned) Identity() string {
	if r.SignedIdentity == "" {
		return MatchRepository
	}
	return r.SignedIdentity
}

// Parse parses and validates a policy document. Unknown requirement types,
// unknown transports, unknown fields and malformed entries all fail the
// parse; a policy that cannot be fully understood must not gate pulls.
func Parse(data []byte) (*Policy, error) {
	var raw struct {
		Default    []json.RawMessage                       `json:"default"`
		Transports map[string]map[string][]json.RawMessage `json:"transports"`
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("parsing policy document: %w", err)
	}

	policy := &Policy{Docker: make(map[string][]Requirement)}
	var err error
	if policy.Default, err = parseRequirements(raw.Default); err != nil {
		return nil, fmt.Errorf("policy default: %w", err)
	}
	for transport, scopes := range raw.Transports {
		if transport != TransportDocker {
			return nil, fmt.Errorf("unsupported policy transport %q", transport)
		}
		for scope, rawReqs := range scopes {
			if scope == "" {
				return nil, fmt.Errorf("policy transport %q: empty scope", transport)
			}
			if len(rawReqs) == 0 {
				return nil, fmt.Errorf("policy scope %q has no requirements", scope)
			}
			reqs, err := parseRequirements(rawReqs)
			if err != nil {
				return nil, fmt.Errorf("policy scope %q: %w", scope, err)
			}
			policy.Docker[scope] = reqs
		}
	}
	return policy, nil
}

func parseRequirements(raws []json.RawMessage) ([]Requirement, error) {
	reqs := make([]Requirement, 0, len(raws))
	for i, raw := range raws {
		req, err := parseRequirement(raw)
		if err != nil {
			return nil, fmt.Errorf("requirement %d: %w", i, err)
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

func parseRequirement(raw json.RawMessage) (Requirement, error) {
	var common struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &common); err != nil {
		return nil, err
	}
	switch common.Type {
	case TypeInsecureAcceptAnything:
		var decoded struct {
			Type string `json:"type"`
		}
		if err := strictUnmarshal(raw, &decoded); err != nil {
			return nil, err
		}
		return InsecureAcceptAnything{}, nil

	case TypeReject:
		var decoded struct {
			Type string `json:"type"`
		}
		if err := strictUnmarshal(raw, &decoded); err != nil {
			return nil, err
		}
		return Reject{}, nil

	case TypeSignedBy:
		var decoded struct {
			Type           string          `json:"type"`
			KeyType        string          `json:"keyType"`
			KeyPath        string          `json:"keyPath,omitempty"`
			KeyData        []byte          `json:"keyData,omitempty"`
			SignedIdentity *referenceMatch `json:"signedIdentity,omitempty"`
		}
		if err := strictUnmarshal(raw, &decoded); err != nil {
			return nil, err
		}
		if decoded.KeyType != KeyTypeGPGKeys {
			return nil, fmt.Errorf("signedBy: unsupported keyType %q", decoded.KeyType)
		}
		identity, err := identityType(decoded.SignedIdentity)
		if err != nil {
			return nil, fmt.Errorf("signedBy: %w", err)
		}
		if err := validateKeySource(decoded.KeyPath, decoded.KeyData); err != nil {
			return nil, fmt.Errorf("signedBy: %w", err)
		}
		return &SignedBy{
			KeyPath:        decoded.KeyPath,
			KeyData:        decoded.KeyData,
			SignedIdentity: identity,
		}, nil

	case TypeSigstoreSigned:
		var decoded struct {
			Type           string          `json:"type"`
			KeyPath        string          `json:"keyPath,omitempty"`
			KeyData        []byte          `json:"keyData,omitempty"`
			SignedIdentity *referenceMatch `json:"signedIdentity,omitempty"`
		}
		if err := strictUnmarshal(raw, &decoded); err != nil {
			return nil, err
		}
		identity, err := identityType(decoded.SignedIdentity)
		if err != nil {
			return nil, fmt.Errorf("sigstoreSigned: %w", err)
		}
		if err := validateKeySource(decoded.KeyPath, decoded.KeyData); err != nil {
			return nil, fmt.Errorf("sigstoreSigned: %w", err)
		}
		return &SigstoreSigned{
			KeyPath:        decoded.KeyPath,
			KeyData:        decoded.KeyData,
			SignedIdentity: identity,
		}, nil

	default:
		return nil, fmt.Errorf("unknown policy requirement type %q", common.Type)
	}
}

type referenceMatch struct {
	Type string `json:"type"`
}

func identityType(m *referenceMatch) (string, error) {
	if m == nil {
		return "", nil
	}
	switch m.Type {
	case MatchRepository, MatchExact:
		return m.Type, nil
	default:
		return "", fmt.Errorf("unsupported signedIdentity type %q", m.Type)
	}
}

func validateKeySource(path string, data []byte) error {
	if (path == "") == (len(data) == 0) {
		return fmt.Errorf("exactly one of keyPath and keyData must be set")
	}
	return nil
}

func strictUnmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
