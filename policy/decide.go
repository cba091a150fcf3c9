package policy

import (
	"strings"

	"github.com/liudalibj/image-rs/image"
)

// Kind classifies what a policy decision demands of a pull.
type Kind string

const (
	// KindUnrestricted admits the image without verification.
	KindUnrestricted Kind = "unrestricted"
	// KindReject denies the image outright.
	KindReject Kind = "reject"
	// KindRequireSignature demands a verified signature under one of the
	// decision's scheme requirements.
	KindRequireSignature Kind = "require-signature"
)

// Decision is the policy verdict for a single image reference.
type Decision struct {
	Kind Kind
	// Scope is the matched scope, empty when the default stanza applied.
	Scope string
	// Requirements holds the signature-scheme entries of the matched
	// list. Set only for KindRequireSignature.
	Requirements []SchemeRequirement
}

// Decide evaluates the policy for an image reference. The most specific
// matching scope wins: the exact reference first, then the repository,
// then each parent namespace, then the registry host, then the default
// stanza. A policy with no matching scope and no default leaves the
// image unrestricted.
func (p *Policy) Decide(ref image.Reference) Decision {
	for _, scope := range scopeCandidates(ref) {
		if reqs, ok := p.Docker[scope]; ok {
			return decisionFor(scope, reqs)
		}
	}
	if len(p.Default) > 0 {
		return decisionFor("", p.Default)
	}
	return Decision{Kind: KindUnrestricted}
}

// decisionFor collapses a requirement list into one verdict. A reject
// entry dominates so that contradictory lists fail closed; an
// insecureAcceptAnything entry then lifts all restrictions; otherwise
// the scheme entries say which signatures are acceptable.
func decisionFor(scope string, reqs []Requirement) Decision {
	var schemes []SchemeRequirement
	acceptAnything := false
	for _, req := range reqs {
		switch r := req.(type) {
		case Reject:
			return Decision{Kind: KindReject, Scope: scope}
		case InsecureAcceptAnything:
			acceptAnything = true
		case SchemeRequirement:
			schemes = append(schemes, r)
		}
	}
	if acceptAnything || len(schemes) == 0 {
		return Decision{Kind: KindUnrestricted, Scope: scope}
	}
	return Decision{Kind: KindRequireSignature, Scope: scope, Requirements: schemes}
}

// scopeCandidates lists the scopes that could govern ref, most specific
// first: tagged or digested reference, repository, parent namespaces,
// registry host.
func scopeCandidates(ref image.Reference) []string {
	repo := ref.Repository()
	candidates := make([]string, 0, 4+strings.Count(repo, "/"))
	if d := ref.Digest(); d != "" {
		candidates = append(candidates, repo+"@"+d.String())
	}
	if t := ref.Tag(); t != "" {
		candidates = append(candidates, repo+":"+t)
	}
	candidates = append(candidates, repo)
	for rest := repo; ; {
		i := strings.LastIndex(rest, "/")
		if i < 0 {
			break
		}
		rest = rest[:i]
		candidates = append(candidates, rest)
	}
	return candidates
}
