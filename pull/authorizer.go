// Package pull decides whether an image pull may proceed. It ties the
// policy engine, the signature stores and the scheme verifiers together:
// one policy evaluation per attempt, signature artifacts fetched from the
// configured stores, trust material resolved through the key broker, and
// every denial reported as a *DeniedError with a single classified reason.
package pull

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/liudalibj/image-rs/image"
	"github.com/liudalibj/image-rs/internal/logging"
	"github.com/liudalibj/image-rs/kbc"
	"github.com/liudalibj/image-rs/kbc/offlinefs"
	"github.com/liudalibj/image-rs/kbc/rest"
	"github.com/liudalibj/image-rs/kbc/sample"
	"github.com/liudalibj/image-rs/oci"
	"github.com/liudalibj/image-rs/policy"
	"github.com/liudalibj/image-rs/resource"
	"github.com/liudalibj/image-rs/signaturediscovery"
	"github.com/liudalibj/image-rs/verifier"
	"github.com/opencontainers/go-digest"
	"go.uber.org/multierr"
)

// Options bundles the collaborators an Authorizer is assembled with.
type Options struct {
	// Client is the key broker client. nil selects a backend from the
	// configuration's aa_kbc_params.
	Client kbc.Client
	// Digests resolves tag references to manifest digests. Only needed
	// when pulls are not digest-pinned.
	Digests signaturediscovery.DigestResolver
	// Fetchers are additional signature stores consulted besides the
	// built-in lookaside store, e.g. registry-backed cosign discovery.
	Fetchers []signaturediscovery.Fetcher
	// Logger receives decision and fetch logs. nil means the default.
	Logger logging.Logger
}

// Authorizer is the pull-time gatekeeper. One Authorizer serves any number
// of concurrent pulls; per-pull state never outlives AuthorizePull.
type Authorizer struct {
	validate bool
	policies *policy.Store
	resolver *resource.Resolver
	digests  signaturediscovery.DigestResolver
	fetchers []signaturediscovery.Fetcher
	logger   logging.Logger
}

// NewAuthorizer assembles an Authorizer from configuration and
// collaborators. With security validation disabled the result authorizes
// everything and contacts no broker.
func NewAuthorizer(cfg *Config, opts Options) (*Authorizer, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.SimpleLogger()
	}
	a := &Authorizer{
		validate: cfg.SecurityValidate,
		digests:  opts.Digests,
		logger:   logger,
	}
	if !cfg.SecurityValidate {
		return a, nil
	}

	client := opts.Client
	if client == nil {
		var err error
		if client, err = newKBCClient(cfg, logger); err != nil {
			return nil, err
		}
	}
	a.resolver = resource.NewResolver(client, logger)
	a.policies = policy.NewStore(trustSource(cfg.PolicyURI, a.resolver), logger)

	lookaside := signaturediscovery.NewLookaside(trustSource(cfg.SigstoreConfigURI, a.resolver), logger)
	a.fetchers = append([]signaturediscovery.Fetcher{lookaside}, opts.Fetchers...)
	return a, nil
}

// newKBCClient selects the key broker backend named by the configuration.
func newKBCClient(cfg *Config, logger logging.Logger) (kbc.Client, error) {
	params, err := kbc.ParseAAParameters(cfg.AAKBCParams)
	if err != nil {
		return nil, err
	}
	switch params.KBCName {
	case kbc.SampleKBC:
		return sample.NewClient(), nil
	case kbc.OfflineFsKBC:
		return offlinefs.NewClient("")
	case kbc.CcKBC:
		return rest.NewClient(rest.Config{
			Endpoint:  params.KBSURI,
			TokenPath: filepath.Join(cfg.WorkDir, "token"),
			Logger:    logger,
		})
	default:
		return nil, fmt.Errorf("unsupported kbc backend %q", params.KBCName)
	}
}

// trustSource adapts a configuration source string to a loader: kbs://
// resources resolve through the broker, anything else reads from the local
// filesystem, with an optional file:// prefix.
func trustSource(src string, resolver *resource.Resolver) func(context.Context) ([]byte, error) {
	return func(ctx context.Context) ([]byte, error) {
		if strings.HasPrefix(src, "kbs://") {
			uri, err := kbc.ParseResourceURI(src)
			if err != nil {
				return nil, err
			}
			return resolver.Resolve(ctx, uri, nil)
		}
		return os.ReadFile(strings.TrimPrefix(src, "file://"))
	}
}

// AuthorizePull decides whether ref may be pulled. nil means allowed; any
// denial is a *DeniedError. params are optional per-pull key-value pairs
// forwarded on broker requests for this attempt.
func (a *Authorizer) AuthorizePull(ctx context.Context, ref image.Reference, params map[string]string) error {
	if !a.validate {
		a.logger.Info("security validation disabled, pull allowed", "image", ref.String())
		return nil
	}

	pol, err := a.policies.Snapshot(ctx)
	if err != nil {
		return a.deny(ref, Infrastructure, fmt.Errorf("loading security policy: %w", err))
	}
	decision := pol.Decide(ref)
	switch decision.Kind {
	case policy.KindUnrestricted:
		a.logger.Info("pull allowed", "image", ref.String(), "scope", decision.Scope, "requirement", "none")
		return nil
	case policy.KindReject:
		return a.deny(ref, PolicyRejected, fmt.Errorf("policy scope %q rejects this image", decision.Scope))
	}
	return a.authorizeSigned(ctx, ref, decision, params)
}

// authorizeSigned handles the require-signature verdict: locate artifacts,
// verify candidates under the scope's requirements, classify the failure
// when nothing verifies.
func (a *Authorizer) authorizeSigned(ctx context.Context, ref image.Reference, decision policy.Decision, params map[string]string) error {
	manifestDigest := ref.Digest()
	if manifestDigest == "" {
		if a.digests == nil {
			return a.deny(ref, Infrastructure, fmt.Errorf("reference is not digest-pinned and no digest resolver is configured"))
		}
		var err error
		if manifestDigest, err = a.digests.ResolveDigest(ctx, ref); err != nil {
			return a.deny(ref, Infrastructure, fmt.Errorf("resolving manifest digest: %w", err))
		}
	}

	var artifacts []oci.Signature
	var fetchErr error
	for _, fetcher := range a.fetchers {
		sigs, err := fetcher.FetchImageSignatures(ctx, ref, manifestDigest)
		if err != nil {
			fetchErr = multierr.Append(fetchErr, err)
			continue
		}
		artifacts = append(artifacts, sigs...)
	}
	if fetchErr != nil {
		return a.deny(ref, Infrastructure, fetchErr)
	}
	if len(artifacts) == 0 {
		return a.deny(ref, NoSignature, fmt.Errorf("no signature artifacts found for manifest %s", manifestDigest))
	}

	entries := make(map[oci.Scheme][]policy.SchemeRequirement)
	for _, req := range decision.Requirements {
		entries[req.Scheme()] = append(entries[req.Scheme()], req)
	}
	var candidates []oci.Signature
	for _, sig := range artifacts {
		if len(entries[sig.Scheme()]) > 0 {
			candidates = append(candidates, sig)
		}
	}
	if len(candidates) == 0 {
		return a.deny(ref, SchemeNotAllowed, fmt.Errorf("%d artifacts found, none under a scheme scope %q accepts", len(artifacts), decision.Scope))
	}

	var failures error
	rejected := false
	for _, sig := range candidates {
		for _, req := range entries[sig.Scheme()] {
			err := a.verifyOne(ctx, sig, ref, manifestDigest, req, params)
			if err == nil {
				a.logger.Info("pull allowed", "image", ref.String(),
					"scheme", string(sig.Scheme()), "scope", decision.Scope,
					"digest", manifestDigest.String())
				return nil
			}
			var rej *verifier.RejectedError
			if errors.As(err, &rej) {
				rejected = true
			}
			failures = multierr.Append(failures, err)
		}
	}
	if rejected {
		return a.deny(ref, SignatureRejected, failures)
	}
	return a.deny(ref, Infrastructure, failures)
}

// verifyOne evaluates a single artifact against a single requirement entry.
func (a *Authorizer) verifyOne(ctx context.Context, sig oci.Signature, ref image.Reference, manifestDigest digest.Digest, req policy.SchemeRequirement, params map[string]string) error {
	trust, err := a.resolveTrust(ctx, req, params)
	if err != nil {
		return err
	}
	schemeVerifier, err := verifier.ForScheme(req.Scheme())
	if err != nil {
		return err
	}
	return schemeVerifier.Verify(sig, ref, manifestDigest, trust)
}

// resolveTrust turns a requirement's key source into verification trust
// material: inline key data as-is, kbs:// keys through the resolver with
// the per-pull params, plain paths from the filesystem.
func (a *Authorizer) resolveTrust(ctx context.Context, req policy.SchemeRequirement, params map[string]string) (verifier.Trust, error) {
	trust := verifier.Trust{ExactReference: req.Identity() == policy.MatchExact}
	keyPath, keyData := req.Key()
	switch {
	case len(keyData) > 0:
		trust.Key = keyData
	case strings.HasPrefix(keyPath, "kbs://"):
		uri, err := kbc.ParseResourceURI(keyPath)
		if err != nil {
			return verifier.Trust{}, err
		}
		data, err := a.resolver.Resolve(ctx, uri, params)
		if err != nil {
			return verifier.Trust{}, err
		}
		trust.Key = data
	case keyPath != "":
		data, err := os.ReadFile(keyPath)
		if err != nil {
			return verifier.Trust{}, fmt.Errorf("reading trusted key from %s: %w", keyPath, err)
		}
		trust.Key = data
	default:
		return verifier.Trust{}, fmt.Errorf("requirement names no key source")
	}
	return trust, nil
}

func (a *Authorizer) deny(ref image.Reference, reason DenialReason, err error) error {
	e := &DeniedError{Reason: reason, Ref: ref.String(), Err: err}
	a.logger.Warn("pull denied", "image", e.Ref, "reason", string(reason), "cause", err.Error())
	return e
}

// Reload re-fetches the policy document and drops cached trust material.
// Pulls already in flight keep the snapshot they started with.
func (a *Authorizer) Reload(ctx context.Context) error {
	if !a.validate {
		return nil
	}
	a.resolver.Reset()
	return a.policies.Reload(ctx)
}

// Close releases the broker connection.
func (a *Authorizer) Close() error {
	if a.resolver == nil {
		return nil
	}
	return a.resolver.Close()
}
