package signaturediscovery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/liudalibj/image-rs/image"
	"github.com/liudalibj/image-rs/internal/logging"
	"github.com/liudalibj/image-rs/oci"
	"github.com/liudalibj/image-rs/oci/simplesigning"
	"github.com/opencontainers/go-digest"
	"gopkg.in/yaml.v3"
)

// maxLookasideSignatures bounds how many lookaside entries are read for
// one image, so a hostile store cannot feed an unbounded list.
const maxLookasideSignatures = 32

// SigstoreConfig is the registries.d-style configuration naming the
// lookaside stores that hold simple-signing signatures.
type SigstoreConfig struct {
	DefaultDocker *SigstoreEntry            `yaml:"default-docker"`
	Docker        map[string]*SigstoreEntry `yaml:"docker"`
}

// SigstoreEntry names one lookaside store. Lookaside is the current key,
// Sigstore the legacy spelling; Lookaside wins when both are set.
type SigstoreEntry struct {
	Lookaside string `yaml:"lookaside"`
	Sigstore  string `yaml:"sigstore"`
}

func (e *SigstoreEntry) baseURL() string {
	if e == nil {
		return ""
	}
	if e.Lookaside != "" {
		return e.Lookaside
	}
	return e.Sigstore
}

// ParseSigstoreConfig parses a registries.d-style YAML document. Unknown
// fields fail the parse.
func ParseSigstoreConfig(data []byte) (*SigstoreConfig, error) {
	config := &SigstoreConfig{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(config); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing sigstore configuration: %w", err)
	}
	return config, nil
}

// BaseURL returns the lookaside store base URL governing ref: the most
// specific docker scope wins, then default-docker. Empty when no store
// is configured for the image.
func (c *SigstoreConfig) BaseURL(ref image.Reference) string {
	repo := ref.Repository()
	candidates := make([]string, 0, 2+strings.Count(repo, "/"))
	candidates = append(candidates, repo)
	for rest := repo; ; {
		i := strings.LastIndex(rest, "/")
		if i < 0 {
			break
		}
		rest = rest[:i]
		candidates = append(candidates, rest)
	}
	for _, scope := range candidates {
		if entry, ok := c.Docker[scope]; ok {
			return entry.baseURL()
		}
	}
	return c.DefaultDocker.baseURL()
}

// Lookaside discovers simple-signing signatures in the sigstore store
// configured for the image's registry. Signatures live at
// <base>/<repo-path>@<alg>=<hex>/signature-<n>, counted from 1, over
// file:// or HTTP(S).
type Lookaside struct {
	source Source
	client *http.Client
	logger logging.Logger
}

// Source supplies the raw sigstore configuration YAML, typically from a
// local registries.d file or a KBS resource.
type Source func(ctx context.Context) ([]byte, error)

// NewLookaside creates a lookaside discovery client reading its
// configuration through source.
func NewLookaside(source Source, logger logging.Logger) *Lookaside {
	if logger == nil {
		logger = logging.SimpleLogger()
	}
	return &Lookaside{
		source: source,
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger,
	}
}

// FetchImageSignatures reads the lookaside entries covering the manifest
// digest. No configured store or an empty signature directory yields no
// artifacts and no error.
func (l *Lookaside) FetchImageSignatures(ctx context.Context, ref image.Reference, manifestDigest digest.Digest) ([]oci.Signature, error) {
	raw, err := l.source(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading sigstore configuration: %w", err)
	}
	config, err := ParseSigstoreConfig(raw)
	if err != nil {
		return nil, err
	}
	base := config.BaseURL(ref)
	if base == "" {
		l.logger.Debug("no sigstore store configured", "image", ref.String())
		return nil, nil
	}

	sigDir := fmt.Sprintf("%s/%s@%s=%s", strings.TrimSuffix(base, "/"),
		ref.Path(), manifestDigest.Algorithm(), manifestDigest.Encoded())
	var signatures []oci.Signature
	for i := 1; i <= maxLookasideSignatures; i++ {
		sigURL := fmt.Sprintf("%s/signature-%d", sigDir, i)
		message, found, err := l.read(ctx, sigURL)
		if err != nil {
			return nil, err
		}
		if !found {
			break
		}
		signatures = append(signatures, &simplesigning.Sig{
			Message: message,
			Source:  sigURL,
		})
	}
	return signatures, nil
}

// read fetches one lookaside entry. found is false when the entry does
// not exist; errors mean the store could not be consulted.
func (l *Lookaside) read(ctx context.Context, rawURL string) (data []byte, found bool, err error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, false, fmt.Errorf("invalid lookaside url %q: %w", rawURL, err)
	}
	switch parsed.Scheme {
	case "file":
		data, err := os.ReadFile(filepath.FromSlash(parsed.Path))
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		if err != nil {
			return nil, false, fmt.Errorf("reading lookaside entry %q: %w", rawURL, err)
		}
		return data, true, nil

	case "http", "https":
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, false, err
		}
		resp, err := l.client.Do(req)
		if err != nil {
			return nil, false, fmt.Errorf("fetching lookaside entry %q: %w", rawURL, err)
		}
		defer resp.Body.Close()
		switch {
		case resp.StatusCode == http.StatusNotFound:
			return nil, false, nil
		case resp.StatusCode != http.StatusOK:
			return nil, false, fmt.Errorf("fetching lookaside entry %q: status %d", rawURL, resp.StatusCode)
		}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, false, fmt.Errorf("reading lookaside entry %q: %w", rawURL, err)
		}
		return data, true, nil

	default:
		return nil, false, fmt.Errorf("unsupported lookaside url scheme %q", parsed.Scheme)
	}
}
