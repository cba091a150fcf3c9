package signaturediscovery

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/liudalibj/image-rs/image"
	"github.com/liudalibj/image-rs/oci/cosign"
	"github.com/opencontainers/go-digest"
	"github.com/opencontainers/image-spec/specs-go"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// fakeRegistry serves just enough of the registry v2 API to resolve tags
// and fetch the signature manifest and its layers.
type fakeRegistry struct {
	imageManifest     []byte
	imageDigest       digest.Digest
	sigTag            string
	sigManifest       []byte
	sigManifestDigest digest.Digest
	payload           []byte
	payloadDigest     digest.Digest
}

func (f *fakeRegistry) handler(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/v2/":
		w.WriteHeader(http.StatusOK)
	case "/v2/test/app/manifests/v1":
		f.serveManifest(w, r, f.imageManifest, f.imageDigest)
	case "/v2/test/app/manifests/" + f.sigTag,
		"/v2/test/app/manifests/" + f.sigManifestDigest.String():
		f.serveManifest(w, r, f.sigManifest, f.sigManifestDigest)
	case "/v2/test/app/blobs/" + f.payloadDigest.String():
		w.Write(f.payload)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeRegistry) serveManifest(w http.ResponseWriter, r *http.Request, body []byte, dgst digest.Digest) {
	w.Header().Set("Content-Type", ocispec.MediaTypeImageManifest)
	w.Header().Set("Docker-Content-Digest", dgst.String())
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	if r.Method == http.MethodHead {
		return
	}
	w.Write(body)
}

func newFakeRegistry(t *testing.T, payload []byte, base64Sig string) *fakeRegistry {
	t.Helper()

	imageManifest := []byte(`{"schemaVersion":2}`)
	imageDigest := digest.FromBytes(imageManifest)

	payloadDigest := digest.FromBytes(payload)
	config := []byte("{}")
	sigManifest, err := json.Marshal(ocispec.Manifest{
		Versioned: specs.Versioned{SchemaVersion: 2},
		MediaType: ocispec.MediaTypeImageManifest,
		Config: ocispec.Descriptor{
			MediaType: ocispec.MediaTypeImageConfig,
			Digest:    digest.FromBytes(config),
			Size:      int64(len(config)),
		},
		Layers: []ocispec.Descriptor{{
			MediaType:   cosign.SimpleSigningMediaType,
			Digest:      payloadDigest,
			Size:        int64(len(payload)),
			Annotations: map[string]string{cosign.CosignSigKey: base64Sig},
		}},
	})
	if err != nil {
		t.Fatalf("marshaling signature manifest: %v", err)
	}

	return &fakeRegistry{
		imageManifest:     imageManifest,
		imageDigest:       imageDigest,
		sigTag:            formatSigTag(imageDigest),
		sigManifest:       sigManifest,
		sigManifestDigest: digest.FromBytes(sigManifest),
		payload:           payload,
		payloadDigest:     payloadDigest,
	}
}

func TestRegistryClient(t *testing.T) {
	ctx := context.Background()
	payload := []byte(`{"critical": {"type": "cosign container image signature"}}`)
	base64Sig := base64.StdEncoding.EncodeToString([]byte("signature bytes"))
	registry := newFakeRegistry(t, payload, base64Sig)

	server := httptest.NewServer(http.HandlerFunc(registry.handler))
	defer server.Close()
	host := strings.TrimPrefix(server.URL, "http://")

	ref, err := image.ParseReference(host + "/test/app:v1")
	if err != nil {
		t.Fatalf("parsing reference: %v", err)
	}
	client := NewRegistryClient(WithPlainHTTP())

	gotDigest, err := client.ResolveDigest(ctx, ref)
	if err != nil {
		t.Fatalf("ResolveDigest failed: %v", err)
	}
	if gotDigest != registry.imageDigest {
		t.Fatalf("got digest %s, want %s", gotDigest, registry.imageDigest)
	}

	signatures, err := client.FetchImageSignatures(ctx, ref, gotDigest)
	if err != nil {
		t.Fatalf("FetchImageSignatures failed: %v", err)
	}
	if len(signatures) != 1 {
		t.Fatalf("got %d signatures, want 1", len(signatures))
	}
	blob, err := signatures[0].Blob()
	if err != nil {
		t.Fatalf("Blob() failed: %v", err)
	}
	if string(blob) != string(payload) {
		t.Errorf("got payload %q, want the stored blob", blob)
	}
	sig, ok := signatures[0].(*cosign.Sig)
	if !ok {
		t.Fatalf("signature is %T, want *cosign.Sig", signatures[0])
	}
	gotBase64, err := sig.Base64Encoded()
	if err != nil {
		t.Fatalf("Base64Encoded() failed: %v", err)
	}
	if gotBase64 != base64Sig {
		t.Errorf("got base64 signature %q, want %q", gotBase64, base64Sig)
	}
	if sig.SourceRepo != ref.Repository() {
		t.Errorf("got source repo %q, want %q", sig.SourceRepo, ref.Repository())
	}
}

func TestRegistryClientNoSignatureTag(t *testing.T) {
	ctx := context.Background()
	registry := newFakeRegistry(t, []byte("payload"), "c2ln")

	server := httptest.NewServer(http.HandlerFunc(registry.handler))
	defer server.Close()
	host := strings.TrimPrefix(server.URL, "http://")

	ref, err := image.ParseReference(host + "/test/app:v1")
	if err != nil {
		t.Fatalf("parsing reference: %v", err)
	}
	client := NewRegistryClient(WithPlainHTTP())

	signatures, err := client.FetchImageSignatures(ctx, ref, digest.FromString("unsigned image"))
	if err != nil {
		t.Fatalf("FetchImageSignatures failed for unsigned image: %v", err)
	}
	if signatures != nil {
		t.Errorf("got %d signatures for unsigned image, want none", len(signatures))
	}
}

func TestRegistryClientDigestPinnedResolve(t *testing.T) {
	pinned := digest.FromString("pinned manifest")
	ref, err := image.ParseReference("quay.io/team/app@" + pinned.String())
	if err != nil {
		t.Fatalf("parsing reference: %v", err)
	}
	client := NewRegistryClient()

	got, err := client.ResolveDigest(context.Background(), ref)
	if err != nil {
		t.Fatalf("ResolveDigest failed: %v", err)
	}
	if got != pinned {
		t.Errorf("got digest %s, want the pinned digest %s", got, pinned)
	}
}
