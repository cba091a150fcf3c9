package signaturediscovery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/liudalibj/image-rs/image"
	"github.com/liudalibj/image-rs/internal/logging"
	"github.com/liudalibj/image-rs/oci"
	"github.com/liudalibj/image-rs/oci/simplesigning"
	"github.com/opencontainers/go-digest"
)

func TestParseSigstoreConfig(t *testing.T) {
	testCases := []struct {
		name     string
		data     string
		wantPass bool
	}{
		{
			name:     "default store only",
			data:     "default-docker:\n  sigstore: file:///var/lib/containers/sigstore\n",
			wantPass: true,
		},
		{
			name:     "scoped stores",
			data:     "docker:\n  quay.io/team:\n    sigstore: https://sig.example.com/store\n",
			wantPass: true,
		},
		{
			name:     "lookaside spelling",
			data:     "default-docker:\n  lookaside: https://sig.example.com/store\n",
			wantPass: true,
		},
		{
			name:     "empty document",
			data:     "",
			wantPass: true,
		},
		{
			name:     "unknown field",
			data:     "default-docker:\n  sigstore-staging: file:///tmp/store\n",
			wantPass: false,
		},
		{
			name:     "not yaml",
			data:     "{{nope",
			wantPass: false,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseSigstoreConfig([]byte(tc.data))
			if gotPass := err == nil; gotPass != tc.wantPass {
				t.Errorf("ParseSigstoreConfig() error = %v, wantPass %v", err, tc.wantPass)
			}
		})
	}
}

func TestSigstoreConfigBaseURL(t *testing.T) {
	config := &SigstoreConfig{
		DefaultDocker: &SigstoreEntry{Sigstore: "file:///default"},
		Docker: map[string]*SigstoreEntry{
			"quay.io":          {Sigstore: "file:///host"},
			"quay.io/team":     {Sigstore: "file:///namespace"},
			"quay.io/team/app": {Lookaside: "file:///repo", Sigstore: "file:///repo-legacy"},
		},
	}

	testCases := []struct {
		name string
		ref  string
		want string
	}{
		{
			name: "repository scope wins and lookaside beats sigstore",
			ref:  "quay.io/team/app:v1",
			want: "file:///repo",
		},
		{
			name: "namespace scope",
			ref:  "quay.io/team/other:v1",
			want: "file:///namespace",
		},
		{
			name: "host scope",
			ref:  "quay.io/public/tool:v1",
			want: "file:///host",
		},
		{
			name: "default store off-host",
			ref:  "ghcr.io/acme/tool:v1",
			want: "file:///default",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ref, err := image.ParseReference(tc.ref)
			if err != nil {
				t.Fatalf("parsing reference %q: %v", tc.ref, err)
			}
			if got := config.BaseURL(ref); got != tc.want {
				t.Errorf("BaseURL(%q) = %q, want %q", tc.ref, got, tc.want)
			}
		})
	}

	empty := &SigstoreConfig{}
	ref, err := image.ParseReference("quay.io/team/app:v1")
	if err != nil {
		t.Fatalf("parsing reference: %v", err)
	}
	if got := empty.BaseURL(ref); got != "" {
		t.Errorf("BaseURL on empty config = %q, want empty", got)
	}
}

func staticSource(data []byte) Source {
	return func(context.Context) ([]byte, error) { return data, nil }
}

func TestLookasideFetchFromFile(t *testing.T) {
	ctx := context.Background()
	ref, err := image.ParseReference("quay.io/team/app:v1")
	if err != nil {
		t.Fatalf("parsing reference: %v", err)
	}
	manifestDigest := digest.FromString("manifest")

	storeDir := t.TempDir()
	sigDir := filepath.Join(storeDir, fmt.Sprintf("team/app@%s=%s",
		manifestDigest.Algorithm(), manifestDigest.Encoded()))
	if err := os.MkdirAll(sigDir, 0o755); err != nil {
		t.Fatalf("creating signature dir: %v", err)
	}
	for i, message := range []string{"first signed message", "second signed message"} {
		path := filepath.Join(sigDir, fmt.Sprintf("signature-%d", i+1))
		if err := os.WriteFile(path, []byte(message), 0o644); err != nil {
			t.Fatalf("writing signature file: %v", err)
		}
	}

	configYAML := fmt.Sprintf("default-docker:\n  sigstore: file://%s\n", storeDir)
	lookaside := NewLookaside(staticSource([]byte(configYAML)), logging.SimpleLogger())

	signatures, err := lookaside.FetchImageSignatures(ctx, ref, manifestDigest)
	if err != nil {
		t.Fatalf("FetchImageSignatures failed: %v", err)
	}
	if len(signatures) != 2 {
		t.Fatalf("got %d signatures, want 2", len(signatures))
	}
	first, ok := signatures[0].(*simplesigning.Sig)
	if !ok {
		t.Fatalf("signature is %T, want *simplesigning.Sig", signatures[0])
	}
	if string(first.Message) != "first signed message" {
		t.Errorf("got message %q, want the first lookaside entry", first.Message)
	}
	if first.Scheme() != oci.SchemeSimpleSigning {
		t.Errorf("got scheme %q, want %q", first.Scheme(), oci.SchemeSimpleSigning)
	}
}

func TestLookasideFetchFromFileNoneStored(t *testing.T) {
	ctx := context.Background()
	ref, err := image.ParseReference("quay.io/team/app:v1")
	if err != nil {
		t.Fatalf("parsing reference: %v", err)
	}
	configYAML := fmt.Sprintf("default-docker:\n  sigstore: file://%s\n", t.TempDir())
	lookaside := NewLookaside(staticSource([]byte(configYAML)), logging.SimpleLogger())

	signatures, err := lookaside.FetchImageSignatures(ctx, ref, digest.FromString("manifest"))
	if err != nil {
		t.Fatalf("FetchImageSignatures failed: %v", err)
	}
	if len(signatures) != 0 {
		t.Errorf("got %d signatures from empty store, want 0", len(signatures))
	}
}

func TestLookasideFetchFromHTTP(t *testing.T) {
	ctx := context.Background()
	ref, err := image.ParseReference("quay.io/team/app:v1")
	if err != nil {
		t.Fatalf("parsing reference: %v", err)
	}
	manifestDigest := digest.FromString("manifest")

	entries := map[string][]byte{
		fmt.Sprintf("/store/team/app@%s=%s/signature-1",
			manifestDigest.Algorithm(), manifestDigest.Encoded()): []byte("hosted signed message"),
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, ok := entries[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write(data)
	}))
	defer server.Close()

	configYAML := fmt.Sprintf("default-docker:\n  sigstore: %s/store\n", server.URL)
	lookaside := NewLookaside(staticSource([]byte(configYAML)), logging.SimpleLogger())

	signatures, err := lookaside.FetchImageSignatures(ctx, ref, manifestDigest)
	if err != nil {
		t.Fatalf("FetchImageSignatures failed: %v", err)
	}
	if len(signatures) != 1 {
		t.Fatalf("got %d signatures, want 1", len(signatures))
	}
	sig := signatures[0].(*simplesigning.Sig)
	if string(sig.Message) != "hosted signed message" {
		t.Errorf("got message %q, want the hosted entry", sig.Message)
	}
}

func TestLookasideHTTPServerError(t *testing.T) {
	ctx := context.Background()
	ref, err := image.ParseReference("quay.io/team/app:v1")
	if err != nil {
		t.Fatalf("parsing reference: %v", err)
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	configYAML := fmt.Sprintf("default-docker:\n  sigstore: %s/store\n", server.URL)
	lookaside := NewLookaside(staticSource([]byte(configYAML)), logging.SimpleLogger())

	if _, err := lookaside.FetchImageSignatures(ctx, ref, digest.FromString("manifest")); err == nil {
		t.Errorf("FetchImageSignatures succeeded against failing store, want error")
	}
}

func TestLookasideNoStoreConfigured(t *testing.T) {
	ctx := context.Background()
	ref, err := image.ParseReference("quay.io/team/app:v1")
	if err != nil {
		t.Fatalf("parsing reference: %v", err)
	}
	lookaside := NewLookaside(staticSource(nil), logging.SimpleLogger())

	signatures, err := lookaside.FetchImageSignatures(ctx, ref, digest.FromString("manifest"))
	if err != nil {
		t.Fatalf("FetchImageSignatures failed: %v", err)
	}
	if signatures != nil {
		t.Errorf("got %d signatures without a configured store, want none", len(signatures))
	}
}

func TestLookasideSourceFailure(t *testing.T) {
	ctx := context.Background()
	ref, err := image.ParseReference("quay.io/team/app:v1")
	if err != nil {
		t.Fatalf("parsing reference: %v", err)
	}
	wantErr := errors.New("resource channel down")
	lookaside := NewLookaside(func(context.Context) ([]byte, error) {
		return nil, wantErr
	}, logging.SimpleLogger())

	if _, err := lookaside.FetchImageSignatures(ctx, ref, digest.FromString("manifest")); !errors.Is(err, wantErr) {
		t.Errorf("FetchImageSignatures error = %v, want wrapped %v", err, wantErr)
	}
}
