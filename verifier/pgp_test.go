package verifier

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/ProtonMail/go-crypto/openpgp/packet"
)

func newSigningEntity(t *testing.T) *openpgp.Entity {
	t.Helper()
	entity, err := openpgp.NewEntity("test signer", "", "signer@example.com", nil)
	if err != nil {
		t.Fatalf("generating signing entity: %v", err)
	}
	return entity
}

func signMessage(t *testing.T, entity *openpgp.Entity, content []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	in, err := openpgp.Sign(&buf, entity, nil, nil)
	if err != nil {
		t.Fatalf("creating message signer: %v", err)
	}
	if _, err := in.Write(content); err != nil {
		t.Fatalf("writing signed content: %v", err)
	}
	if err := in.Close(); err != nil {
		t.Fatalf("finalizing signed message: %v", err)
	}
	return buf.Bytes()
}

func publicKeyring(t *testing.T, entity *openpgp.Entity) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := entity.Serialize(&buf); err != nil {
		t.Fatalf("serializing public keyring: %v", err)
	}
	return buf.Bytes()
}

func armoredPublicKeyring(t *testing.T, entity *openpgp.Entity) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := armor.Encode(&buf, openpgp.PublicKeyType, nil)
	if err != nil {
		t.Fatalf("creating armor encoder: %v", err)
	}
	if err := entity.Serialize(w); err != nil {
		t.Fatalf("serializing public keyring: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("finalizing armored keyring: %v", err)
	}
	return buf.Bytes()
}

func TestVerifySignedMessage(t *testing.T) {
	entity := newSigningEntity(t)
	content := []byte(`{"critical":{}}`)
	message := signMessage(t, entity, content)

	for _, tc := range []struct {
		name    string
		keyring []byte
	}{
		{name: "binary keyring", keyring: publicKeyring(t, entity)},
		{name: "armored keyring", keyring: armoredPublicKeyring(t, entity)},
	} {
		t.Run(tc.name, func(t *testing.T) {
			keyring, err := parseKeyring(tc.keyring)
			if err != nil {
				t.Fatalf("parseKeyring() failed: %v", err)
			}
			got, err := verifySignedMessage(keyring, message)
			if err != nil {
				t.Fatalf("verifySignedMessage() failed: %v", err)
			}
			if !bytes.Equal(got, content) {
				t.Errorf("got signed content %q, want %q", got, content)
			}
		})
	}
}

func TestVerifySignedMessageWrongKeyring(t *testing.T) {
	signer := newSigningEntity(t)
	other := newSigningEntity(t)
	message := signMessage(t, signer, []byte("content"))

	keyring, err := parseKeyring(publicKeyring(t, other))
	if err != nil {
		t.Fatalf("parseKeyring() failed: %v", err)
	}
	if _, err := verifySignedMessage(keyring, message); err == nil {
		t.Errorf("verifySignedMessage() accepted a message signed by an unknown key")
	}
}

func TestVerifySignedMessageTampered(t *testing.T) {
	entity := newSigningEntity(t)
	message := signMessage(t, entity, []byte("content"))
	// Flip a bit in the trailing signature packet.
	tampered := bytes.Clone(message)
	tampered[len(tampered)-8] ^= 0x01

	keyring, err := parseKeyring(publicKeyring(t, entity))
	if err != nil {
		t.Fatalf("parseKeyring() failed: %v", err)
	}
	if _, err := verifySignedMessage(keyring, tampered); err == nil {
		t.Errorf("verifySignedMessage() accepted a tampered message")
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

func TestVerifySignedMessageUnsigned(t *testing.T) {
	entity := newSigningEntity(t)
	var buf bytes.Buffer
	literal, err := packet.SerializeLiteral(nopWriteCloser{&buf}, true, "", 0)
	if err != nil {
		t.Fatalf("creating literal packet: %v", err)
	}
	if _, err := literal.Write([]byte("content")); err != nil {
		t.Fatalf("writing literal content: %v", err)
	}
	if err := literal.Close(); err != nil {
		t.Fatalf("finalizing literal packet: %v", err)
	}

	keyring, err := parseKeyring(publicKeyring(t, entity))
	if err != nil {
		t.Fatalf("parseKeyring() failed: %v", err)
	}
	if _, err := verifySignedMessage(keyring, buf.Bytes()); err == nil || !strings.Contains(err.Error(), "not signed") {
		t.Errorf("verifySignedMessage() error = %v, want message-not-signed error", err)
	}
}

func TestParseKeyringFailedCases(t *testing.T) {
	testCases := []struct {
		name    string
		data    []byte
		wantErr string
	}{
		{
			name:    "empty input",
			data:    nil,
			wantErr: "empty keyring",
		},
		{
			name:    "whitespace only",
			data:    []byte("  \n\t"),
			wantErr: "empty keyring",
		},
		{
			name:    "corrupt armored input",
			data:    []byte("-----BEGIN PGP PUBLIC KEY BLOCK-----\nnot a key\n-----END PGP PUBLIC KEY BLOCK-----"),
			wantErr: "parsing armored keyring",
		},
		{
			name:    "corrupt binary input",
			data:    []byte{0x01, 0x02, 0x03},
			wantErr: "parsing keyring",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := parseKeyring(tc.data); err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("parseKeyring() error = %v, want containing %q", err, tc.wantErr)
			}
		})
	}
}
