package verifier

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/ProtonMail/go-crypto/openpgp"
)

// parseKeyring loads an OpenPGP keyring from armored or binary bytes.
func parseKeyring(data []byte) (openpgp.EntityList, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.New("empty keyring")
	}
	if bytes.HasPrefix(trimmed, []byte("-----BEGIN")) {
		keyring, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(trimmed))
		if err != nil {
			return nil, fmt.Errorf("parsing armored keyring: %w", err)
		}
		return keyring, nil
	}
	keyring, err := openpgp.ReadKeyRing(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing keyring: %w", err)
	}
	return keyring, nil
}

// verifySignedMessage checks that message is an OpenPGP signed message
// carrying a valid signature from a key in the keyring, and returns the
// signed content.
func verifySignedMessage(keyring openpgp.EntityList, message []byte) ([]byte, error) {
	md, err := openpgp.ReadMessage(bytes.NewReader(message), keyring, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("parsing signed message: %w", err)
	}
	if !md.IsSigned {
		return nil, errors.New("message is not signed")
	}
	// SignatureError is only set once the body has been read through.
	content, err := io.ReadAll(md.UnverifiedBody)
	if err != nil {
		return nil, fmt.Errorf("reading signed content: %w", err)
	}
	if md.SignatureError != nil {
		return nil, fmt.Errorf("signature error: %w", md.SignatureError)
	}
	if md.SignedBy == nil {
		return nil, errors.New("message signed by an unknown key")
	}
	return content, nil
}
