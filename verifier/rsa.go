package verifier

import (
	"crypto"
	"crypto/rsa"
	"errors"
	"fmt"
)

// RSAPSSVerifier verifies RSASSA-PSS signatures.
type RSAPSSVerifier struct {
	hashFunc crypto.Hash
}

var _ Verifier = RSAPSSVerifier{}

// VerifySignature implements Verifier.
func (v RSAPSSVerifier) VerifySignature(payload, signature []byte, pubKey crypto.PublicKey) error {
	pub, ok := pubKey.(*rsa.PublicKey)
	if !ok {
		return fmt.Errorf("public key is not a rsa public key")
	}
	digest := computeDigest(v.hashFunc, payload)
	if digest == nil {
		return errors.New("failed to compute digest: invalid hash function specified")
	}
	return rsa.VerifyPSS(pub, v.hashFunc, digest, signature, &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthAuto,
	})
}

// RSAPKCS1V15Verifier verifies RSASSA-PKCS1 v1.5 signatures.
type RSAPKCS1V15Verifier struct {
	hashFunc crypto.Hash
}

var _ Verifier = RSAPKCS1V15Verifier{}

// VerifySignature implements Verifier.
func (v RSAPKCS1V15Verifier) VerifySignature(payload, signature []byte, pubKey crypto.PublicKey) error {
	pub, ok := pubKey.(*rsa.PublicKey)
	if !ok {
		return fmt.Errorf("public key is not a rsa public key")
	}
	digest := computeDigest(v.hashFunc, payload)
	if digest == nil {
		return errors.New("failed to compute digest: invalid hash function specified")
	}
	return rsa.VerifyPKCS1v15(pub, v.hashFunc, digest, signature)
}
