package oci

import (
	"encoding/json"
	"fmt"

	digest "github.com/opencontainers/go-digest"
	"go.uber.org/multierr"
)

// CosignCriticalType is the value of `critical.type` in a simple signing
// format payload produced by cosign, specified in
// https://github.com/sigstore/cosign/blob/main/specs/SIGNATURE_SPEC.md#simple-signing
const CosignCriticalType = "cosign container image signature"

// AtomicCriticalType is the value of `critical.type` written by the original
// atomic/simple-signing toolchain for detached GPG signatures.
const AtomicCriticalType = "atomic container signature"

// Payload follows the simple signing format shared by cosign signatures and
// detached simple-signing claims.
type Payload struct {
	Critical Critical               `json:"critical"`
	Optional map[string]interface{} `json:"optional"`
}

// Critical contains data critical to correctly evaluating the validity of a
// signature.
type Critical struct {
	Identity Identity `json:"identity"`
	Image    Image    `json:"image"`
	Type     string   `json:"type"`
}

// Identity identifies the claimed identity of the image.
type Identity struct {
	DockerReference string `json:"docker-reference"`
}

// Image identifies the container image this signature applies to.
type Image struct {
	DockerManifestDigest string `json:"docker-manifest-digest"`
}

// Valid returns an error if the payload does not conform to the simple
// signing format.
func (p *Payload) Valid() error {
	var err error
	if p.Critical.Type != CosignCriticalType && p.Critical.Type != AtomicCriticalType {
		err = multierr.Append(err, fmt.Errorf("unknown critical type for simple signing payload: %s", p.Critical.Type))
	}
	if p.Critical.Identity.DockerReference == "" {
		err = multierr.Append(err, fmt.Errorf("payload is missing docker-reference identity"))
	}
	if _, e := digest.Parse(p.Critical.Image.DockerManifestDigest); e != nil {
		err = multierr.Append(err, fmt.Errorf("cannot parse image digest: %w", e))
	}
	return err
}

// Digest returns the manifest digest the payload claims to sign.
func (p *Payload) Digest() (digest.Digest, error) {
	return digest.Parse(p.Critical.Image.DockerManifestDigest)
}

// UnmarshalPayload unmarshals a byte slice to a payload and performs checks
// on the payload.
func UnmarshalPayload(data []byte) (*Payload, error) {
	var payload Payload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	if err := payload.Valid(); err != nil {
		return nil, err
	}
	return &payload, nil
}
