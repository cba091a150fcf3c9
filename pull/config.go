package pull

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/liudalibj/image-rs/kbc"
)

// Defaults for operator-omitted configuration fields. The resource URIs
// are the conventional names brokers provision trust material under.
const (
	DefaultPolicyURI         = "kbs:///default/security-policy/test"
	DefaultSigstoreConfigURI = "kbs:///default/sigstore-config/test"
	DefaultWorkDir           = "/run/image-rs"
)

// Config is the operator-provided configuration for pull authorization.
// It carries no registry or CLI plumbing; those arrive as collaborators.
type Config struct {
	// AAKBCParams selects the key broker backend and endpoint, in the
	// attestation agent form "<kbc_name>::<kbs_uri>".
	AAKBCParams string `json:"aa_kbc_params"`
	// SecurityValidate gates signature verification. False authorizes
	// every pull without consulting policy.
	SecurityValidate bool `json:"security_validate"`
	// PolicyURI locates the policy document: a kbs:// resource, a
	// file:// URL or a plain path.
	PolicyURI string `json:"policy_uri"`
	// SigstoreConfigURI locates the registries.d lookaside
	// configuration, same forms as PolicyURI.
	SigstoreConfigURI string `json:"sigstore_config_uri"`
	// WorkDir is the scratch directory for backend state such as the
	// broker token file.
	WorkDir string `json:"work_dir"`
}

// ParseConfig decodes a Config from JSON, refusing unknown fields, and
// fills in defaults for omitted ones.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing pull configuration: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.PolicyURI == "" {
		c.PolicyURI = DefaultPolicyURI
	}
	if c.SigstoreConfigURI == "" {
		c.SigstoreConfigURI = DefaultSigstoreConfigURI
	}
	if c.WorkDir == "" {
		c.WorkDir = DefaultWorkDir
	}
}

func (c *Config) validate() error {
	if !c.SecurityValidate {
		return nil
	}
	if c.AAKBCParams == "" {
		return fmt.Errorf("security validation is enabled but aa_kbc_params is not set")
	}
	if _, err := kbc.ParseAAParameters(c.AAKBCParams); err != nil {
		return err
	}
	return nil
}
