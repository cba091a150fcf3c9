package policy

import (
	"context"
	"fmt"
	"sync"

	"github.com/liudalibj/image-rs/internal/logging"
)

// Loader fetches the raw policy document, typically from a KBS resource
// or a local file.
type Loader func(ctx context.Context) ([]byte, error)

// Store holds the live policy and serves immutable snapshots of it.
// Every pull evaluates against a single snapshot, so a concurrent
// Reload never splits one pull across two policy versions.
type Store struct {
	loader Loader
	logger logging.Logger

	mu      sync.RWMutex
	current *Policy
}

// NewStore returns a Store that loads its document through loader. The
// document is not fetched until the first Snapshot or Reload.
func NewStore(loader Loader, logger logging.Logger) *Store {
	if logger == nil {
		logger = logging.SimpleLogger()
	}
	return &Store{loader: loader, logger: logger}
}

// Snapshot returns the current policy, loading it first if no load has
// succeeded yet. The returned Policy is shared and must not be mutated.
func (s *Store) Snapshot(ctx context.Context) (*Policy, error) {
	s.mu.RLock()
	current := s.current
	s.mu.RUnlock()
	if current != nil {
		return current, nil
	}
	if err := s.Reload(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, nil
}

// Reload fetches and parses the policy document, replacing the current
// snapshot on success. On failure the previous snapshot stays in place.
func (s *Store) Reload(ctx context.Context) error {
	data, err := s.loader(ctx)
	if err != nil {
		return fmt.Errorf("loading policy document: %w", err)
	}
	policy, err := Parse(data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.current = policy
	s.mu.Unlock()
	s.logger.Info("security policy loaded",
		"default_requirements", len(policy.Default),
		"docker_scopes", len(policy.Docker))
	return nil
}
