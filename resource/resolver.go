// Package resource implements the trust-material resolver: a process-local
// cache over the key broker client with explicit invalidation. Material
// enters the cache only through a successful attested fetch; failures are
// never cached and stale bytes are never substituted.
package resource

import (
	"context"
	"sync"

	"github.com/liudalibj/image-rs/internal/logging"
	"github.com/liudalibj/image-rs/kbc"
	"golang.org/x/sync/singleflight"
)

// Resolver maps logical resource URIs to trust material bytes, delegating
// to the key broker on miss. Concurrent requests for the same URI share a
// single in-flight fetch. Distinct URIs, including differently named keys
// of the same type, are distinct entries.
type Resolver struct {
	client kbc.Client
	logger logging.Logger

	group singleflight.Group
	mu    sync.RWMutex
	cache map[string][]byte
}

// NewResolver returns a Resolver over client. logger may be nil.
func NewResolver(client kbc.Client, logger logging.Logger) *Resolver {
	if logger == nil {
		logger = logging.SimpleLogger()
	}
	return &Resolver{
		client: client,
		logger: logger,
		cache:  make(map[string][]byte),
	}
}

// Resolve returns the trust material identified by uri. params ride along
// on the broker request when a fetch happens. A broker failure, including
// cancellation mid-fetch, propagates to every waiting caller and leaves no
// cache entry behind.
func (r *Resolver) Resolve(ctx context.Context, uri kbc.ResourceURI, params map[string]string) ([]byte, error) {
	key := uri.String()

	r.mu.RLock()
	data, ok := r.cache[key]
	r.mu.RUnlock()
	if ok {
		return append([]byte(nil), data...), nil
	}

	fetched, err, _ := r.group.Do(key, func() (interface{}, error) {
		data, err := r.client.GetResource(ctx, uri, params)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.cache[key] = data
		r.mu.Unlock()
		r.logger.Debug("resolved trust material", "uri", key, "bytes", len(data))
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), fetched.([]byte)...), nil
}

// Invalidate drops the cache entry for uri, forcing the next Resolve to
// fetch through the broker again.
func (r *Resolver) Invalidate(uri kbc.ResourceURI) {
	r.mu.Lock()
	delete(r.cache, uri.String())
	r.mu.Unlock()
}

// Reset drops every cached entry.
func (r *Resolver) Reset() {
	r.mu.Lock()
	r.cache = make(map[string][]byte)
	r.mu.Unlock()
}

// Close closes the underlying broker client.
func (r *Resolver) Close() error {
	return r.client.Close()
}
