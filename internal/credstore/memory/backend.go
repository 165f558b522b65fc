// Package credmemory keeps credential jars in process memory.
package credmemory

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/openkcm/clinic-gateway/internal/credstore"
)

type Backend struct {
	cache *cache.Cache
}

var _ = credstore.Backend(&Backend{})

// NewBackend creates a backend purging expired jars every cleanupInterval.
func NewBackend(cleanupInterval time.Duration) *Backend {
	return &Backend{
		cache: cache.New(cache.NoExpiration, cleanupInterval),
	}
}

func (b *Backend) Load(_ context.Context, id string) (credstore.Snapshot, error) {
	v, ok := b.cache.Get(id)
	if !ok {
		return nil, credstore.ErrNotFound
	}

	snapshot, ok := v.(credstore.Snapshot)
	if !ok {
		return nil, credstore.ErrNotFound
	}

	return copySnapshot(snapshot), nil
}

func (b *Backend) Save(_ context.Context, id string, snapshot credstore.Snapshot, ttl time.Duration) error {
	if ttl <= 0 {
		b.cache.Delete(id)
		return nil
	}

	b.cache.Set(id, copySnapshot(snapshot), ttl)

	return nil
}

func (b *Backend) Delete(_ context.Context, id string) error {
	b.cache.Delete(id)
	return nil
}

func copySnapshot(s credstore.Snapshot) credstore.Snapshot {
	c := make(credstore.Snapshot, len(s))
	for k, v := range s {
		c[k] = v
	}

	return c
}
