// Package credmock provides an in-memory credential backend with error injection.
package credmock

import (
	"context"
	"sync"
	"time"

	"github.com/openkcm/clinic-gateway/internal/credstore"
)

type BackendOption func(*Backend)

type Backend struct {
	mu        sync.Mutex
	snapshots map[string]credstore.Snapshot
	ttls      map[string]time.Duration
	saves     int
	deletes   int

	loadErr, saveErr, deleteErr error
}

func WithSnapshot(id string, snapshot credstore.Snapshot) BackendOption {
	return func(b *Backend) { b.snapshots[id] = snapshot }
}
func WithLoadError(err error) BackendOption {
	return func(b *Backend) { b.loadErr = err }
}
func WithSaveError(err error) BackendOption {
	return func(b *Backend) { b.saveErr = err }
}
func WithDeleteError(err error) BackendOption {
	return func(b *Backend) { b.deleteErr = err }
}

var _ = credstore.Backend(&Backend{})

func NewBackend(opts ...BackendOption) *Backend {
	b := &Backend{
		snapshots: make(map[string]credstore.Snapshot),
		ttls:      make(map[string]time.Duration),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func (b *Backend) Load(_ context.Context, id string) (credstore.Snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.loadErr != nil {
		return nil, b.loadErr
	}
	s, ok := b.snapshots[id]
	if !ok {
		return nil, credstore.ErrNotFound
	}
	return copySnapshot(s), nil
}

func (b *Backend) Save(_ context.Context, id string, snapshot credstore.Snapshot, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.saveErr != nil {
		return b.saveErr
	}
	b.saves++
	b.snapshots[id] = copySnapshot(snapshot)
	b.ttls[id] = ttl
	return nil
}

func (b *Backend) Delete(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.deleteErr != nil {
		return b.deleteErr
	}
	b.deletes++
	delete(b.snapshots, id)
	delete(b.ttls, id)
	return nil
}

// Snapshot returns the stored snapshot of id.
func (b *Backend) Snapshot(id string) (credstore.Snapshot, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.snapshots[id]
	return copySnapshot(s), ok
}

// TTL returns the ttl id was last saved with.
func (b *Backend) TTL(id string) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.ttls[id]
}

func (b *Backend) Saves() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.saves
}

func (b *Backend) Deletes() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.deletes
}

func (b *Backend) SetSaveError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.saveErr = err
}

func copySnapshot(s credstore.Snapshot) credstore.Snapshot {
	if s == nil {
		return nil
	}
	c := make(credstore.Snapshot, len(s))
	for k, v := range s {
		c[k] = v
	}
	return c
}
