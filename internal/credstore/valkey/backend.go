// Package credvalkey keeps credential jars in valkey so that several gateway
// instances share them.
package credvalkey

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/openkcm/clinic-gateway/internal/credstore"
)

type ObjectType string

const objectTypeJar ObjectType = "jar"

var (
	ErrLoadJar   = errors.New("getting credential jar from store")
	ErrStoreJar  = errors.New("setting credential jar into storage")
	ErrDeleteJar = errors.New("deleting credential jar from store")
)

type Backend struct {
	store *store
}

var _ = credstore.Backend(&Backend{})

func NewBackend(valkeyClient valkey.Client, prefix string) *Backend {
	return &Backend{
		store: newStore(valkeyClient, prefix),
	}
}

func (b *Backend) Load(ctx context.Context, id string) (credstore.Snapshot, error) {
	var snapshot credstore.Snapshot
	if err := b.store.Get(ctx, objectTypeJar, id, &snapshot); err != nil {
		if errors.Is(err, errNil) {
			return nil, credstore.ErrNotFound
		}
		return nil, errors.Join(ErrLoadJar, err)
	}

	return snapshot, nil
}

// Save stores the snapshot with a TTL reclaiming the key once every entry expired.
func (b *Backend) Save(ctx context.Context, id string, snapshot credstore.Snapshot, ttl time.Duration) error {
	if ttl < time.Millisecond {
		return b.Delete(ctx, id)
	}

	if err := b.store.Set(ctx, objectTypeJar, id, snapshot, ttl); err != nil {
		return errors.Join(ErrStoreJar, err)
	}

	return nil
}

func (b *Backend) Delete(ctx context.Context, id string) error {
	if err := b.store.Destroy(ctx, objectTypeJar, id); err != nil {
		return fmt.Errorf("%w: %w", ErrDeleteJar, err)
	}

	return nil
}
