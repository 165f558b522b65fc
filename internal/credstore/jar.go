package credstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	slogctx "github.com/veqryn/slog-context"
)

type Option func(*Store)

// WithClock overrides the clock used to evaluate and compute expiries.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Store opens jars on top of a backend.
type Store struct {
	backend Backend
	now     func() time.Time
}

func NewStore(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s
}

// Open loads the jar identified by id. Unknown, malformed or unreadable jars
// are replaced by a new empty jar with a fresh identifier.
func (s *Store) Open(ctx context.Context, id string) *Jar {
	if !validID(id) {
		return s.newJar()
	}

	snapshot, err := s.backend.Load(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			slogctx.Warn(ctx, "Could not load credential jar", "error", err)
		}
		return s.newJar()
	}

	return &Jar{
		id:      id,
		backend: s.backend,
		now:     s.now,
		entries: snapshot.live(s.now()),
	}
}

func (s *Store) newJar() *Jar {
	return &Jar{
		id:      newID(),
		isNew:   true,
		backend: s.backend,
		now:     s.now,
		entries: Snapshot{},
	}
}

// Jar is the credential set of one browser session, loaded once per request.
type Jar struct {
	mu      sync.RWMutex
	id      string
	isNew   bool
	backend Backend
	now     func() time.Time
	entries Snapshot
}

func (j *Jar) ID() string {
	return j.id
}

// IsNew reports whether the jar was created for this request.
func (j *Jar) IsNew() bool {
	return j.isNew
}

// Now returns the current time of the jar clock.
func (j *Jar) Now() time.Time {
	return j.now()
}

// Get returns the value of a live entry.
func (j *Jar) Get(key Key) (string, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	e, ok := j.entries[key]
	if !ok || !j.now().Before(e.ExpiresAt) {
		return "", false
	}

	return e.Value, true
}

// Has reports whether key holds a live entry.
func (j *Jar) Has(key Key) bool {
	_, ok := j.Get(key)
	return ok
}

// Commit applies writes as one unit. A jar without access token holds no
// entries and a jar without HQ role holds no support grant. The jar is only
// updated if the backend accepted the new snapshot.
func (j *Jar) Commit(ctx context.Context, writes ...Write) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	now := j.now()
	next := j.entries.live(now)
	for _, w := range writes {
		if w.clear && w.key == KeyAccessToken {
			next = Snapshot{}
			continue
		}
		w.apply(next, now)
	}
	if _, ok := next[KeyAccessToken]; !ok {
		next = Snapshot{}
	}
	if _, ok := next[KeyHQRole]; !ok {
		for _, k := range SupportKeys {
			delete(next, k)
		}
	}

	if len(next) == 0 {
		if err := j.backend.Delete(ctx, j.id); err != nil {
			return fmt.Errorf("deleting credential jar: %w", err)
		}
		j.entries = next
		return nil
	}

	if err := j.backend.Save(ctx, j.id, next.clone(), next.latestExpiry().Sub(now)); err != nil {
		return fmt.Errorf("saving credential jar: %w", err)
	}
	j.entries = next
	j.isNew = false

	return nil
}

// Destroy clears every entry and removes the jar from the backend.
// The local entries are cleared even when the backend fails.
func (j *Jar) Destroy(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.entries = Snapshot{}
	if err := j.backend.Delete(ctx, j.id); err != nil {
		return fmt.Errorf("deleting credential jar: %w", err)
	}

	return nil
}
