// Package credstore holds the credentials of one browser session as a set of
// scoped, expiring entries. The entries never leave the server: the browser
// only carries the opaque identifier of its jar.
package credstore

import (
	"context"
	"errors"
	"time"
)

type Key string

const (
	KeyAccessToken       Key = "access_token"
	KeyRefreshToken      Key = "refresh_token"
	KeyHQRole            Key = "hq_role"
	KeyClinicSlug        Key = "clinic_slug"
	KeySupportToken      Key = "support_token"
	KeySupportClinicSlug Key = "support_clinic_slug"
	KeySupportExpiresAt  Key = "support_expires_at"
)

// SupportKeys are the entries forming a support session.
var SupportKeys = []Key{KeySupportToken, KeySupportClinicSlug, KeySupportExpiresAt}

var ErrNotFound = errors.New("credential jar not found")

type Entry struct {
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Snapshot is the complete entry set of one jar. It is persisted as a single value.
type Snapshot map[Key]Entry

// Backend persists snapshots. Load returns ErrNotFound for unknown identifiers.
type Backend interface {
	Load(ctx context.Context, id string) (Snapshot, error)
	Save(ctx context.Context, id string, snapshot Snapshot, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
}

func (s Snapshot) clone() Snapshot {
	c := make(Snapshot, len(s))
	for k, v := range s {
		c[k] = v
	}

	return c
}

// live drops the entries expired at now.
func (s Snapshot) live(now time.Time) Snapshot {
	c := make(Snapshot, len(s))
	for k, v := range s {
		if now.Before(v.ExpiresAt) {
			c[k] = v
		}
	}

	return c
}

func (s Snapshot) latestExpiry() time.Time {
	var latest time.Time
	for _, v := range s {
		if v.ExpiresAt.After(latest) {
			latest = v.ExpiresAt
		}
	}

	return latest
}
