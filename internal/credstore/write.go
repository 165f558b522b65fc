package credstore

import "time"

// Write is a single mutation applied by Jar.Commit.
type Write struct {
	key   Key
	value string
	ttl   time.Duration
	until time.Time
	clear bool
}

// Set replaces the value and expiry of key. The entry expires ttl after the commit.
func Set(key Key, value string, ttl time.Duration) Write {
	return Write{key: key, value: value, ttl: ttl}
}

// SetUntil replaces the value of key with an absolute expiry.
func SetUntil(key Key, value string, until time.Time) Write {
	return Write{key: key, value: value, until: until}
}

func Clear(key Key) Write {
	return Write{key: key, clear: true}
}

// ClearSupport removes every entry of the support session.
func ClearSupport() []Write {
	writes := make([]Write, 0, len(SupportKeys))
	for _, k := range SupportKeys {
		writes = append(writes, Clear(k))
	}

	return writes
}

func (w Write) apply(s Snapshot, now time.Time) {
	if w.clear {
		delete(s, w.key)
		return
	}

	expiresAt := w.until
	if expiresAt.IsZero() {
		expiresAt = now.Add(w.ttl)
	}
	if !now.Before(expiresAt) {
		delete(s, w.key)
		return
	}

	s[w.key] = Entry{Value: w.value, ExpiresAt: expiresAt}
}
