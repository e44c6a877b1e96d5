package cache

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss is returned when a key is not present in the store, or
// its entry has expired.
var ErrCacheMiss = errors.New("cache miss")

// Store is the TTL key-value contract both backends implement. Values
// are opaque bytes; callers own serialization. Concurrent writers to
// the same key follow last-writer-wins, no transactional guarantees.
type Store interface {
	// Get retrieves the value stored under key, or ErrCacheMiss.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key for ttl, replacing any existing
	// entry. Entries with a non-positive TTL are not stored.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes the entry for key. Deleting an absent key is not
	// an error.
	Delete(ctx context.Context, key string) error
}

// TTLClass selects a cache duration tier. Every endpoint carries a
// fixed class.
type TTLClass string

const (
	// TTLSearch covers keyword search results.
	TTLSearch TTLClass = "search"

	// TTLDetail covers single-entity detail fetches.
	TTLDetail TTLClass = "detail"

	// TTLStatic covers release and language metadata that changes on
	// the upstream's release cadence.
	TTLStatic TTLClass = "static"
)

// TTLPolicy maps TTL classes to concrete durations.
type TTLPolicy struct {
	Search time.Duration
	Detail time.Duration
	Static time.Duration
}

// DefaultTTLPolicy returns the standard tiers: searches for an hour,
// details for a day, static metadata for a week.
func DefaultTTLPolicy() TTLPolicy {
	return TTLPolicy{
		Search: 1 * time.Hour,
		Detail: 24 * time.Hour,
		Static: 7 * 24 * time.Hour,
	}
}

// For returns the duration for a TTL class. Unknown classes fall back
// to the search tier, the shortest one.
func (p TTLPolicy) For(class TTLClass) time.Duration {
	switch class {
	case TTLDetail:
		return p.Detail
	case TTLStatic:
		return p.Static
	default:
		return p.Search
	}
}
