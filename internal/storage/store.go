// Package storage holds the per-platform attribution record collections.
// Two interchangeable backends exist: an in-memory store and a bbolt-backed
// durable store. Both enforce the same contract: one live record per device
// identifier, newest-within-window wins on retrieval, consume-on-read.
package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned by Take when no eligible record exists for the IP.
// It is a distinct, expected outcome, not a backend failure.
var ErrNotFound = errors.New("storage: record not found")

// Platform selects one of the two isolated record collections.
type Platform string

const (
	Android Platform = "android"
	IOS     Platform = "ios"
)

// Valid reports whether p names a known collection.
func (p Platform) Valid() bool {
	return p == Android || p == IOS
}

// Record is one device-attribution entry. CreatedAt is epoch milliseconds,
// set by the caller at store time.
type Record struct {
	IP           string `json:"ip"`
	ProviderCode string `json:"providerCode"`
	DeviceID     string `json:"deviceIdentifier"`
	CreatedAt    int64  `json:"createdAt"`
}

// Store is the persistence abstraction for attribution records.
// Implementations must be safe for concurrent use.
type Store interface {
	// Put inserts rec after removing any existing record with the same
	// device identifier in the platform's collection (replace-on-conflict).
	Put(p Platform, rec Record) error

	// Take returns the newest record for ip whose age is within the record
	// TTL and removes it from the collection (consume-once). Ties on
	// CreatedAt are broken by highest insertion id. Returns ErrNotFound
	// when no eligible record exists.
	Take(p Platform, ip string) (*Record, error)

	// Prune physically deletes every record older than the TTL across both
	// collections and returns the number removed.
	Prune() (int, error)

	// Count returns the number of records currently held for the platform,
	// including ones already past the eligibility window.
	Count(p Platform) (int, error)

	// DBPath returns the filesystem path of the database file ("" for in-memory).
	DBPath() string

	Close() error
}

// NowMillis returns t as epoch milliseconds, the CreatedAt wire unit.
func NowMillis(t time.Time) int64 { return t.UnixMilli() }

// eligible reports whether a record created at createdAt (epoch ms) is still
// within ttl as of now. The boundary is exclusive: a record exactly ttl old
// is no longer retrievable.
func eligible(createdAt int64, ttl time.Duration, now time.Time) bool {
	return now.UnixMilli()-createdAt < ttl.Milliseconds()
}
