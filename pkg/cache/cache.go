// Package cache stores simulated layouts, saved positions and rendered
// artifacts behind a small key/value interface.
//
// Three backends are provided:
//   - [FileCache]: one JSON entry file per key, for the CLI
//   - [RedisCache]: shared storage for the HTTP host
//   - [NullCache]: caching disabled
//
// Keys are produced by a [Keyer] so every entry point derives the same key
// from the same graph and parameters.
package cache

import (
	"context"
	"time"
)

// Cache is a byte-oriented key/value store with per-entry TTLs.
type Cache interface {
	// Get returns the stored value and whether it was present. A missing or
	// expired entry is a miss, not an error.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores data under key. A ttl of zero means no expiry.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}

// Default entry lifetimes.
const (
	TTLLayout   = 7 * 24 * time.Hour
	TTLState    = 30 * 24 * time.Hour
	TTLArtifact = 7 * 24 * time.Hour
)

// Key types, used as key prefixes and as the keyType label of cache hooks.
const (
	KeyTypeLayout   = "layout"
	KeyTypeState    = "state"
	KeyTypeArtifact = "artifact"
)
