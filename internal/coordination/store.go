// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package coordination defines the primitive operations the pool
// protocol needs from the shared coordination store, together with a
// Redis substrate for production and an in-memory substrate for tests
// and single-process deployments.
//
// Cross-replica exclusion is delegated entirely to the atomicity of
// AtomicDequeue; nothing in this package takes in-process locks on
// behalf of other replicas.
package coordination

import (
	"context"
	"time"
)

// Store exposes the shared store's atomic primitives. Implementations
// must be safe for concurrent use. Any non-nil error from these
// methods is a transport-level failure talking to the store and must
// be propagated, never masked as success.
type Store interface {

	// AtomicDequeue removes and returns the oldest member of the
	// named queue, blocking for up to timeout while the queue is
	// empty. It returns ("", nil) when the wait expires with nothing
	// to take. The remove is atomic across replicas: no two callers
	// ever receive the same queue entry.
	//
	// Implementations backed by a shared transport must reserve a
	// dedicated handle for this call so that stalled dequeues can
	// never starve the mutating operations below.
	AtomicDequeue(ctx context.Context, queueKey string, timeout time.Duration) (string, error)

	// Enqueue appends id to the named queue without blocking.
	Enqueue(ctx context.Context, queueKey, id string) error

	// HashGet returns every field of the named hash, or an empty map
	// if the key does not exist.
	HashGet(ctx context.Context, key string) (map[string]string, error)

	// HashSet writes the supplied fields into the named hash,
	// creating it if necessary.
	HashSet(ctx context.Context, key string, fields map[string]string) error

	// KeyExists reports whether the named key exists.
	KeyExists(ctx context.Context, key string) (bool, error)

	// KeyExpire sets the time-to-live of an existing key. Expiring a
	// missing key is a no-op.
	KeyExpire(ctx context.Context, key string, ttl time.Duration) error

	// ScanKeys returns every key matching the supplied prefix
	// pattern (e.g. "lease:*"). Implementations must iterate
	// incrementally and tolerate large key counts without blocking
	// the store.
	ScanKeys(ctx context.Context, pattern string) ([]string, error)

	// StringGet returns the value of the named key, or "" if the key
	// does not exist or has expired.
	StringGet(ctx context.Context, key string) (string, error)

	// StringSet writes value under the named key with the supplied
	// time-to-live. A zero ttl means no expiry.
	StringSet(ctx context.Context, key, value string, ttl time.Duration) error
}
