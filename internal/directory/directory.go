// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package directory holds the immutable terminal metadata and serves
// it through an in-process read-through cache.
package directory

import (
	"sync"
	"sync/atomic"

	"github.com/juju/errors"
	"github.com/juju/loggo"

	"github.com/juju/termpool/core/terminal"
)

var logger = loggo.GetLogger("termpool.directory")

// Directory maps a terminal id to its immutable metadata with a
// cache in front of the full configuration snapshot. It is safe for
// concurrent use without external locking; concurrent inserts of the
// same id are idempotent (first writer wins).
type Directory struct {
	// snapshot is the full configuration, never mutated after New.
	snapshot map[string]terminal.Terminal

	// cache holds terminal.Terminal values keyed by id.
	cache sync.Map

	hits   atomic.Uint64
	misses atomic.Uint64
}

// New returns a Directory over the supplied configuration snapshot.
// Duplicate ids keep the first occurrence; later duplicates are
// logged and dropped.
func New(terminals []terminal.Terminal) *Directory {
	snapshot := make(map[string]terminal.Terminal, len(terminals))
	for _, t := range terminals {
		if _, ok := snapshot[t.ID]; ok {
			logger.Warningf("duplicate terminal id %q in configuration, keeping first", t.ID)
			continue
		}
		snapshot[t.ID] = t
	}
	return &Directory{snapshot: snapshot}
}

// Preload inserts every configured terminal into the cache. It is
// idempotent: entries already present are left untouched.
func (d *Directory) Preload() {
	for id, t := range d.snapshot {
		d.cache.LoadOrStore(id, t)
	}
}

// Lookup resolves a terminal id to its metadata. A cache hit or a
// re-derivable miss succeeds; an id with no backing configuration
// returns a not-found error and never populates the cache.
func (d *Directory) Lookup(id string) (terminal.Terminal, error) {
	if cached, ok := d.cache.Load(id); ok {
		d.hits.Add(1)
		return cached.(terminal.Terminal), nil
	}
	t, ok := d.snapshot[id]
	if !ok {
		return terminal.Terminal{}, errors.NotFoundf("terminal %q", id)
	}
	d.misses.Add(1)
	actual, _ := d.cache.LoadOrStore(id, t)
	return actual.(terminal.Terminal), nil
}

// Known reports whether the supplied id has backing configuration,
// without touching the cache or the counters.
func (d *Directory) Known(id string) bool {
	_, ok := d.snapshot[id]
	return ok
}

// Len returns the number of configured terminals.
func (d *Directory) Len() int {
	return len(d.snapshot)
}

// Metrics returns the cumulative cache hit and miss counts and the
// derived hit rate. The counters are monotonic for the process
// lifetime and reset only on restart.
func (d *Directory) Metrics() (hits, misses uint64, hitRate float64) {
	hits = d.hits.Load()
	misses = d.misses.Load()
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}
	return hits, misses, hitRate
}
