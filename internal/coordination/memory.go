// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package coordination

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
)

// MemStore is an in-memory Store. It backs the test suites and is a
// usable substrate for single-process deployments where no external
// store is available; it provides the same atomicity guarantees
// within the one process.
type MemStore struct {
	clock clock.Clock

	mu       sync.Mutex
	queues   map[string][]string
	hashes   map[string]map[string]string
	strings  map[string]string
	expiries map[string]time.Time

	// signal is closed and replaced whenever an enqueue happens, to
	// wake every blocked dequeue for another look at its queue.
	signal chan struct{}
}

// NewMemStore returns an empty in-memory store. The supplied clock
// drives dequeue timeouts and TTL expiry; pass clock.WallClock
// outside tests.
func NewMemStore(clk clock.Clock) *MemStore {
	return &MemStore{
		clock:    clk,
		queues:   make(map[string][]string),
		hashes:   make(map[string]map[string]string),
		strings:  make(map[string]string),
		expiries: make(map[string]time.Time),
		signal:   make(chan struct{}),
	}
}

// AtomicDequeue is part of the Store interface.
func (s *MemStore) AtomicDequeue(ctx context.Context, queueKey string, timeout time.Duration) (string, error) {
	timer := s.clock.NewTimer(timeout)
	defer timer.Stop()

	for {
		s.mu.Lock()
		if q := s.queues[queueKey]; len(q) > 0 {
			id := q[0]
			s.queues[queueKey] = q[1:]
			s.mu.Unlock()
			return id, nil
		}
		wake := s.signal
		s.mu.Unlock()

		select {
		case <-wake:
		case <-timer.Chan():
			return "", nil
		case <-ctx.Done():
			return "", errors.Trace(ctx.Err())
		}
	}
}

// Enqueue is part of the Store interface.
func (s *MemStore) Enqueue(_ context.Context, queueKey, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queues[queueKey] = append(s.queues[queueKey], id)
	close(s.signal)
	s.signal = make(chan struct{})
	return nil
}

// HashGet is part of the Store interface.
func (s *MemStore) HashGet(_ context.Context, key string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reap(key)
	fields := make(map[string]string, len(s.hashes[key]))
	for k, v := range s.hashes[key] {
		fields[k] = v
	}
	return fields, nil
}

// HashSet is part of the Store interface.
func (s *MemStore) HashSet(_ context.Context, key string, fields map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reap(key)
	h := s.hashes[key]
	if h == nil {
		h = make(map[string]string)
		s.hashes[key] = h
	}
	for k, v := range fields {
		h[k] = v
	}
	return nil
}

// KeyExists is part of the Store interface.
func (s *MemStore) KeyExists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reap(key)
	if _, ok := s.hashes[key]; ok {
		return true, nil
	}
	if _, ok := s.strings[key]; ok {
		return true, nil
	}
	return len(s.queues[key]) > 0, nil
}

// KeyExpire is part of the Store interface.
func (s *MemStore) KeyExpire(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reap(key)
	_, isHash := s.hashes[key]
	_, isString := s.strings[key]
	if !isHash && !isString {
		return nil
	}
	s.expiries[key] = s.clock.Now().Add(ttl)
	return nil
}

// ScanKeys is part of the Store interface. Patterns are limited to
// the prefix form used by the pool protocol: a literal prefix with a
// trailing "*", or a literal key.
func (s *MemStore) ScanKeys(_ context.Context, pattern string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	match := func(key string) bool { return key == pattern }
	if strings.HasSuffix(pattern, "*") {
		prefix := strings.TrimSuffix(pattern, "*")
		match = func(key string) bool { return strings.HasPrefix(key, prefix) }
	}

	var keys []string
	for key := range s.hashes {
		s.reap(key)
		if _, ok := s.hashes[key]; ok && match(key) {
			keys = append(keys, key)
		}
	}
	for key := range s.strings {
		s.reap(key)
		if _, ok := s.strings[key]; ok && match(key) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// StringGet is part of the Store interface.
func (s *MemStore) StringGet(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reap(key)
	return s.strings[key], nil
}

// StringSet is part of the Store interface.
func (s *MemStore) StringSet(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.strings[key] = value
	if ttl > 0 {
		s.expiries[key] = s.clock.Now().Add(ttl)
	} else {
		delete(s.expiries, key)
	}
	return nil
}

// reap drops the key if its TTL has lapsed. Expiry is evaluated
// lazily on access, which is indistinguishable from eager expiry to
// callers of this interface. Callers must hold mu.
func (s *MemStore) reap(key string) {
	deadline, ok := s.expiries[key]
	if !ok || s.clock.Now().Before(deadline) {
		return
	}
	delete(s.expiries, key)
	delete(s.hashes, key)
	delete(s.strings, key)
}
