// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package pool implements the allocator at the heart of the terminal
// lease protocol. A terminal cycles Available -> InUse -> Available;
// cross-replica exclusivity rests entirely on the atomicity of the
// coordination store's dequeue, and the Available status is always
// written before the id is re-queued so that a racing Allocate can
// never observe a queued id with a stale record.
package pool

import (
	"context"
	"strings"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo"

	corepool "github.com/juju/termpool/core/pool"
	"github.com/juju/termpool/core/terminal"
	"github.com/juju/termpool/internal/coordination"
	"github.com/juju/termpool/internal/directory"
)

var logger = loggo.GetLogger("termpool.pool")

const (
	// DefaultQueueKey is the store key of the queue of available
	// terminal ids.
	DefaultQueueKey = "termpool:available"

	// DefaultRecordKeyPrefix prefixes the store key of every lease
	// record.
	DefaultRecordKeyPrefix = "termpool:lease:"

	// DefaultOrphanedTimeout is how stale an InUse lease's
	// last-activity must be before the reclaimer treats it as
	// abandoned.
	DefaultOrphanedTimeout = 30 * time.Second
)

// ManagerConfig collects the dependencies and settings of a Manager.
type ManagerConfig struct {

	// Store is the coordination store holding the queue and the
	// lease records.
	Store coordination.Store

	// Directory resolves terminal ids to their immutable metadata.
	Directory *directory.Directory

	// Clock supplies the time written into lease records.
	Clock clock.Clock

	// Owner is this process instance's stable identity, recorded on
	// every lease it holds.
	Owner string

	// Terminals is the full ordered configuration snapshot.
	// InitializeResources manages the first InitialCount entries;
	// AddResources activates later ones.
	Terminals []terminal.Terminal

	// InitialCount bounds the initial set. Zero means the whole of
	// Terminals.
	InitialCount int

	// QueueKey, RecordKeyPrefix and OrphanedTimeout default to the
	// package constants when unset.
	QueueKey        string
	RecordKeyPrefix string
	OrphanedTimeout time.Duration
}

// Validate returns an error if the config cannot drive a Manager.
func (config ManagerConfig) Validate() error {
	if config.Store == nil {
		return errors.NotValidf("nil Store")
	}
	if config.Directory == nil {
		return errors.NotValidf("nil Directory")
	}
	if config.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	if strings.TrimSpace(config.Owner) == "" {
		return errors.NotValidf("empty Owner")
	}
	if config.InitialCount < 0 || config.InitialCount > len(config.Terminals) {
		return errors.NotValidf("initial count %d of %d terminals", config.InitialCount, len(config.Terminals))
	}
	return nil
}

// Manager allocates and releases exclusive terminal leases.
type Manager struct {
	config ManagerConfig
}

// NewManager returns a Manager using the supplied config.
func NewManager(config ManagerConfig) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	if config.QueueKey == "" {
		config.QueueKey = DefaultQueueKey
	}
	if config.RecordKeyPrefix == "" {
		config.RecordKeyPrefix = DefaultRecordKeyPrefix
	}
	if config.OrphanedTimeout <= 0 {
		config.OrphanedTimeout = DefaultOrphanedTimeout
	}
	if config.InitialCount == 0 {
		config.InitialCount = len(config.Terminals)
	}
	return &Manager{config: config}, nil
}

// Allocate dequeues an available terminal, marks its lease InUse for
// this owner and returns the terminal metadata. It blocks for up to
// waitTimeout while the pool is empty and returns ErrTimeout when the
// wait expires; ErrTimeout is an expected outcome, not a fault.
//
// A dequeued id whose record has vanished or is already held is a
// stale queue entry (release idempotence permits duplicates); it is
// dropped and the wait resumes with the remaining budget. If the
// lease is claimed but the directory cannot resolve the id, the lease
// is deliberately left InUse for the reclaimer to repair, and the
// caller sees ErrMetadataNotFound, distinct from ErrTimeout.
func (m *Manager) Allocate(ctx context.Context, waitTimeout time.Duration) (terminal.Terminal, error) {
	deadline := m.config.Clock.Now().Add(waitTimeout)
	for {
		remaining := deadline.Sub(m.config.Clock.Now())
		if remaining <= 0 {
			return terminal.Terminal{}, corepool.ErrTimeout
		}

		id, err := m.config.Store.AtomicDequeue(ctx, m.config.QueueKey, remaining)
		if err != nil {
			return terminal.Terminal{}, errors.Trace(err)
		}
		if id == "" {
			return terminal.Terminal{}, corepool.ErrTimeout
		}

		claimed, err := m.claim(ctx, id)
		if err != nil {
			return terminal.Terminal{}, errors.Trace(err)
		}
		if !claimed {
			logger.Debugf("dropping stale queue entry for terminal %q", id)
			continue
		}

		t, err := m.config.Directory.Lookup(id)
		if errors.Is(err, errors.NotFound) {
			// The lease stays InUse on purpose: requeuing an id we
			// cannot resolve would hand the same failure to the next
			// caller, so it is stranded for the reclaimer instead.
			logger.Warningf("allocated terminal %q has no metadata, stranding lease for reclaim", id)
			return terminal.Terminal{}, errors.Annotatef(corepool.ErrMetadataNotFound, "terminal %q", id)
		} else if err != nil {
			return terminal.Terminal{}, errors.Trace(err)
		}

		logger.Debugf("allocated terminal %q to %q", id, m.config.Owner)
		return t, nil
	}
}

// claim marks the lease record for id InUse by this owner. It
// reports false, without writing, when the record no longer exists or
// is already held.
func (m *Manager) claim(ctx context.Context, id string) (bool, error) {
	fields, err := m.config.Store.HashGet(ctx, m.recordKey(id))
	if err != nil {
		return false, errors.Trace(err)
	}
	record, err := corepool.ParseFields(fields)
	if errors.Is(err, errors.NotFound) {
		return false, nil
	} else if err != nil {
		logger.Warningf("dequeued terminal %q has a malformed lease record: %v", id, err)
		return false, nil
	}
	if record.Status == corepool.InUse {
		return false, nil
	}

	record = corepool.LeaseRecord{
		TerminalID:   id,
		Status:       corepool.InUse,
		Owner:        m.config.Owner,
		LastActivity: m.config.Clock.Now(),
	}
	if err := m.config.Store.HashSet(ctx, m.recordKey(id), record.Fields()); err != nil {
		return false, errors.Trace(err)
	}
	return true, nil
}

// Release returns the terminal to the pool: the lease record is set
// Available with the owner cleared and last-activity refreshed, and
// only then is the id re-queued. The ordering, not a transaction, is
// what keeps a racing Allocate from seeing the id queued before the
// record says Available.
//
// Releasing a blank id is a no-op; releasing an already-available id
// republishes the record and queue entry, which the Allocate path
// tolerates as a stale duplicate.
func (m *Manager) Release(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return nil
	}
	record := corepool.LeaseRecord{
		TerminalID:   id,
		Status:       corepool.Available,
		LastActivity: m.config.Clock.Now(),
	}
	if err := m.config.Store.HashSet(ctx, m.recordKey(id), record.Fields()); err != nil {
		return errors.Trace(err)
	}
	if err := m.config.Store.Enqueue(ctx, m.config.QueueKey, id); err != nil {
		return errors.Trace(err)
	}
	logger.Debugf("released terminal %q", id)
	return nil
}

// Touch refreshes the last-activity timestamp of a lease this owner
// holds, keeping it clear of the orphan threshold.
func (m *Manager) Touch(ctx context.Context, id string) error {
	if err := corepool.ValidateID(id); err != nil {
		return errors.Trace(err)
	}
	fields, err := m.config.Store.HashGet(ctx, m.recordKey(id))
	if err != nil {
		return errors.Trace(err)
	}
	record, err := corepool.ParseFields(fields)
	if err != nil {
		return errors.Trace(err)
	}
	if record.Status != corepool.InUse || record.Owner != m.config.Owner {
		return errors.Errorf("terminal %q is not held by %q", id, m.config.Owner)
	}
	record.LastActivity = m.config.Clock.Now()
	return errors.Trace(m.config.Store.HashSet(ctx, m.recordKey(id), record.Fields()))
}

// CacheMetrics returns the directory cache's cumulative hit and miss
// counts and the derived hit rate.
func (m *Manager) CacheMetrics() (hits, misses uint64, hitRate float64) {
	return m.config.Directory.Metrics()
}

func (m *Manager) recordKey(id string) string {
	return m.config.RecordKeyPrefix + id
}

func (m *Manager) idFromKey(key string) string {
	return strings.TrimPrefix(key, m.config.RecordKeyPrefix)
}
