// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package pool

import (
	"context"

	"github.com/juju/collections/set"
	"github.com/juju/errors"

	corepool "github.com/juju/termpool/core/pool"
	"github.com/juju/termpool/core/terminal"
)

// InitializeResources creates an Available lease record and a queue
// entry for every terminal in the initial set. Terminals that already
// have a record are skipped, so re-running initialization from a
// restarted replica disturbs nothing.
func (m *Manager) InitializeResources(ctx context.Context) error {
	created, err := m.activate(ctx, m.config.Terminals[:m.config.InitialCount])
	if err != nil {
		return errors.Trace(err)
	}
	logger.Infof("initialized %d of %d terminals", created, m.config.InitialCount)
	return nil
}

// IsInitialized reports whether the initial terminal set already has
// lease records, so callers can skip redundant initialization. Growth
// beyond the initial set keeps it true.
func (m *Manager) IsInitialized(ctx context.Context) (bool, error) {
	keys, err := m.config.Store.ScanKeys(ctx, m.config.RecordKeyPrefix+"*")
	if err != nil {
		return false, errors.Trace(err)
	}
	return len(keys) >= m.config.InitialCount, nil
}

// AddResources activates count configured terminals starting at
// startIndex, beyond the initial set. Terminals whose lease record
// already exists are skipped, which makes rolling expansion
// idempotent and harmless to existing leases.
func (m *Manager) AddResources(ctx context.Context, startIndex, count int) (int, error) {
	if startIndex < 0 || count < 0 {
		return 0, errors.NotValidf("terminal range [%d, %d)", startIndex, startIndex+count)
	}
	if startIndex >= len(m.config.Terminals) {
		return 0, nil
	}
	end := startIndex + count
	if end > len(m.config.Terminals) {
		end = len(m.config.Terminals)
	}
	created, err := m.activate(ctx, m.config.Terminals[startIndex:end])
	if err != nil {
		return created, errors.Trace(err)
	}
	logger.Infof("added %d terminals from index %d", created, startIndex)
	return created, nil
}

// activate creates records and queue entries for the supplied
// terminals, skipping ids that already have a record. The record is
// written before the queue entry for the same reason Release orders
// them that way.
func (m *Manager) activate(ctx context.Context, terminals []terminal.Terminal) (int, error) {
	seen := set.NewStrings()
	var created int
	for _, t := range terminals {
		if seen.Contains(t.ID) {
			logger.Warningf("duplicate terminal id %q in configuration, skipping", t.ID)
			continue
		}
		seen.Add(t.ID)

		exists, err := m.config.Store.KeyExists(ctx, m.recordKey(t.ID))
		if err != nil {
			return created, errors.Trace(err)
		}
		if exists {
			logger.Debugf("terminal %q already has a lease record, skipping", t.ID)
			continue
		}

		record := corepool.LeaseRecord{
			TerminalID:   t.ID,
			Status:       corepool.Available,
			LastActivity: m.config.Clock.Now(),
		}
		if err := m.config.Store.HashSet(ctx, m.recordKey(t.ID), record.Fields()); err != nil {
			return created, errors.Annotatef(err, "creating lease record for %q", t.ID)
		}
		if err := m.config.Store.Enqueue(ctx, m.config.QueueKey, t.ID); err != nil {
			return created, errors.Annotatef(err, "queuing terminal %q", t.ID)
		}
		created++
	}
	return created, nil
}
