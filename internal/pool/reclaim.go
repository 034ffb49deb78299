// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package pool

import (
	"context"

	"github.com/juju/errors"

	corepool "github.com/juju/termpool/core/pool"
)

// ReclaimOrphans scans every lease record and returns to the pool
// each terminal that is InUse with a last-activity older than the
// orphan threshold. This is the backstop that repairs the pool after
// a replica crashes without releasing its leases.
//
// Records are read and written individually, not under a global
// lock, so the scan tolerates concurrent allocation and release. A
// terminal reclaimed moments around a legitimate release ends up
// Available either way.
func (m *Manager) ReclaimOrphans(ctx context.Context) (int, error) {
	keys, err := m.config.Store.ScanKeys(ctx, m.config.RecordKeyPrefix+"*")
	if err != nil {
		return 0, errors.Trace(err)
	}

	cutoff := m.config.Clock.Now().Add(-m.config.OrphanedTimeout)
	var reclaimed int
	for _, key := range keys {
		id := m.idFromKey(key)
		record, err := m.readRecord(ctx, key)
		if err != nil {
			logger.Warningf("skipping unreadable lease record %q: %v", key, err)
			continue
		}
		if record.Status != corepool.InUse || record.LastActivity.After(cutoff) {
			continue
		}
		if err := m.Release(ctx, id); err != nil {
			logger.Errorf("failed to reclaim orphaned terminal %q: %v", id, err)
			continue
		}
		logger.Infof("reclaimed orphaned terminal %q last held by %q", id, record.Owner)
		reclaimed++
	}
	return reclaimed, nil
}

// ReleaseOwned releases every lease currently held by this process
// identity and returns how many were released. It is the graceful
// shutdown path, and is strictly best-effort: a failure on one
// terminal never prevents an attempt on the rest, and no error
// escapes this boundary. Leases of other identities are untouched.
func (m *Manager) ReleaseOwned(ctx context.Context) int {
	keys, err := m.config.Store.ScanKeys(ctx, m.config.RecordKeyPrefix+"*")
	if err != nil {
		logger.Errorf("failed to scan lease records on shutdown: %v", err)
		return 0
	}

	var released int
	for _, key := range keys {
		id := m.idFromKey(key)
		record, err := m.readRecord(ctx, key)
		if err != nil {
			logger.Warningf("skipping unreadable lease record %q: %v", key, err)
			continue
		}
		if record.Status != corepool.InUse || record.Owner != m.config.Owner {
			continue
		}
		if err := m.Release(ctx, id); err != nil {
			logger.Errorf("failed to release terminal %q on shutdown: %v", id, err)
			continue
		}
		released++
	}
	if released > 0 {
		logger.Infof("released %d terminals held by %q", released, m.config.Owner)
	}
	return released
}

func (m *Manager) readRecord(ctx context.Context, key string) (corepool.LeaseRecord, error) {
	fields, err := m.config.Store.HashGet(ctx, key)
	if err != nil {
		return corepool.LeaseRecord{}, errors.Trace(err)
	}
	record, err := corepool.ParseFields(fields)
	if err != nil {
		return corepool.LeaseRecord{}, errors.Trace(err)
	}
	return record, nil
}
