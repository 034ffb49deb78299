// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package pool

import (
	"strings"
	"time"

	"github.com/juju/errors"
)

// Status describes the lease state of a single terminal.
type Status string

const (
	// Available means the terminal is free to allocate and its id is
	// queued in the shared pool.
	Available Status = "available"

	// InUse means the terminal is exclusively held by the owner named
	// in the lease record.
	InUse Status = "inuse"
)

// Hash field names for a lease record in the shared store.
const (
	fieldTerminalID   = "terminal-id"
	fieldStatus       = "status"
	fieldOwner        = "owner"
	fieldLastActivity = "last-activity"
)

// LeaseRecord is the mutable, shared per-terminal lease state. One
// record exists per terminal, keyed by terminal id; records are
// created at initialization and never deleted while the terminal
// exists.
type LeaseRecord struct {

	// TerminalID names the terminal this record tracks.
	TerminalID string

	// Status is the current lease state.
	Status Status

	// Owner is the identity of the process holding the lease; empty
	// while the terminal is Available.
	Owner string

	// LastActivity is updated on allocation, explicit refresh and
	// release, and drives orphan reclamation.
	LastActivity time.Time
}

// Fields flattens the record into shared-store hash fields.
func (r LeaseRecord) Fields() map[string]string {
	return map[string]string{
		fieldTerminalID:   r.TerminalID,
		fieldStatus:       string(r.Status),
		fieldOwner:        r.Owner,
		fieldLastActivity: r.LastActivity.UTC().Format(time.RFC3339Nano),
	}
}

// ParseFields rebuilds a record from shared-store hash fields. An
// empty field map means the record does not exist and is reported as
// not found.
func ParseFields(fields map[string]string) (LeaseRecord, error) {
	if len(fields) == 0 {
		return LeaseRecord{}, errors.NotFoundf("lease record")
	}
	r := LeaseRecord{
		TerminalID: fields[fieldTerminalID],
		Status:     Status(fields[fieldStatus]),
		Owner:      fields[fieldOwner],
	}
	switch r.Status {
	case Available, InUse:
	default:
		return LeaseRecord{}, errors.NotValidf("lease status %q", fields[fieldStatus])
	}
	if raw := fields[fieldLastActivity]; raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return LeaseRecord{}, errors.NotValidf("lease last-activity %q", raw)
		}
		r.LastActivity = t
	}
	return r, nil
}

// ValidateID returns an error if the supplied terminal id is empty or
// whitespace-only.
func ValidateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.NotValidf("empty terminal id")
	}
	return nil
}

// ErrTimeout indicates the pool stayed empty past the caller's wait
// budget. It is an expected outcome, not a fault: the caller should
// retry or surface backpressure, and implementations must not log it
// as an error.
var ErrTimeout = errors.New("timed out waiting for a terminal")

// IsTimeout reports whether err indicates an allocation wait timeout.
func IsTimeout(err error) bool {
	return errors.Cause(err) == ErrTimeout
}

// ErrMetadataNotFound indicates a lease record exists with no
// resolvable terminal metadata behind it. The lease is deliberately
// left InUse rather than returned to the pool, so the orphan
// reclaimer eventually recovers it; callers should alert rather than
// silently retry.
var ErrMetadataNotFound = errors.New("terminal metadata not found")

// IsMetadataNotFound reports whether err indicates unresolvable
// terminal metadata.
func IsMetadataNotFound(err error) bool {
	return errors.Cause(err) == ErrMetadataNotFound
}
