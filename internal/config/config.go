// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package config coerces the loose attribute map handed to the
// service into typed settings, and parses the configured terminal
// records.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/juju/schema"

	"github.com/juju/termpool/core/terminal"
)

var logger = loggo.GetLogger("termpool.config")

const (
	// DefaultSessionTimeout is the session TTL in seconds.
	DefaultSessionTimeout = 3600

	// DefaultOrphanedTimeout is the orphan threshold in seconds.
	DefaultOrphanedTimeout = 30

	// DefaultReclaimInterval is the reclaim scan period in seconds.
	DefaultReclaimInterval = 15
)

var fields = schema.Fields{
	"owner-id":               schema.String(),
	"session-timeout":        schema.ForceInt(),
	"orphaned-timeout":       schema.ForceInt(),
	"reclaim-interval":       schema.ForceInt(),
	"initial-terminal-count": schema.ForceInt(),
}

var defaults = schema.Defaults{
	"owner-id":               schema.Omit,
	"session-timeout":        DefaultSessionTimeout,
	"orphaned-timeout":       DefaultOrphanedTimeout,
	"reclaim-interval":       DefaultReclaimInterval,
	"initial-terminal-count": 0,
}

var checker = schema.FieldMap(fields, defaults)

// Settings holds the typed configuration of the pool core.
type Settings struct {

	// OwnerID is this process instance's stable identity.
	OwnerID string

	// SessionTimeout is the TTL applied to session records.
	SessionTimeout time.Duration

	// OrphanedTimeout is how stale an InUse lease must be before
	// reclamation.
	OrphanedTimeout time.Duration

	// ReclaimInterval is the period of the orphan reclaim scan.
	ReclaimInterval time.Duration

	// InitialTerminalCount bounds the initial terminal set; zero
	// means all configured terminals.
	InitialTerminalCount int
}

// New coerces the supplied attributes into Settings. Unset values
// take the package defaults; an unset owner-id is derived from the
// host name so that replicas get distinct, stable-enough identities.
func New(attrs map[string]interface{}) (Settings, error) {
	coerced, err := checker.Coerce(attrs, nil)
	if err != nil {
		return Settings{}, errors.Annotate(err, "invalid pool configuration")
	}
	m := coerced.(map[string]interface{})

	s := Settings{
		SessionTimeout:       time.Duration(m["session-timeout"].(int)) * time.Second,
		OrphanedTimeout:      time.Duration(m["orphaned-timeout"].(int)) * time.Second,
		ReclaimInterval:      time.Duration(m["reclaim-interval"].(int)) * time.Second,
		InitialTerminalCount: m["initial-terminal-count"].(int),
	}
	if s.SessionTimeout <= 0 || s.OrphanedTimeout <= 0 || s.ReclaimInterval <= 0 {
		return Settings{}, errors.NotValidf("non-positive timeout")
	}
	if s.InitialTerminalCount < 0 {
		return Settings{}, errors.NotValidf("initial terminal count %d", s.InitialTerminalCount)
	}

	if owner, ok := m["owner-id"]; ok {
		s.OwnerID = owner.(string)
	}
	if s.OwnerID == "" {
		s.OwnerID = deriveOwnerID()
	}
	return s, nil
}

// deriveOwnerID builds a process identity from the host name plus a
// random suffix, so multiple replicas on one host stay distinct.
func deriveOwnerID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "termpool"
	}
	return fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
}

// LoadTerminals parses the configured delimited terminal records.
// Malformed records are logged and skipped rather than failing the
// whole load; initialization can proceed with the records that do
// parse.
func LoadTerminals(records []string) []terminal.Terminal {
	terminals := make([]terminal.Terminal, 0, len(records))
	for i, record := range records {
		t, err := terminal.ParseRecord(record)
		if err != nil {
			logger.Warningf("skipping malformed terminal record %d: %v", i, err)
			continue
		}
		terminals = append(terminals, t)
	}
	return terminals
}
