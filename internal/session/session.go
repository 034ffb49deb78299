// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package session issues and renews the time-boxed session tokens
// bound to allocated terminals. A live session is reused across
// successive leases of the same terminal, avoiding redundant logins
// against the external system.
package session

import (
	"context"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo"

	corepool "github.com/juju/termpool/core/pool"
	"github.com/juju/termpool/core/terminal"
	"github.com/juju/termpool/internal/coordination"
	"github.com/juju/termpool/internal/directory"
)

var logger = loggo.GetLogger("termpool.session")

const (
	// DefaultKeyPrefix prefixes the store key of every session
	// record.
	DefaultKeyPrefix = "termpool:session:"

	// DefaultTTL is the session lifetime when none is configured.
	DefaultTTL = time.Hour
)

// Authenticator performs the terminal-specific login that a fresh
// session requires. Implementations must be idempotent and must not
// mutate any pool state.
type Authenticator interface {
	Login(ctx context.Context, t terminal.Terminal) (token string, err error)
}

// ManagerConfig collects the dependencies and settings of a session
// Manager.
type ManagerConfig struct {
	Store         coordination.Store
	Directory     *directory.Directory
	Clock         clock.Clock
	Authenticator Authenticator

	// TTL and KeyPrefix default to the package constants when unset.
	TTL       time.Duration
	KeyPrefix string
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
	if config.Authenticator == nil {
		return errors.NotValidf("nil Authenticator")
	}
	return nil
}

// Manager issues, reuses and refreshes terminal sessions.
type Manager struct {
	config ManagerConfig
}

// NewManager returns a session Manager using the supplied config.
func NewManager(config ManagerConfig) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	if config.TTL <= 0 {
		config.TTL = DefaultTTL
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = DefaultKeyPrefix
	}
	return &Manager{config: config}, nil
}

// GetOrCreateSession returns the session token for the supplied
// terminal. An unexpired session is reused with its TTL refreshed;
// otherwise the terminal's metadata is resolved, a login performed
// and the new token stored with the configured TTL. A terminal id
// with no backing metadata is fatal for the call.
func (m *Manager) GetOrCreateSession(ctx context.Context, id string) (string, error) {
	if err := corepool.ValidateID(id); err != nil {
		return "", errors.Trace(err)
	}

	key := m.sessionKey(id)
	token, err := m.config.Store.StringGet(ctx, key)
	if err != nil {
		return "", errors.Trace(err)
	}
	if token != "" {
		if err := m.config.Store.KeyExpire(ctx, key, m.config.TTL); err != nil {
			return "", errors.Trace(err)
		}
		logger.Debugf("reusing session for terminal %q", id)
		return token, nil
	}

	t, err := m.config.Directory.Lookup(id)
	if errors.Is(err, errors.NotFound) {
		return "", errors.Annotatef(corepool.ErrMetadataNotFound, "terminal %q", id)
	} else if err != nil {
		return "", errors.Trace(err)
	}

	token, err = m.config.Authenticator.Login(ctx, t)
	if err != nil {
		return "", errors.Annotatef(err, "logging in to terminal %q", id)
	}
	if err := m.config.Store.StringSet(ctx, key, token, m.config.TTL); err != nil {
		return "", errors.Trace(err)
	}
	logger.Infof("created session for terminal %q", id)
	return token, nil
}

// RefreshTTL extends the lifetime of an existing session. A terminal
// with no live session is left alone: refreshing never creates a
// session as a side effect.
func (m *Manager) RefreshTTL(ctx context.Context, id string) error {
	if err := corepool.ValidateID(id); err != nil {
		return errors.Trace(err)
	}
	key := m.sessionKey(id)
	token, err := m.config.Store.StringGet(ctx, key)
	if err != nil {
		return errors.Trace(err)
	}
	if token == "" {
		return nil
	}
	return errors.Trace(m.config.Store.KeyExpire(ctx, key, m.config.TTL))
}

func (m *Manager) sessionKey(id string) string {
	return m.config.KeyPrefix + id
}
