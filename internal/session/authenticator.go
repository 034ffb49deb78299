// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package session

import (
	"context"

	"github.com/google/uuid"

	"github.com/juju/termpool/core/terminal"
)

// tokenAuthenticator is the default Authenticator: the login against
// the external system is modeled as minting an opaque token, with no
// observable side effect on pool state.
type tokenAuthenticator struct{}

// NewTokenAuthenticator returns an Authenticator that issues opaque
// random tokens.
func NewTokenAuthenticator() Authenticator {
	return tokenAuthenticator{}
}

// Login is part of the Authenticator interface.
func (tokenAuthenticator) Login(_ context.Context, _ terminal.Terminal) (string, error) {
	return uuid.NewString(), nil
}
