// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package terminal

import (
	"strconv"
	"strings"

	"github.com/juju/errors"
)

// recordFieldCount is the number of fields in a delimited terminal
// record: address|port|username|password|id|group.
const recordFieldCount = 6

// Terminal holds the immutable connection metadata for a single
// leasable terminal. Values are created once at startup from
// configuration and never written back to the shared store.
type Terminal struct {

	// ID uniquely and stably identifies the terminal.
	ID string

	// Address is the network address the terminal is reached on.
	Address string

	// Port is the port the terminal listens on.
	Port int

	// Username and Password authenticate against the terminal itself,
	// not against this service.
	Username string
	Password string

	// Group tags the terminal with a branch or tenant affiliation.
	Group string
}

// Validate returns an error if the terminal metadata is incomplete or
// inconsistent.
func (t Terminal) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return errors.NotValidf("terminal with empty id")
	}
	if strings.TrimSpace(t.Address) == "" {
		return errors.NotValidf("terminal %q with empty address", t.ID)
	}
	if t.Port <= 0 || t.Port > 65535 {
		return errors.NotValidf("terminal %q with port %d", t.ID, t.Port)
	}
	return nil
}

// ParseRecord parses a delimited terminal record of the form
// address|port|username|password|id|group into a Terminal. Malformed
// records are rejected outright; callers decide whether to skip or
// fail.
func ParseRecord(record string) (Terminal, error) {
	parts := strings.Split(record, "|")
	if len(parts) != recordFieldCount {
		return Terminal{}, errors.NotValidf("terminal record with %d fields", len(parts))
	}
	port, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return Terminal{}, errors.NotValidf("terminal record port %q", parts[1])
	}
	t := Terminal{
		Address:  strings.TrimSpace(parts[0]),
		Port:     port,
		Username: strings.TrimSpace(parts[2]),
		Password: parts[3],
		ID:       strings.TrimSpace(parts[4]),
		Group:    strings.TrimSpace(parts[5]),
	}
	if err := t.Validate(); err != nil {
		return Terminal{}, errors.Trace(err)
	}
	return t, nil
}
