// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package session_test

import (
	"context"
	"fmt"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	corepool "github.com/juju/termpool/core/pool"
	"github.com/juju/termpool/core/terminal"
	"github.com/juju/termpool/internal/coordination"
	"github.com/juju/termpool/internal/directory"
	"github.com/juju/termpool/internal/session"
)

const sessionTTL = time.Hour

// countingAuthenticator issues predictable tokens and records how
// many logins were performed.
type countingAuthenticator struct {
	logins int
}

func (a *countingAuthenticator) Login(_ context.Context, t terminal.Terminal) (string, error) {
	a.logins++
	return fmt.Sprintf("token-%s-%d", t.ID, a.logins), nil
}

type sessionSuite struct {
	testing.IsolationSuite

	clock *testclock.Clock
	store *coordination.MemStore
	auth  *countingAuthenticator
	mgr   *session.Manager
}

var _ = gc.Suite(&sessionSuite{})

func (s *sessionSuite) SetUpTest(c *gc.C) {
	s.IsolationSuite.SetUpTest(c)
	s.clock = testclock.NewClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	s.store = coordination.NewMemStore(s.clock)
	s.auth = &countingAuthenticator{}

	var err error
	s.mgr, err = session.NewManager(session.ManagerConfig{
		Store: s.store,
		Directory: directory.New([]terminal.Terminal{
			{ID: "t1", Address: "10.0.0.1", Port: 22},
		}),
		Clock:         s.clock,
		Authenticator: s.auth,
		TTL:           sessionTTL,
	})
	c.Assert(err, jc.ErrorIsNil)
}

func (s *sessionSuite) TestCreateSession(c *gc.C) {
	token, err := s.mgr.GetOrCreateSession(context.Background(), "t1")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(token, gc.Equals, "token-t1-1")
	c.Check(s.auth.logins, gc.Equals, 1)
}

func (s *sessionSuite) TestReuseRefreshesTTL(c *gc.C) {
	ctx := context.Background()
	first, err := s.mgr.GetOrCreateSession(ctx, "t1")
	c.Assert(err, jc.ErrorIsNil)

	// Half the TTL later the session is reused, not recreated.
	s.clock.Advance(sessionTTL / 2)
	second, err := s.mgr.GetOrCreateSession(ctx, "t1")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(second, gc.Equals, first)
	c.Check(s.auth.logins, gc.Equals, 1)

	// The reuse pushed expiry out: another three quarters of the TTL
	// still finds the session alive.
	s.clock.Advance(3 * sessionTTL / 4)
	third, err := s.mgr.GetOrCreateSession(ctx, "t1")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(third, gc.Equals, first)
	c.Check(s.auth.logins, gc.Equals, 1)
}

func (s *sessionSuite) TestExpiredSessionRecreated(c *gc.C) {
	ctx := context.Background()
	first, err := s.mgr.GetOrCreateSession(ctx, "t1")
	c.Assert(err, jc.ErrorIsNil)

	s.clock.Advance(sessionTTL + time.Minute)
	second, err := s.mgr.GetOrCreateSession(ctx, "t1")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(second, gc.Not(gc.Equals), first)
	c.Check(s.auth.logins, gc.Equals, 2)
}

func (s *sessionSuite) TestUnknownTerminalIsFatal(c *gc.C) {
	_, err := s.mgr.GetOrCreateSession(context.Background(), "ghost")
	c.Check(corepool.IsMetadataNotFound(err), jc.IsTrue)
	c.Check(s.auth.logins, gc.Equals, 0)
}

func (s *sessionSuite) TestRefreshTTLExtends(c *gc.C) {
	ctx := context.Background()
	token, err := s.mgr.GetOrCreateSession(ctx, "t1")
	c.Assert(err, jc.ErrorIsNil)

	s.clock.Advance(sessionTTL - time.Minute)
	c.Assert(s.mgr.RefreshTTL(ctx, "t1"), jc.ErrorIsNil)

	// Without the refresh this advance would have expired the
	// session.
	s.clock.Advance(2 * time.Minute)
	again, err := s.mgr.GetOrCreateSession(ctx, "t1")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(again, gc.Equals, token)
	c.Check(s.auth.logins, gc.Equals, 1)
}

func (s *sessionSuite) TestRefreshTTLNeverCreates(c *gc.C) {
	ctx := context.Background()
	c.Assert(s.mgr.RefreshTTL(ctx, "t1"), jc.ErrorIsNil)

	val, err := s.store.StringGet(ctx, session.DefaultKeyPrefix+"t1")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(val, gc.Equals, "")
	c.Check(s.auth.logins, gc.Equals, 0)
}

func (s *sessionSuite) TestDefaultAuthenticatorTokensDiffer(c *gc.C) {
	auth := session.NewTokenAuthenticator()
	t1, err := auth.Login(context.Background(), terminal.Terminal{ID: "x"})
	c.Assert(err, jc.ErrorIsNil)
	t2, err := auth.Login(context.Background(), terminal.Terminal{ID: "x"})
	c.Assert(err, jc.ErrorIsNil)
	c.Check(t1, gc.Not(gc.Equals), t2)
	c.Check(t1, gc.Not(gc.Equals), "")
}
