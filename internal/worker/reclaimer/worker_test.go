// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package reclaimer_test

import (
	"context"
	"sync"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	"github.com/juju/worker/v4/workertest"
	gc "gopkg.in/check.v1"

	"github.com/juju/termpool/internal/worker/reclaimer"
)

// fakePool records reclaim and release calls, optionally failing the
// first n reclaims.
type fakePool struct {
	mu            sync.Mutex
	failuresLeft  int
	reclaims      int
	releases      int
	reclaimCalled chan struct{}
}

func newFakePool() *fakePool {
	return &fakePool{reclaimCalled: make(chan struct{}, 16)}
}

func (p *fakePool) ReclaimOrphans(_ context.Context) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reclaims++
	p.reclaimCalled <- struct{}{}
	if p.failuresLeft > 0 {
		p.failuresLeft--
		return 0, errors.New("store unavailable")
	}
	return 1, nil
}

func (p *fakePool) ReleaseOwned(_ context.Context) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.releases++
	return 0
}

func (p *fakePool) counts() (reclaims, releases int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reclaims, p.releases
}

type workerSuite struct {
	testing.IsolationSuite

	clock *testclock.Clock
	pool  *fakePool
}

var _ = gc.Suite(&workerSuite{})

func (s *workerSuite) SetUpTest(c *gc.C) {
	s.IsolationSuite.SetUpTest(c)
	s.clock = testclock.NewClock(time.Now())
	s.pool = newFakePool()
}

func (s *workerSuite) newWorker(c *gc.C) *reclaimer.Reclaimer {
	w, err := reclaimer.NewWorker(reclaimer.WorkerConfig{
		Pool:  s.pool,
		Clock: s.clock,
	})
	c.Assert(err, jc.ErrorIsNil)
	return w
}

func (s *workerSuite) waitReclaim(c *gc.C) {
	select {
	case <-s.pool.reclaimCalled:
	case <-time.After(testing.LongWait):
		c.Fatalf("timed out waiting for reclaim call")
	}
}

func (s *workerSuite) TestValidateConfig(c *gc.C) {
	_, err := reclaimer.NewWorker(reclaimer.WorkerConfig{Clock: s.clock})
	c.Check(err, jc.ErrorIs, errors.NotValid)

	_, err = reclaimer.NewWorker(reclaimer.WorkerConfig{Pool: s.pool})
	c.Check(err, jc.ErrorIs, errors.NotValid)
}

func (s *workerSuite) TestReclaimsOnInterval(c *gc.C) {
	w := s.newWorker(c)
	defer workertest.CleanKill(c, w)

	err := s.clock.WaitAdvance(reclaimer.DefaultInterval, testing.LongWait, 1)
	c.Assert(err, jc.ErrorIsNil)
	s.waitReclaim(c)

	err = s.clock.WaitAdvance(reclaimer.DefaultInterval, testing.LongWait, 1)
	c.Assert(err, jc.ErrorIsNil)
	s.waitReclaim(c)

	reclaims, _ := s.pool.counts()
	c.Check(reclaims, gc.Equals, 2)
}

func (s *workerSuite) TestFailureBacksOffWithoutDying(c *gc.C) {
	s.pool.failuresLeft = 1
	w := s.newWorker(c)
	defer workertest.CleanKill(c, w)

	err := s.clock.WaitAdvance(reclaimer.DefaultInterval, testing.LongWait, 1)
	c.Assert(err, jc.ErrorIsNil)
	s.waitReclaim(c)

	// The failed scan reschedules itself; an advance past the maximum
	// backoff is guaranteed to run the next attempt, which succeeds.
	err = s.clock.WaitAdvance(5*time.Minute, testing.LongWait, 1)
	c.Assert(err, jc.ErrorIsNil)
	s.waitReclaim(c)

	workertest.CheckAlive(c, w)
	reclaims, _ := s.pool.counts()
	c.Check(reclaims, gc.Equals, 2)
}

func (s *workerSuite) TestDrainsOnKill(c *gc.C) {
	w := s.newWorker(c)
	workertest.CleanKill(c, w)

	reclaims, releases := s.pool.counts()
	c.Check(reclaims, gc.Equals, 0)
	c.Check(releases, gc.Equals, 1)
}
