// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package pool_test

import (
	"time"

	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/juju/termpool/core/pool"
)

type recordSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&recordSuite{})

func (s *recordSuite) TestFieldsRoundTrip(c *gc.C) {
	when := time.Date(2025, 3, 14, 9, 26, 53, 589793000, time.UTC)
	record := pool.LeaseRecord{
		TerminalID:   "term-001",
		Status:       pool.InUse,
		Owner:        "replica-7",
		LastActivity: when,
	}
	parsed, err := pool.ParseFields(record.Fields())
	c.Assert(err, jc.ErrorIsNil)
	c.Check(parsed.TerminalID, gc.Equals, record.TerminalID)
	c.Check(parsed.Status, gc.Equals, record.Status)
	c.Check(parsed.Owner, gc.Equals, record.Owner)
	c.Check(parsed.LastActivity.Equal(when), jc.IsTrue)
}

func (s *recordSuite) TestParseFieldsEmptyIsNotFound(c *gc.C) {
	_, err := pool.ParseFields(nil)
	c.Check(err, jc.ErrorIs, errors.NotFound)
	_, err = pool.ParseFields(map[string]string{})
	c.Check(err, jc.ErrorIs, errors.NotFound)
}

func (s *recordSuite) TestParseFieldsRejectsBadStatus(c *gc.C) {
	fields := pool.LeaseRecord{TerminalID: "t", Status: pool.Available}.Fields()
	fields["status"] = "broken"
	_, err := pool.ParseFields(fields)
	c.Check(err, jc.ErrorIs, errors.NotValid)
}

func (s *recordSuite) TestParseFieldsRejectsBadTimestamp(c *gc.C) {
	fields := pool.LeaseRecord{TerminalID: "t", Status: pool.Available}.Fields()
	fields["last-activity"] = "yesterday"
	_, err := pool.ParseFields(fields)
	c.Check(err, jc.ErrorIs, errors.NotValid)
}

func (s *recordSuite) TestValidateID(c *gc.C) {
	c.Check(pool.ValidateID("term-001"), jc.ErrorIsNil)
	c.Check(pool.ValidateID(""), jc.ErrorIs, errors.NotValid)
	c.Check(pool.ValidateID("   "), jc.ErrorIs, errors.NotValid)
}

type errorsSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&errorsSuite{})

func (s *errorsSuite) TestTimeout(c *gc.C) {
	c.Check(pool.IsTimeout(pool.ErrTimeout), jc.IsTrue)
	c.Check(pool.IsTimeout(errors.Trace(pool.ErrTimeout)), jc.IsTrue)
	c.Check(pool.IsTimeout(errors.New("other")), jc.IsFalse)
	c.Check(pool.IsTimeout(nil), jc.IsFalse)
}

func (s *errorsSuite) TestMetadataNotFound(c *gc.C) {
	err := errors.Annotatef(pool.ErrMetadataNotFound, "terminal %q", "t1")
	c.Check(pool.IsMetadataNotFound(err), jc.IsTrue)
	c.Check(pool.IsTimeout(err), jc.IsFalse)
	c.Check(pool.IsMetadataNotFound(pool.ErrTimeout), jc.IsFalse)
}
