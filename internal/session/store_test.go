package session

import (
	"context"
	"testing"
	"time"

	"copydesk/internal/analysis"

	"github.com/stretchr/testify/suite"
)

type StoreSuite struct {
	suite.Suite
	store *Store
	clock time.Time
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) SetupTest() {
	s.clock = time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	s.store = NewStore(30*time.Minute, 0)
	s.store.now = func() time.Time { return s.clock }
}

func result(annotated string) analysis.Result {
	return analysis.Result{AnnotatedText: annotated, Corrections: []analysis.Correction{}, Headlines: []analysis.Headline{}}
}

func (s *StoreSuite) TestCommitReplacesResult() {
	id := NewID()
	t1 := s.store.Begin(id, analysis.Request{Text: "first", HeadlineCount: 5})
	s.True(s.store.Commit(t1, result("one")))

	t2 := s.store.Begin(id, analysis.Request{Text: "second", HeadlineCount: 5})
	s.True(s.store.Commit(t2, analysis.Result{AnnotatedText: "two"}))

	got, _, err := s.store.Current(id)
	s.Require().NoError(err)
	s.Equal("two", got.AnnotatedText)
	s.Nil(got.Corrections, "results are replaced, never merged")
}

func (s *StoreSuite) TestStaleCompletionDiscarded() {
	id := NewID()
	slow := s.store.Begin(id, analysis.Request{Text: "slow", HeadlineCount: 5})
	fast := s.store.Begin(id, analysis.Request{Text: "fast", HeadlineCount: 5})

	s.True(s.store.Commit(fast, result("fast")))
	s.False(s.store.Commit(slow, result("slow")))

	got, _, err := s.store.Current(id)
	s.Require().NoError(err)
	s.Equal("fast", got.AnnotatedText)
}

func (s *StoreSuite) TestLastRequest() {
	s.Run("unknown session", func() {
		_, err := s.store.LastRequest(NewID())
		s.ErrorIs(err, ErrNotFound)
	})

	s.Run("returns latest submission", func() {
		id := NewID()
		s.store.Begin(id, analysis.Request{Text: "a", HeadlineCount: 5})
		s.store.Begin(id, analysis.Request{Text: "b", HeadlineCount: 20})

		req, err := s.store.LastRequest(id)
		s.Require().NoError(err)
		s.Equal("b", req.Text)
		s.Equal(20, req.HeadlineCount)
	})
}

func (s *StoreSuite) TestCurrentWithoutResult() {
	id := NewID()
	s.store.Begin(id, analysis.Request{Text: "pending", HeadlineCount: 5})
	_, _, err := s.store.Current(id)
	s.ErrorIs(err, ErrNotFound)
}

func (s *StoreSuite) TestSweepDropsIdleSessions() {
	idle := NewID()
	active := NewID()
	s.store.Begin(idle, analysis.Request{Text: "x", HeadlineCount: 5})

	s.clock = s.clock.Add(20 * time.Minute)
	s.store.Begin(active, analysis.Request{Text: "y", HeadlineCount: 5})

	s.clock = s.clock.Add(15 * time.Minute)
	s.Equal(1, s.store.Sweep())
	s.Equal(1, s.store.Len())

	_, err := s.store.LastRequest(active)
	s.NoError(err)
	_, err = s.store.LastRequest(idle)
	s.ErrorIs(err, ErrNotFound)
}

func (s *StoreSuite) TestCapacityEvictsLeastRecentlySeen() {
	s.store = NewStore(30*time.Minute, 2)
	s.store.now = func() time.Time { return s.clock }

	first, second, third := NewID(), NewID(), NewID()
	s.store.Begin(first, analysis.Request{Text: "1", HeadlineCount: 5})
	s.clock = s.clock.Add(time.Minute)
	s.store.Begin(second, analysis.Request{Text: "2", HeadlineCount: 5})
	s.clock = s.clock.Add(time.Minute)
	_, err := s.store.LastRequest(first)
	s.Require().NoError(err)

	s.clock = s.clock.Add(time.Minute)
	s.store.Begin(third, analysis.Request{Text: "3", HeadlineCount: 5})
	s.Equal(2, s.store.Len())

	_, err = s.store.LastRequest(second)
	s.ErrorIs(err, ErrNotFound)
	_, err = s.store.LastRequest(first)
	s.NoError(err)
	_, err = s.store.LastRequest(third)
	s.NoError(err)

	for i := 0; i < 10; i++ {
		s.clock = s.clock.Add(time.Second)
		s.store.Begin(NewID(), analysis.Request{Text: "burst", HeadlineCount: 5})
	}
	s.Equal(2, s.store.Len())
}

func (s *StoreSuite) TestNormalizeID() {
	id := NewID()
	s.Equal(id, NormalizeID("  "+id+" "))
	s.Equal("", NormalizeID("not-a-uuid"))
	s.Equal("", NormalizeID(""))
}

func (s *StoreSuite) TestRunJanitorStopsOnCancel() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.store.RunJanitor(ctx, time.Millisecond) }()
	cancel()
	s.NoError(<-done)
}
