package certificate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type IssueSuite struct {
	suite.Suite
	store *InMemory
	svc   *Service
	ctx   context.Context
}

func TestIssueSuite(t *testing.T) {
	suite.Run(t, new(IssueSuite))
}

func (s *IssueSuite) SetupTest() {
	s.store = NewInMemory()
	s.svc = NewService(s.store, nil, nil)
	s.ctx = context.Background()
}

func (s *IssueSuite) seed(eventID string, rolls ...string) {
	for _, r := range rolls {
		_, err := s.store.InsertBatch(s.ctx, []Record{{EventID: eventID, RollNumber: r, Title: "t", IssuedAt: time.Now()}})
		s.Require().NoError(err)
	}
}

func (s *IssueSuite) TestResolveEligibleScenario() {
	s.seed("E1", "21BD1A001")

	res, err := s.svc.Resolver().ResolveEligible(s.ctx, "E1", []string{"21BD1A001", "21BD1A002"})
	s.Require().NoError(err)
	s.Equal([]string{"21BD1A002"}, res.Eligible)
	s.Equal([]string{"21BD1A001"}, res.AlreadyIssued)
}

func (s *IssueSuite) TestResolveIsScopedToEvent() {
	s.seed("E2", "21BD1A001")

	res, err := s.svc.Resolver().ResolveEligible(s.ctx, "E1", []string{"21bd1a001 ", "21BD1A001"})
	s.Require().NoError(err)
	s.Equal([]string{"21BD1A001"}, res.Eligible)
	s.Empty(res.AlreadyIssued)
}

func (s *IssueSuite) TestIssueNeverDuplicates() {
	s.seed("E1", "21BD1A001")
	req := IssueRequest{EventID: "E1", Title: "Hackathon 2026", RollNumbers: []string{"21BD1A001", "21BD1A002", "21BD1A003"}}

	first, err := s.svc.Issue(s.ctx, req)
	s.Require().NoError(err)
	s.Equal([]string{"21BD1A002", "21BD1A003"}, first.Issued)
	s.Equal([]string{"21BD1A001"}, first.AlreadyIssued)
	s.False(first.NothingToIssue)

	second, err := s.svc.Issue(s.ctx, req)
	s.Require().NoError(err)
	s.True(second.NothingToIssue)
	s.Empty(second.Issued)
	s.Len(second.AlreadyIssued, 3)

	recs, err := s.svc.ListByEvent(s.ctx, "E1")
	s.Require().NoError(err)
	s.Len(recs, 3)
}

func (s *IssueSuite) TestConcurrentRunsIssueOnce() {
	const runs = 2
	gated := &gatedStore{InMemory: s.store}
	gated.readers.Add(runs)
	svc := NewService(gated, nil, nil)
	req := IssueRequest{EventID: "E1", Title: "T", RollNumbers: []string{"21BD1A001", "21BD1A002"}}

	reports := make([]IssueReport, runs)
	var wg sync.WaitGroup
	for i := 0; i < runs; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := svc.Issue(s.ctx, req)
			s.NoError(err)
			reports[i] = r
		}(i)
	}
	wg.Wait()

	recs, err := s.svc.ListByEvent(s.ctx, "E1")
	s.Require().NoError(err)
	s.Len(recs, 2, "one certificate per roll number")

	issued := 0
	for _, r := range reports {
		issued += len(r.Issued)
		s.ElementsMatch(req.RollNumbers, append(append([]string{}, r.Issued...), r.AlreadyIssued...))
	}
	s.Equal(2, issued, "each roll is reported issued by exactly one run")
}

func (s *IssueSuite) TestIssueEmptyInputIsNoop() {
	report, err := s.svc.Issue(s.ctx, IssueRequest{EventID: "E1", Title: "t"})
	s.Require().NoError(err)
	s.True(report.NothingToIssue)
}

func (s *IssueSuite) TestBatchFailureIsSurfaced() {
	s.store.FailInsert = errors.New("deadlock detected")
	report, err := s.svc.Issue(s.ctx, IssueRequest{EventID: "E1", Title: "t", RollNumbers: []string{"A", "B"}})
	s.Require().ErrorIs(err, ErrBatchInsert)
	s.Equal([]string{"A", "B"}, report.NotIssued)
	s.Empty(report.Issued)

	s.store.FailInsert = nil
	report, err = s.svc.Issue(s.ctx, IssueRequest{EventID: "E1", Title: "t", RollNumbers: []string{"A", "B"}})
	s.Require().NoError(err)
	s.Equal([]string{"A", "B"}, report.Issued)
}

func (s *IssueSuite) TestIssueValidatesRequest() {
	_, err := s.svc.Issue(s.ctx, IssueRequest{EventID: "E1"})
	s.Error(err)
}

func (s *IssueSuite) TestStoreQueryErrorPropagates() {
	svc := NewService(brokenStore{}, nil, nil)
	_, err := svc.Issue(s.ctx, IssueRequest{EventID: "E1", Title: "t", RollNumbers: []string{"A"}})
	s.ErrorIs(err, errUnavailable)
	s.NotErrorIs(err, ErrBatchInsert)
}

// gatedStore holds every resolver read until all expected readers have
// looked, so concurrent runs all see the same "not issued" state.
type gatedStore struct {
	*InMemory
	readers sync.WaitGroup
}

func (g *gatedStore) IssuedRollNumbers(ctx context.Context, eventID string, rolls []string) ([]string, error) {
	out, err := g.InMemory.IssuedRollNumbers(ctx, eventID, rolls)
	g.readers.Done()
	g.readers.Wait()
	return out, err
}

var errUnavailable = errors.New("store unavailable")

type brokenStore struct{}

func (brokenStore) IssuedRollNumbers(context.Context, string, []string) ([]string, error) {
	return nil, errUnavailable
}
func (brokenStore) InsertBatch(context.Context, []Record) ([]string, error) {
	return nil, errUnavailable
}
func (brokenStore) ListByEvent(context.Context, string) ([]Record, error) {
	return nil, errUnavailable
}
