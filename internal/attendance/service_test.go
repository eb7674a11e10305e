package attendance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"clubcheckin/internal/model"
)

type ServiceSuite struct {
	suite.Suite
	store *InMemory
	svc   *Service
	ctx   context.Context
	clock time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.store = NewInMemory()
	s.svc = NewService(s.store, nil, nil)
	s.ctx = context.Background()
	s.clock = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	s.svc.now = func() time.Time { return s.clock }
}

func (s *ServiceSuite) registration(id, eventID, roll string) model.Registration {
	return model.Registration{
		ID:      id,
		EventID: eventID,
		Student: model.Identity{Name: "Asha " + roll, Email: roll + "@college.edu", RollNumber: roll, Branch: "CSE", Year: "3"},
	}
}

func (s *ServiceSuite) TestIssueCredential() {
	s.Run("mints a pending record with an identity snapshot", func() {
		reg := s.registration("reg-1", "E1", "21BD1A001")
		cred, err := s.svc.IssueCredential(s.ctx, reg)
		s.Require().NoError(err)
		s.False(cred.Reissued)
		s.GreaterOrEqual(len(cred.Token), 43, "32 random bytes in base64url")

		rec, err := s.store.Get(s.ctx, cred.Token)
		s.Require().NoError(err)
		s.Equal(StatusPending, rec.Status)
		s.Nil(rec.ConfirmedAt)
		s.Equal(reg.Student, rec.Student)

		p, err := DecodePayload(cred.Payload)
		s.Require().NoError(err)
		s.Equal(ScanPayload{Credential: cred.Token, EventID: "E1"}, p)
	})

	s.Run("is idempotent per registration", func() {
		reg := s.registration("reg-2", "E1", "21BD1A002")
		first, err := s.svc.IssueCredential(s.ctx, reg)
		s.Require().NoError(err)
		second, err := s.svc.IssueCredential(s.ctx, reg)
		s.Require().NoError(err)

		s.Equal(first.Token, second.Token)
		s.True(second.Reissued)
		recs, err := s.store.ListByEvent(s.ctx, "E1", "")
		s.Require().NoError(err)
		count := 0
		for _, r := range recs {
			if r.RegistrationID == "reg-2" {
				count++
			}
		}
		s.Equal(1, count)
	})

	s.Run("rejects registrations without id or event", func() {
		_, err := s.svc.IssueCredential(s.ctx, model.Registration{ID: "x"})
		s.ErrorIs(err, ErrInvalidRegistration)
	})

	s.Run("mints again after a token collision", func() {
		taken, err := s.svc.IssueCredential(s.ctx, s.registration("reg-3", "E1", "21BD1A003"))
		s.Require().NoError(err)

		tokens := []string{taken.Token, "fresh-token"}
		s.svc.newToken = func() (string, error) {
			t := tokens[0]
			tokens = tokens[1:]
			return t, nil
		}
		defer func() { s.svc.newToken = randomToken }()

		cred, err := s.svc.IssueCredential(s.ctx, s.registration("reg-4", "E1", "21BD1A004"))
		s.Require().NoError(err)
		s.Equal("fresh-token", cred.Token)
	})
}

func (s *ServiceSuite) TestConfirmScenario() {
	cred, err := s.svc.IssueCredential(s.ctx, s.registration("reg-r", "E1", "21BD1A001"))
	s.Require().NoError(err)

	first, err := s.svc.Confirm(s.ctx, cred.Payload, "E1")
	s.Require().NoError(err)
	s.Equal(OutcomeConfirmed, first.Outcome)
	s.Equal("21BD1A001", first.Student.RollNumber)
	s.Require().NotNil(first.ConfirmedAt)
	s.Equal(s.clock, *first.ConfirmedAt)

	s.clock = s.clock.Add(10 * time.Minute)
	again, err := s.svc.Confirm(s.ctx, cred.Payload, "E1")
	s.Require().NoError(err)
	s.Equal(OutcomeAlreadyConfirmed, again.Outcome)
	s.Require().NotNil(again.ConfirmedAt)
	s.Equal(*first.ConfirmedAt, *again.ConfirmedAt, "repeat scan reports the original time")

	other, err := s.svc.Confirm(s.ctx, cred.Payload, "E2")
	s.Require().NoError(err)
	s.Equal(OutcomeRejected, other.Outcome)
	s.Equal(RejectWrongEvent, other.Reason)
}

func (s *ServiceSuite) TestConfirmRejections() {
	cred, err := s.svc.IssueCredential(s.ctx, s.registration("reg-a", "EA", "21BD1A010"))
	s.Require().NoError(err)

	s.Run("malformed payload", func() {
		res, err := s.svc.Confirm(s.ctx, "garbage", "EA")
		s.Require().NoError(err)
		s.Equal(RejectMalformed, res.Reason)
	})

	s.Run("unknown credential", func() {
		res, err := s.svc.Confirm(s.ctx, EncodePayload(ScanPayload{Credential: "nope", EventID: "EA"}), "EA")
		s.Require().NoError(err)
		s.Equal(RejectUnknownCredential, res.Reason)
	})

	s.Run("cross-event replay leaves the record pending", func() {
		res, err := s.svc.Confirm(s.ctx, cred.Payload, "EB")
		s.Require().NoError(err)
		s.Equal(RejectWrongEvent, res.Reason)

		rec, err := s.store.Get(s.ctx, cred.Token)
		s.Require().NoError(err)
		s.Equal(StatusPending, rec.Status)
	})

	s.Run("forged payload naming the scanner's event", func() {
		forged := EncodePayload(ScanPayload{Credential: cred.Token, EventID: "EB"})
		res, err := s.svc.Confirm(s.ctx, forged, "EB")
		s.Require().NoError(err)
		s.Equal(RejectWrongEvent, res.Reason)

		rec, err := s.store.Get(s.ctx, cred.Token)
		s.Require().NoError(err)
		s.Equal(StatusPending, rec.Status)
	})
}

func (s *ServiceSuite) TestConcurrentScansConfirmOnce() {
	cred, err := s.svc.IssueCredential(s.ctx, s.registration("reg-c", "E1", "21BD1A020"))
	s.Require().NoError(err)

	// Each scanner stamps its own time so a second winner would be visible.
	var tick sync.Mutex
	base := s.clock
	n := 0
	s.svc.now = func() time.Time {
		tick.Lock()
		defer tick.Unlock()
		n++
		return base.Add(time.Duration(n) * time.Second)
	}

	const scanners = 50
	results := make([]ConfirmationResult, scanners)
	var wg sync.WaitGroup
	for i := 0; i < scanners; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := s.svc.Confirm(s.ctx, cred.Payload, "E1")
			if err == nil {
				results[i] = res
			}
		}(i)
	}
	wg.Wait()

	confirmed, already := 0, 0
	var winner time.Time
	for _, r := range results {
		switch r.Outcome {
		case OutcomeConfirmed:
			confirmed++
			winner = *r.ConfirmedAt
		case OutcomeAlreadyConfirmed:
			already++
		}
	}
	s.Equal(1, confirmed)
	s.Equal(scanners-1, already)

	rec, err := s.store.Get(s.ctx, cred.Token)
	s.Require().NoError(err)
	s.Equal(winner, *rec.ConfirmedAt)
	for _, r := range results {
		s.Equal(winner, *r.ConfirmedAt)
	}
}

func (s *ServiceSuite) TestPresentRollNumbers() {
	a, err := s.svc.IssueCredential(s.ctx, s.registration("r1", "E9", "21bd1a002"))
	s.Require().NoError(err)
	_, err = s.svc.IssueCredential(s.ctx, s.registration("r2", "E9", "21BD1A003"))
	s.Require().NoError(err)
	c, err := s.svc.IssueCredential(s.ctx, s.registration("r3", "E9", "21BD1A001"))
	s.Require().NoError(err)

	for _, p := range []string{a.Payload, c.Payload} {
		_, err := s.svc.Confirm(s.ctx, p, "E9")
		s.Require().NoError(err)
	}

	rolls, err := s.svc.PresentRollNumbers(s.ctx, "E9")
	s.Require().NoError(err)
	s.ElementsMatch([]string{"21BD1A001", "21BD1A002"}, rolls)

	roster, err := s.svc.ListByEvent(s.ctx, "E9")
	s.Require().NoError(err)
	s.Len(roster, 3)
}

func (s *ServiceSuite) TestStoreErrorsPropagate() {
	boom := errors.New("connection refused")
	svc := NewService(failingStore{err: boom}, nil, nil)

	_, err := svc.Confirm(s.ctx, EncodePayload(ScanPayload{Credential: "c", EventID: "E1"}), "E1")
	s.ErrorIs(err, boom)

	_, err = svc.IssueCredential(s.ctx, s.registration("r", "E1", "X"))
	s.ErrorIs(err, boom)
}

type failingStore struct{ err error }

func (f failingStore) InsertPending(context.Context, Record) (Record, error) { return Record{}, f.err }
func (f failingStore) ByRegistration(context.Context, string) (Record, error) {
	return Record{}, f.err
}
func (f failingStore) Get(context.Context, string) (Record, error) { return Record{}, f.err }
func (f failingStore) ConfirmPending(context.Context, string, string, time.Time) (Record, bool, error) {
	return Record{}, false, f.err
}
func (f failingStore) ListByEvent(context.Context, string, Status) ([]Record, error) {
	return nil, f.err
}
