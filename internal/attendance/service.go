package attendance

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"clubcheckin/internal/metrics"
	"clubcheckin/internal/model"
)

// tokenBytes gives 256 bits of entropy per credential.
const tokenBytes = 32

// mintAttempts bounds re-minting after a credential collision.
const mintAttempts = 3

// Store is the persistence the service needs. Implementations must make
// ConfirmPending a single conditional write and reject a second record for
// the same registration.
type Store interface {
	InsertPending(ctx context.Context, rec Record) (Record, error)
	ByRegistration(ctx context.Context, registrationID string) (Record, error)
	Get(ctx context.Context, credential string) (Record, error)
	ConfirmPending(ctx context.Context, credential, eventID string, at time.Time) (Record, bool, error)
	ListByEvent(ctx context.Context, eventID string, status Status) ([]Record, error)
}

// Service issues credentials and confirms scans.
type Service struct {
	store    Store
	log      *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
	newToken func() (string, error)
}

// NewService creates a service backed by a store.
func NewService(store Store, logger *slog.Logger, m *metrics.Metrics) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		log:      logger,
		metrics:  m,
		now:      func() time.Time { return time.Now().UTC() },
		newToken: randomToken,
	}
}

// IssueCredential mints a credential for a registration and stores a pending
// attendance record. Calling it again for the same registration returns the
// credential already on file.
func (s *Service) IssueCredential(ctx context.Context, reg model.Registration) (Credential, error) {
	if reg.ID == "" || reg.EventID == "" {
		return Credential{}, ErrInvalidRegistration
	}
	for i := 0; i < mintAttempts; i++ {
		token, err := s.newToken()
		if err != nil {
			return Credential{}, fmt.Errorf("attendance: mint credential: %w", err)
		}
		rec, err := s.store.InsertPending(ctx, Record{
			Credential:     token,
			EventID:        reg.EventID,
			RegistrationID: reg.ID,
			Student:        reg.Student,
		})
		switch {
		case err == nil:
			s.metrics.IncCredentialsIssued(false)
			s.log.Info("credential issued", "registration_id", reg.ID, "event_id", reg.EventID)
			return credentialFor(rec, false), nil
		case errors.Is(err, ErrDuplicateRegistration):
			existing, err := s.store.ByRegistration(ctx, reg.ID)
			if err != nil {
				return Credential{}, fmt.Errorf("attendance: load existing credential: %w", err)
			}
			s.metrics.IncCredentialsIssued(true)
			s.log.Info("credential already issued", "registration_id", reg.ID, "event_id", existing.EventID)
			return credentialFor(existing, true), nil
		case errors.Is(err, ErrDuplicateCredential):
			s.log.Warn("credential collision, minting again", "registration_id", reg.ID)
			continue
		default:
			return Credential{}, err
		}
	}
	return Credential{}, fmt.Errorf("attendance: no unique credential after %d attempts", mintAttempts)
}

// Confirm validates a scanned payload against the event the scanner is
// working and marks the attendee present. Rejections and repeat scans are
// results, not errors; an error means the store could not be consulted.
func (s *Service) Confirm(ctx context.Context, rawPayload, targetEvent string) (ConfirmationResult, error) {
	start := time.Now()
	res, err := s.confirm(ctx, rawPayload, targetEvent)
	if err != nil {
		s.metrics.IncScan("error", "")
		return ConfirmationResult{}, err
	}
	s.metrics.IncScan(string(res.Outcome), string(res.Reason))
	s.metrics.ObserveScanLatency(time.Since(start))
	s.log.Info("scan processed",
		"event_id", targetEvent,
		"outcome", res.Outcome,
		"reason", res.Reason,
		"roll_number", res.Student.RollNumber)
	return res, nil
}

func (s *Service) confirm(ctx context.Context, rawPayload, targetEvent string) (ConfirmationResult, error) {
	p, err := DecodePayload(rawPayload)
	if err != nil {
		return rejected(RejectMalformed, "", targetEvent), nil
	}
	if p.EventID != targetEvent {
		return rejected(RejectWrongEvent, p.Credential, targetEvent), nil
	}

	rec, applied, err := s.store.ConfirmPending(ctx, p.Credential, targetEvent, s.now())
	if err != nil {
		return ConfirmationResult{}, fmt.Errorf("attendance: confirm: %w", err)
	}
	if applied {
		return fromRecord(OutcomeConfirmed, rec), nil
	}

	existing, err := s.store.Get(ctx, p.Credential)
	if errors.Is(err, ErrNotFound) {
		return rejected(RejectUnknownCredential, p.Credential, targetEvent), nil
	}
	if err != nil {
		return ConfirmationResult{}, fmt.Errorf("attendance: load after confirm: %w", err)
	}
	// The payload named the right event but the credential belongs to another.
	if existing.EventID != targetEvent {
		return rejected(RejectWrongEvent, p.Credential, targetEvent), nil
	}
	if existing.Status == StatusPresent {
		return fromRecord(OutcomeAlreadyConfirmed, existing), nil
	}
	return ConfirmationResult{}, fmt.Errorf("attendance: credential %s still pending after conditional update", p.Credential)
}

// PresentRollNumbers lists the roll numbers confirmed present at an event.
func (s *Service) PresentRollNumbers(ctx context.Context, eventID string) ([]string, error) {
	recs, err := s.store.ListByEvent(ctx, eventID, StatusPresent)
	if err != nil {
		return nil, err
	}
	rolls := make([]string, 0, len(recs))
	for _, rec := range recs {
		rolls = append(rolls, rec.Student.RollNumber)
	}
	return model.NormalizeRollNumbers(rolls), nil
}

// ListByEvent returns the event roster with check-in statuses.
func (s *Service) ListByEvent(ctx context.Context, eventID string) ([]Record, error) {
	return s.store.ListByEvent(ctx, eventID, "")
}

func credentialFor(rec Record, reissued bool) Credential {
	return Credential{
		Token:    rec.Credential,
		EventID:  rec.EventID,
		Payload:  EncodePayload(ScanPayload{Credential: rec.Credential, EventID: rec.EventID}),
		Reissued: reissued,
	}
}

func randomToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
