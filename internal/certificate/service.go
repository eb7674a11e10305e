package certificate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"clubcheckin/internal/metrics"
)

// IssueRequest names the event, the certificate text and the confirmed roll
// numbers to consider.
type IssueRequest struct {
	EventID     string
	Title       string
	Description string
	RollNumbers []string
}

// IssueReport is what an operator sees after a run.
type IssueReport struct {
	EventID        string   `json:"event_id"`
	Issued         []string `json:"issued"`
	AlreadyIssued  []string `json:"already_issued"`
	NothingToIssue bool     `json:"nothing_to_issue"`
	// NotIssued lists the eligible roll numbers left without a certificate
	// because the batch failed. Running the issuance again is safe.
	NotIssued []string `json:"not_issued,omitempty"`
}

// Service resolves eligibility and writes certificate records.
type Service struct {
	store    Store
	resolver *Resolver
	log      *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewService creates a service backed by store.
func NewService(store Store, logger *slog.Logger, m *metrics.Metrics) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		resolver: NewResolver(store),
		log:      logger,
		metrics:  m,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Resolver exposes the read-only eligibility check.
func (s *Service) Resolver() *Resolver { return s.resolver }

// Issue creates certificates for every eligible roll number in one batch.
// An empty eligible set is a successful no-op. A failed batch returns the
// report with NotIssued filled in and an error wrapping ErrBatchInsert.
func (s *Service) Issue(ctx context.Context, req IssueRequest) (IssueReport, error) {
	if req.EventID == "" || req.Title == "" {
		return IssueReport{}, errors.New("certificate: event and title required")
	}
	res, err := s.resolver.ResolveEligible(ctx, req.EventID, req.RollNumbers)
	if err != nil {
		s.metrics.IncCertificateRun("failed")
		return IssueReport{}, err
	}

	report := IssueReport{EventID: req.EventID, Issued: []string{}, AlreadyIssued: res.AlreadyIssued}
	if res.Empty() {
		report.NothingToIssue = true
		s.metrics.IncCertificateRun("nothing_to_issue")
		s.log.Info("certificates: nothing to issue", "event_id", req.EventID, "already_issued", len(res.AlreadyIssued))
		return report, nil
	}

	issuedAt := s.now()
	recs := make([]Record, 0, len(res.Eligible))
	for _, roll := range res.Eligible {
		recs = append(recs, Record{
			EventID:     req.EventID,
			RollNumber:  roll,
			Title:       req.Title,
			Description: req.Description,
			IssuedAt:    issuedAt,
		})
	}
	written, err := s.store.InsertBatch(ctx, recs)
	if err != nil {
		report.NotIssued = res.Eligible
		s.metrics.IncCertificateRun("failed")
		s.log.Error("certificates: batch insert failed", "event_id", req.EventID, "eligible", len(recs), "error", err)
		return report, fmt.Errorf("%w: %w", ErrBatchInsert, err)
	}

	// Rolls the store skipped were certified by a concurrent run after the
	// resolver looked.
	wrote := make(map[string]struct{}, len(written))
	for _, roll := range written {
		wrote[roll] = struct{}{}
	}
	for _, roll := range res.Eligible {
		if _, ok := wrote[roll]; ok {
			report.Issued = append(report.Issued, roll)
		} else {
			report.AlreadyIssued = append(report.AlreadyIssued, roll)
		}
	}
	if len(report.Issued) == 0 {
		report.NothingToIssue = true
		s.metrics.IncCertificateRun("nothing_to_issue")
		s.log.Info("certificates: concurrent run issued them first", "event_id", req.EventID, "already_issued", len(report.AlreadyIssued))
		return report, nil
	}

	s.metrics.IncCertificateRun("issued")
	s.metrics.AddCertificatesIssued(len(report.Issued))
	s.log.Info("certificates issued", "event_id", req.EventID, "issued", len(report.Issued), "already_issued", len(report.AlreadyIssued))
	return report, nil
}

// ListByEvent returns the event's issued certificates.
func (s *Service) ListByEvent(ctx context.Context, eventID string) ([]Record, error) {
	return s.store.ListByEvent(ctx, eventID)
}
