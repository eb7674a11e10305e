// Package jobs carries notification work from the API to the worker.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"clubcheckin/internal/notify"
	"clubcheckin/internal/queue"
)

// Job kinds.
const (
	KindNewEvent         = "notify.new_event"
	KindEventUpdate      = "notify.event_update"
	KindCertificateReady = "notify.certificate_ready"
)

// NewEvent asks for an announcement to the event's club.
type NewEvent struct {
	EventID string `json:"event_id"`
}

// EventUpdate asks for a change notice to the event's registrants.
type EventUpdate struct {
	EventID string `json:"event_id"`
	Note    string `json:"note"`
}

// CertificateReady asks for certificates to be mailed to the listed attendees.
type CertificateReady struct {
	EventID     string    `json:"event_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	RollNumbers []string  `json:"roll_numbers"`
	IssuedAt    time.Time `json:"issued_at"`
}

var templateFor = map[string]string{
	KindNewEvent:         notify.TemplateNewEvent,
	KindEventUpdate:      notify.TemplateEventUpdate,
	KindCertificateReady: notify.TemplateCertificateReady,
}

// Publisher enqueues dispatch jobs and records them as queued.
type Publisher struct {
	q       queue.Queue
	reports notify.ReportStore
	now     func() time.Time
}

// NewPublisher creates a publisher.
func NewPublisher(q queue.Queue, reports notify.ReportStore) *Publisher {
	return &Publisher{q: q, reports: reports, now: func() time.Time { return time.Now().UTC() }}
}

// PublishNewEvent enqueues a new-event announcement.
func (p *Publisher) PublishNewEvent(ctx context.Context, job NewEvent) (string, error) {
	return p.publish(ctx, KindNewEvent, job.EventID, job)
}

// PublishEventUpdate enqueues an event-update notice.
func (p *Publisher) PublishEventUpdate(ctx context.Context, job EventUpdate) (string, error) {
	return p.publish(ctx, KindEventUpdate, job.EventID, job)
}

// PublishCertificateReady enqueues certificate mails.
func (p *Publisher) PublishCertificateReady(ctx context.Context, job CertificateReady) (string, error) {
	return p.publish(ctx, KindCertificateReady, job.EventID, job)
}

func (p *Publisher) publish(ctx context.Context, kind, eventID string, job any) (string, error) {
	body, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("jobs: encode %s: %w", kind, err)
	}
	msg := queue.Message{ID: uuid.NewString(), Type: kind, Body: body, EnqueuedAt: p.now()}
	if err := p.reports.Save(ctx, notify.Report{
		JobID:    msg.ID,
		State:    notify.ReportQueued,
		Template: templateFor[kind],
		EventID:  eventID,
		Results:  []notify.Outcome{},
	}); err != nil {
		return "", fmt.Errorf("jobs: record %s: %w", kind, err)
	}
	if err := p.q.Publish(ctx, msg); err != nil {
		return "", fmt.Errorf("jobs: publish %s: %w", kind, err)
	}
	return msg.ID, nil
}
