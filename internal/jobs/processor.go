package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"clubcheckin/internal/attendance"
	"clubcheckin/internal/directory"
	"clubcheckin/internal/metrics"
	"clubcheckin/internal/model"
	"clubcheckin/internal/notify"
	"clubcheckin/internal/queue"
)

// ErrUnknownKind is returned for messages this worker does not handle.
var ErrUnknownKind = errors.New("jobs: unknown job kind")

// Roster is the attendance view needed to address certificate mail.
type Roster interface {
	ListByEvent(ctx context.Context, eventID string) ([]attendance.Record, error)
}

// Processor turns queued jobs into dispatch runs. Each recipient strategy
// feeds the same dispatcher.
type Processor struct {
	Directory       directory.Directory
	Roster          Roster
	Dispatcher      *notify.Dispatcher
	Renderer        notify.Renderer
	Reports         notify.ReportStore
	GraduatedCohort string
	Log             *slog.Logger
	Metrics         *metrics.Metrics
}

// Run handles messages one at a time until ctx ends or the queue closes.
func (p *Processor) Run(ctx context.Context, q queue.Queue) error {
	msgs, err := q.Consume(ctx)
	if err != nil {
		return fmt.Errorf("jobs: consume: %w", err)
	}
	p.logger().Info("worker started, waiting for jobs")
	for msg := range msgs {
		if err := p.Handle(ctx, msg); err != nil {
			p.logger().Error("job failed", "job_id", msg.ID, "kind", msg.Type, "error", err)
		}
	}
	p.logger().Info("worker stopped")
	return nil
}

// Handle runs one job and stores its report. Errors mean the job could not
// start (bad payload, unknown event, store down); per-recipient failures
// live in the report.
func (p *Processor) Handle(ctx context.Context, msg queue.Message) error {
	log := p.logger().With("job_id", msg.ID, "kind", msg.Type)

	eventID, recipients, tmpl, err := p.prepare(ctx, msg)
	if err != nil {
		p.Metrics.IncJob(msg.Type, "error")
		p.saveFailed(ctx, msg, err)
		return err
	}
	log.Info("job started", "event_id", eventID, "recipients", len(recipients))
	if err := p.Reports.Save(ctx, notify.Report{
		JobID: msg.ID, State: notify.ReportRunning, Template: tmpl.Name(), EventID: eventID,
		StartedAt: time.Now().UTC(), Results: []notify.Outcome{},
	}); err != nil {
		log.Warn("running report not saved", "error", err)
	}

	report := p.Dispatcher.Dispatch(ctx, recipients, tmpl)
	report.JobID = msg.ID
	report.EventID = eventID

	// The run is over even if ctx was cancelled mid-way; store what happened.
	if err := p.Reports.Save(context.WithoutCancel(ctx), report); err != nil {
		p.Metrics.IncJob(msg.Type, "error")
		return fmt.Errorf("jobs: save report: %w", err)
	}
	p.Metrics.IncJob(msg.Type, "ok")
	return nil
}

// saveFailed replaces the queued report so pollers see why the job died.
func (p *Processor) saveFailed(ctx context.Context, msg queue.Message, cause error) {
	ctx = context.WithoutCancel(ctx)
	now := time.Now().UTC()
	report, err := p.Reports.Get(ctx, msg.ID)
	if err != nil {
		report = notify.Report{JobID: msg.ID, Template: templateFor[msg.Type], Results: []notify.Outcome{}}
	}
	report.State = notify.ReportFailed
	report.StartedAt = now
	report.FinishedAt = now
	report.Error = cause.Error()
	if err := p.Reports.Save(ctx, report); err != nil {
		p.logger().Error("failed report not saved", "job_id", msg.ID, "kind", msg.Type, "error", err)
	}
}

func (p *Processor) prepare(ctx context.Context, msg queue.Message) (string, []model.Recipient, notify.Template, error) {
	switch msg.Type {
	case KindNewEvent:
		var job NewEvent
		if err := decode(msg, &job); err != nil {
			return "", nil, nil, err
		}
		ev, err := p.Directory.Event(ctx, job.EventID)
		if err != nil {
			return "", nil, nil, err
		}
		rs, err := p.Directory.AnnouncementRecipients(ctx, ev, p.GraduatedCohort)
		if err != nil {
			return "", nil, nil, err
		}
		return ev.ID, rs, notify.NewEventTemplate{Event: ev}, nil

	case KindEventUpdate:
		var job EventUpdate
		if err := decode(msg, &job); err != nil {
			return "", nil, nil, err
		}
		ev, err := p.Directory.Event(ctx, job.EventID)
		if err != nil {
			return "", nil, nil, err
		}
		rs, err := p.Directory.EventRegistrants(ctx, ev.ID)
		if err != nil {
			return "", nil, nil, err
		}
		return ev.ID, rs, notify.EventUpdateTemplate{Event: ev, Note: job.Note}, nil

	case KindCertificateReady:
		var job CertificateReady
		if err := decode(msg, &job); err != nil {
			return "", nil, nil, err
		}
		ev, err := p.Directory.Event(ctx, job.EventID)
		if err != nil {
			return "", nil, nil, err
		}
		rs, err := p.certificateRecipients(ctx, ev.ID, job.RollNumbers)
		if err != nil {
			return "", nil, nil, err
		}
		return ev.ID, rs, notify.CertificateReadyTemplate{
			Event:       ev,
			Title:       job.Title,
			Description: job.Description,
			IssuedAt:    job.IssuedAt,
			Renderer:    p.Renderer,
		}, nil
	}
	return "", nil, nil, fmt.Errorf("%w: %q", ErrUnknownKind, msg.Type)
}

// certificateRecipients addresses each roll number from its attendance
// snapshot, falling back to the student directory. A roll number with no
// known address still gets a recipient entry so the report shows it failing.
func (p *Processor) certificateRecipients(ctx context.Context, eventID string, rolls []string) ([]model.Recipient, error) {
	rolls = model.NormalizeRollNumbers(rolls)
	known := make(map[string]model.Recipient, len(rolls))

	recs, err := p.Roster.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	for _, rec := range recs {
		roll := model.NormalizeRollNumber(rec.Student.RollNumber)
		known[roll] = model.Recipient{Name: rec.Student.Name, Address: rec.Student.Email, RollNumber: roll}
	}

	var missing []string
	for _, roll := range rolls {
		if _, ok := known[roll]; !ok {
			missing = append(missing, roll)
		}
	}
	if len(missing) > 0 {
		found, err := p.Directory.StudentsByRollNumbers(ctx, missing)
		if err != nil {
			return nil, err
		}
		for _, r := range found {
			known[model.NormalizeRollNumber(r.RollNumber)] = r
		}
	}

	out := make([]model.Recipient, 0, len(rolls))
	for _, roll := range rolls {
		r, ok := known[roll]
		if !ok {
			r = model.Recipient{RollNumber: roll}
		}
		out = append(out, r)
	}
	return out, nil
}

func (p *Processor) logger() *slog.Logger {
	if p.Log == nil {
		return slog.Default()
	}
	return p.Log
}

func decode(msg queue.Message, into any) error {
	if err := json.Unmarshal(msg.Body, into); err != nil {
		return fmt.Errorf("jobs: decode %s: %w", msg.Type, err)
	}
	return nil
}
