package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"clubcheckin/internal/metrics"
	"clubcheckin/internal/model"
)

// ErrCancelled is recorded for recipients never attempted because the
// dispatch context ended.
var ErrCancelled = errors.New("dispatch cancelled")

// Transport sends one message. Implementations should bound each call; the
// dispatcher also applies Options.AttemptTimeout when set.
type Transport interface {
	Send(ctx context.Context, msg Message) error
}

// Template builds the message for one recipient of a dispatch job.
type Template interface {
	Name() string
	Build(ctx context.Context, to model.Recipient) (Message, error)
}

// Options tunes retry and throttling.
type Options struct {
	// MaxRetries is the number of extra attempts after the first failure.
	MaxRetries int
	// RetryDelay is the pause between attempts for the same recipient.
	RetryDelay time.Duration
	// ThrottleDelay is the pause between recipients.
	ThrottleDelay time.Duration
	// AttemptTimeout bounds each Send. Zero leaves it to the transport.
	AttemptTimeout time.Duration
}

// DefaultOptions matches the mail provider's limits: 3 attempts one second
// apart, two seconds between recipients.
func DefaultOptions() Options {
	return Options{MaxRetries: 2, RetryDelay: time.Second, ThrottleDelay: 2 * time.Second, AttemptTimeout: 30 * time.Second}
}

// Dispatcher sends a template to a recipient list one recipient at a time.
// Sends are sequential so the provider's per-window cap is never exceeded.
type Dispatcher struct {
	transport Transport
	opts      Options
	log       *slog.Logger
	metrics   *metrics.Metrics
	sleep     func(ctx context.Context, d time.Duration) error
	now       func() time.Time
}

// NewDispatcher creates a dispatcher. Negative option values are treated as zero.
func NewDispatcher(transport Transport, opts Options, logger *slog.Logger, m *metrics.Metrics) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	return &Dispatcher{
		transport: transport,
		opts:      opts,
		log:       logger,
		metrics:   m,
		sleep:     sleepCtx,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Dispatch delivers tmpl to every recipient in order and reports each one
// exactly once. A failing recipient never stops the run. When ctx ends, the
// recipients not yet attempted are reported as failed with ErrCancelled.
func (d *Dispatcher) Dispatch(ctx context.Context, recipients []model.Recipient, tmpl Template) Report {
	report := Report{
		State:     ReportCompleted,
		Template:  tmpl.Name(),
		StartedAt: d.now(),
		Results:   make([]Outcome, 0, len(recipients)),
	}
	log := d.log.With("template", tmpl.Name(), "recipients", len(recipients))
	log.Info("dispatch started")

	for i, rcpt := range recipients {
		if i > 0 {
			if err := d.sleep(ctx, d.opts.ThrottleDelay); err != nil {
				report.Results = append(report.Results, cancelled(recipients[i:])...)
				break
			}
		} else if ctx.Err() != nil {
			report.Results = append(report.Results, cancelled(recipients)...)
			break
		}
		out := d.deliver(ctx, rcpt, tmpl)
		if out.Status == StatusFailed {
			log.Warn("recipient failed", "address", out.Address, "attempts", out.Attempts, "error", out.Error)
		}
		report.Results = append(report.Results, out)
	}

	report.FinishedAt = d.now()
	report.Summary = Summarize(report.Results)
	for _, out := range report.Results {
		d.metrics.IncDispatchOutcome(report.Template, string(out.Status))
	}
	d.metrics.ObserveDispatchDuration(report.Template, report.FinishedAt.Sub(report.StartedAt))
	log.Info("dispatch finished",
		"sent", report.Summary.Sent,
		"retried", report.Summary.Retried,
		"failed", report.Summary.Failed)
	return report
}

func (d *Dispatcher) deliver(ctx context.Context, rcpt model.Recipient, tmpl Template) Outcome {
	out := Outcome{Address: rcpt.Address, Name: rcpt.Name, RollNumber: rcpt.RollNumber}
	if rcpt.Address == "" {
		return out.fail(0, errors.New("recipient has no address"))
	}
	msg, err := tmpl.Build(ctx, rcpt)
	if err != nil {
		return out.fail(0, err)
	}
	msg.To = rcpt.Address
	msg.ToName = rcpt.Name

	for attempt := 1; ; attempt++ {
		err := d.send(ctx, msg)
		if err == nil {
			out.Attempts = attempt
			out.Status = StatusSent
			if attempt > 1 {
				out.Status = StatusRetried
			}
			return out
		}
		if attempt > d.opts.MaxRetries {
			return out.fail(attempt, err)
		}
		d.log.Debug("send failed, retrying", "address", rcpt.Address, "attempt", attempt, "error", err)
		if serr := d.sleep(ctx, d.opts.RetryDelay); serr != nil {
			return out.fail(attempt, err)
		}
	}
}

func (d *Dispatcher) send(ctx context.Context, msg Message) error {
	if d.opts.AttemptTimeout <= 0 {
		return d.transport.Send(ctx, msg)
	}
	ctx, cancel := context.WithTimeout(ctx, d.opts.AttemptTimeout)
	defer cancel()
	return d.transport.Send(ctx, msg)
}

func cancelled(rest []model.Recipient) []Outcome {
	out := make([]Outcome, 0, len(rest))
	for _, r := range rest {
		out = append(out, Outcome{Address: r.Address, Name: r.Name, RollNumber: r.RollNumber}.fail(0, ErrCancelled))
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
