package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clubcheckin/internal/model"
)

// scriptedTransport fails the first failures[address] sends to an address;
// a negative count fails forever.
type scriptedTransport struct {
	mu       sync.Mutex
	failures map[string]int
	calls    map[string]int
	sent     []Message
	onSend   func(ctx context.Context, msg Message)
}

func newScripted(failures map[string]int) *scriptedTransport {
	return &scriptedTransport{failures: failures, calls: map[string]int{}}
}

func (s *scriptedTransport) Send(ctx context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.onSend != nil {
		s.onSend(ctx, msg)
	}
	s.calls[msg.To]++
	n := s.failures[msg.To]
	if n < 0 || s.calls[msg.To] <= n {
		return fmt.Errorf("provider 503 for %s", msg.To)
	}
	s.sent = append(s.sent, msg)
	return nil
}

type sleepLog struct {
	waits []time.Duration
	hook  func(n int)
}

func (l *sleepLog) sleep(ctx context.Context, d time.Duration) error {
	l.waits = append(l.waits, d)
	if l.hook != nil {
		l.hook(len(l.waits))
	}
	return ctx.Err()
}

type staticTemplate struct {
	buildErr map[string]error
}

func (staticTemplate) Name() string { return "test" }

func (t staticTemplate) Build(_ context.Context, to model.Recipient) (Message, error) {
	if err := t.buildErr[to.Address]; err != nil {
		return Message{}, err
	}
	return Message{Subject: "hello", Body: "hi " + to.Name}, nil
}

func recipients(n int) []model.Recipient {
	out := make([]model.Recipient, n)
	for i := range out {
		out[i] = model.Recipient{Name: fmt.Sprintf("R%d", i+1), Address: fmt.Sprintf("r%d@college.edu", i+1)}
	}
	return out
}

func newTestDispatcher(tr Transport, opts Options) (*Dispatcher, *sleepLog) {
	d := NewDispatcher(tr, opts, nil, nil)
	log := &sleepLog{}
	d.sleep = log.sleep
	return d, log
}

func TestDispatchScenarioOneRecipientAlwaysFails(t *testing.T) {
	tr := newScripted(map[string]int{"r2@college.edu": -1})
	d, sleeps := newTestDispatcher(tr, DefaultOptions())

	report := d.Dispatch(context.Background(), recipients(3), staticTemplate{})

	require.Len(t, report.Results, 3)
	assert.Equal(t, StatusSent, report.Results[0].Status)
	assert.Equal(t, 1, report.Results[0].Attempts)
	assert.Equal(t, StatusFailed, report.Results[1].Status)
	assert.Equal(t, 3, report.Results[1].Attempts)
	assert.Contains(t, report.Results[1].Error, "provider 503")
	assert.Equal(t, StatusSent, report.Results[2].Status)
	assert.Equal(t, Summary{Total: 3, Sent: 2, Retried: 0, Failed: 1}, report.Summary)

	// throttle, two retry waits for r2, throttle; nothing after the last recipient.
	assert.Equal(t, []time.Duration{2 * time.Second, time.Second, time.Second, 2 * time.Second}, sleeps.waits)
}

func TestDispatchRecordsRetriedSuccess(t *testing.T) {
	tr := newScripted(map[string]int{"r1@college.edu": 2})
	d, _ := newTestDispatcher(tr, DefaultOptions())

	report := d.Dispatch(context.Background(), recipients(1), staticTemplate{})

	require.Len(t, report.Results, 1)
	assert.Equal(t, StatusRetried, report.Results[0].Status)
	assert.Equal(t, 3, report.Results[0].Attempts)
	assert.Empty(t, report.Results[0].Error)
	assert.Equal(t, Summary{Total: 1, Retried: 1}, report.Summary)
}

func TestDispatchBoundedRetry(t *testing.T) {
	for _, maxRetries := range []int{0, 1, 4} {
		t.Run(fmt.Sprintf("max_retries=%d", maxRetries), func(t *testing.T) {
			tr := newScripted(map[string]int{"r1@college.edu": -1})
			opts := DefaultOptions()
			opts.MaxRetries = maxRetries
			d, _ := newTestDispatcher(tr, opts)

			report := d.Dispatch(context.Background(), recipients(1), staticTemplate{})

			assert.Equal(t, maxRetries+1, report.Results[0].Attempts)
			assert.Equal(t, maxRetries+1, tr.calls["r1@college.edu"])
			assert.Equal(t, StatusFailed, report.Results[0].Status)
		})
	}
}

func TestDispatchCompleteness(t *testing.T) {
	failures := map[string]int{}
	rs := recipients(25)
	for i, r := range rs {
		switch i % 4 {
		case 1:
			failures[r.Address] = -1
		case 2:
			failures[r.Address] = 1
		}
	}
	d, _ := newTestDispatcher(newScripted(failures), DefaultOptions())

	report := d.Dispatch(context.Background(), rs, staticTemplate{})

	require.Len(t, report.Results, len(rs))
	for i, out := range report.Results {
		assert.Equal(t, rs[i].Address, out.Address, "results keep recipient order")
	}
	s := report.Summary
	assert.Equal(t, len(rs), s.Total)
	assert.Equal(t, s.Total, s.Sent+s.Retried+s.Failed)
	assert.Equal(t, 6, s.Failed)
	assert.Equal(t, 6, s.Retried)
}

func TestDispatchBuildFailureSkipsTransport(t *testing.T) {
	tr := newScripted(nil)
	d, _ := newTestDispatcher(tr, DefaultOptions())
	tmpl := staticTemplate{buildErr: map[string]error{"r1@college.edu": errors.New("renderer down")}}

	report := d.Dispatch(context.Background(), recipients(2), tmpl)

	assert.Equal(t, StatusFailed, report.Results[0].Status)
	assert.Equal(t, 0, report.Results[0].Attempts)
	assert.Equal(t, "renderer down", report.Results[0].Error)
	assert.Zero(t, tr.calls["r1@college.edu"])
	assert.Equal(t, StatusSent, report.Results[1].Status)
}

func TestDispatchMissingAddress(t *testing.T) {
	d, _ := newTestDispatcher(newScripted(nil), DefaultOptions())
	report := d.Dispatch(context.Background(), []model.Recipient{{Name: "Nobody"}}, staticTemplate{})
	assert.Equal(t, Summary{Total: 1, Failed: 1}, report.Summary)
}

func TestDispatchCancellationReportsEveryRecipient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d, sleeps := newTestDispatcher(newScripted(nil), DefaultOptions())
	sleeps.hook = func(n int) {
		if n == 2 {
			cancel()
		}
	}

	report := d.Dispatch(ctx, recipients(5), staticTemplate{})

	require.Len(t, report.Results, 5)
	assert.Equal(t, StatusSent, report.Results[0].Status)
	assert.Equal(t, StatusSent, report.Results[1].Status)
	for _, out := range report.Results[2:] {
		assert.Equal(t, StatusFailed, out.Status)
		assert.Equal(t, 0, out.Attempts)
		assert.Equal(t, ErrCancelled.Error(), out.Error)
	}
	assert.Equal(t, Summary{Total: 5, Sent: 2, Failed: 3}, report.Summary)
}

func TestDispatchAlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tr := newScripted(nil)
	d, _ := newTestDispatcher(tr, DefaultOptions())

	report := d.Dispatch(ctx, recipients(3), staticTemplate{})

	assert.Equal(t, Summary{Total: 3, Failed: 3}, report.Summary)
	assert.Empty(t, tr.calls)
}

func TestDispatchAppliesAttemptTimeout(t *testing.T) {
	tr := newScripted(nil)
	var hadDeadline bool
	tr.onSend = func(ctx context.Context, _ Message) { _, hadDeadline = ctx.Deadline() }
	opts := DefaultOptions()
	opts.AttemptTimeout = 5 * time.Second
	d, _ := newTestDispatcher(tr, opts)

	d.Dispatch(context.Background(), recipients(1), staticTemplate{})

	assert.True(t, hadDeadline)
}

func TestDispatchEmptyRecipientList(t *testing.T) {
	d, sleeps := newTestDispatcher(newScripted(nil), DefaultOptions())
	report := d.Dispatch(context.Background(), nil, staticTemplate{})
	assert.Equal(t, Summary{}, report.Summary)
	assert.NotNil(t, report.Results)
	assert.Empty(t, sleeps.waits)
}

func TestSleepCtxHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	err := sleepCtx(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
	assert.NoError(t, sleepCtx(context.Background(), time.Millisecond))
}

func TestReportWriteCSV(t *testing.T) {
	r := Report{Results: []Outcome{
		{Address: "a@x.edu", Name: "A", Status: StatusSent, Attempts: 1},
		{Address: "b@x.edu", Name: "B, Jr.", RollNumber: "21BD1A002", Status: StatusFailed, Attempts: 3, Error: "timeout"},
	}}
	var buf strings.Builder
	require.NoError(t, r.WriteCSV(&buf))
	assert.Equal(t,
		"address,name,roll_number,status,attempts,error\n"+
			"a@x.edu,A,,sent,1,\n"+
			"b@x.edu,\"B, Jr.\",21BD1A002,failed,3,timeout\n",
		buf.String())
}
