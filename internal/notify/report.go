package notify

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"
)

// Status is a recipient's final delivery state.
type Status string

const (
	// StatusSent means the first attempt succeeded.
	StatusSent Status = "sent"
	// StatusRetried means a later attempt succeeded.
	StatusRetried Status = "retried"
	// StatusFailed means every attempt failed or none could be made.
	StatusFailed Status = "failed"
)

// Outcome is one recipient's entry in a dispatch report.
type Outcome struct {
	Address    string `json:"address"`
	Name       string `json:"name,omitempty"`
	RollNumber string `json:"roll_number,omitempty"`
	Status     Status `json:"status"`
	Attempts   int    `json:"attempts"`
	Error      string `json:"error,omitempty"`
}

func (o Outcome) fail(attempts int, err error) Outcome {
	o.Status = StatusFailed
	o.Attempts = attempts
	o.Error = err.Error()
	return o
}

// Summary aggregates a report. Sent+Retried+Failed always equals Total.
type Summary struct {
	Total   int `json:"total"`
	Sent    int `json:"sent"`
	Retried int `json:"retried"`
	Failed  int `json:"failed"`
}

// Summarize counts outcomes by status.
func Summarize(results []Outcome) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		switch r.Status {
		case StatusSent:
			s.Sent++
		case StatusRetried:
			s.Retried++
		default:
			s.Failed++
		}
	}
	return s
}

// Report states as seen by an operator polling a job.
const (
	ReportQueued    = "queued"
	ReportRunning   = "running"
	ReportCompleted = "completed"
	// ReportFailed means the job never reached the dispatcher; Error says why.
	ReportFailed = "failed"
)

// Report is the full result of one dispatch job.
type Report struct {
	JobID      string    `json:"job_id,omitempty"`
	State      string    `json:"state"`
	Template   string    `json:"template"`
	EventID    string    `json:"event_id,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Summary    Summary   `json:"summary"`
	Results    []Outcome `json:"results"`
	Error      string    `json:"error,omitempty"`
}

// WriteCSV writes one row per recipient, preceded by a header.
func (r Report) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"address", "name", "roll_number", "status", "attempts", "error"}); err != nil {
		return err
	}
	for _, o := range r.Results {
		if err := cw.Write([]string{o.Address, o.Name, o.RollNumber, string(o.Status), strconv.Itoa(o.Attempts), o.Error}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
