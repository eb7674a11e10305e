package certificate

import (
	"context"
	"errors"
	"time"
)

// ErrBatchInsert wraps failures of the single certificate batch insert.
// Nothing from the batch is committed when it is returned.
var ErrBatchInsert = errors.New("certificate: batch insert failed")

// Record is an issued certificate. At most one exists per (event, roll number).
type Record struct {
	EventID     string    `json:"event_id"`
	RollNumber  string    `json:"roll_number"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	IssuedAt    time.Time `json:"issued_at"`
}

// Store is the certificate persistence the resolver and issuer need.
type Store interface {
	// IssuedRollNumbers returns which of rolls already hold a certificate for the event.
	IssuedRollNumbers(ctx context.Context, eventID string, rolls []string) ([]string, error)
	// InsertBatch writes recs in one transaction, skipping any (event, roll
	// number) that already holds a certificate, and returns the roll numbers
	// it actually wrote. The skip must be atomic with the write.
	InsertBatch(ctx context.Context, recs []Record) ([]string, error)
	ListByEvent(ctx context.Context, eventID string) ([]Record, error)
}

// Resolution splits a confirmed roll list into who still needs a certificate
// and who already has one.
type Resolution struct {
	Eligible      []string `json:"eligible"`
	AlreadyIssued []string `json:"already_issued"`
}

// Empty reports whether there is nothing to issue.
func (r Resolution) Empty() bool { return len(r.Eligible) == 0 }
