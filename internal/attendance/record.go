package attendance

import (
	"errors"
	"time"

	"clubcheckin/internal/model"
)

// Status is the check-in state of an attendance record. Pending moves to
// Present exactly once; Present is terminal.
type Status string

const (
	StatusPending Status = "pending"
	StatusPresent Status = "present"
)

var (
	// ErrNotFound is returned when no attendance record exists for a credential.
	ErrNotFound = errors.New("attendance: not found")
	// ErrDuplicateRegistration signals the registration already holds a credential.
	ErrDuplicateRegistration = errors.New("attendance: registration already has a credential")
	// ErrDuplicateCredential signals a freshly minted token collided with an existing one.
	ErrDuplicateCredential = errors.New("attendance: credential collision")
	// ErrInvalidRegistration is returned for registrations missing an id or event.
	ErrInvalidRegistration = errors.New("attendance: invalid registration")
)

// Record is one registrant's attendance row for one event, keyed by credential.
type Record struct {
	Credential     string         `json:"credential"`
	EventID        string         `json:"event_id"`
	RegistrationID string         `json:"registration_id"`
	Student        model.Identity `json:"student"`
	Status         Status         `json:"status"`
	ConfirmedAt    *time.Time     `json:"confirmed_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Credential is what a registrant carries to the event.
type Credential struct {
	Token   string `json:"credential"`
	EventID string `json:"event_id"`
	// Payload is the scan payload to embed in the registrant's QR code.
	Payload string `json:"payload"`
	// Reissued is true when the registration already had a credential and
	// the existing one was returned.
	Reissued bool `json:"reissued"`
}

// Outcome classifies the result of a scan.
type Outcome string

const (
	OutcomeConfirmed        Outcome = "confirmed"
	OutcomeAlreadyConfirmed Outcome = "already_confirmed"
	OutcomeRejected         Outcome = "rejected"
)

// RejectReason says why a scan was rejected.
type RejectReason string

const (
	RejectMalformed         RejectReason = "malformed"
	RejectWrongEvent        RejectReason = "wrong_event"
	RejectUnknownCredential RejectReason = "unknown_credential"
)

// ConfirmationResult is returned for every scan that reached a verdict.
// Student and ConfirmedAt are set for Confirmed and AlreadyConfirmed.
type ConfirmationResult struct {
	Outcome     Outcome        `json:"outcome"`
	Reason      RejectReason   `json:"reason,omitempty"`
	Credential  string         `json:"credential,omitempty"`
	EventID     string         `json:"event_id,omitempty"`
	Student     model.Identity `json:"student"`
	ConfirmedAt *time.Time     `json:"confirmed_at,omitempty"`
}

func rejected(reason RejectReason, credential, eventID string) ConfirmationResult {
	return ConfirmationResult{Outcome: OutcomeRejected, Reason: reason, Credential: credential, EventID: eventID}
}

func fromRecord(outcome Outcome, rec Record) ConfirmationResult {
	return ConfirmationResult{
		Outcome:     outcome,
		Credential:  rec.Credential,
		EventID:     rec.EventID,
		Student:     rec.Student,
		ConfirmedAt: rec.ConfirmedAt,
	}
}
