package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	uniqueViolation        = "23505"
	registrationConstraint = "attendance_registration_id_key"
	recordColumns          = `credential, event_id, registration_id, student_name, email, roll_number, branch, year, status, confirmed_at, created_at`
)

// Repository persists attendance records in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// InsertPending writes a new pending record. A unique violation on the
// registration maps to ErrDuplicateRegistration, on the credential to
// ErrDuplicateCredential.
func (r *Repository) InsertPending(ctx context.Context, rec Record) (Record, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance (credential, event_id, registration_id, student_name, email, roll_number, branch, year, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,'pending')
		RETURNING created_at
	`, rec.Credential, rec.EventID, rec.RegistrationID, rec.Student.Name, rec.Student.Email,
		rec.Student.RollNumber, rec.Student.Branch, rec.Student.Year)
	if err := row.Scan(&rec.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			if pgErr.ConstraintName == registrationConstraint {
				return Record{}, ErrDuplicateRegistration
			}
			return Record{}, ErrDuplicateCredential
		}
		return Record{}, fmt.Errorf("attendance: insert: %w", err)
	}
	rec.Status = StatusPending
	return rec, nil
}

// ByRegistration returns the record issued for a registration.
func (r *Repository) ByRegistration(ctx context.Context, registrationID string) (Record, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM attendance WHERE registration_id = $1`, registrationID)
	return scanOne(row)
}

// Get returns the record for a credential.
func (r *Repository) Get(ctx context.Context, credential string) (Record, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM attendance WHERE credential = $1`, credential)
	return scanOne(row)
}

// ConfirmPending flips a pending record to present in a single conditional
// statement. applied is false when no pending row matched; the caller then
// reads the row to find out why.
func (r *Repository) ConfirmPending(ctx context.Context, credential, eventID string, at time.Time) (Record, bool, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE attendance
		SET status = 'present', confirmed_at = $3
		WHERE credential = $1 AND event_id = $2 AND status = 'pending'
		RETURNING `+recordColumns,
		credential, eventID, at)
	rec, err := scanOne(row)
	if errors.Is(err, ErrNotFound) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

// ListByEvent returns an event's records, optionally filtered by status.
func (r *Repository) ListByEvent(ctx context.Context, eventID string, status Status) ([]Record, error) {
	query := `SELECT ` + recordColumns + ` FROM attendance WHERE event_id = $1`
	args := []any{eventID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, string(status))
	}
	query += ` ORDER BY roll_number`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("attendance: list: %w", err)
	}
	defer rows.Close()
	var res []Record
	for rows.Next() {
		rec, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("attendance: list: %w", err)
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(s scanner) (Record, error) {
	var (
		rec    Record
		status string
		when   sql.NullTime
	)
	err := s.Scan(&rec.Credential, &rec.EventID, &rec.RegistrationID, &rec.Student.Name, &rec.Student.Email,
		&rec.Student.RollNumber, &rec.Student.Branch, &rec.Student.Year, &status, &when, &rec.CreatedAt)
	if err != nil {
		return Record{}, err
	}
	rec.Status = Status(status)
	if when.Valid {
		t := when.Time.UTC()
		rec.ConfirmedAt = &t
	}
	return rec, nil
}

func scanOne(row *sql.Row) (Record, error) {
	rec, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("attendance: query: %w", err)
	}
	return rec, nil
}
