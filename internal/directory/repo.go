package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"clubcheckin/internal/model"
)

// Repository reads portal tables from Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Registration(ctx context.Context, id string) (model.Registration, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, event_id, student_name, email, roll_number, branch, year, created_at
		FROM registrations WHERE id = $1
	`, id)
	var reg model.Registration
	err := row.Scan(&reg.ID, &reg.EventID, &reg.Student.Name, &reg.Student.Email, &reg.Student.RollNumber,
		&reg.Student.Branch, &reg.Student.Year, &reg.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Registration{}, ErrNotFound
	}
	if err != nil {
		return model.Registration{}, fmt.Errorf("directory: registration: %w", err)
	}
	reg.Student.RollNumber = model.NormalizeRollNumber(reg.Student.RollNumber)
	return reg, nil
}

func (r *Repository) Event(ctx context.Context, id string) (model.Event, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT e.id, e.club_id, c.name, e.title, e.description, e.venue, e.starts_at
		FROM events e JOIN clubs c ON c.id = e.club_id
		WHERE e.id = $1
	`, id)
	var ev model.Event
	err := row.Scan(&ev.ID, &ev.ClubID, &ev.ClubName, &ev.Title, &ev.Description, &ev.Venue, &ev.StartsAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Event{}, ErrNotFound
	}
	if err != nil {
		return model.Event{}, fmt.Errorf("directory: event: %w", err)
	}
	return ev, nil
}

func (r *Repository) AnnouncementRecipients(ctx context.Context, ev model.Event, graduatedCohort string) ([]model.Recipient, error) {
	members, err := r.recipients(ctx, `
		SELECT student_name, email, roll_number FROM club_members
		WHERE club_id = $1 AND status = $2 AND year <> $3
		ORDER BY student_name
	`, ev.ClubID, MemberApproved, graduatedCohort)
	if err != nil {
		return nil, err
	}
	mentors, err := r.recipients(ctx, `SELECT name, email, '' FROM mentors ORDER BY name`)
	if err != nil {
		return nil, err
	}
	return dedupeByAddress(append(members, mentors...)), nil
}

func (r *Repository) EventRegistrants(ctx context.Context, eventID string) ([]model.Recipient, error) {
	rs, err := r.recipients(ctx, `
		SELECT student_name, email, roll_number FROM registrations
		WHERE event_id = $1 ORDER BY created_at
	`, eventID)
	if err != nil {
		return nil, err
	}
	return dedupeByAddress(rs), nil
}

func (r *Repository) StudentsByRollNumbers(ctx context.Context, rolls []string) ([]model.Recipient, error) {
	if len(rolls) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(rolls))
	ph := make([]string, 0, len(rolls))
	for _, roll := range rolls {
		args = append(args, model.NormalizeRollNumber(roll))
		ph = append(ph, fmt.Sprintf("$%d", len(args)))
	}
	return r.recipients(ctx, `
		SELECT student_name, email, roll_number FROM students
		WHERE UPPER(roll_number) IN (`+strings.Join(ph, ",")+`)
		ORDER BY roll_number
	`, args...)
}

func (r *Repository) recipients(ctx context.Context, query string, args ...any) ([]model.Recipient, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("directory: query recipients: %w", err)
	}
	defer rows.Close()
	var out []model.Recipient
	for rows.Next() {
		var rc model.Recipient
		if err := rows.Scan(&rc.Name, &rc.Address, &rc.RollNumber); err != nil {
			return nil, fmt.Errorf("directory: scan recipient: %w", err)
		}
		rc.RollNumber = model.NormalizeRollNumber(rc.RollNumber)
		out = append(out, rc)
	}
	return out, rows.Err()
}
