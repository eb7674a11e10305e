package certificate

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Repository persists certificates in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// IssuedRollNumbers returns the subset of rolls already certified for the event.
func (r *Repository) IssuedRollNumbers(ctx context.Context, eventID string, rolls []string) ([]string, error) {
	if len(rolls) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(rolls)+1)
	args = append(args, eventID)
	placeholders := make([]string, 0, len(rolls))
	for _, roll := range rolls {
		args = append(args, roll)
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT roll_number FROM certificates
		WHERE event_id = $1 AND roll_number IN (`+strings.Join(placeholders, ",")+`)
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var roll string
		if err := rows.Scan(&roll); err != nil {
			return nil, err
		}
		out = append(out, roll)
	}
	return out, rows.Err()
}

// InsertBatch inserts recs with one multi-row statement inside a transaction.
// The unique (event_id, roll_number) index turns a concurrent run's rows into
// no-ops; only the rows this call wrote come back.
func (r *Repository) InsertBatch(ctx context.Context, recs []Record) ([]string, error) {
	if len(recs) == 0 {
		return nil, nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("certificate: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	values := make([]string, 0, len(recs))
	args := make([]any, 0, len(recs)*5)
	for i, rec := range recs {
		n := i * 5
		values = append(values, fmt.Sprintf("($%d,$%d,$%d,$%d,$%d)", n+1, n+2, n+3, n+4, n+5))
		args = append(args, rec.EventID, rec.RollNumber, rec.Title, rec.Description, rec.IssuedAt)
	}
	rows, err := tx.QueryContext(ctx, `
		INSERT INTO certificates (event_id, roll_number, title, description, issued_at)
		VALUES `+strings.Join(values, ",")+`
		ON CONFLICT (event_id, roll_number) DO NOTHING
		RETURNING roll_number`, args...)
	if err != nil {
		return nil, fmt.Errorf("certificate: insert: %w", err)
	}
	var written []string
	for rows.Next() {
		var roll string
		if err := rows.Scan(&roll); err != nil {
			rows.Close()
			return nil, fmt.Errorf("certificate: insert: %w", err)
		}
		written = append(written, roll)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("certificate: insert: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("certificate: commit: %w", err)
	}
	return written, nil
}

// ListByEvent returns certificates for an event ordered by roll number.
func (r *Repository) ListByEvent(ctx context.Context, eventID string) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT event_id, roll_number, title, description, issued_at
		FROM certificates WHERE event_id = $1
		ORDER BY roll_number
	`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.EventID, &rec.RollNumber, &rec.Title, &rec.Description, &rec.IssuedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
