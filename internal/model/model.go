package model

import (
	"strings"
	"time"
)

// Identity is the student data snapshotted onto attendance records and used
// to address notifications.
type Identity struct {
	Name       string `json:"student_name"`
	Email      string `json:"email"`
	RollNumber string `json:"roll_number"`
	Branch     string `json:"branch,omitempty"`
	Year       string `json:"year,omitempty"`
}

// Registration is a committed event registration owned by the portal.
type Registration struct {
	ID        string    `json:"id"`
	EventID   string    `json:"event_id"`
	Student   Identity  `json:"student"`
	CreatedAt time.Time `json:"created_at"`
}

// Event is the portal's event row as far as this service needs it.
type Event struct {
	ID          string    `json:"id"`
	ClubID      string    `json:"club_id"`
	ClubName    string    `json:"club_name,omitempty"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Venue       string    `json:"venue,omitempty"`
	StartsAt    time.Time `json:"starts_at"`
}

// Recipient is one addressee of a notification.
type Recipient struct {
	Name       string `json:"name"`
	Address    string `json:"address"`
	RollNumber string `json:"roll_number,omitempty"`
}

// NormalizeRollNumber canonicalizes roll numbers so "21bd1a001 " and
// "21BD1A001" compare equal.
func NormalizeRollNumber(roll string) string {
	return strings.ToUpper(strings.TrimSpace(roll))
}

// NormalizeRollNumbers normalizes, drops blanks and removes duplicates while
// keeping first-seen order.
func NormalizeRollNumbers(rolls []string) []string {
	seen := make(map[string]struct{}, len(rolls))
	out := make([]string, 0, len(rolls))
	for _, r := range rolls {
		n := NormalizeRollNumber(r)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
