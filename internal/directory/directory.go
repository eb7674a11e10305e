// Package directory reads the portal's registrations, events, members and
// mentors to resolve who a notification goes to.
package directory

import (
	"context"
	"errors"
	"strings"

	"clubcheckin/internal/model"
)

// ErrNotFound is returned for unknown registrations and events.
var ErrNotFound = errors.New("directory: not found")

// MemberApproved is the membership status that receives announcements.
const MemberApproved = "approved"

// Directory is the read side of the portal this service depends on.
type Directory interface {
	Registration(ctx context.Context, id string) (model.Registration, error)
	Event(ctx context.Context, id string) (model.Event, error)
	// AnnouncementRecipients returns approved members of the event's club
	// outside the graduated cohort, followed by all mentors.
	AnnouncementRecipients(ctx context.Context, ev model.Event, graduatedCohort string) ([]model.Recipient, error)
	EventRegistrants(ctx context.Context, eventID string) ([]model.Recipient, error)
	StudentsByRollNumbers(ctx context.Context, rolls []string) ([]model.Recipient, error)
}

// dedupeByAddress drops later entries whose address matches an earlier one
// case-insensitively, so a mentor who is also a member gets one mail.
func dedupeByAddress(in []model.Recipient) []model.Recipient {
	seen := make(map[string]struct{}, len(in))
	out := make([]model.Recipient, 0, len(in))
	for _, r := range in {
		key := strings.ToLower(strings.TrimSpace(r.Address))
		if key == "" {
			out = append(out, r)
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		r.Address = strings.TrimSpace(r.Address)
		out = append(out, r)
	}
	return out
}
