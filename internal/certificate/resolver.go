package certificate

import (
	"context"
	"fmt"

	"clubcheckin/internal/model"
)

// Resolver computes certificate eligibility. It never writes.
type Resolver struct {
	store Store
}

// NewResolver creates a resolver over store.
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// ResolveEligible returns confirmed minus already certified for the event.
// Input order is kept in both output lists.
func (r *Resolver) ResolveEligible(ctx context.Context, eventID string, confirmed []string) (Resolution, error) {
	rolls := model.NormalizeRollNumbers(confirmed)
	res := Resolution{Eligible: []string{}, AlreadyIssued: []string{}}
	if len(rolls) == 0 {
		return res, nil
	}

	issued, err := r.store.IssuedRollNumbers(ctx, eventID, rolls)
	if err != nil {
		return Resolution{}, fmt.Errorf("certificate: query existing: %w", err)
	}
	have := make(map[string]struct{}, len(issued))
	for _, roll := range issued {
		have[model.NormalizeRollNumber(roll)] = struct{}{}
	}

	for _, roll := range rolls {
		if _, ok := have[roll]; ok {
			res.AlreadyIssued = append(res.AlreadyIssued, roll)
		} else {
			res.Eligible = append(res.Eligible, roll)
		}
	}
	return res, nil
}
