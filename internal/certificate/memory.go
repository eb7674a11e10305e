package certificate

import (
	"context"
	"sort"
	"sync"
)

// InMemory is a mutex-guarded Store for dev runs and tests.
type InMemory struct {
	mu   sync.Mutex
	recs []Record
	// FailInsert, when set, makes InsertBatch fail without writing anything.
	FailInsert error
}

// NewInMemory creates an empty store.
func NewInMemory() *InMemory {
	return &InMemory{}
}

func (m *InMemory) IssuedRollNumbers(_ context.Context, eventID string, rolls []string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := make(map[string]struct{}, len(rolls))
	for _, r := range rolls {
		want[r] = struct{}{}
	}
	var out []string
	for _, rec := range m.recs {
		if rec.EventID != eventID {
			continue
		}
		if _, ok := want[rec.RollNumber]; ok {
			out = append(out, rec.RollNumber)
			delete(want, rec.RollNumber)
		}
	}
	return out, nil
}

func (m *InMemory) InsertBatch(_ context.Context, recs []Record) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailInsert != nil {
		return nil, m.FailInsert
	}
	have := make(map[[2]string]struct{}, len(m.recs))
	for _, rec := range m.recs {
		have[[2]string{rec.EventID, rec.RollNumber}] = struct{}{}
	}
	var written []string
	for _, rec := range recs {
		key := [2]string{rec.EventID, rec.RollNumber}
		if _, ok := have[key]; ok {
			continue
		}
		have[key] = struct{}{}
		m.recs = append(m.recs, rec)
		written = append(written, rec.RollNumber)
	}
	return written, nil
}

func (m *InMemory) ListByEvent(_ context.Context, eventID string) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Record
	for _, rec := range m.recs {
		if rec.EventID == eventID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RollNumber < out[j].RollNumber })
	return out, nil
}
