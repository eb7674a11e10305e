package attendance

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemory is a mutex-guarded Store for dev runs and tests. It enforces the
// same uniqueness and conditional-update rules as the Postgres schema.
type InMemory struct {
	mu             sync.Mutex
	byCredential   map[string]Record
	byRegistration map[string]string
}

// NewInMemory creates an empty store.
func NewInMemory() *InMemory {
	return &InMemory{
		byCredential:   make(map[string]Record),
		byRegistration: make(map[string]string),
	}
}

func (m *InMemory) InsertPending(_ context.Context, rec Record) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byRegistration[rec.RegistrationID]; ok {
		return Record{}, ErrDuplicateRegistration
	}
	if _, ok := m.byCredential[rec.Credential]; ok {
		return Record{}, ErrDuplicateCredential
	}
	rec.Status = StatusPending
	rec.ConfirmedAt = nil
	rec.CreatedAt = time.Now().UTC()
	m.byCredential[rec.Credential] = rec
	m.byRegistration[rec.RegistrationID] = rec.Credential
	return rec, nil
}

func (m *InMemory) ByRegistration(_ context.Context, registrationID string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cred, ok := m.byRegistration[registrationID]
	if !ok {
		return Record{}, ErrNotFound
	}
	return m.byCredential[cred], nil
}

func (m *InMemory) Get(_ context.Context, credential string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.byCredential[credential]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (m *InMemory) ConfirmPending(_ context.Context, credential, eventID string, at time.Time) (Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.byCredential[credential]
	if !ok || rec.EventID != eventID || rec.Status != StatusPending {
		return Record{}, false, nil
	}
	at = at.UTC()
	rec.Status = StatusPresent
	rec.ConfirmedAt = &at
	m.byCredential[credential] = rec
	return rec, true, nil
}

func (m *InMemory) ListByEvent(_ context.Context, eventID string, status Status) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []Record
	for _, rec := range m.byCredential {
		if rec.EventID != eventID {
			continue
		}
		if status != "" && rec.Status != status {
			continue
		}
		res = append(res, rec)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Student.RollNumber < res[j].Student.RollNumber })
	return res, nil
}
