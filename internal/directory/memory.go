package directory

import (
	"context"
	"sort"
	"sync"

	"clubcheckin/internal/model"
)

// Member is a club membership row.
type Member struct {
	ClubID  string
	Student model.Identity
	Status  string
}

// InMemory is a seedable Directory for dev runs and tests.
type InMemory struct {
	mu            sync.RWMutex
	events        map[string]model.Event
	registrations []model.Registration
	members       []Member
	mentors       []model.Recipient
	students      map[string]model.Recipient
}

// NewInMemory creates an empty directory.
func NewInMemory() *InMemory {
	return &InMemory{
		events:   make(map[string]model.Event),
		students: make(map[string]model.Recipient),
	}
}

func (m *InMemory) AddEvent(ev model.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[ev.ID] = ev
}

func (m *InMemory) AddRegistration(reg model.Registration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	reg.Student.RollNumber = model.NormalizeRollNumber(reg.Student.RollNumber)
	m.registrations = append(m.registrations, reg)
	m.addStudentLocked(reg.Student)
}

func (m *InMemory) AddMember(mem Member) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem.Student.RollNumber = model.NormalizeRollNumber(mem.Student.RollNumber)
	m.members = append(m.members, mem)
	m.addStudentLocked(mem.Student)
}

func (m *InMemory) AddMentor(name, email string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mentors = append(m.mentors, model.Recipient{Name: name, Address: email})
}

func (m *InMemory) addStudentLocked(s model.Identity) {
	if s.RollNumber == "" {
		return
	}
	m.students[s.RollNumber] = model.Recipient{Name: s.Name, Address: s.Email, RollNumber: s.RollNumber}
}

func (m *InMemory) Registration(_ context.Context, id string) (model.Registration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, reg := range m.registrations {
		if reg.ID == id {
			return reg, nil
		}
	}
	return model.Registration{}, ErrNotFound
}

func (m *InMemory) Event(_ context.Context, id string) (model.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ev, ok := m.events[id]
	if !ok {
		return model.Event{}, ErrNotFound
	}
	return ev, nil
}

func (m *InMemory) AnnouncementRecipients(_ context.Context, ev model.Event, graduatedCohort string) ([]model.Recipient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var members []model.Recipient
	for _, mem := range m.members {
		if mem.ClubID != ev.ClubID || mem.Status != MemberApproved || mem.Student.Year == graduatedCohort {
			continue
		}
		members = append(members, model.Recipient{Name: mem.Student.Name, Address: mem.Student.Email, RollNumber: mem.Student.RollNumber})
	}
	sort.SliceStable(members, func(i, j int) bool { return members[i].Name < members[j].Name })
	mentors := append([]model.Recipient(nil), m.mentors...)
	sort.SliceStable(mentors, func(i, j int) bool { return mentors[i].Name < mentors[j].Name })
	return dedupeByAddress(append(members, mentors...)), nil
}

func (m *InMemory) EventRegistrants(_ context.Context, eventID string) ([]model.Recipient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Recipient
	for _, reg := range m.registrations {
		if reg.EventID == eventID {
			out = append(out, model.Recipient{Name: reg.Student.Name, Address: reg.Student.Email, RollNumber: reg.Student.RollNumber})
		}
	}
	return dedupeByAddress(out), nil
}

func (m *InMemory) StudentsByRollNumbers(_ context.Context, rolls []string) ([]model.Recipient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Recipient
	for _, roll := range model.NormalizeRollNumbers(rolls) {
		if s, ok := m.students[roll]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}
