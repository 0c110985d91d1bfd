package storage

import (
	"context"
	"strings"
	"sync"
	"time"

	"carecompanion/pkg"
)

// MemoryStore is an in-memory DurableStore for tests and development.
type MemoryStore struct {
	mu            sync.Mutex
	profiles      map[string]pkg.Profile
	conversations map[string][]pkg.ConversationMessage
	activities    map[string][]Activity
	healthNotes   map[string][]HealthNote
	lovedOnes     map[string][]LovedOne
	photos        map[int64][]Photo
	audio         map[int64][]Audio
	interactions  map[string][]auditEntry
	comfortLog    map[string][]comfortEntry
	nextID        int64
}

type auditEntry struct {
	Input string
	Route pkg.RouteLabel
	At    time.Time
}

type comfortEntry struct {
	LovedOneID *int64
	Kind       string
	Details    string
	At         time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles:      make(map[string]pkg.Profile),
		conversations: make(map[string][]pkg.ConversationMessage),
		activities:    make(map[string][]Activity),
		healthNotes:   make(map[string][]HealthNote),
		lovedOnes:     make(map[string][]LovedOne),
		photos:        make(map[int64][]Photo),
		audio:         make(map[int64][]Audio),
		interactions:  make(map[string][]auditEntry),
		comfortLog:    make(map[string][]comfortEntry),
	}
}

// SeedProfile registers a subject. Test helper, not part of DurableStore.
func (m *MemoryStore) SeedProfile(subjectID string, profile pkg.Profile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[subjectID] = profile
}

// SeedLovedOne adds a directory entry and returns its id.
func (m *MemoryStore) SeedLovedOne(subjectID string, lo LovedOne) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	lo.ID = m.nextID
	m.lovedOnes[subjectID] = append(m.lovedOnes[subjectID], lo)
	return lo.ID
}

// SeedPhoto attaches a photo to a loved one.
func (m *MemoryStore) SeedPhoto(lovedOneID int64, p Photo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	p.ID = m.nextID
	m.photos[lovedOneID] = append(m.photos[lovedOneID], p)
}

// SeedAudio attaches a recorded message to a loved one.
func (m *MemoryStore) SeedAudio(lovedOneID int64, a Audio) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	a.ID = m.nextID
	m.audio[lovedOneID] = append(m.audio[lovedOneID], a)
}

func (m *MemoryStore) Profile(_ context.Context, subjectID string) (*pkg.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[subjectID]
	if !ok {
		return nil, ErrSubjectNotFound
	}
	out := p
	return &out, nil
}

func (m *MemoryStore) AppendConversation(_ context.Context, subjectID, role, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conversations[subjectID] = append(m.conversations[subjectID], pkg.ConversationMessage{Role: role, Content: content})
	return nil
}

func (m *MemoryStore) RecentConversation(_ context.Context, subjectID string, limit int) ([]pkg.ConversationMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.conversations[subjectID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]pkg.ConversationMessage, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (m *MemoryStore) AddActivity(_ context.Context, subjectID, description string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.activities[subjectID] = append(m.activities[subjectID], Activity{
		ID:          m.nextID,
		Description: description,
		Active:      true,
		CreatedAt:   time.Now(),
	})
	return nil
}

func (m *MemoryStore) ActiveActivities(_ context.Context, subjectID string) ([]Activity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Activity
	for _, a := range m.activities[subjectID] {
		if a.Active {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *MemoryStore) DeactivateActivity(_ context.Context, subjectID string, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.activities[subjectID]
	for i := range list {
		if list[i].ID == id {
			list[i].Active = false
			return nil
		}
	}
	return nil
}

func (m *MemoryStore) AddHealthNote(_ context.Context, subjectID, note string, severity pkg.Severity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.healthNotes[subjectID] = append(m.healthNotes[subjectID], HealthNote{
		ID:        m.nextID,
		Note:      note,
		Severity:  severity,
		CreatedAt: time.Now(),
	})
	return nil
}

func (m *MemoryStore) RecentHealthNotes(_ context.Context, subjectID string, limit int) ([]HealthNote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	notes := m.healthNotes[subjectID]
	if limit > 0 && len(notes) > limit {
		notes = notes[len(notes)-limit:]
	}
	out := make([]HealthNote, len(notes))
	copy(out, notes)
	return out, nil
}

func (m *MemoryStore) LovedOnes(_ context.Context, subjectID string) ([]LovedOne, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]LovedOne, len(m.lovedOnes[subjectID]))
	copy(out, m.lovedOnes[subjectID])
	return out, nil
}

func (m *MemoryStore) FindLovedOne(_ context.Context, subjectID, nameOrRelation string) (*LovedOne, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	needle := strings.ToLower(strings.TrimSpace(nameOrRelation))
	if needle == "" {
		return nil, nil
	}
	for _, lo := range m.lovedOnes[subjectID] {
		if matchesPerson(needle, lo.Name) || matchesPerson(needle, lo.Relationship) {
			out := lo
			return &out, nil
		}
	}
	return nil, nil
}

// matchesPerson is a symmetric substring match so both "Sarah" against
// "sarah jones" and "my daughter" against "daughter" resolve.
func matchesPerson(needle, field string) bool {
	field = strings.ToLower(field)
	if field == "" {
		return false
	}
	return strings.Contains(field, needle) || strings.Contains(needle, field)
}

func (m *MemoryStore) MostMentioned(_ context.Context, subjectID string) (*LovedOne, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.lovedOnes[subjectID]
	if len(list) == 0 {
		return nil, nil
	}
	best := list[0]
	for _, lo := range list[1:] {
		if lo.Mentions > best.Mentions {
			best = lo
		}
	}
	out := best
	return &out, nil
}

func (m *MemoryStore) PhotosOf(_ context.Context, lovedOneID int64) ([]Photo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Photo, len(m.photos[lovedOneID]))
	copy(out, m.photos[lovedOneID])
	return out, nil
}

func (m *MemoryStore) AudioOf(_ context.Context, lovedOneID int64) ([]Audio, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Audio, len(m.audio[lovedOneID]))
	copy(out, m.audio[lovedOneID])
	return out, nil
}

func (m *MemoryStore) LogComfortInteraction(_ context.Context, subjectID string, lovedOneID *int64, kind, details string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.comfortLog[subjectID] = append(m.comfortLog[subjectID], comfortEntry{
		LovedOneID: lovedOneID,
		Kind:       kind,
		Details:    details,
		At:         time.Now(),
	})
	if lovedOneID != nil {
		list := m.lovedOnes[subjectID]
		for i := range list {
			if list[i].ID == *lovedOneID {
				list[i].Mentions++
			}
		}
	}
	return nil
}

func (m *MemoryStore) LogInteraction(_ context.Context, subjectID, input string, route pkg.RouteLabel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.interactions[subjectID] = append(m.interactions[subjectID], auditEntry{
		Input: input,
		Route: route,
		At:    time.Now(),
	})
	return nil
}

// Interactions returns the audit trail for assertions in tests.
func (m *MemoryStore) Interactions(subjectID string) []pkg.RouteLabel {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]pkg.RouteLabel, 0, len(m.interactions[subjectID]))
	for _, e := range m.interactions[subjectID] {
		out = append(out, e.Route)
	}
	return out
}
