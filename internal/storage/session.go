package storage

import (
	"context"
	"errors"
	"sync"
	"time"

	"carecompanion/pkg"
)

// Session defaults. Idle sessions are evicted so a conversation abandoned
// mid-flow does not sticky-route tomorrow's first utterance.
const (
	MaxRecentTurns  = 20
	SessionIdleTTL  = 30 * time.Minute
	SweepInterval   = 5 * time.Minute
	sessionKeySpace = "session:"
)

// ErrSessionNotFound means no live session exists for the subject. The
// supervisor treats it as "no stickiness", never as a failure.
var ErrSessionNotFound = errors.New("session not found")

// SessionTurn is one recent utterance kept for continuity context.
type SessionTurn struct {
	Role      string    `json:"role"` // user, assistant
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is the short-lived per-subject routing memory.
type Session struct {
	SubjectID    string          `json:"subject_id"`
	Active       pkg.RouteLabel  `json:"active"` // RouteUnset when no responder is active
	RecentTurns  []SessionTurn   `json:"recent_turns"`
	LastActivity time.Time       `json:"last_activity"`
}

// SessionStore is the one piece of shared mutable state inside the core.
// All mutations are atomic per subject key; two concurrent requests for
// the same subject resolve last-write-wins.
type SessionStore interface {
	// Get returns a copy of the live session, or ErrSessionNotFound.
	// Reading refreshes the idle clock.
	Get(ctx context.Context, subjectID string) (*Session, error)
	// SetActive records the responder handling this subject, creating the
	// session lazily.
	SetActive(ctx context.Context, subjectID string, label pkg.RouteLabel) error
	// ClearActive drops the active responder but keeps the turn history.
	ClearActive(ctx context.Context, subjectID string) error
	// AddTurn appends a turn, evicting the oldest beyond MaxRecentTurns.
	AddTurn(ctx context.Context, subjectID string, turn SessionTurn) error
	// Touch refreshes the idle clock only.
	Touch(ctx context.Context, subjectID string) error
	// Delete removes the session entirely (end-of-conversation signal).
	Delete(ctx context.Context, subjectID string) error
	// Sweep evicts sessions idle longer than SessionIdleTTL and reports
	// how many were removed. Implementations whose backend expires keys
	// natively may make this a no-op.
	Sweep(now time.Time) int
}

// MemorySessionStore keeps sessions in-process behind a mutex.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	idleTTL  time.Duration
	now      func() time.Time
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]*Session),
		idleTTL:  SessionIdleTTL,
		now:      time.Now,
	}
}

// withClock overrides the time source; test helper.
func (m *MemorySessionStore) withClock(now func() time.Time) *MemorySessionStore {
	m.now = now
	return m
}

// StartSweeper runs the periodic eviction sweep until ctx is cancelled.
// It runs independently of request handling and never blocks requests
// beyond the per-call mutex.
func (m *MemorySessionStore) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = SweepInterval
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				m.Sweep(now)
			}
		}
	}()
}

func (m *MemorySessionStore) Get(_ context.Context, subjectID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[subjectID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	now := m.now()
	if now.Sub(s.LastActivity) > m.idleTTL {
		delete(m.sessions, subjectID)
		return nil, ErrSessionNotFound
	}
	s.LastActivity = now

	out := *s
	out.RecentTurns = make([]SessionTurn, len(s.RecentTurns))
	copy(out.RecentTurns, s.RecentTurns)
	return &out, nil
}

func (m *MemorySessionStore) SetActive(_ context.Context, subjectID string, label pkg.RouteLabel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.getOrCreateLocked(subjectID)
	s.Active = label
	s.LastActivity = m.now()
	return nil
}

func (m *MemorySessionStore) ClearActive(_ context.Context, subjectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[subjectID]; ok {
		s.Active = pkg.RouteUnset
		s.LastActivity = m.now()
	}
	return nil
}

func (m *MemorySessionStore) AddTurn(_ context.Context, subjectID string, turn SessionTurn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.getOrCreateLocked(subjectID)
	if turn.Timestamp.IsZero() {
		turn.Timestamp = m.now()
	}
	s.RecentTurns = append(s.RecentTurns, turn)
	if len(s.RecentTurns) > MaxRecentTurns {
		s.RecentTurns = s.RecentTurns[len(s.RecentTurns)-MaxRecentTurns:]
	}
	s.LastActivity = m.now()
	return nil
}

func (m *MemorySessionStore) Touch(_ context.Context, subjectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[subjectID]; ok {
		s.LastActivity = m.now()
	}
	return nil
}

func (m *MemorySessionStore) Delete(_ context.Context, subjectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, subjectID)
	return nil
}

func (m *MemorySessionStore) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	evicted := 0
	for id, s := range m.sessions {
		if now.Sub(s.LastActivity) > m.idleTTL {
			delete(m.sessions, id)
			evicted++
		}
	}
	return evicted
}

func (m *MemorySessionStore) getOrCreateLocked(subjectID string) *Session {
	s, ok := m.sessions[subjectID]
	if !ok {
		s = &Session{SubjectID: subjectID, LastActivity: m.now()}
		m.sessions[subjectID] = s
	}
	return s
}
