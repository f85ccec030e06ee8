// Package enroll tracks the lifecycle of an auto-guided enrollment
// capture session per camera. The capture/pose-guidance logic itself is
// a separate subsystem that writes face templates the core later
// consumes read-only; this package only holds the thin session state
// ("who is enrolling on which camera right now") that the start/stop/
// status endpoints and the annotated preview stream need. Grounded on
// viewers.Registry's mutex-guarded-map shape.
package enroll

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

type State string

const (
	StateActive  State = "active"
	StateStopped State = "stopped"
)

// Session is one camera's in-progress (or most recently finished)
// enrollment capture.
type Session struct {
	CameraID  string
	PersonID  uuid.UUID
	State     State
	StartedAt time.Time
	StoppedAt time.Time
}

// Manager holds the live enrollment session per camera. Only one
// session may be active on a camera at a time.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

// Start begins a session for cameraID. It fails if a session is already
// active on that camera — callers must Stop it first.
func (m *Manager) Start(cameraID string, personID uuid.UUID, now time.Time) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[cameraID]; ok && s.State == StateActive {
		return nil, fmt.Errorf("enrollment session already active on camera %s", cameraID)
	}

	s := &Session{CameraID: cameraID, PersonID: personID, State: StateActive, StartedAt: now}
	m.sessions[cameraID] = s
	return s, nil
}

// Stop ends cameraID's active session, if any.
func (m *Manager) Stop(cameraID string, now time.Time) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[cameraID]
	if !ok || s.State != StateActive {
		return nil, fmt.Errorf("no active enrollment session on camera %s", cameraID)
	}
	s.State = StateStopped
	s.StoppedAt = now
	return s, nil
}

// Status returns cameraID's session, if one has ever been started.
func (m *Manager) Status(cameraID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[cameraID]
	return s, ok
}
