package enroll

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartCreatesActiveSession(t *testing.T) {
	m := NewManager()
	now := time.Now()
	personID := uuid.New()

	s, err := m.Start("cam-1", personID, now)
	require.NoError(t, err)
	assert.Equal(t, StateActive, s.State)
	assert.Equal(t, personID, s.PersonID)
	assert.True(t, s.StartedAt.Equal(now))
}

func TestStartFailsWhenAlreadyActive(t *testing.T) {
	m := NewManager()
	now := time.Now()
	_, err := m.Start("cam-1", uuid.New(), now)
	require.NoError(t, err)

	_, err = m.Start("cam-1", uuid.New(), now)
	assert.Error(t, err, "expected error starting a session over an already-active one")
}

func TestStartAllowedAfterPreviousSessionStopped(t *testing.T) {
	m := NewManager()
	now := time.Now()
	m.Start("cam-1", uuid.New(), now)

	_, err := m.Stop("cam-1", now.Add(time.Minute))
	require.NoError(t, err)

	_, err = m.Start("cam-1", uuid.New(), now.Add(2*time.Minute))
	assert.NoError(t, err, "expected restart to succeed after stop")
}

func TestStopFailsWithoutActiveSession(t *testing.T) {
	m := NewManager()
	_, err := m.Stop("cam-1", time.Now())
	assert.Error(t, err, "expected error stopping a camera with no active session")
}

func TestStopMarksSessionStopped(t *testing.T) {
	m := NewManager()
	now := time.Now()
	m.Start("cam-1", uuid.New(), now)

	stoppedAt := now.Add(5 * time.Minute)
	s, err := m.Stop("cam-1", stoppedAt)
	require.NoError(t, err)
	assert.Equal(t, StateStopped, s.State)
	assert.True(t, s.StoppedAt.Equal(stoppedAt))
}

func TestStatusReportsUnknownCamera(t *testing.T) {
	m := NewManager()
	_, ok := m.Status("cam-1")
	assert.False(t, ok, "expected no session for a camera that never started one")
}

func TestStatusReflectsCurrentState(t *testing.T) {
	m := NewManager()
	now := time.Now()
	personID := uuid.New()
	m.Start("cam-1", personID, now)

	s, ok := m.Status("cam-1")
	require.True(t, ok)
	assert.Equal(t, StateActive, s.State)
	assert.Equal(t, personID, s.PersonID)
}
