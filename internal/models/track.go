package models

import (
	"time"

	"github.com/google/uuid"
)

// IdentityKind distinguishes a track with no gallery match from one bound
// to a person. Go has no sum types, so this mirrors the teacher's
// StreamStatus const-enum-plus-struct idiom.
type IdentityKind string

const (
	IdentityUnknown IdentityKind = "unknown"
	IdentityKnown   IdentityKind = "known"
)

// Identity is a tagged union: either Unknown, or Known with a person and
// a similarity score. Callers switch on Kind before reading PersonID/Score.
type Identity struct {
	Kind      IdentityKind
	PersonID  uuid.UUID
	Name      string
	Score     float32
	HoldUntil time.Time // hysteresis: identity sticks until this deadline even if match score dips
}

func (id Identity) IsKnown() bool { return id.Kind == IdentityKind(IdentityKnown) }

// Track is one tracked face within a single camera's pipeline. TrackID is
// stable for the lifetime of the track and never reused; Generation is the
// creation sequence number the tracker assigned to it, so stale handles
// held by other goroutines can be detected (spec's "generational handles"
// note).
type Track struct {
	TrackID    string
	Generation uint64
	StreamID   uuid.UUID

	BBox       [4]float32 // x1, y1, x2, y2
	Keypoints  [5][2]float32
	Confidence float32

	Identity      Identity
	IdentitySince time.Time // when the current Identity.PersonID was first established, for debounce's identity-age gate
	UnknownSince  time.Time // when the track most recently became (or stayed) Unknown, for the unknown_persist burst reason

	LastEmbedding    []float32
	LastEmbeddedAt   time.Time
	LastDetectedAt   time.Time
	LastSeenAt       time.Time
	CreatedAt        time.Time
	DetMisses        int
	Hits             int
	StableConfirmed  bool
	LastAttendanceAt time.Time

	// AntiSpoof carries the per-track liveness state machine's progress so
	// it persists across frames without a separate map keyed by track id.
	AntiSpoof AntiSpoofState
}

// AntiSpoofState is the per-track liveness accumulator (head pose range,
// last FAS model score, decision) threaded through internal/antispoof.
type AntiSpoofState struct {
	FirstSeenAt   time.Time
	YawMin        float64
	YawMax        float64
	LastFASScore  float64
	Passed        bool
	LastCheckedAt time.Time
	CooldownUntil time.Time
}

// TrackSnapshot is an immutable copy of a Track handed to downstream
// consumers (recognizer, debouncer) so they never race with the tracker
// goroutine mutating the live Track.
type TrackSnapshot struct {
	TrackID       string
	Generation    uint64
	BBox          [4]float32
	Keypoints     [5][2]float32
	Identity      Identity
	IdentitySince time.Time
	UnknownSince  time.Time
	Embedding     []float32
	Confidence    float32
	AsOf          time.Time
	IsNew         bool // true the first time this track appears in an Update() result
}
