package models

import (
	"time"

	"github.com/google/uuid"
)

// AttendanceMark is one confirmed attendance event, enqueued onto the
// bounded DB writer channel and onto the ERP push queue.
type AttendanceMark struct {
	ID           uuid.UUID
	CompanyID    uuid.UUID
	EmployeeID   uuid.UUID
	EmployeeName string
	StreamID     uuid.UUID
	TrackID      string
	Score        float32
	Timestamp    time.Time
	SnapshotKey  string
}

// ERPJob wraps an AttendanceMark with retry bookkeeping for the ERP push
// worker.
type ERPJob struct {
	Mark       AttendanceMark
	Attempt    int
	NextTryAt  time.Time
}

// VoiceEvent is one entry in a company's voice-announcement ring buffer,
// emitted whenever an attendance mark is confirmed so a kiosk speaker can
// announce "Thank you, <name>.".
type VoiceEvent struct {
	Seq        uint64
	CompanyID  uuid.UUID
	EmployeeID uuid.UUID
	Name       string
	Phrase     string
	Timestamp  time.Time
}
