// Package voice implements the per-company voice-greeting event log: a
// small ring buffer keyed by a monotonic sequence number, read via
// long-poll instead of push so a kiosk speaker client can catch up after
// a reconnect without missing an announcement. Adapted from the
// websocket hub's register/broadcast shape into a poll-with-deadline
// shape, since the speaker client is a dumb HTTP poller rather than a
// persistent connection.
package voice

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/fd/internal/models"
	"github.com/your-org/fd/internal/observability"
)

const defaultCapacity = 256

type companyLog struct {
	mu      sync.Mutex
	cond    *sync.Cond
	events  []models.VoiceEvent // ring-like; trimmed to capacity
	nextSeq uint64
	cap     int
}

// Log is the process-wide voice event store, one ring per company.
type Log struct {
	mu       sync.Mutex
	logs     map[uuid.UUID]*companyLog
	capacity int

	// overrides maps a lowercased, honorific-stripped first name to the
	// exact name GreetingPhrase should use instead.
	overrides map[string]string

	Now func() time.Time
}

func New(capacity int, overrides map[string]string) *Log {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Log{
		logs:      make(map[uuid.UUID]*companyLog),
		capacity:  capacity,
		overrides: overrides,
		Now:       time.Now,
	}
}

func (l *Log) companyFor(companyID uuid.UUID) *companyLog {
	l.mu.Lock()
	defer l.mu.Unlock()
	cl, ok := l.logs[companyID]
	if !ok {
		cl = &companyLog{cap: l.capacity}
		cl.cond = sync.NewCond(&cl.mu)
		l.logs[companyID] = cl
	}
	return cl
}

// Publish appends a voice event for companyID and wakes any long-polling
// readers. The event is assigned the next sequence number for that
// company.
func (l *Log) Publish(companyID, employeeID uuid.UUID, name, phrase string, at time.Time) models.VoiceEvent {
	cl := l.companyFor(companyID)
	cl.mu.Lock()
	cl.nextSeq++
	ev := models.VoiceEvent{
		Seq:        cl.nextSeq,
		CompanyID:  companyID,
		EmployeeID: employeeID,
		Name:       name,
		Phrase:     phrase,
		Timestamp:  at,
	}
	cl.events = append(cl.events, ev)
	if len(cl.events) > cl.cap {
		cl.events = cl.events[len(cl.events)-cl.cap:]
	}
	cl.mu.Unlock()
	cl.cond.Broadcast()
	observability.VoiceEventSeq.WithLabelValues(companyID.String()).Set(float64(ev.Seq))
	return ev
}

// Since returns every event after lastSeq, blocking until at least one
// is available or deadline elapses. A lastSeq of 0 returns immediately
// with whatever is currently buffered (a kiosk's first poll after boot).
func (l *Log) Since(companyID uuid.UUID, lastSeq uint64, deadline time.Duration) []models.VoiceEvent {
	cl := l.companyFor(companyID)

	if lastSeq == 0 {
		cl.mu.Lock()
		defer cl.mu.Unlock()
		return append([]models.VoiceEvent(nil), cl.events...)
	}

	cl.mu.Lock()
	defer cl.mu.Unlock()

	out := collectSince(cl.events, lastSeq)
	if len(out) > 0 {
		return out
	}

	done := make(chan struct{})
	timer := time.AfterFunc(deadline, func() {
		cl.mu.Lock()
		close(done)
		cl.cond.Broadcast()
		cl.mu.Unlock()
	})
	defer timer.Stop()

	for {
		select {
		case <-done:
			return collectSince(cl.events, lastSeq)
		default:
		}
		out = collectSince(cl.events, lastSeq)
		if len(out) > 0 {
			return out
		}
		cl.cond.Wait()
	}
}

func collectSince(events []models.VoiceEvent, lastSeq uint64) []models.VoiceEvent {
	var out []models.VoiceEvent
	for _, e := range events {
		if e.Seq > lastSeq {
			out = append(out, e)
		}
	}
	return out
}
