// Package debounce implements the attendance debouncer: a sliding
// per-(company,employee) window that suppresses repeat marks from the
// same person within a short interval, with optional N-sample
// verification before a mark is confirmed.
package debounce

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/fd/internal/config"
	"github.com/your-org/fd/internal/observability"
)

type key struct {
	CompanyID  uuid.UUID
	EmployeeID uuid.UUID
}

type windowState struct {
	lastMarkAt time.Time

	// verification sampling: when VerificationSamples > 1, a candidate
	// mark must accumulate that many consistent samples inside
	// attendance_max_embed_age_seconds before it's confirmed.
	samples    []sample
	firstSeen  time.Time
}

type sample struct {
	score float32
	at    time.Time
}

// Debouncer is safe for concurrent use by multiple camera pipelines; all
// employees across all companies share one instance.
type Debouncer struct {
	mu    sync.Mutex
	state map[key]*windowState
	cfg   config.DebounceConfig

	Now func() time.Time
}

func New(cfg config.DebounceConfig) *Debouncer {
	return &Debouncer{
		state: make(map[key]*windowState),
		cfg:   cfg,
		Now:   time.Now,
	}
}

// Candidate carries one frame's recognition result forward to the
// debouncer.
type Candidate struct {
	CompanyID   uuid.UUID
	EmployeeID  uuid.UUID
	Score       float32
	IdentityAge time.Duration // how long this identity has been held on the track continuously
}

// Offer records one recognition candidate and reports whether it should be
// turned into a confirmed attendance mark right now. verifying is true
// while a multi-sample verification window is accumulating but hasn't yet
// reached a verdict, so callers can force a closer look (e.g. a scheduler
// burst) while a mark is still in doubt.
func (d *Debouncer) Offer(c Candidate) (confirmed bool, verifying bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.Now()
	k := key{c.CompanyID, c.EmployeeID}
	st, ok := d.state[k]
	if !ok {
		st = &windowState{}
		d.state[k] = st
	}

	debounceWindow := time.Duration(d.cfg.AttendanceDebounceSeconds * float64(time.Second))
	if !st.lastMarkAt.IsZero() && now.Sub(st.lastMarkAt) < debounceWindow {
		// Still within the window, but this is a fresh observation of the
		// same person: slide the window forward instead of leaving it
		// fixed, so a continuously-present employee never re-marks the
		// instant the original fixed window would have expired.
		st.lastMarkAt = now
		observability.DebounceSuppressed.WithLabelValues(c.CompanyID.String()).Inc()
		return false, false
	}

	if c.IdentityAge.Seconds() < d.cfg.MinIdentityAgeSeconds {
		return false, false
	}

	if d.cfg.VerificationSamples <= 1 {
		st.lastMarkAt = now
		st.samples = nil
		observability.AttendanceMarks.WithLabelValues(c.CompanyID.String()).Inc()
		return true, false
	}

	maxAge := time.Duration(d.cfg.MaxEmbedAgeSeconds * float64(time.Second))
	if st.firstSeen.IsZero() || now.Sub(st.firstSeen) > maxAge {
		st.firstSeen = now
		st.samples = st.samples[:0]
	}
	st.samples = append(st.samples, sample{score: c.Score, at: now})

	if len(st.samples) < d.cfg.VerificationSamples {
		return false, true
	}

	// Confirm only if a majority of samples individually clear the
	// similarity+borderline bar (votes) and the sample set's mean score
	// also clears it, so a burst of mixed matches (e.g. two people briefly
	// overlapping) doesn't confirm anyone on average alone.
	bar := float32(d.cfg.SimilarityThreshold + d.cfg.BorderlineMargin)
	var votes int
	var sum float32
	for _, s := range st.samples {
		sum += s.score
		if s.score >= bar {
			votes++
		}
	}
	mean := sum / float32(len(st.samples))
	needVotes := len(st.samples)/2 + 1

	st.samples = nil
	st.firstSeen = time.Time{}

	if votes < needVotes || mean < bar {
		return false, false
	}

	st.lastMarkAt = now
	observability.AttendanceMarks.WithLabelValues(c.CompanyID.String()).Inc()
	return true, false
}

// Reset clears a (company,employee) pair's debounce window. The
// attendance enable/disable toggle does not call it.
func (d *Debouncer) Reset(companyID, employeeID uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.state, key{companyID, employeeID})
}
