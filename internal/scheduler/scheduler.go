// Package scheduler implements the adaptive per-camera detection cadence:
// IDLE when nothing moves, NORMAL once motion is seen, BURST when the
// recognizer asks for a closer look at a borderline match.
package scheduler

import (
	"sync"
	"time"

	"github.com/your-org/fd/internal/config"
	"github.com/your-org/fd/internal/models"
)

// Scheduler drives one camera's detection frequency. It is not itself a
// goroutine; the ingest/pipeline loop calls Tick on every captured frame
// and reads FPS()/Mode() to decide whether to run detection this frame.
type Scheduler struct {
	mu    sync.Mutex
	state models.SchedulerState
	cfg   config.SchedulerConfig

	// Now is an injectable clock for deterministic tests.
	Now func() time.Time
}

func New(cfg config.SchedulerConfig) *Scheduler {
	return &Scheduler{
		cfg:   cfg,
		state: models.SchedulerState{Mode: models.ModeIdle, LastTransition: time.Now()},
		Now:   time.Now,
	}
}

// Tick reports one frame's motion-gate reading and advances the state
// machine. It returns the mode to use for scheduling the next detection.
func (s *Scheduler) Tick(motionActive bool) models.SchedulerMode {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.Now()
	st := &s.state
	st.MotionActive = motionActive
	if motionActive {
		st.LastMotionAt = now
	}

	switch st.Mode {
	case models.ModeIdle:
		if motionActive {
			s.transition(models.ModeNormal, now)
		}
	case models.ModeNormal:
		if st.ForcedBurst {
			s.transition(models.ModeBurst, now)
			st.BurstUntil = now.Add(time.Duration(s.cfg.BurstSeconds * float64(time.Second)))
			st.ForcedBurst = false
		} else if !motionActive && now.Sub(st.LastMotionAt) >= time.Duration(s.cfg.IdleSeconds*float64(time.Second)) {
			s.transition(models.ModeIdle, now)
		}
	case models.ModeBurst:
		if st.ForcedBurst {
			// extend the burst window; a second borderline match resets the clock
			st.BurstUntil = now.Add(time.Duration(s.cfg.BurstSeconds * float64(time.Second)))
			st.ForcedBurst = false
		} else if now.After(st.BurstUntil) {
			if motionActive {
				s.transition(models.ModeNormal, now)
			} else {
				s.transition(models.ModeIdle, now)
			}
		}
	}

	return st.Mode
}

func (s *Scheduler) transition(to models.SchedulerMode, now time.Time) {
	s.state.Mode = to
	s.state.LastTransition = now
}

// ForceBurst asks the scheduler to raise detection cadence on the very
// next Tick regardless of the motion gate, so the next few frames get a
// closer look before the hysteresis state is finalized. reason is one of
// new_track, verify, borderline, unknown_persist, identity_flip or
// enrollment, and is appended to the diagnostic burst-reason ring.
func (s *Scheduler) ForceBurst(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.ForcedBurst = true
	s.state.BurstReasons = append(s.state.BurstReasons, reason)
	if n := len(s.state.BurstReasons); n > models.BurstReasonRingSize {
		s.state.BurstReasons = s.state.BurstReasons[n-models.BurstReasonRingSize:]
	}
}

// BurstReasons returns a copy of the diagnostic ring of recent forced-burst
// reasons, oldest first.
func (s *Scheduler) BurstReasons() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.state.BurstReasons...)
}

// Mode returns the scheduler's current mode without advancing it.
func (s *Scheduler) Mode() models.SchedulerMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Mode
}

// FPS returns the detection rate (frames-per-second to run the detector
// at) for the scheduler's current mode.
func (s *Scheduler) FPS() float64 {
	s.mu.Lock()
	mode := s.state.Mode
	s.mu.Unlock()

	switch mode {
	case models.ModeIdle:
		return s.cfg.DetectionFPSIdle
	case models.ModeBurst:
		return s.cfg.DetectionFPSBurst
	default:
		return s.cfg.DetectionFPSNormal
	}
}

// ShouldDetect reports whether enough time has elapsed since lastDetectAt
// to run detection again at the scheduler's current FPS target. A zero
// FPS (idle with detection_fps_idle unset) means "never detect".
func (s *Scheduler) ShouldDetect(lastDetectAt time.Time) bool {
	fps := s.FPS()
	if fps <= 0 {
		return false
	}
	interval := time.Duration(float64(time.Second) / fps)
	return s.Now().Sub(lastDetectAt) >= interval
}
