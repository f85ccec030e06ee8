// Package antispoof implements the per-(camera,person) liveness gate: a
// small head-pose-range accumulator plus an ONNX face-anti-spoofing (FAS)
// model score, with a bypass for trusted "laptop-" enrolled identities
// and a per-person cooldown so a passed check doesn't need re-running on
// every single frame.
package antispoof

import (
	"strings"
	"time"

	"github.com/your-org/fd/internal/config"
	"github.com/your-org/fd/internal/models"
)

// FASScoreFunc scores a face crop's liveness; higher is more likely
// live. Implementations wrap an ONNX Runtime session the same way the
// detector/embedder do.
type FASScoreFunc func(faceCrop []byte) (float64, error)

// Gate runs the liveness decision for one track, threading its state
// through models.Track.AntiSpoof so it survives across frames without a
// separate keyed map.
type Gate struct {
	cfg      config.AntiSpoofConfig
	fasScore FASScoreFunc

	Now func() time.Time
}

func New(cfg config.AntiSpoofConfig, fasScore FASScoreFunc) *Gate {
	return &Gate{cfg: cfg, fasScore: fasScore, Now: time.Now}
}

// Result is the outcome of one liveness evaluation.
type Result struct {
	Passed bool
	Reason string // set when Passed is false: "insufficient_motion" or "fas_score_low"
}

// Observe feeds one frame's head-pose sample (yaw in degrees) and,
// optionally, a face crop to score against the FAS model. It mutates
// state in place and returns the current liveness decision.
//
// name is the matched identity's display name; bypassLaptop config lets
// kiosk/demo identities enrolled with a "laptop-" name prefix skip the
// liveness requirement entirely (used for indoor trusted displays where
// a physical presence check adds no security value).
func (g *Gate) Observe(state *models.AntiSpoofState, name string, yaw float64, faceCrop []byte) Result {
	now := g.Now()

	if g.cfg.BypassLaptop && strings.HasPrefix(strings.ToLower(name), "laptop-") {
		state.Passed = true
		return Result{Passed: true}
	}

	if state.Passed && now.Before(state.CooldownUntil) {
		return Result{Passed: true}
	}

	if state.FirstSeenAt.IsZero() {
		state.FirstSeenAt = now
		state.YawMin = yaw
		state.YawMax = yaw
	} else {
		if yaw < state.YawMin {
			state.YawMin = yaw
		}
		if yaw > state.YawMax {
			state.YawMax = yaw
		}
	}

	yawRange := state.YawMax - state.YawMin
	withinWindow := now.Sub(state.FirstSeenAt).Seconds() <= g.cfg.MotionWindowSec

	if yawRange < g.cfg.MinYawRange {
		if withinWindow {
			return Result{Passed: false, Reason: "insufficient_motion"}
		}
		// Motion window elapsed without enough head movement: reset the
		// accumulator so a still subject gets a fresh chance rather than
		// being stuck permanently failing on a stale yaw range.
		state.FirstSeenAt = now
		state.YawMin = yaw
		state.YawMax = yaw
		return Result{Passed: false, Reason: "insufficient_motion"}
	}

	if g.cfg.HeuristicsOnly || g.fasScore == nil {
		state.Passed = true
		state.CooldownUntil = now.Add(time.Duration(g.cfg.CooldownSec * float64(time.Second)))
		return Result{Passed: true}
	}

	score, err := g.fasScore(faceCrop)
	state.LastFASScore = score
	state.LastCheckedAt = now
	if err != nil || score < g.cfg.FASThreshold {
		return Result{Passed: false, Reason: "fas_score_low"}
	}

	state.Passed = true
	state.CooldownUntil = now.Add(time.Duration(g.cfg.CooldownSec * float64(time.Second)))
	return Result{Passed: true}
}
