package antispoof

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/your-org/fd/internal/config"
	"github.com/your-org/fd/internal/models"
)

func testConfig() config.AntiSpoofConfig {
	return config.AntiSpoofConfig{
		FASThreshold:    0.6,
		MinYawRange:     10,
		MotionWindowSec: 2,
		CooldownSec:     5,
	}
}

func TestObserveBypassesLaptopIdentities(t *testing.T) {
	g := New(testConfig(), nil)
	state := &models.AntiSpoofState{}

	res := g.Observe(state, "Laptop-Lobby", 0, nil)
	assert.True(t, res.Passed, "expected laptop-prefixed identity to bypass liveness check")
}

func TestObserveFailsOnInsufficientMotion(t *testing.T) {
	g := New(testConfig(), nil)
	state := &models.AntiSpoofState{}

	res := g.Observe(state, "Alice", 5, nil)
	assert.False(t, res.Passed)
	assert.Equal(t, "insufficient_motion", res.Reason)
}

func TestObservePassesHeuristicsOnlyOnceYawRangeMet(t *testing.T) {
	cfg := testConfig()
	cfg.HeuristicsOnly = true
	g := New(cfg, nil)
	state := &models.AntiSpoofState{}

	g.Observe(state, "Alice", -5, nil)
	res := g.Observe(state, "Alice", 10, nil)
	assert.True(t, res.Passed, "expected pass once yaw range exceeds min_yaw_range in heuristics-only mode")
}

func TestObserveResetsAccumulatorAfterMotionWindowElapses(t *testing.T) {
	cfg := testConfig()
	g := New(cfg, nil)
	now := time.Now()
	g.Now = func() time.Time { return now }
	state := &models.AntiSpoofState{}

	g.Observe(state, "Alice", 0, nil)
	now = now.Add(3 * time.Second) // past motion_window_sec with no yaw movement
	res := g.Observe(state, "Alice", 0, nil)

	assert.False(t, res.Passed)
	assert.Equal(t, "insufficient_motion", res.Reason, "expected still-failing after reset")
	assert.True(t, state.FirstSeenAt.Equal(now), "expected accumulator to reset FirstSeenAt to now")
}

func TestObserveUsesFASScoreWhenNotHeuristicsOnly(t *testing.T) {
	cfg := testConfig()
	called := false
	g := New(cfg, func(faceCrop []byte) (float64, error) {
		called = true
		return 0.8, nil
	})
	state := &models.AntiSpoofState{}

	g.Observe(state, "Alice", -5, nil)
	res := g.Observe(state, "Alice", 10, []byte("crop"))

	assert.True(t, called, "expected FAS scorer to be invoked once yaw range is met")
	assert.True(t, res.Passed, "expected pass once FAS score clears the threshold")
}

func TestObserveFailsWhenFASScoreBelowThreshold(t *testing.T) {
	cfg := testConfig()
	g := New(cfg, func(faceCrop []byte) (float64, error) {
		return 0.1, nil
	})
	state := &models.AntiSpoofState{}

	g.Observe(state, "Alice", -5, nil)
	res := g.Observe(state, "Alice", 10, []byte("crop"))

	assert.False(t, res.Passed)
	assert.Equal(t, "fas_score_low", res.Reason)
}

func TestObserveHonorsCooldownAfterPassing(t *testing.T) {
	cfg := testConfig()
	cfg.HeuristicsOnly = true
	g := New(cfg, nil)
	now := time.Now()
	g.Now = func() time.Time { return now }
	state := &models.AntiSpoofState{}

	g.Observe(state, "Alice", -5, nil)
	g.Observe(state, "Alice", 10, nil) // passes, sets cooldown

	now = now.Add(time.Second)
	res := g.Observe(state, "Alice", 10, nil)
	assert.True(t, res.Passed, "expected pass to be served from cooldown without re-evaluating")
}
