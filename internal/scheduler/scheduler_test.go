package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/your-org/fd/internal/config"
	"github.com/your-org/fd/internal/models"
)

func testConfig() config.SchedulerConfig {
	return config.SchedulerConfig{
		DetectionFPSIdle:   0,
		DetectionFPSNormal: 5,
		DetectionFPSBurst:  15,
		BurstSeconds:       2,
		IdleSeconds:        3,
	}
}

func TestIdleToNormalOnMotion(t *testing.T) {
	s := New(testConfig())
	now := time.Now()
	s.Now = func() time.Time { return now }

	assert.Equal(t, models.ModeIdle, s.Tick(false))
	assert.Equal(t, models.ModeNormal, s.Tick(true))
}

func TestNormalFallsBackToIdleAfterIdleSeconds(t *testing.T) {
	s := New(testConfig())
	now := time.Now()
	s.Now = func() time.Time { return now }

	s.Tick(true) // -> normal

	now = now.Add(1 * time.Second)
	assert.Equal(t, models.ModeNormal, s.Tick(false), "should stay normal before idle_seconds elapses")

	now = now.Add(3 * time.Second)
	assert.Equal(t, models.ModeIdle, s.Tick(false), "should go idle after idle_seconds with no motion")
}

func TestForceBurstOverridesMotionGate(t *testing.T) {
	s := New(testConfig())
	now := time.Now()
	s.Now = func() time.Time { return now }

	s.Tick(true) // -> normal
	s.ForceBurst("borderline")

	assert.Equal(t, models.ModeBurst, s.Tick(false))

	now = now.Add(3 * time.Second)
	assert.Equal(t, models.ModeIdle, s.Tick(false), "burst should expire back to idle with no motion")
}

func TestForceBurstAppendsReasonToRing(t *testing.T) {
	s := New(testConfig())
	now := time.Now()
	s.Now = func() time.Time { return now }

	s.ForceBurst("new_track")
	s.ForceBurst("identity_flip")

	assert.Equal(t, []string{"new_track", "identity_flip"}, s.BurstReasons())
}

func TestForceBurstRingIsBoundedToRingSize(t *testing.T) {
	s := New(testConfig())
	now := time.Now()
	s.Now = func() time.Time { return now }

	for i := 0; i < models.BurstReasonRingSize+3; i++ {
		s.ForceBurst("verify")
	}

	assert.Len(t, s.BurstReasons(), models.BurstReasonRingSize)
}

func TestShouldDetectRespectsFPSAndZeroMeansNever(t *testing.T) {
	s := New(testConfig())
	now := time.Now()
	s.Now = func() time.Time { return now }

	// Idle mode has 0 FPS: never detect.
	assert.False(t, s.ShouldDetect(time.Time{}))

	s.Tick(true) // -> normal, 5 fps -> 200ms interval
	assert.True(t, s.ShouldDetect(now.Add(-500*time.Millisecond)), "expected detection due after interval elapsed")
	assert.False(t, s.ShouldDetect(now.Add(-10*time.Millisecond)), "expected detection not yet due within interval")
}
