package motion

import (
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testConfig() Config {
	return Config{
		ResizeW:         20,
		ResizeH:         20,
		OnThreshold:     0.1,
		HysteresisRatio: 0.5,
		CooldownSeconds: 1,
	}
}

func solidFrame(w, h int, v uint8) image.Image {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return img
}

func halfChangedFrame(w, h int) image.Image {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(40)
			if x >= w/2 {
				v = 220
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return img
}

func TestObserveFirstFrameNeverReportsMotion(t *testing.T) {
	g := New(testConfig())
	assert.False(t, g.Observe(solidFrame(640, 480, 40)), "expected first frame to report no motion")
}

func TestObserveTripsOnLargeChange(t *testing.T) {
	g := New(testConfig())
	g.Observe(solidFrame(640, 480, 40))

	assert.True(t, g.Observe(halfChangedFrame(640, 480)), "expected motion to trip on a large frame change")
}

func TestObserveHoldsDuringCooldown(t *testing.T) {
	cfg := testConfig()
	g := New(cfg)
	now := time.Now()
	g.Now = func() time.Time { return now }

	g.Observe(solidFrame(640, 480, 40))
	assert.True(t, g.Observe(halfChangedFrame(640, 480)), "expected motion to trip")

	// Back to a static frame identical to the last observed one: ratio
	// drops to 0, below offThreshold, but cooldown hasn't elapsed yet.
	now = now.Add(200 * time.Millisecond)
	assert.True(t, g.Observe(halfChangedFrame(640, 480)), "expected motion to stay active inside the cooldown window")

	now = now.Add(2 * time.Second)
	assert.False(t, g.Observe(halfChangedFrame(640, 480)), "expected motion to clear once cooldown has elapsed")
}

func TestObserveIgnoresConfiguredBoxes(t *testing.T) {
	cfg := testConfig()
	// Ignore the right half of the frame, which is exactly where
	// halfChangedFrame's change lives.
	cfg.IgnoreBoxesFrac = [][4]float64{{0.5, 0, 1, 1}}
	g := New(cfg)

	g.Observe(solidFrame(640, 480, 40))
	assert.False(t, g.Observe(halfChangedFrame(640, 480)), "expected change inside an ignore box to not trip motion")
}

func TestActiveReflectsLastObserveWithoutConsumingAFrame(t *testing.T) {
	g := New(testConfig())
	assert.False(t, g.Active(), "expected gate to start inactive")
	g.Observe(solidFrame(640, 480, 40))
	g.Observe(halfChangedFrame(640, 480))
	assert.True(t, g.Active(), "expected Active() to reflect tripped motion")
}
