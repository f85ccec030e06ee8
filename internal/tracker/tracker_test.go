package tracker

import (
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/your-org/fd/internal/config"
	"github.com/your-org/fd/internal/models"
)

func testConfig() config.TrackingConfig {
	return config.TrackingConfig{
		MaxDetMissesUnknown:            3,
		MaxDetMissesKnown:              10,
		IoUMatchThreshold:              0.3,
		CenterMatchPx:                  40,
		AreaRatioMin:                   0.3,
		AreaRatioMax:                   3.0,
		KnownReacquireClearIoU:         0.2,
		KnownReacquireClearCenterRatio: 1.5,
		EmbedRefreshSeconds:            5,
		EmbedRefreshSecondsUnknown:     1,
		IdentityHoldSeconds:            3,
		IdentityHoldMaxDetMisses:       5,
		StableIDConfirmations:          2,
	}
}

func det(bbox [4]float32) models.Detection {
	return models.Detection{BBox: bbox, Confidence: 0.9}
}

func TestUpdateCreatesAndMatchesTracks(t *testing.T) {
	m := NewManager("cam-1", testConfig())

	snaps := m.Update([]models.Detection{det([4]float32{10, 10, 50, 50})}, nil)
	assert.Len(t, snaps, 1)
	assert.True(t, snaps[0].IsNew)
	id := snaps[0].TrackID

	snaps = m.Update([]models.Detection{det([4]float32{12, 11, 52, 51})}, nil)
	assert.Len(t, snaps, 1, "expected track to persist")
	assert.Equal(t, id, snaps[0].TrackID)
	assert.False(t, snaps[0].IsNew, "matched track should not be reported as new")
}

func TestUpdatePrunesAfterDetMissBudget(t *testing.T) {
	m := NewManager("cam-1", testConfig())
	m.Update([]models.Detection{det([4]float32{10, 10, 50, 50})}, nil)

	for i := 0; i < testConfig().MaxDetMissesUnknown; i++ {
		snaps := m.Update(nil, nil)
		assert.Len(t, snaps, 1, "track pruned too early at miss %d", i)
	}

	snaps := m.Update(nil, nil)
	assert.Empty(t, snaps, "expected track pruned after exceeding budget")
}

func TestCarryForwardKeepsBoxCurrentBetweenDetections(t *testing.T) {
	m := NewManager("cam-1", testConfig())
	m.Update([]models.Detection{det([4]float32{20, 20, 60, 60})}, syntheticFrame(20, 20))

	// No detection this round: the correlation tracker should still be
	// able to locate the patch after it moved a few pixels.
	snaps := m.Update(nil, syntheticFrame(24, 20))
	assert.Len(t, snaps, 1, "expected track to survive carry-forward round")
}

func TestShouldReEmbedUsesFasterIntervalForUnknown(t *testing.T) {
	m := NewManager("cam-1", testConfig())
	snaps := m.Update([]models.Detection{det([4]float32{0, 0, 10, 10})}, nil)
	id := snaps[0].TrackID

	now := time.Now()
	m.SetEmbedding(id, []float32{1, 2, 3}, now)

	assert.False(t, m.ShouldReEmbed(id, now.Add(500*time.Millisecond)), "should not be due immediately after embedding")
	assert.True(t, m.ShouldReEmbed(id, now.Add(2*time.Second)), "unknown track should be due for re-embed after its faster interval")
}

func TestSetUnknownStampsAndRestartsClockOnDemotion(t *testing.T) {
	m := NewManager("cam-1", testConfig())
	// A new track starts out Unknown, so its clock is stamped at creation.
	t0 := time.Now()
	m.Now = func() time.Time { return t0 }
	snaps := m.Update([]models.Detection{det([4]float32{0, 0, 10, 10})}, nil)
	id := snaps[0].TrackID

	since := m.SetUnknown(id, t0)
	assert.Equal(t, t0, since)

	// Staying Unknown across a later call does not move the clock.
	t1 := t0.Add(time.Second)
	since = m.SetUnknown(id, t1)
	assert.Equal(t, t0, since, "clock should not restart while track stays Unknown")

	m.SetIdentity(id, models.Identity{Kind: models.IdentityKnown}, 3)

	// Demoting a Known track back to Unknown restarts the clock.
	t2 := t1.Add(time.Second)
	since = m.SetUnknown(id, t2)
	assert.Equal(t, t2, since, "clock should restart when a Known track is demoted to Unknown")
}

// syntheticFrame draws a bright square at (x, y) on a dark background so
// the correlation tracker has something distinctive to match against.
func syntheticFrame(x, y int) image.Image {
	img := image.NewGray(image.Rect(0, 0, 200, 200))
	for py := 0; py < 200; py++ {
		for px := 0; px < 200; px++ {
			img.SetGray(px, py, color.Gray{Y: 20})
		}
	}
	for py := y; py < y+40 && py < 200; py++ {
		for px := x; px < x+40 && px < 200; px++ {
			img.SetGray(px, py, color.Gray{Y: 220})
		}
	}
	return img
}
