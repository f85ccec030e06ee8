package recognizer

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/your-org/fd/internal/config"
	"github.com/your-org/fd/internal/models"
)

func testVisionConfig() config.VisionConfig {
	return config.VisionConfig{
		SimilarityThreshold: 0.35,
		StrictSimThreshold:  0.50,
		BorderlineMargin:    0.05,
		DistinctSimMargin:   0.08,
		MinAttQuality:       0.4,
	}
}

func TestApplyHysteresisKeepsConfidentFreshMatch(t *testing.T) {
	r := New(nil, nil, testVisionConfig())
	fresh := Decision{Identity: models.Identity{Kind: models.IdentityKnown, Score: 0.7}}

	got := r.ApplyHysteresis(models.Identity{}, fresh, time.Now())
	assert.Equal(t, models.IdentityKnown, got.Kind)
	assert.Equal(t, float32(0.7), got.Score)
}

func TestApplyHysteresisHoldsPriorDuringWindow(t *testing.T) {
	r := New(nil, nil, testVisionConfig())
	now := time.Now()
	personID := uuid.New()
	prior := models.Identity{Kind: models.IdentityKnown, PersonID: personID, HoldUntil: now.Add(2 * time.Second)}
	fresh := Decision{Identity: models.Identity{Kind: models.IdentityUnknown}}

	got := r.ApplyHysteresis(prior, fresh, now)
	assert.Equal(t, personID, got.PersonID, "expected prior identity to be held during the hysteresis window")
}

func TestApplyHysteresisDropsPriorAfterHoldExpires(t *testing.T) {
	r := New(nil, nil, testVisionConfig())
	now := time.Now()
	prior := models.Identity{Kind: models.IdentityKnown, PersonID: uuid.New(), HoldUntil: now.Add(-time.Second)}
	fresh := Decision{Identity: models.Identity{Kind: models.IdentityUnknown}}

	got := r.ApplyHysteresis(prior, fresh, now)
	assert.Equal(t, models.IdentityUnknown, got.Kind, "expected expired hold to fall through to the fresh unknown decision")
}

func TestApplyHysteresisBorderlineWeakerThanPriorIsHeld(t *testing.T) {
	r := New(nil, nil, testVisionConfig())
	now := time.Now()
	personID := uuid.New()
	prior := models.Identity{Kind: models.IdentityKnown, PersonID: personID, Score: 0.8, HoldUntil: now.Add(time.Second)}
	fresh := Decision{Identity: models.Identity{Kind: models.IdentityKnown, Score: 0.4}, Borderline: true}

	got := r.ApplyHysteresis(prior, fresh, now)
	assert.Equal(t, personID, got.PersonID, "expected borderline fresh decision to be held behind the confident prior")
}

func TestMeetsAttendanceQualityRejectsUnknown(t *testing.T) {
	r := New(nil, nil, testVisionConfig())
	d := Decision{Identity: models.Identity{Kind: models.IdentityUnknown}}
	assert.False(t, r.MeetsAttendanceQuality(d, 1.0), "expected unknown identity to never meet attendance quality")
}

func TestMeetsAttendanceQualityUsesStricterOfTheTwoSimilarityThresholds(t *testing.T) {
	r := New(nil, nil, testVisionConfig())

	// Above similarity_threshold (0.35) but below strict_similarity_threshold
	// (0.50): must fail even though it would have passed min_att_quality
	// under the old (wrong) gate.
	borderline := Decision{Identity: models.Identity{Kind: models.IdentityKnown, Score: 0.45}}
	assert.False(t, r.MeetsAttendanceQuality(borderline, 1.0), "expected a borderline match to fail the stricter attendance gate")

	confident := Decision{Identity: models.Identity{Kind: models.IdentityKnown, Score: 0.6}}
	assert.True(t, r.MeetsAttendanceQuality(confident, 1.0), "expected a match above strict_similarity_threshold to pass")
}

func TestMeetsAttendanceQualityGatesOnDetectionConfidenceSeparately(t *testing.T) {
	r := New(nil, nil, testVisionConfig())
	confident := Decision{Identity: models.Identity{Kind: models.IdentityKnown, Score: 0.9}}

	assert.False(t, r.MeetsAttendanceQuality(confident, 0.1), "expected low detector confidence to fail min_att_quality even with a confident identity match")
	assert.True(t, r.MeetsAttendanceQuality(confident, 0.9))
}
