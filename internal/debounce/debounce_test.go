package debounce

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/your-org/fd/internal/config"
)

func testConfig() config.DebounceConfig {
	return config.DebounceConfig{
		AttendanceDebounceSeconds: 30,
		MinIdentityAgeSeconds:     0,
		VerificationSamples:       1,
		MaxEmbedAgeSeconds:        10,
		SimilarityThreshold:       0.35,
		BorderlineMargin:          0.05,
	}
}

func TestOfferConfirmsFirstSampleWithoutVerification(t *testing.T) {
	d := New(testConfig())
	company, employee := uuid.New(), uuid.New()

	confirmed, verifying := d.Offer(Candidate{CompanyID: company, EmployeeID: employee, Score: 0.9})
	assert.True(t, confirmed, "expected first offer to confirm")
	assert.False(t, verifying)

	confirmed, _ = d.Offer(Candidate{CompanyID: company, EmployeeID: employee, Score: 0.9})
	assert.False(t, confirmed, "expected repeat offer inside the debounce window to be suppressed")
}

func TestOfferAllowsMarkAfterWindowElapses(t *testing.T) {
	cfg := testConfig()
	d := New(cfg)
	now := time.Now()
	d.Now = func() time.Time { return now }

	company, employee := uuid.New(), uuid.New()
	confirmed, _ := d.Offer(Candidate{CompanyID: company, EmployeeID: employee, Score: 0.9})
	assert.True(t, confirmed, "expected first offer to confirm")

	now = now.Add(time.Duration(cfg.AttendanceDebounceSeconds * float64(time.Second))).Add(time.Second)
	confirmed, _ = d.Offer(Candidate{CompanyID: company, EmployeeID: employee, Score: 0.9})
	assert.True(t, confirmed, "expected offer to confirm again once the debounce window has elapsed")
}

func TestOfferSlidesWindowOnSuppressedObservation(t *testing.T) {
	cfg := testConfig()
	d := New(cfg)
	now := time.Now()
	d.Now = func() time.Time { return now }

	company, employee := uuid.New(), uuid.New()
	confirmed, _ := d.Offer(Candidate{CompanyID: company, EmployeeID: employee, Score: 0.9})
	assert.True(t, confirmed)

	// Keep observing the same person every second, well inside the window,
	// sliding it forward each time.
	windowSeconds := cfg.AttendanceDebounceSeconds
	for i := 0; i < int(windowSeconds); i++ {
		now = now.Add(time.Second)
		confirmed, _ = d.Offer(Candidate{CompanyID: company, EmployeeID: employee, Score: 0.9})
		assert.False(t, confirmed, "expected continuous presence to keep suppressing")
	}

	// A fixed (non-sliding) window would have expired by now relative to
	// the *first* mark; because every observation slid it forward, one
	// more second still isn't enough to clear it.
	now = now.Add(time.Second)
	confirmed, _ = d.Offer(Candidate{CompanyID: company, EmployeeID: employee, Score: 0.9})
	assert.False(t, confirmed, "expected sliding window to still be active")
}

func TestOfferRejectsBelowMinIdentityAge(t *testing.T) {
	cfg := testConfig()
	cfg.MinIdentityAgeSeconds = 2
	d := New(cfg)

	company, employee := uuid.New(), uuid.New()
	confirmed, _ := d.Offer(Candidate{CompanyID: company, EmployeeID: employee, Score: 0.9, IdentityAge: time.Second})
	assert.False(t, confirmed, "expected offer below min identity age to be rejected")
}

func TestOfferReportsVerifyingWhileAccumulatingSamples(t *testing.T) {
	cfg := testConfig()
	cfg.VerificationSamples = 3
	d := New(cfg)
	company, employee := uuid.New(), uuid.New()

	c := Candidate{CompanyID: company, EmployeeID: employee, Score: 0.9}
	confirmed, verifying := d.Offer(c)
	assert.False(t, confirmed, "first sample should not confirm")
	assert.True(t, verifying, "first sample should start a verification window")

	confirmed, verifying = d.Offer(c)
	assert.False(t, confirmed, "second sample should not confirm")
	assert.True(t, verifying)

	confirmed, verifying = d.Offer(c)
	assert.True(t, confirmed, "third sample should confirm")
	assert.False(t, verifying)
}

func TestOfferRequiresMajorityVotesAboveThreshold(t *testing.T) {
	cfg := testConfig()
	cfg.VerificationSamples = 3
	d := New(cfg)
	company, employee := uuid.New(), uuid.New()

	// Two of three samples are weak (below similarity_threshold+margin =
	// 0.40); even though the strong third sample pulls the mean above the
	// bar, the majority-vote requirement should still reject it.
	d.Offer(Candidate{CompanyID: company, EmployeeID: employee, Score: 0.3})
	d.Offer(Candidate{CompanyID: company, EmployeeID: employee, Score: 0.3})
	confirmed, _ := d.Offer(Candidate{CompanyID: company, EmployeeID: employee, Score: 0.95})
	assert.False(t, confirmed, "expected a minority of strong samples to fail the vote requirement")
}

func TestOfferConfirmsWhenVotesAndMeanBothClearThreshold(t *testing.T) {
	cfg := testConfig()
	cfg.VerificationSamples = 3
	d := New(cfg)
	company, employee := uuid.New(), uuid.New()

	d.Offer(Candidate{CompanyID: company, EmployeeID: employee, Score: 0.6})
	d.Offer(Candidate{CompanyID: company, EmployeeID: employee, Score: 0.6})
	confirmed, _ := d.Offer(Candidate{CompanyID: company, EmployeeID: employee, Score: 0.6})
	assert.True(t, confirmed, "expected a majority of strong samples to confirm")
}

func TestResetClearsDebounceWindow(t *testing.T) {
	d := New(testConfig())
	company, employee := uuid.New(), uuid.New()

	d.Offer(Candidate{CompanyID: company, EmployeeID: employee, Score: 0.9})
	d.Reset(company, employee)

	confirmed, _ := d.Offer(Candidate{CompanyID: company, EmployeeID: employee, Score: 0.9})
	assert.True(t, confirmed, "expected offer to confirm again after Reset")
}
