package voice

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestPublishAssignsIncrementingSeq(t *testing.T) {
	l := New(8, nil)
	companyID, employeeID := uuid.New(), uuid.New()

	ev1 := l.Publish(companyID, employeeID, "Alice", "hi", time.Now())
	ev2 := l.Publish(companyID, employeeID, "Alice", "bye", time.Now())

	assert.Equal(t, uint64(1), ev1.Seq)
	assert.Equal(t, uint64(2), ev2.Seq)
}

func TestSinceZeroReturnsCurrentBufferImmediately(t *testing.T) {
	l := New(8, nil)
	companyID, employeeID := uuid.New(), uuid.New()
	l.Publish(companyID, employeeID, "Alice", "hi", time.Now())

	got := l.Since(companyID, 0, time.Millisecond)
	assert.Len(t, got, 1, "expected the buffered event to be returned immediately")
}

func TestSinceReturnsOnlyNewerEvents(t *testing.T) {
	l := New(8, nil)
	companyID, employeeID := uuid.New(), uuid.New()
	ev1 := l.Publish(companyID, employeeID, "Alice", "hi", time.Now())
	l.Publish(companyID, employeeID, "Bob", "hi", time.Now())

	got := l.Since(companyID, ev1.Seq, time.Millisecond)
	if assert.Len(t, got, 1, "expected only events after lastSeq") {
		assert.Equal(t, "Bob", got[0].Name)
	}
}

func TestSinceBlocksUntilPublishThenReturns(t *testing.T) {
	l := New(8, nil)
	companyID, employeeID := uuid.New(), uuid.New()
	l.Publish(companyID, employeeID, "Alice", "hi", time.Now())

	resultCh := make(chan int, 1)
	go func() {
		got := l.Since(companyID, 1, 2*time.Second)
		resultCh <- len(got)
	}()

	time.Sleep(20 * time.Millisecond)
	l.Publish(companyID, employeeID, "Bob", "hi", time.Now())

	select {
	case n := <-resultCh:
		assert.Equal(t, 1, n, "expected exactly one new event delivered")
	case <-time.After(time.Second):
		t.Fatal("expected Since to unblock once a new event was published")
	}
}

func TestSinceUnblocksEmptyAfterDeadline(t *testing.T) {
	l := New(8, nil)
	companyID, employeeID := uuid.New(), uuid.New()
	l.Publish(companyID, employeeID, "Alice", "hi", time.Now())

	start := time.Now()
	got := l.Since(companyID, 1, 30*time.Millisecond)
	elapsed := time.Since(start)

	assert.Empty(t, got)
	assert.GreaterOrEqual(t, elapsed, 20*time.Millisecond, "expected Since to wait close to the deadline")
}

func TestPublishTrimsToCapacity(t *testing.T) {
	l := New(3, nil)
	companyID, employeeID := uuid.New(), uuid.New()
	for i := 0; i < 5; i++ {
		l.Publish(companyID, employeeID, "Alice", "hi", time.Now())
	}

	got := l.Since(companyID, 0, time.Millisecond)
	if assert.Len(t, got, 3, "expected ring buffer trimmed to capacity 3") {
		assert.Equal(t, uint64(3), got[0].Seq)
		assert.Equal(t, uint64(5), got[2].Seq)
	}
}

func TestGreetingPhraseStripsHonorific(t *testing.T) {
	l := New(8, nil)
	assert.Equal(t, "Thank you, Asif.", l.GreetingPhrase("Dr. Asif Khan"))
	assert.Equal(t, "Thank you, Asif.", l.GreetingPhrase("Mr. Asif"))
	assert.Equal(t, "Thank you, Maria.", l.GreetingPhrase("Maria"))
}

func TestGreetingPhraseUsesNameOverride(t *testing.T) {
	l := New(8, map[string]string{"asif": "A. Rahman"})
	assert.Equal(t, "Thank you, A. Rahman.", l.GreetingPhrase("Mr. Asif"))
}
