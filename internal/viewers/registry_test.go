package viewers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinAndCount(t *testing.T) {
	r := NewRegistry()
	r.Join("cam-1", KindAttendance)
	r.Join("cam-1", KindAttendance)
	r.Join("cam-1", KindHeadcount)

	assert.Equal(t, 2, r.Count("cam-1", KindAttendance))
	assert.Equal(t, 1, r.Count("cam-1", KindHeadcount))
}

func TestReleaseDecrementsCount(t *testing.T) {
	r := NewRegistry()
	release := r.Join("cam-1", KindAttendance)
	release()

	assert.Equal(t, 0, r.Count("cam-1", KindAttendance))
}

func TestReleaseIsIdempotent(t *testing.T) {
	r := NewRegistry()
	release := r.Join("cam-1", KindAttendance)
	r.Join("cam-1", KindAttendance)
	release()
	release() // second call must be a no-op, not double-decrement

	assert.Equal(t, 1, r.Count("cam-1", KindAttendance))
}

func TestActiveKindPrefersHighestPriority(t *testing.T) {
	r := NewRegistry()
	r.Join("cam-1", KindOT)
	r.Join("cam-1", KindHeadcount)

	kind, ok := r.ActiveKind("cam-1")
	require.True(t, ok)
	assert.Equal(t, KindHeadcount, kind, "expected headcount to outrank ot")

	r.Join("cam-1", KindAttendance)
	kind, ok = r.ActiveKind("cam-1")
	require.True(t, ok)
	assert.Equal(t, KindAttendance, kind, "expected attendance to outrank both")
}

func TestActiveKindReportsNoneForUnknownStream(t *testing.T) {
	r := NewRegistry()
	_, ok := r.ActiveKind("cam-unknown")
	assert.False(t, ok, "expected no active kind for a stream nobody joined")
}

func TestActiveKindClearsAfterAllViewersLeave(t *testing.T) {
	r := NewRegistry()
	release := r.Join("cam-1", KindAttendance)
	release()

	_, ok := r.ActiveKind("cam-1")
	assert.False(t, ok, "expected no active kind once all viewers have left")
}
