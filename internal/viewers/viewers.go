// Package viewers tracks per-camera viewer refcounts grouped by
// consumption mode (attendance, headcount, ot), so the pipeline can
// decide whether a camera still has anyone watching before paying for
// expensive per-frame work. Grounded on observability.ActiveStreams'
// gauge inc/dec pattern.
package viewers

import (
	"sync"

	"github.com/your-org/fd/internal/observability"
)

// Kind is the viewer's consumption mode; higher-priority kinds win ties
// when deciding which mode to report as a camera's "active" kind.
type Kind string

const (
	KindAttendance Kind = "attendance"
	KindHeadcount  Kind = "headcount"
	KindOT         Kind = "ot"
)

var priority = map[Kind]int{
	KindAttendance: 3,
	KindHeadcount:  2,
	KindOT:         1,
}

type counts struct {
	byKind map[Kind]int
}

// Registry holds the live viewer counts for every camera currently being
// watched by at least one client.
type Registry struct {
	mu      sync.Mutex
	streams map[string]*counts
}

func NewRegistry() *Registry {
	return &Registry{streams: make(map[string]*counts)}
}

// Join registers one viewer for streamID under kind and returns a
// release func the caller must invoke exactly once when the viewer
// disconnects.
func (r *Registry) Join(streamID string, kind Kind) (release func()) {
	r.mu.Lock()
	c, ok := r.streams[streamID]
	if !ok {
		c = &counts{byKind: make(map[Kind]int)}
		r.streams[streamID] = c
	}
	wasEmpty := r.total(c) == 0
	c.byKind[kind]++
	r.mu.Unlock()

	if wasEmpty {
		observability.ActiveStreams.Inc()
	}

	var once sync.Once
	return func() {
		once.Do(func() { r.leave(streamID, kind) })
	}
}

func (r *Registry) leave(streamID string, kind Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.streams[streamID]
	if !ok {
		return
	}
	if c.byKind[kind] > 0 {
		c.byKind[kind]--
	}
	if r.total(c) == 0 {
		delete(r.streams, streamID)
		observability.ActiveStreams.Dec()
	}
}

func (r *Registry) total(c *counts) int {
	n := 0
	for _, v := range c.byKind {
		n += v
	}
	return n
}

// ActiveKind returns the highest-priority kind with at least one viewer
// for streamID, and whether the camera has any viewer at all. The
// pipeline uses this to decide, e.g., whether it's worth running
// headcount-only aggregation when no attendance viewer is watching.
func (r *Registry) ActiveKind(streamID string) (Kind, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.streams[streamID]
	if !ok {
		return "", false
	}

	var best Kind
	bestPriority := -1
	for k, n := range c.byKind {
		if n <= 0 {
			continue
		}
		if priority[k] > bestPriority {
			best = k
			bestPriority = priority[k]
		}
	}
	return best, bestPriority >= 0
}

// Count returns the viewer count for streamID under kind.
func (r *Registry) Count(streamID string, kind Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.streams[streamID]
	if !ok {
		return 0
	}
	return c.byKind[kind]
}
