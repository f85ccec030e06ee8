// Package tracker implements the per-camera face tracker: greedy
// IoU + center-distance + area-ratio assignment, det_misses-based
// pruning with separate thresholds for known and unknown identities, and
// identity-hold hysteresis across brief detector misses.
package tracker

import (
	"fmt"
	"image"
	"math"
	"sync"
	"time"

	"github.com/your-org/fd/internal/config"
	"github.com/your-org/fd/internal/models"
)

// Manager owns one camera's track arena. TrackID strings are stable for
// the track's lifetime and never reused; Generation is the arena's
// creation sequence number for the track, checked by Get so callers
// holding a stale TrackSnapshot can detect it's gone.
type Manager struct {
	mu       sync.Mutex
	streamID string
	tracks   map[string]*models.Track
	nextID   uint64
	cfg      config.TrackingConfig

	// optical carries a track's box forward on frames where the
	// scheduler skipped the detector, one single-object tracker per
	// live track (see Backend/CorrelationTracker in backend.go).
	optical map[string]*CorrelationTracker

	Now func() time.Time
}

func NewManager(streamID string, cfg config.TrackingConfig) *Manager {
	return &Manager{
		streamID: streamID,
		tracks:   make(map[string]*models.Track),
		optical:  make(map[string]*CorrelationTracker),
		cfg:      cfg,
		Now:      time.Now,
	}
}

// Update assigns this frame's detections to existing tracks (or creates
// new ones), ages unmatched tracks, and prunes tracks that have exceeded
// their det_misses budget. It returns a snapshot of every live track
// after the update so callers never hold a pointer into the arena.
//
// img, when non-nil, is the decoded frame the detections (or lack of
// them) came from. Tracks that go unmatched this round — either because
// the scheduler skipped the detector or because the detector missed
// them — get their box carried forward by a single-object correlation
// tracker instead of being left stale until the next detection, per
// spec.md §4.4's csrt/kcf/mil fallback.
func (m *Manager) Update(dets []models.Detection, img image.Image) []models.TrackSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.Now()
	matchedTrack := make(map[string]bool, len(m.tracks))
	matchedDet := make(map[int]bool, len(dets))
	newTracks := make(map[string]bool)

	// Greedy best-match assignment: for every detection, find the
	// unmatched track with the highest combined score, where a
	// detection may only match a track that passes the IoU and
	// area-ratio gates; among passing candidates the closest center
	// wins the tie.
	type candidate struct {
		trackID string
		iou     float32
		center  float32
	}

	for di, det := range dets {
		var best *candidate
		for id, tr := range m.tracks {
			if matchedTrack[id] {
				continue
			}
			iouVal := iou(det.BBox, tr.BBox)
			centerDist := centerDistance(det.BBox, tr.BBox)
			areaR := areaRatio(det.BBox, tr.BBox)

			if areaR < m.cfg.AreaRatioMin || areaR > m.cfg.AreaRatioMax {
				continue
			}
			if iouVal < m.cfg.IoUMatchThreshold && centerDist > m.cfg.CenterMatchPx {
				continue
			}

			if best == nil || iouVal > best.iou || (iouVal == best.iou && centerDist < best.center) {
				best = &candidate{trackID: id, iou: iouVal, center: centerDist}
			}
		}

		if best != nil {
			tr := m.tracks[best.trackID]
			m.applyReacquireClear(tr, det, best.iou)
			tr.BBox = det.BBox
			tr.Keypoints = det.Keypoints
			tr.Confidence = det.Confidence
			tr.LastDetectedAt = now
			tr.LastSeenAt = now
			tr.DetMisses = 0
			tr.Hits++
			if tr.Hits >= m.cfg.StableIDConfirmations {
				tr.StableConfirmed = true
			}
			matchedTrack[best.trackID] = true
			matchedDet[di] = true
			delete(m.optical, best.trackID) // re-init lazily from the fresh, detector-confirmed box
		}
	}

	// Unmatched detections become new tracks.
	for di, det := range dets {
		if matchedDet[di] {
			continue
		}
		m.nextID++
		id := fmt.Sprintf("%s-%d", m.streamID, m.nextID)
		m.tracks[id] = &models.Track{
			TrackID:        id,
			Generation:     m.nextID,
			BBox:           det.BBox,
			Keypoints:      det.Keypoints,
			Confidence:     det.Confidence,
			CreatedAt:      now,
			LastDetectedAt: now,
			LastSeenAt:     now,
			Hits:           1,
			UnknownSince:   now,
		}
		newTracks[id] = true
		matchedTrack[id] = true // matched to its own detection; not aged this round
	}

	// Age and prune unmatched tracks, carrying their box forward with the
	// correlation tracker first so a stretch of skipped detector frames
	// doesn't leave a visibly stale box.
	var gray []byte
	var stride, width, height int
	if img != nil && Backend(m.cfg.Backend) != BackendIoUOnly {
		gray, stride, width, height = toGrayFull(img)
	}

	for id, tr := range m.tracks {
		if matchedTrack[id] {
			continue
		}
		tr.DetMisses++

		budget := m.cfg.MaxDetMissesUnknown
		if tr.Identity.IsKnown() {
			budget = m.cfg.MaxDetMissesKnown
		}
		if tr.DetMisses > budget {
			delete(m.tracks, id)
			delete(m.optical, id)
			continue
		}

		if gray != nil {
			m.carryForwardLocked(id, tr, gray, stride, width, height)
		}
	}

	return m.snapshotLocked(newTracks)
}

// carryForwardLocked steps trackID's correlation tracker against the
// current frame's grayscale buffer and, if the template still matches
// within the search window, updates the track's box in place. A track
// seen for the first time since its last detector match gets its
// template (re)initialized from its last known box instead.
func (m *Manager) carryForwardLocked(trackID string, tr *models.Track, gray []byte, stride, width, height int) {
	ct, ok := m.optical[trackID]
	if !ok {
		ct = &CorrelationTracker{}
		ct.Init(gray, stride, tr.BBox)
		m.optical[trackID] = ct
		return
	}
	if bbox, ok := ct.Step(gray, stride, width, height); ok {
		tr.BBox = bbox
	}
}

// applyReacquireClear implements the spec's re-acquire rule: if a known
// track reappears after detector misses but the new box barely overlaps
// the track's last known position, the identity is cleared rather than
// silently carried over onto what is probably a different face.
func (m *Manager) applyReacquireClear(tr *models.Track, det models.Detection, matchIoU float32) {
	if !tr.Identity.IsKnown() || tr.DetMisses == 0 {
		return
	}
	centerRatio := centerShiftRatio(det.BBox, tr.BBox)
	if matchIoU < m.cfg.KnownReacquireClearIoU || centerRatio > m.cfg.KnownReacquireClearCenterRatio {
		tr.Identity = models.Identity{Kind: models.IdentityUnknown}
		tr.UnknownSince = m.Now()
		tr.StableConfirmed = false
		tr.Hits = 0
	}
}

// ShouldReEmbed reports whether trackID's embedding is stale enough to
// warrant another embed+recognize pass, using a shorter refresh interval
// for unknown tracks (faster to confirm identity) than known ones
// (cheaper to hold an established identity via hysteresis). A track that
// no longer exists is reported as due (the caller's next Update call will
// simply find nothing to act on).
func (m *Manager) ShouldReEmbed(trackID string, now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	tr, ok := m.tracks[trackID]
	if !ok {
		return true
	}

	interval := m.cfg.EmbedRefreshSecondsUnknown
	if tr.Identity.IsKnown() {
		interval = m.cfg.EmbedRefreshSeconds
	}
	if tr.LastEmbeddedAt.IsZero() {
		return true
	}
	return now.Sub(tr.LastEmbeddedAt).Seconds() >= interval
}

// ApplyIdentityHold decides whether a track's previously-known identity
// should still be honored even though a fresh recognition attempt missed
// or came back unknown: short gaps with compatible geometry keep the
// prior identity (hysteresis); otherwise it is cleared.
func (m *Manager) ApplyIdentityHold(tr *models.Track, now time.Time) {
	if !tr.Identity.IsKnown() {
		return
	}
	if tr.DetMisses > m.cfg.IdentityHoldMaxDetMisses {
		tr.Identity = models.Identity{Kind: models.IdentityUnknown}
		tr.UnknownSince = now
		return
	}
	if now.After(tr.Identity.HoldUntil) && !tr.Identity.HoldUntil.IsZero() {
		tr.Identity = models.Identity{Kind: models.IdentityUnknown}
		tr.UnknownSince = now
	}
}

// Get returns a snapshot of one track by id, or ok=false if it no longer
// exists (or a caller's Generation no longer matches, signalling the
// handle is stale).
func (m *Manager) Get(trackID string, generation uint64) (models.TrackSnapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tr, ok := m.tracks[trackID]
	if !ok || tr.Generation != generation {
		return models.TrackSnapshot{}, false
	}
	return snapshotOf(tr, false), true
}

// SetIdentity updates a track's identity in place (called by the
// recognizer after a successful gallery match) and arms the hold-ok
// hysteresis deadline.
func (m *Manager) SetIdentity(trackID string, identity models.Identity, holdSeconds float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tr, ok := m.tracks[trackID]
	if !ok {
		return
	}
	now := m.Now()
	if !tr.Identity.IsKnown() || tr.Identity.PersonID != identity.PersonID {
		tr.IdentitySince = now
	}
	identity.HoldUntil = now.Add(time.Duration(holdSeconds * float64(time.Second)))
	tr.Identity = identity
	tr.UnknownSince = time.Time{}
}

// AntiSpoofState returns a pointer to trackID's live liveness accumulator
// for the anti-spoof gate to mutate in place. Safe under this package's
// single-goroutine-per-camera processing model: the same goroutine that
// called Update for this stream is the only caller.
func (m *Manager) AntiSpoofState(trackID string) *models.AntiSpoofState {
	m.mu.Lock()
	defer m.mu.Unlock()
	tr, ok := m.tracks[trackID]
	if !ok {
		return &models.AntiSpoofState{}
	}
	return &tr.AntiSpoof
}

// SetUnknown marks a track as currently Unknown, stamping UnknownSince the
// first time the track goes Unknown (or stays Unknown across a call) and
// returning the persisted-since timestamp so callers can measure how long
// the track has been unresolved. A track that was previously Known has its
// clock restarted here, since unknown_persist should measure this stretch
// of unresolved frames, not time since the track was first created.
func (m *Manager) SetUnknown(trackID string, now time.Time) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	tr, ok := m.tracks[trackID]
	if !ok {
		return now
	}
	wasKnown := tr.Identity.IsKnown()
	tr.Identity = models.Identity{Kind: models.IdentityUnknown}
	if wasKnown || tr.UnknownSince.IsZero() {
		tr.UnknownSince = now
	}
	return tr.UnknownSince
}

// SetEmbedding records a track's freshly computed embedding.
func (m *Manager) SetEmbedding(trackID string, embedding []float32, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tr, ok := m.tracks[trackID]; ok {
		tr.LastEmbedding = embedding
		tr.LastEmbeddedAt = at
	}
}

func (m *Manager) snapshotLocked(newTracks map[string]bool) []models.TrackSnapshot {
	out := make([]models.TrackSnapshot, 0, len(m.tracks))
	for id, tr := range m.tracks {
		out = append(out, snapshotOf(tr, newTracks[id]))
	}
	return out
}

func snapshotOf(tr *models.Track, isNew bool) models.TrackSnapshot {
	return models.TrackSnapshot{
		TrackID:       tr.TrackID,
		Generation:    tr.Generation,
		BBox:          tr.BBox,
		Keypoints:     tr.Keypoints,
		Identity:      tr.Identity,
		IdentitySince: tr.IdentitySince,
		UnknownSince:  tr.UnknownSince,
		Embedding:     tr.LastEmbedding,
		Confidence:    tr.Confidence,
		AsOf:          tr.LastSeenAt,
		IsNew:         isNew,
	}
}

// Count returns the number of live tracks.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tracks)
}

func iou(a, b [4]float32) float32 {
	x1 := maxf(a[0], b[0])
	y1 := maxf(a[1], b[1])
	x2 := minf(a[2], b[2])
	y2 := minf(a[3], b[3])

	inter := maxf(0, x2-x1) * maxf(0, y2-y1)
	areaA := (a[2] - a[0]) * (a[3] - a[1])
	areaB := (b[2] - b[0]) * (b[3] - b[1])
	union := areaA + areaB - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func centerDistance(a, b [4]float32) float32 {
	acx, acy := (a[0]+a[2])/2, (a[1]+a[3])/2
	bcx, bcy := (b[0]+b[2])/2, (b[1]+b[3])/2
	dx := acx - bcx
	dy := acy - bcy
	return float32(math.Sqrt(float64(dx*dx + dy*dy)))
}

// centerShiftRatio is the center displacement relative to the track's own
// diagonal, so the re-acquire check scales with face size.
func centerShiftRatio(a, b [4]float32) float32 {
	diag := float32(math.Sqrt(float64((b[2]-b[0])*(b[2]-b[0]) + (b[3]-b[1])*(b[3]-b[1]))))
	if diag <= 0 {
		return 0
	}
	return centerDistance(a, b) / diag
}

func areaRatio(a, b [4]float32) float32 {
	areaA := (a[2] - a[0]) * (a[3] - a[1])
	areaB := (b[2] - b[0]) * (b[3] - b[1])
	if areaB <= 0 {
		return 0
	}
	return areaA / areaB
}

func maxf(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

func minf(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}
