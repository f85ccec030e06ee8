// Package recognizer runs the embed → gallery-match → hysteresis
// decision for a single track: hold_ok hysteresis, borderline/strict/
// distinct-margin thresholds, and signalling the scheduler to burst on a
// borderline match so the next few frames get another look.
package recognizer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/fd/internal/config"
	"github.com/your-org/fd/internal/gallery"
	"github.com/your-org/fd/internal/models"
)

// EmbedFunc extracts a normalized embedding from a cropped face image.
type EmbedFunc func(faceCrop []byte) ([]float32, error)

// Decision is the outcome of one recognition attempt.
type Decision struct {
	Identity     models.Identity
	Borderline   bool // match score fell in the borderline band; caller should force a scheduler burst
	IdentityFlip bool // a weak match for a *different* person than the track's prior id was demoted to Unknown
	Embedding    []float32
}

type Recognizer struct {
	embed EmbedFunc
	cache *gallery.Cache
	cfg   config.VisionConfig

	Now func() time.Time
}

func New(embed EmbedFunc, cache *gallery.Cache, cfg config.VisionConfig) *Recognizer {
	return &Recognizer{embed: embed, cache: cache, cfg: cfg, Now: time.Now}
}

// Recognize embeds faceCrop and matches it against companyID's gallery,
// applying the three-band threshold rule:
//
//   - score < similarity_threshold            → Unknown
//   - similarity_threshold <= score < strict   → Known, but Borderline=true
//     (the scheduler should burst to get a second look before committing)
//   - score >= strict_similarity_threshold     → Known, confident
//
// A match is additionally required to beat the runner-up by at least
// distinct_sim_margin; otherwise it's treated as ambiguous (Unknown) even
// if the top score alone would have cleared the strict threshold, since
// two near-identical scores usually means two similar-looking people
// rather than one confident match.
func (r *Recognizer) Recognize(ctx context.Context, companyID uuid.UUID, faceCrop []byte, prior models.Identity) (Decision, error) {
	embedding, err := r.embed(faceCrop)
	if err != nil {
		return Decision{}, fmt.Errorf("embed face: %w", err)
	}

	matches, err := r.cache.Search(ctx, companyID, embedding, r.cfg.SimilarityThreshold, 2)
	if err != nil {
		return Decision{Embedding: embedding}, fmt.Errorf("gallery search: %w", err)
	}

	if len(matches) == 0 {
		return Decision{Identity: models.Identity{Kind: models.IdentityUnknown}, Embedding: embedding}, nil
	}

	top := matches[0]
	if len(matches) > 1 {
		runnerUp := matches[1]
		if float64(top.Score-runnerUp.Score) < r.cfg.DistinctSimMargin {
			return Decision{Identity: models.Identity{Kind: models.IdentityUnknown}, Embedding: embedding}, nil
		}
	}

	// Identity-flip guard: prior holds a confident identity for a
	// *different* person than this fresh match. A flip is only trusted
	// once the match clears the borderline band entirely; a weak flip
	// demotes the track to Unknown instead of instantly replacing a
	// confident prior identity, and tells the caller to force a burst so
	// the next few frames settle it one way or the other.
	if prior.IsKnown() && prior.PersonID != top.PersonID && float64(top.Score) < r.cfg.SimilarityThreshold+r.cfg.BorderlineMargin {
		return Decision{
			Identity:     models.Identity{Kind: models.IdentityUnknown},
			IdentityFlip: true,
			Embedding:    embedding,
		}, nil
	}

	identity := models.Identity{
		Kind:     models.IdentityKnown,
		PersonID: top.PersonID,
		Name:     top.Name,
		Score:    top.Score,
	}

	if float64(top.Score) >= r.cfg.StrictSimThreshold {
		return Decision{Identity: identity, Embedding: embedding}, nil
	}

	// Borderline band: between similarity_threshold and strict threshold.
	return Decision{Identity: identity, Borderline: true, Embedding: embedding}, nil
}

// ApplyHysteresis implements hold_ok: if the fresh decision is Unknown or
// borderline (its score is not compared with the prior's), and the prior
// known identity's hold window hasn't expired, keep the prior identity
// instead of flapping to Unknown on a single noisy frame.
func (r *Recognizer) ApplyHysteresis(prior models.Identity, fresh Decision, now time.Time) models.Identity {
	if fresh.Identity.Kind == models.IdentityKnown && !fresh.Borderline {
		return fresh.Identity
	}
	if prior.IsKnown() && now.Before(prior.HoldUntil) {
		return prior
	}
	return fresh.Identity
}

// MeetsAttendanceQuality reports whether a decision's match confidence and
// detection quality are strong enough to count toward attendance (distinct
// from merely being strong enough to display a name overlay). The identity
// gate requires the stricter of the two configured similarity thresholds —
// a plain borderline match displays a name but never marks attendance on
// its own. detConfidence is the track's detector confidence for this frame,
// gated separately by min_att_quality (bbox/pose quality, not identity
// confidence).
func (r *Recognizer) MeetsAttendanceQuality(d Decision, detConfidence float32) bool {
	if !d.Identity.IsKnown() {
		return false
	}
	identityGate := r.cfg.SimilarityThreshold
	if r.cfg.StrictSimThreshold > identityGate {
		identityGate = r.cfg.StrictSimThreshold
	}
	if float64(d.Identity.Score) < identityGate {
		return false
	}
	return float64(detConfidence) >= r.cfg.MinAttQuality
}
