// Package gallery maintains the in-process per-company cache of
// enrolled face embeddings (G[N×D] and the parallel person-id vector
// M[N] from the matching specification) and falls back to pgvector's
// cosine-distance operator when reloading a company from Postgres fails.
package gallery

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/fd/internal/observability"
	"github.com/your-org/fd/internal/storage"
)

// Match is one candidate identity returned by a search, ordered best
// (highest score) first.
type Match struct {
	PersonID uuid.UUID
	Name     string
	Score    float32
}

type companyCache struct {
	embeddings [][]float32
	personIDs  []uuid.UUID
	names      []string
	loadedAt   time.Time
}

// Cache is the process-wide gallery: one in-memory matrix per company,
// refreshed on a timer and rebuilt from Postgres on demand when stale.
type Cache struct {
	mu            sync.RWMutex
	companies     map[uuid.UUID]*companyCache
	store         *storage.PostgresStore
	refreshPeriod time.Duration

	Now func() time.Time
}

func NewCache(store *storage.PostgresStore, refreshSeconds float64) *Cache {
	return &Cache{
		companies:     make(map[uuid.UUID]*companyCache),
		store:         store,
		refreshPeriod: time.Duration(refreshSeconds * float64(time.Second)),
		Now:           time.Now,
	}
}

// Run periodically refreshes every company currently held in the cache
// until ctx is cancelled. New companies are picked up lazily by Search.
func (c *Cache) Run(ctx context.Context) {
	log := observability.Component("gallery")
	ticker := time.NewTicker(c.refreshPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.RLock()
			ids := make([]uuid.UUID, 0, len(c.companies))
			for id := range c.companies {
				ids = append(ids, id)
			}
			c.mu.RUnlock()

			for _, id := range ids {
				if err := c.refresh(ctx, id); err != nil {
					log.Warn("refresh gallery cache", "company_id", id, "error", err)
				}
			}
		}
	}
}

// Search returns the best matches for embedding within companyID's
// gallery, using the in-process cache. A cold or stale company is first
// reloaded from Postgres; only if that reload fails does it fall back to a
// direct pgvector query, which leaves the cache unchanged.
func (c *Cache) Search(ctx context.Context, companyID uuid.UUID, embedding []float32, threshold float64, limit int) ([]Match, error) {
	c.mu.RLock()
	cc, ok := c.companies[companyID]
	stale := !ok || c.Now().Sub(cc.loadedAt) > c.refreshPeriod
	c.mu.RUnlock()

	if stale {
		if err := c.refresh(ctx, companyID); err != nil {
			return c.searchViaStore(ctx, companyID, embedding, threshold, limit)
		}
	}

	c.mu.RLock()
	cc = c.companies[companyID]
	c.mu.RUnlock()
	if cc == nil || len(cc.embeddings) == 0 {
		return nil, nil
	}

	scores := make([]scoredMatch, 0, len(cc.embeddings))
	for i, emb := range cc.embeddings {
		s := cosineSimilarity(embedding, emb)
		if float64(s) >= threshold {
			scores = append(scores, scoredMatch{i, s})
		}
	}
	sortScoredDesc(scores)
	if limit > 0 && len(scores) > limit {
		scores = scores[:limit]
	}

	out := make([]Match, len(scores))
	for i, s := range scores {
		out[i] = Match{PersonID: cc.personIDs[s.idx], Name: cc.names[s.idx], Score: s.score}
	}
	return out, nil
}

func (c *Cache) searchViaStore(ctx context.Context, companyID uuid.UUID, embedding []float32, threshold float64, limit int) ([]Match, error) {
	matches, err := c.store.SearchFaces(ctx, embedding, &companyID, threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("gallery fallback search: %w", err)
	}
	out := make([]Match, len(matches))
	for i, m := range matches {
		out[i] = Match{PersonID: m.PersonID, Name: m.Name, Score: m.Score}
	}
	return out, nil
}

// refresh reloads one company's full embedding set from Postgres. A
// company with no enrolled faces yet still gets an (empty) cache entry
// so repeated Search calls don't keep retrying the DB.
func (c *Cache) refresh(ctx context.Context, companyID uuid.UUID) error {
	rows, err := c.store.ListCompanyEmbeddings(ctx, companyID)
	if err != nil {
		return fmt.Errorf("list company embeddings: %w", err)
	}

	cc := &companyCache{loadedAt: c.Now()}
	for _, r := range rows {
		cc.embeddings = append(cc.embeddings, r.Embedding)
		cc.personIDs = append(cc.personIDs, r.PersonID)
		cc.names = append(cc.names, r.Name)
	}

	c.mu.Lock()
	c.companies[companyID] = cc
	c.mu.Unlock()
	return nil
}

// Invalidate forces the next Search for companyID to reload from
// Postgres, called after enrollment changes the gallery.
func (c *Cache) Invalidate(companyID uuid.UUID) {
	c.mu.Lock()
	delete(c.companies, companyID)
	c.mu.Unlock()
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return -1
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return float32(math.Min(1.0, math.Max(-1.0, dot)))
}

type scoredMatch struct {
	idx   int
	score float32
}

func sortScoredDesc(s []scoredMatch) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j].score > s[j-1].score; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}

// ErrGalleryEmpty is the sentinel error for a company with no enrolled
// faces. Search does not return it: an empty gallery yields no matches
// and a nil error.
var ErrGalleryEmpty = fmt.Errorf("gallery: company has no enrolled faces")
