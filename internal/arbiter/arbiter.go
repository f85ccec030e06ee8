// Package arbiter serializes access to the single shared detector model
// across every camera's pipeline goroutine. Only one detection call runs
// at a time; the arbiter fairly round-robins which camera gets the next
// slot and bounds how much work can queue up per camera.
package arbiter

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/your-org/fd/internal/config"
	"github.com/your-org/fd/internal/models"
	"github.com/your-org/fd/internal/observability"
)

// DetectFunc is the shared, mutex-unsafe-by-itself model call. The
// arbiter guarantees only one goroutine ever calls it concurrently.
type DetectFunc func(ctx context.Context, frame []byte, width, height int) ([]models.Detection, error)

// Arbiter owns one background worker goroutine that drains a round-robin
// FIFO of per-camera ring buffers and calls the shared detector exactly
// once at a time, mirroring the teacher's single-resource worker-pool
// shape but collapsed to one worker since the resource (the GPU context)
// is not shareable.
type Arbiter struct {
	mu       sync.Mutex
	cond     *sync.Cond
	rings    map[string]*ring
	order    []string // round-robin camera order; append-on-first-use
	nextIdx  int
	detect   DetectFunc
	cfg      config.ArbiterConfig
	stopped  bool
	log      *slog.Logger

	Now func() time.Time
}

type ring struct {
	buf []*models.DetectionBatch // bounded, oldest dropped on overflow
}

func New(cfg config.ArbiterConfig, detect DetectFunc) *Arbiter {
	a := &Arbiter{
		rings:  make(map[string]*ring),
		detect: detect,
		cfg:    cfg,
		log:    observability.Component("arbiter"),
		Now:    time.Now,
	}
	a.cond = sync.NewCond(&a.mu)
	return a
}

// Run drives the single worker loop until ctx is cancelled. vision.Pipeline.Run
// starts it in its own goroutine.
func (a *Arbiter) Run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		a.mu.Lock()
		a.stopped = true
		a.mu.Unlock()
		a.cond.Broadcast()
	}()

	for {
		batch, ok := a.pop()
		if !ok {
			return
		}

		if a.cfg.MaxDetectionResultAgeSec > 0 {
			age := a.Now().Sub(batch.EnqueuedAt).Seconds()
			if age > a.cfg.MaxDetectionResultAgeSec {
				observability.ArbiterStaleDrops.WithLabelValues(batch.StreamID).Inc()
				batch.Result <- models.DetectionBatchResult{Dropped: true}
				continue
			}
		}

		dets, err := a.detect(ctx, batch.Frame, batch.Width, batch.Height)
		batch.Result <- models.DetectionBatchResult{Detections: dets, Err: err}
	}
}

// Submit enqueues a detection batch for streamID and blocks until a
// result is available or ctx is cancelled. If the camera's ring is full,
// the oldest pending batch for that camera is dropped to make room — a
// slow consumer never backs up the whole arbiter.
func (a *Arbiter) Submit(ctx context.Context, batch *models.DetectionBatch) (models.DetectionBatchResult, error) {
	batch.Result = make(chan models.DetectionBatchResult, 1)
	batch.EnqueuedAt = a.Now()

	a.mu.Lock()
	r, ok := a.rings[batch.StreamID]
	if !ok {
		r = &ring{}
		a.rings[batch.StreamID] = r
		a.order = append(a.order, batch.StreamID)
	}

	if len(r.buf) >= a.cfg.QueueSize {
		dropped := r.buf[0]
		r.buf = r.buf[1:]
		observability.ArbiterQueueDrops.WithLabelValues(batch.StreamID).Inc()
		dropped.Result <- models.DetectionBatchResult{Dropped: true}
	}
	r.buf = append(r.buf, batch)
	a.mu.Unlock()
	a.cond.Broadcast()

	select {
	case res := <-batch.Result:
		return res, nil
	case <-ctx.Done():
		return models.DetectionBatchResult{}, ctx.Err()
	}
}

// pop blocks until a batch is available across any camera's ring, then
// returns it using fair round-robin: the camera after whichever one was
// last served gets priority.
func (a *Arbiter) pop() (*models.DetectionBatch, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for {
		if a.stopped {
			return nil, false
		}

		n := len(a.order)
		if n == 0 {
			a.cond.Wait()
			continue
		}
		for i := 0; i < n; i++ {
			idx := (a.nextIdx + i) % n
			streamID := a.order[idx]
			r := a.rings[streamID]
			if len(r.buf) > 0 {
				batch := r.buf[0]
				r.buf = r.buf[1:]
				a.nextIdx = (idx + 1) % n
				return batch, true
			}
		}

		a.cond.Wait()
	}
}
