// Package relay fires the optional turnstile/door-open HTTP side effect
// when an attendance mark is confirmed. Calls are fire-and-forget: a
// relay failure is logged, never propagated, since a broken door relay
// should not block attendance recording.
package relay

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/your-org/fd/internal/config"
	"github.com/your-org/fd/internal/observability"
)

// Relay rate-limits outbound calls per camera so a flapping gate doesn't
// fire on every frame a person lingers in view.
type Relay struct {
	cfg    config.RelayConfig
	client *http.Client

	mu   sync.Mutex
	last map[string]time.Time

	Now func() time.Time
}

func New(cfg config.RelayConfig) *Relay {
	timeout := time.Duration(cfg.TimeoutSec * float64(time.Second))
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Relay{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		last:   make(map[string]time.Time),
		Now:    time.Now,
	}
}

// Trigger fires the relay call for streamID if enough time has elapsed
// since the last call for that camera. It returns immediately; the HTTP
// request runs on its own goroutine.
func (r *Relay) Trigger(streamID string) {
	if r.cfg.URL == "" {
		return
	}

	r.mu.Lock()
	now := r.Now()
	minInterval := time.Duration(r.cfg.MinIntervalSec * float64(time.Second))
	if last, ok := r.last[streamID]; ok && now.Sub(last) < minInterval {
		r.mu.Unlock()
		return
	}
	r.last[streamID] = now
	r.mu.Unlock()

	go r.call(streamID)
}

func (r *Relay) call(streamID string) {
	log := observability.Component("relay")
	ctx, cancel := context.WithTimeout(context.Background(), r.client.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.URL, nil)
	if err != nil {
		log.Warn("build relay request", "error", err, "stream_id", streamID)
		observability.RelayCalls.WithLabelValues(streamID, "error").Inc()
		return
	}

	resp, err := r.client.Do(req)
	if err != nil {
		log.Warn("relay call failed", "error", err, "stream_id", streamID)
		observability.RelayCalls.WithLabelValues(streamID, "error").Inc()
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		log.Warn("relay call non-2xx", "status", resp.StatusCode, "stream_id", streamID)
		observability.RelayCalls.WithLabelValues(streamID, "error").Inc()
		return
	}
	observability.RelayCalls.WithLabelValues(streamID, "ok").Inc()
}
