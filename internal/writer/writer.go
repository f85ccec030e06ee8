// Package writer implements the two async write paths off the hot
// recognition path: a bounded-queue attendance DB writer and a bounded
// ERP push queue with fixed-delay retries. Both also publish onto NATS
// JetStream so a second replica can observe write traffic without
// sharing memory.
package writer

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/your-org/fd/internal/config"
	"github.com/your-org/fd/internal/models"
	"github.com/your-org/fd/internal/observability"
	"github.com/your-org/fd/internal/queue"
	"github.com/your-org/fd/internal/storage"
)

// DBWriter drains attendance marks onto Postgres from a single background
// goroutine over a bounded channel, the same worker-pool-over-a-channel
// shape the frame consumer uses, collapsed to one worker since Postgres
// writes don't benefit from fan-out the way GPU inference avoids it.
type DBWriter struct {
	queue    chan models.AttendanceMark
	db       *storage.PostgresStore
	producer *queue.Producer
	done     chan struct{}
	log      *slog.Logger
}

func NewDBWriter(db *storage.PostgresStore, producer *queue.Producer, queueSize int) *DBWriter {
	if queueSize <= 0 {
		queueSize = 1000
	}
	return &DBWriter{
		queue:    make(chan models.AttendanceMark, queueSize),
		db:       db,
		producer: producer,
		done:     make(chan struct{}),
		log:      observability.Component("dbwriter"),
	}
}

// Enqueue submits a mark for asynchronous persistence. It never blocks
// the caller: a full queue drops the mark and logs, following the
// arbiter's non-blocking-send-with-drop idiom for resource pressure.
func (w *DBWriter) Enqueue(mark models.AttendanceMark) bool {
	select {
	case w.queue <- mark:
		observability.DBWriterQueueDepth.Set(float64(len(w.queue)))
		return true
	default:
		w.log.Warn("db writer queue full, dropping mark", "employee_id", mark.EmployeeID, "company_id", mark.CompanyID)
		return false
	}
}

// Run drains the queue until ctx is cancelled, then drains whatever
// remains (bounded by drainTimeout) before returning.
func (w *DBWriter) Run(ctx context.Context, drainTimeout time.Duration) {
	defer close(w.done)
	for {
		select {
		case mark := <-w.queue:
			w.write(ctx, mark)
		case <-ctx.Done():
			w.drain(drainTimeout)
			return
		}
	}
}

func (w *DBWriter) drain(timeout time.Duration) {
	deadline := time.After(timeout)
	for {
		select {
		case mark := <-w.queue:
			w.write(context.Background(), mark)
		case <-deadline:
			return
		default:
			if len(w.queue) == 0 {
				return
			}
		}
	}
}

func (w *DBWriter) write(ctx context.Context, mark models.AttendanceMark) {
	if err := w.db.InsertAttendanceMark(ctx, mark); err != nil {
		w.log.Error("persist attendance mark", "error", err, "employee_id", mark.EmployeeID)
		return
	}
	if w.producer != nil {
		if err := w.producer.PublishAttendance(ctx, mark.CompanyID.String(), mark); err != nil {
			w.log.Warn("publish attendance mark to nats", "error", err)
		}
	}
	observability.DBWriterQueueDepth.Set(float64(len(w.queue)))
}

// Wait blocks until Run has fully stopped (used by graceful shutdown).
func (w *DBWriter) Wait() { <-w.done }

// ERPQueue pushes confirmed attendance marks to the external ERP over
// HTTP, retrying a fixed number of times with a fixed sleep between
// attempts (the teacher's external-process retry idiom, adapted from
// subprocess retries to HTTP retries).
type ERPQueue struct {
	queue    chan models.ERPJob
	client   *http.Client
	cfg      config.ERPConfig
	log      *slog.Logger
	producer *queue.Producer
	Now      func() time.Time
}

func NewERPQueue(cfg config.ERPConfig, producer *queue.Producer) *ERPQueue {
	size := cfg.QueueSize
	if size <= 0 {
		size = 500
	}
	return &ERPQueue{
		queue:    make(chan models.ERPJob, size),
		client:   &http.Client{Timeout: 5 * time.Second},
		cfg:      cfg,
		log:      observability.Component("erp"),
		producer: producer,
		Now:      time.Now,
	}
}

func (q *ERPQueue) Enqueue(mark models.AttendanceMark) bool {
	select {
	case q.queue <- models.ERPJob{Mark: mark, Attempt: 0}:
		observability.ERPQueueDepth.Set(float64(len(q.queue)))
		if q.producer != nil {
			if err := q.producer.PublishERP(context.Background(), mark.CompanyID.String(), mark); err != nil {
				q.log.Warn("publish erp job to nats", "error", err)
			}
		}
		return true
	default:
		q.log.Warn("erp queue full, dropping job", "employee_id", mark.EmployeeID)
		return false
	}
}

// Run drains the ERP queue until ctx is cancelled. Each job is retried
// up to max_retries times with a fixed retry_sleep_s delay; jobs that
// exhaust their retries are logged and dropped (the attendance mark
// itself is already durably persisted by the DB writer, so dropping the
// ERP push loses only the downstream sync, not the attendance record).
func (q *ERPQueue) Run(ctx context.Context) {
	sleep := time.Duration(q.cfg.RetrySleepS * float64(time.Second))
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-q.queue:
			observability.ERPQueueDepth.Set(float64(len(q.queue)))
			if err := q.push(ctx, job.Mark); err != nil {
				job.Attempt++
				observability.ERPRetries.WithLabelValues(job.Mark.CompanyID.String()).Inc()
				if job.Attempt > q.cfg.MaxRetries {
					q.log.Error("erp push exhausted retries", "error", err, "employee_id", job.Mark.EmployeeID, "attempts", job.Attempt)
					continue
				}
				q.log.Warn("erp push failed, retrying", "error", err, "attempt", job.Attempt)
				go func(j models.ERPJob) {
					select {
					case <-time.After(sleep):
						select {
						case q.queue <- j:
						default:
						}
					case <-ctx.Done():
					}
				}(job)
			}
		}
	}
}

func (q *ERPQueue) push(ctx context.Context, mark models.AttendanceMark) error {
	url := q.cfg.BaseURL + q.cfg.APIPrefix + "/attendance"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return fmt.Errorf("build erp request: %w", err)
	}
	req.Header.Set("x-company-id", mark.CompanyID.String())
	req.Header.Set("x-api-version", q.cfg.APIVersion)

	resp, err := q.client.Do(req)
	if err != nil {
		return fmt.Errorf("erp request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("erp responded %d", resp.StatusCode)
	}
	return nil
}
