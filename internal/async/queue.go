// Package async runs parse jobs on a bounded worker pool. PDF and
// spreadsheet parses run here; image parses are fast enough to stay
// synchronous in the triggering request.
package async

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/finparse-io/docinbox/internal/common"
)

// Job is one queued parse request.
type Job struct {
	FileID      uuid.UUID
	SubmittedAt time.Time
}

// Processor is implemented by the inbox service.
type Processor interface {
	ProcessFile(ctx context.Context, fileID uuid.UUID) error
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}

// ParseQueue fans queued files out to a fixed set of workers. Each job
// gets its own timeout-bounded context; a stuck model call cannot pin
// a worker forever.
type ParseQueue struct {
	proc    Processor
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.Mutex
	closed bool
}

type Option func(*ParseQueue)

func WithWorkers(n int) Option {
	return func(q *ParseQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(q *ParseQueue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}

func WithProcessTimeout(d time.Duration) Option {
	return func(q *ParseQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func NewParseQueue(proc Processor, logger *slog.Logger, opts ...Option) *ParseQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &ParseQueue{
		proc:    proc,
		logger:  logger,
		workers: 4,
		timeout: 3 * time.Minute,
		ch:      make(chan Job, 256),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *ParseQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Info("queue.worker.start", "worker_id", workerID)

				for job := range q.ch {
					ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
					err := q.proc.ProcessFile(ctx, job.FileID)
					cancel()

					if err != nil {
						q.logger.Error("queue.job.failed", "worker_id", workerID, "file_id", job.FileID, "error", err)
					} else {
						q.logger.Info("queue.job.ok", "worker_id", workerID, "file_id", job.FileID)
					}
				}

				q.logger.Info("queue.worker.stop", "worker_id", workerID)
			}(i + 1)
		}
	})
}

// Enqueue never blocks: a full buffer fails fast so callers can retry,
// and a blocked send can never hold the lock Shutdown needs. The file
// is not locked yet at this point, so a rejected job loses nothing.
func (q *ParseQueue) Enqueue(_ context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Warn("queue.enqueue.rejected", "file_id", job.FileID, "reason", "shutting down")
		return nil
	}
	select {
	case q.ch <- job:
		q.logger.Info("queue.enqueue.ok", "file_id", job.FileID)
		return nil
	default:
		q.logger.Warn("queue.full", "file_id", job.FileID)
		return common.NewAppErrorf(common.CodeQueueFull, "parse queue is full, retry later")
	}
}

func (q *ParseQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("queue.shutdown.interrupted")
	case <-done:
		q.logger.Info("queue.shutdown.drained")
	}
}
