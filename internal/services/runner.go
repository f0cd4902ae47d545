package services

import (
	"context"
	"sync"

	"fellis.eu/internal/logging"
)

// importAller is the slice of ImportService the runner needs.
type importAller interface {
	ImportAll(ctx context.Context, userID string) (*ImportSummary, error)
}

// Runner executes imports in the background over a bounded queue. The HTTP
// handler that triggers an import enqueues and returns immediately; results
// surface only through the audit log.
type Runner struct {
	svc     importAller
	queue   chan string
	workers int
	log     logging.Logger
	wg      sync.WaitGroup
}

// NewRunner creates a runner with the given worker and queue sizes.
func NewRunner(svc importAller, workers, queueSize int, log logging.Logger) *Runner {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	return &Runner{
		svc:     svc,
		queue:   make(chan string, queueSize),
		workers: workers,
		log:     log,
	}
}

// Start launches the worker goroutines. They exit when ctx is cancelled.
func (r *Runner) Start(ctx context.Context) {
	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go r.worker(ctx)
	}
}

// Enqueue submits a user for import without blocking. It reports false when
// the queue is full, which the caller surfaces as import_started=false.
func (r *Runner) Enqueue(userID string) bool {
	select {
	case r.queue <- userID:
		return true
	default:
		return false
	}
}

// Wait blocks until all workers have exited.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) worker(ctx context.Context) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case userID := <-r.queue:
			summary, err := r.svc.ImportAll(ctx, userID)
			if err != nil {
				r.log.Error(ctx, "background import failed", "user", userID, "error", err)
				continue
			}
			r.log.Info(ctx, "background import finished",
				"user", userID,
				"friends", summary.Friends,
				"posts", summary.Posts,
				"photos", summary.Photos,
			)
		}
	}
}
