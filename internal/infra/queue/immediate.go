package queue

import (
	"context"
	"log/slog"
	"sync"

	"github.com/yanqian/faq-assistant/internal/domain/catalog"
)

// Handler executes one job.
type Handler func(ctx context.Context, name string, payload map[string]any) error

// ImmediateQueue runs the handler in the background as soon as a job is enqueued.
type ImmediateQueue struct {
	handler Handler
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// NewImmediateQueue constructs the queue.
func NewImmediateQueue(handler Handler, logger *slog.Logger) *ImmediateQueue {
	return &ImmediateQueue{handler: handler, logger: logger.With("component", "queue.immediate")}
}

// SetHandler replaces the handler used for queued jobs.
func (q *ImmediateQueue) SetHandler(handler Handler) {
	q.handler = handler
}

// Enqueue starts the handler in a goroutine. The job outlives ctx.
func (q *ImmediateQueue) Enqueue(ctx context.Context, name string, payload map[string]any) error {
	if q.handler == nil {
		return nil
	}
	jobCtx := context.WithoutCancel(ctx)
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		if err := q.handler(jobCtx, name, payload); err != nil {
			q.logger.Warn("job failed", "job", name, "error", err)
		}
	}()
	return nil
}

// Wait blocks until every enqueued job has finished.
func (q *ImmediateQueue) Wait() {
	q.wg.Wait()
}

var _ catalog.JobQueue = (*ImmediateQueue)(nil)
