package audit

import (
	"context"

	"github.com/platinummonkey/plantops/pkg/async"
)

// AsyncLogger hands events to a queue so request handlers do not wait on
// the audit store. Log only fails when the queue rejects the event.
type AsyncLogger struct {
	next  Logger
	queue *async.Queue
}

// NewAsyncLogger writes events to next on queue
func NewAsyncLogger(next Logger, queue *async.Queue) *AsyncLogger {
	return &AsyncLogger{next: next, queue: queue}
}

// Log enqueues the event
func (a *AsyncLogger) Log(_ context.Context, event *Event) error {
	return a.queue.Submit(func(ctx context.Context) error {
		return a.next.Log(ctx, event)
	})
}
