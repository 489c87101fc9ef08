package async

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/platinummonkey/plantops/pkg/observability"
)

var (
	// ErrQueueFull is returned by Submit when every buffer slot is taken
	ErrQueueFull = errors.New("queue is full")
	// ErrQueueClosed is returned by Submit after Shutdown
	ErrQueueClosed = errors.New("queue is shut down")
)

// Task is one unit of queued work
type Task func(ctx context.Context) error

// Queue runs submitted tasks on a fixed number of workers
type Queue struct {
	name    string
	timeout time.Duration
	logger  *observability.Logger

	mu     sync.RWMutex
	closed bool
	tasks  chan Task
	wg     sync.WaitGroup

	dropped atomic.Int64
	failed  atomic.Int64
}

// NewQueue starts workers goroutines reading from a buffer of size tasks.
// Each task gets its own timeout.
func NewQueue(name string, workers, size int, timeout time.Duration, logger *observability.Logger) *Queue {
	if workers < 1 {
		workers = 1
	}
	if size < 0 {
		size = 0
	}
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	q := &Queue{
		name:    name,
		timeout: timeout,
		logger:  logger.WithField("queue", name),
		tasks:   make(chan Task, size),
	}
	q.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go q.work()
	}
	return q
}

// Submit enqueues task without blocking
func (q *Queue) Submit(task Task) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.tasks <- task:
		return nil
	default:
		q.dropped.Add(1)
		return fmt.Errorf("%s: %w", q.name, ErrQueueFull)
	}
}

// Shutdown stops accepting tasks and waits for the queued ones to finish or
// ctx to end. It is safe to call more than once.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.tasks)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%s queue did not drain: %w", q.name, ctx.Err())
	}
}

// Backlog returns the number of queued tasks and the buffer capacity
func (q *Queue) Backlog() (queued, capacity int) {
	return len(q.tasks), cap(q.tasks)
}

// Dropped returns how many tasks were rejected because the queue was full
func (q *Queue) Dropped() int64 {
	return q.dropped.Load()
}

// Failed returns how many tasks returned an error or panicked
func (q *Queue) Failed() int64 {
	return q.failed.Load()
}

func (q *Queue) work() {
	defer q.wg.Done()
	for task := range q.tasks {
		q.run(task)
	}
}

func (q *Queue) run(task Task) {
	ctx := context.Background()
	if q.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.timeout)
		defer cancel()
	}

	defer observability.RecoverPanicWithCallback(q.logger, q.name, func(interface{}) {
		q.failed.Add(1)
	})

	if err := task(ctx); err != nil {
		q.failed.Add(1)
		q.logger.WithError(err).Warn("Queued task failed")
	}
}
