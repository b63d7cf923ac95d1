package tasks

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AlibekovAA/user-directory/backend/internal/common/constants"
	"github.com/AlibekovAA/user-directory/backend/internal/common/logger"
	"github.com/AlibekovAA/user-directory/backend/internal/observability/metrics"
)

type Task func(ctx context.Context) error

type job struct {
	name string
	ctx  context.Context
	fn   Task
}

// Queue is a bounded fire-and-forget worker pool. Submit never blocks the
// caller; task failures only reach the log. Each worker drains its own lane,
// so tasks submitted under the same key run one at a time in submission
// order.
type Queue struct {
	lanes   []chan job
	next    atomic.Uint64
	timeout time.Duration
	log     *logger.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewQueue(workers, queueSize int, timeout time.Duration, log *logger.Logger) *Queue {
	if workers <= 0 {
		workers = constants.DefaultTaskWorkers
	}
	if queueSize <= 0 {
		queueSize = constants.DefaultTaskQueueSize
	}
	if timeout <= 0 {
		timeout = constants.DefaultTaskTimeout
	}

	laneSize := (queueSize + workers - 1) / workers
	q := &Queue{
		lanes:   make([]chan job, workers),
		timeout: timeout,
		log:     log,
	}

	q.wg.Add(workers)
	for i := range q.lanes {
		q.lanes[i] = make(chan job, laneSize)
		go q.worker(q.lanes[i])
	}

	return q
}

func (q *Queue) worker(lane chan job) {
	defer q.wg.Done()
	for j := range lane {
		metrics.BackgroundTaskQueueSize.Set(float64(q.pending()))
		q.process(j)
	}
}

func (q *Queue) pending() int {
	n := 0
	for _, lane := range q.lanes {
		n += len(lane)
	}
	return n
}

func (q *Queue) process(j job) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(j.ctx, q.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			q.log.WithFields(ctx, logger.Fields{
				"task":   j.name,
				"action": "background_task_panic",
			}).Criticalf("background task panicked: %v", r)
		}
		metrics.BackgroundTaskDurationSeconds.WithLabelValues(j.name).Observe(time.Since(start).Seconds())
	}()

	if err := j.fn(ctx); err != nil {
		q.log.WithFields(ctx, logger.Fields{
			"task":   j.name,
			"action": "background_task_failed",
		}).Warnf("background task failed: %v", err)
	}
}

// Submit enqueues fn under a context that keeps ctx's values but not its
// cancellation. It reports false when the task was dropped.
func (q *Queue) Submit(ctx context.Context, name string, fn Task) bool {
	lane := int(q.next.Add(1) % uint64(len(q.lanes)))
	return q.enqueue(ctx, lane, name, fn)
}

// SubmitKeyed is Submit for tasks that must not overtake one another: every
// task with the same key lands on the same worker.
func (q *Queue) SubmitKeyed(ctx context.Context, key, name string, fn Task) bool {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return q.enqueue(ctx, int(h.Sum32()%uint32(len(q.lanes))), name, fn)
}

func (q *Queue) enqueue(ctx context.Context, lane int, name string, fn Task) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		q.log.WithFields(ctx, logger.Fields{
			"task":   name,
			"action": "background_task_rejected",
		}).Warn("background queue is shut down")
		metrics.BackgroundTasksDropped.WithLabelValues(name).Inc()
		return false
	}

	select {
	case q.lanes[lane] <- job{name: name, ctx: context.WithoutCancel(ctx), fn: fn}:
		metrics.BackgroundTaskQueueSize.Set(float64(q.pending()))
		return true
	default:
		q.log.WithFields(ctx, logger.Fields{
			"task":   name,
			"action": "background_queue_full",
		}).Warn("background task queue full")
		metrics.BackgroundTasksDropped.WithLabelValues(name).Inc()
		return false
	}
}

// Shutdown stops accepting tasks and waits for queued ones to finish or
// for ctx to expire.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		for _, lane := range q.lanes {
			close(lane)
		}
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
		return errors.Join(errors.New("background queue did not drain"), ctx.Err())
	}
}
